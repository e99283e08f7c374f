package journal

import (
	"fmt"
	"strings"
	"time"
)

// HistoryOptions filters journal entries
type HistoryOptions struct {
	RunID    string
	StoredID string // prefix match
	Status   string
	Since    *time.Time
	Limit    int
}

// History returns journal entries matching opts, newest first
func (j *Journal) History(opts HistoryOptions) ([]Entry, error) {
	var conditions []string
	var args []interface{}

	if opts.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, opts.RunID)
	}

	if opts.StoredID != "" {
		conditions = append(conditions, `stored_id LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(strings.ToLower(opts.StoredID))+"%")
	}

	if opts.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, opts.Status)
	}

	if opts.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, formatTime(*opts.Since))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT id, run_id, stored_id, remote_id, subject, operation, status, error, created_at
		FROM apply_entries
		%s
		ORDER BY id DESC
		LIMIT ?
	`, whereClause)
	args = append(args, limit)

	var rows []entryRow
	if err := j.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			ID:        row.ID,
			RunID:     row.RunID,
			StoredID:  row.StoredID,
			RemoteID:  row.RemoteID,
			Subject:   row.Subject,
			Operation: row.Operation,
			Status:    row.Status,
			Error:     row.Error,
			CreatedAt: parseTime(row.CreatedAt),
		})
	}
	return entries, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes value match literally inside a LIKE pattern
func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
