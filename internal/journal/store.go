package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one apply invocation
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Planned    int
	Applied    int
	Failed     int
}

// Entry is the outcome of one record within a run
type Entry struct {
	ID        int64
	RunID     string
	StoredID  string
	RemoteID  string
	Subject   string
	Operation string
	Status    string
	Error     string
	CreatedAt time.Time
}

type runRow struct {
	ID         string         `db:"id"`
	StartedAt  string         `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
	Planned    int            `db:"planned"`
	Applied    int            `db:"applied"`
	Failed     int            `db:"failed"`
}

type entryRow struct {
	ID        int64  `db:"id"`
	RunID     string `db:"run_id"`
	StoredID  string `db:"stored_id"`
	RemoteID  string `db:"remote_id"`
	Subject   string `db:"subject"`
	Operation string `db:"operation"`
	Status    string `db:"status"`
	Error     string `db:"error"`
	CreatedAt string `db:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

// StartRun records the start of an apply run
func (j *Journal) StartRun(run Run) error {
	_, err := j.db.Exec(
		`INSERT INTO apply_runs (id, started_at, planned) VALUES (?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), run.Planned,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters of a run
func (j *Journal) FinishRun(run Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	_, err := j.db.Exec(
		`UPDATE apply_runs SET finished_at = ?, applied = ?, failed = ? WHERE id = ?`,
		formatTime(finished), run.Applied, run.Failed, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecordEntry appends a record outcome to a run
func (j *Journal) RecordEntry(entry Entry) error {
	_, err := j.db.Exec(`
		INSERT INTO apply_entries (run_id, stored_id, remote_id, subject, operation, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.StoredID, entry.RemoteID, entry.Subject,
		entry.Operation, entry.Status, entry.Error, formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first
func (j *Journal) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []runRow
	err := j.db.Select(&rows, `
		SELECT id, started_at, finished_at, planned, applied, failed
		FROM apply_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		run := Run{
			ID:        row.ID,
			StartedAt: parseTime(row.StartedAt),
			Planned:   row.Planned,
			Applied:   row.Applied,
			Failed:    row.Failed,
		}
		if row.FinishedAt.Valid {
			t := parseTime(row.FinishedAt.String)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, nil
}
