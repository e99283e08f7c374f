package tools

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/config"
	"github.com/brandon/outlook-email/internal/email"
)

// SearchEmailsTool runs a server-side search against the mailbox
type SearchEmailsTool struct {
	config       *config.Config
	emailManager *email.Manager
	logger       *logrus.Logger
	now          func() time.Time
}

// NewSearchEmailsTool creates a new search emails tool
func NewSearchEmailsTool(cfg *config.Config, emailManager *email.Manager, logger *logrus.Logger) *SearchEmailsTool {
	return &SearchEmailsTool{
		config:       cfg,
		emailManager: emailManager,
		logger:       logger,
		now:          time.Now,
	}
}

// Name returns the tool name
func (t *SearchEmailsTool) Name() string {
	return "search_emails"
}

// Description returns the tool description
func (t *SearchEmailsTool) Description() string {
	return "Search the remote mailbox by text, optionally within one folder, and optionally cache the matches locally"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SearchEmailsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Text to search for in subject, sender and body",
			},
			"folder": map[string]interface{}{
				"type":        "string",
				"description": "Optional: folder name or path like Work/Clients (default: all folders)",
			},
			"since": map[string]interface{}{
				"type":        "string",
				"description": "Optional: YYYY-MM-DD, yesterday, or \"N days ago\"",
			},
			"store": map[string]interface{}{
				"type":        "boolean",
				"description": "Optional: save matches that are not cached yet",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": fmt.Sprintf("Optional: result limit (default and max: %d)", t.config.Search.MaxLimit),
				"minimum":     1,
			},
		},
		"required": []string{"query"},
	}
}

// Execute executes the tool
func (t *SearchEmailsTool) Execute(params map[string]interface{}) (interface{}, error) {
	opts := email.SearchOptions{
		Query:  stringParam(params, "query"),
		Folder: stringParam(params, "folder"),
		Store:  boolParam(params, "store"),
	}
	if opts.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	limit, err := intParam(params, "limit", t.config.Search.MaxLimit)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, fmt.Errorf("limit must be a positive number")
	}
	opts.Limit = limit

	if since := stringParam(params, "since"); since != "" {
		opts.Since, err = email.ParseSince(since, t.now())
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := remoteContext()
	defer cancel()

	result, err := t.emailManager.Search(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}

	emails := make([]map[string]interface{}, len(result.Emails))
	for i := range result.Emails {
		e := &result.Emails[i]
		item := summarize(e)
		item["read"] = e.IsRead
		item["preview"] = e.BodyPreview
		emails[i] = item
	}

	t.logger.WithFields(logrus.Fields{
		"query":   opts.Query,
		"matches": len(emails),
		"stored":  result.Stored,
	}).Debug("Search finished")

	return map[string]interface{}{
		"matched": len(emails),
		"stored":  result.Stored,
		"emails":  emails,
	}, nil
}
