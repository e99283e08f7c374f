package tools

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/config"
	"github.com/brandon/outlook-email/internal/email"
)

// ListEmailsTool lists cached emails newest first
type ListEmailsTool struct {
	config       *config.Config
	emailManager *email.Manager
	logger       *logrus.Logger
	now          func() time.Time
}

// NewListEmailsTool creates a new list emails tool
func NewListEmailsTool(cfg *config.Config, emailManager *email.Manager, logger *logrus.Logger) *ListEmailsTool {
	return &ListEmailsTool{
		config:       cfg,
		emailManager: emailManager,
		logger:       logger,
		now:          time.Now,
	}
}

// Name returns the tool name
func (t *ListEmailsTool) Name() string {
	return "list_emails"
}

// Description returns the tool description
func (t *ListEmailsTool) Description() string {
	return "List cached emails newest first with their effective read state and queued changes"
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListEmailsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"folder": map[string]interface{}{
				"type":        "string",
				"description": "Optional: only emails pulled from or filed in this folder",
			},
			"since": map[string]interface{}{
				"type":        "string",
				"description": "Optional: YYYY-MM-DD, yesterday, or \"N days ago\"",
			},
			"all": map[string]interface{}{
				"type":        "boolean",
				"description": "Optional: include emails flagged as processed",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": fmt.Sprintf("Optional: result limit (default: %d)", t.config.List.DefaultLimit),
				"minimum":     1,
			},
		},
	}
}

// Execute executes the tool
func (t *ListEmailsTool) Execute(params map[string]interface{}) (interface{}, error) {
	opts := email.ListOptions{
		Folder: stringParam(params, "folder"),
		All:    boolParam(params, "all"),
	}

	limit, err := intParam(params, "limit", t.config.List.DefaultLimit)
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

	listing, err := t.emailManager.List(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}

	emails := make([]map[string]interface{}, len(listing.Emails))
	for i, e := range listing.Emails {
		emails[i] = summarize(e)
	}

	return map[string]interface{}{
		"matched": listing.Matched,
		"total":   listing.Total,
		"emails":  emails,
	}, nil
}
