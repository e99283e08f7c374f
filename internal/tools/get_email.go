package tools

import (
	"fmt"
	"time"

	"github.com/jaytaylor/html2text"
	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/email"
	"github.com/brandon/outlook-email/internal/pending"
)

// GetEmailTool retrieves a full cached email by id
type GetEmailTool struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

// NewGetEmailTool creates a new get email tool
func NewGetEmailTool(emailManager *email.Manager, logger *logrus.Logger) *GetEmailTool {
	return &GetEmailTool{
		emailManager: emailManager,
		logger:       logger,
	}
}

// Name returns the tool name
func (t *GetEmailTool) Name() string {
	return "get_email"
}

// Description returns the tool description
func (t *GetEmailTool) Description() string {
	return "Retrieve a cached email by full or partial id. HTML bodies are converted to text unless raw is set."
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetEmailTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"email_id": map[string]interface{}{
				"type":        "string",
				"description": "Email id or unique prefix (from list_emails)",
			},
			"raw": map[string]interface{}{
				"type":        "boolean",
				"description": "Optional: return the body as stored",
			},
		},
		"required": []string{"email_id"},
	}
}

// Execute executes the tool
func (t *GetEmailTool) Execute(params map[string]interface{}) (interface{}, error) {
	id := stringParam(params, "email_id")
	if id == "" {
		return nil, fmt.Errorf("email_id is required")
	}

	cached, err := t.emailManager.Find(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}

	result := summarize(cached)
	result["remote_id"] = cached.RemoteID
	result["web_link"] = cached.WebLink
	result["to"] = cached.ToRecipients
	result["cc"] = cached.CcRecipients
	if target := pending.MoveTarget(cached); target != "" {
		result["move_to"] = target
	}
	if cached.Offline != nil && cached.Offline.LastSync != nil {
		result["last_sync"] = cached.Offline.LastSync.Format(time.RFC3339)
	}

	if cached.Body == nil {
		return result, nil
	}
	result["content_type"] = cached.Body.ContentType
	body := cached.Body.Content
	if cached.Body.IsHTML() && !boolParam(params, "raw") {
		text, err := html2text.FromString(body, html2text.Options{PrettyTables: true})
		if err != nil {
			t.logger.WithError(err).WithField("id", cached.StoredID).Warn("Could not convert HTML body")
		} else {
			body = text
			result["content_type"] = "text"
		}
	}
	result["body"] = body

	return result, nil
}
