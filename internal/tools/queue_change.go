package tools

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/email"
)

// QueueChangeTool records an offline change against a cached email
type QueueChangeTool struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

// NewQueueChangeTool creates a new queue change tool
func NewQueueChangeTool(emailManager *email.Manager, logger *logrus.Logger) *QueueChangeTool {
	return &QueueChangeTool{
		emailManager: emailManager,
		logger:       logger,
	}
}

// Name returns the tool name
func (t *QueueChangeTool) Name() string {
	return "queue_change"
}

// Description returns the tool description
func (t *QueueChangeTool) Description() string {
	return "Queue an offline change (read, unread, move, delete, undelete, processed). Nothing is sent until apply runs."
}

// InputSchema returns the JSON schema for tool inputs
func (t *QueueChangeTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"email_id": map[string]interface{}{
				"type":        "string",
				"description": "Email id or unique prefix",
			},
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"read", "unread", "move", "delete", "undelete", "processed"},
				"description": "Change to queue",
			},
			"folder": map[string]interface{}{
				"type":        "string",
				"description": "Destination folder name (move only)",
			},
		},
		"required": []string{"email_id", "action"},
	}
}

// Execute executes the tool
func (t *QueueChangeTool) Execute(params map[string]interface{}) (interface{}, error) {
	id := stringParam(params, "email_id")
	if id == "" {
		return nil, fmt.Errorf("email_id is required")
	}
	action := stringParam(params, "action")

	var (
		change email.Change
		err    error
	)
	switch action {
	case "read":
		change, err = t.emailManager.MarkRead(id, true)
	case "unread":
		change, err = t.emailManager.MarkRead(id, false)
	case "move":
		change, err = t.emailManager.QueueMove(id, stringParam(params, "folder"))
	case "delete":
		change, err = t.emailManager.QueueDelete(id)
	case "undelete":
		change, err = t.emailManager.ClearDelete(id)
	case "processed":
		cached, processed, err := t.emailManager.ToggleProcessed(id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"id":        cached.StoredID,
			"action":    action,
			"processed": processed,
		}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"id":      change.Email.StoredID,
		"action":  action,
		"outcome": change.Outcome.String(),
	}).Info("Queued change")

	result := summarize(change.Email)
	result["action"] = action
	result["outcome"] = change.Outcome.String()
	return result, nil
}
