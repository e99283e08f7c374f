package tools

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/email"
	"github.com/brandon/outlook-email/internal/reconcile"
)

// PlanChangesTool previews what apply would do
type PlanChangesTool struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

// NewPlanChangesTool creates a new plan changes tool
func NewPlanChangesTool(emailManager *email.Manager, logger *logrus.Logger) *PlanChangesTool {
	return &PlanChangesTool{
		emailManager: emailManager,
		logger:       logger,
	}
}

// Name returns the tool name
func (t *PlanChangesTool) Name() string {
	return "plan_changes"
}

// Description returns the tool description
func (t *PlanChangesTool) Description() string {
	return "List every queued change and the remote operations apply would perform"
}

// InputSchema returns the JSON schema for tool inputs
func (t *PlanChangesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute executes the tool
func (t *PlanChangesTool) Execute(params map[string]interface{}) (interface{}, error) {
	plan, err := t.emailManager.Plan()
	if err != nil {
		return nil, fmt.Errorf("failed to plan changes: %w", err)
	}

	items := make([]map[string]interface{}, len(plan.Items))
	for i, item := range plan.Items {
		entry := summarize(item.Email)
		entry["operations"] = reconcile.Describe(item.Ops)
		items[i] = entry
	}

	return map[string]interface{}{
		"mark_read":   plan.Tally.MarkRead,
		"mark_unread": plan.Tally.MarkUnread,
		"move":        plan.Tally.Move,
		"delete":      plan.Tally.Delete,
		"total":       plan.Tally.Total(),
		"items":       items,
	}, nil
}
