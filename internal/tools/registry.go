package tools

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/config"
	"github.com/brandon/outlook-email/internal/email"
	"github.com/brandon/outlook-email/internal/pending"
	"github.com/brandon/outlook-email/pkg/types"
)

// Registry manages MCP tools
type Registry struct {
	config       *config.Config
	logger       *logrus.Logger
	emailManager *email.Manager
	tools        map[string]Tool
}

// Tool represents an MCP tool
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(params map[string]interface{}) (interface{}, error)
}

// NewRegistry creates a new tool registry
func NewRegistry(cfg *config.Config, emailManager *email.Manager, logger *logrus.Logger) *Registry {
	reg := &Registry{
		config:       cfg,
		logger:       logger,
		emailManager: emailManager,
		tools:        make(map[string]Tool),
	}

	reg.registerTools()

	return reg
}

// registerTools registers all available tools
func (r *Registry) registerTools() {
	toolList := []Tool{
		NewListEmailsTool(r.config, r.emailManager, r.logger),
		NewGetEmailTool(r.emailManager, r.logger),
		NewQueueChangeTool(r.emailManager, r.logger),
		NewPlanChangesTool(r.emailManager, r.logger),
		NewSearchEmailsTool(r.config, r.emailManager, r.logger),
		NewListFoldersTool(r.emailManager, r.logger),
	}

	for _, tool := range toolList {
		r.tools[tool.Name()] = tool
		r.logger.WithField("tool", tool.Name()).Debug("Registered tool")
	}

	r.logger.WithField("count", len(r.tools)).Info("Registered tools")
}

// GetTool returns a tool by name
func (r *Registry) GetTool(name string) (Tool, bool) {
	tool, exists := r.tools[name]
	return tool, exists
}

// ListTools returns all registered tools sorted by name
func (r *Registry) ListTools() []Tool {
	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// GetToolDefinitions returns tool definitions for MCP
func (r *Registry) GetToolDefinitions() []map[string]interface{} {
	tools := r.ListTools()
	definitions := make([]map[string]interface{}, 0, len(tools))
	for _, tool := range tools {
		definitions = append(definitions, map[string]interface{}{
			"name":        tool.Name(),
			"description": tool.Description(),
			"inputSchema": tool.InputSchema(),
		})
	}
	return definitions
}

// remoteCallTimeout bounds tools that reach the mailbox
const remoteCallTimeout = 2 * time.Minute

func remoteContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), remoteCallTimeout)
}

func stringParam(params map[string]interface{}, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

func boolParam(params map[string]interface{}, key string) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func intParam(params map[string]interface{}, key string, fallback int) (int, error) {
	switch v := params[key].(type) {
	case nil:
		return fallback, nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("invalid %s", key)
}

// summarize is the listing shape shared by the tools
func summarize(e *types.Email) map[string]interface{} {
	item := map[string]interface{}{
		"id":       e.StoredID,
		"short_id": e.ShortID(),
		"subject":  e.DisplaySubject(),
		"from":     e.SenderAddress(),
		"received": e.ReceivedDateTime.Format(time.RFC3339),
		"folder":   e.Folder(),
		"read":     pending.IsRead(e),
	}
	if pending.IsProcessed(e) {
		item["processed"] = true
	}
	if e.Offline != nil && e.Offline.Pending != nil {
		item["pending"] = e.Offline.Pending
	}
	return item
}
