package tools

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/email"
	"github.com/brandon/outlook-email/internal/folders"
)

// ListFoldersTool lists the remote folder hierarchy
type ListFoldersTool struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

// NewListFoldersTool creates a new list folders tool
func NewListFoldersTool(emailManager *email.Manager, logger *logrus.Logger) *ListFoldersTool {
	return &ListFoldersTool{
		emailManager: emailManager,
		logger:       logger,
	}
}

// Name returns the tool name
func (t *ListFoldersTool) Name() string {
	return "list_folders"
}

// Description returns the tool description
func (t *ListFoldersTool) Description() string {
	return "List the mailbox folders as a tree with their paths and message counts"
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListFoldersTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute executes the tool
func (t *ListFoldersTool) Execute(params map[string]interface{}) (interface{}, error) {
	ctx, cancel := remoteContext()
	defer cancel()

	tree, err := t.emailManager.FolderTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	return map[string]interface{}{
		"folders": folderNodes(tree, ""),
	}, nil
}

func folderNodes(nodes []*folders.Node, parent string) []map[string]interface{} {
	result := make([]map[string]interface{}, len(nodes))
	for i, node := range nodes {
		path := node.Folder.DisplayName
		if parent != "" {
			path = parent + "/" + path
		}
		item := map[string]interface{}{
			"id":            node.Folder.ID,
			"name":          node.Folder.DisplayName,
			"path":          path,
			"message_count": node.Folder.TotalItemCount,
			"unread_count":  node.Folder.UnreadItemCount,
		}
		if len(node.Children) > 0 {
			item["children"] = folderNodes(node.Children, path)
		}
		result[i] = item
	}
	return result
}
