// Package folders finds remote folders by display name.
package folders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/remote"
	"github.com/brandon/outlook-email/pkg/types"
)

// ErrNotFound is returned when no folder has the requested name
var ErrNotFound = errors.New("folder not found")

const memoSize = 64

// Resolver walks the folder tree breadth first. A Resolver lives for one
// command invocation; resolved folders are memoized only in memory.
type Resolver struct {
	client   remote.FolderLister
	pageSize int
	memo     *lru.Cache[string, types.Folder]
	logger   *logrus.Logger
}

// NewResolver creates a resolver. pageSize is capped at remote.MaxFolderPageSize.
func NewResolver(client remote.FolderLister, pageSize int, logger *logrus.Logger) *Resolver {
	if pageSize <= 0 || pageSize > remote.MaxFolderPageSize {
		pageSize = remote.MaxFolderPageSize
	}
	memo, _ := lru.New[string, types.Folder](memoSize)
	return &Resolver{
		client:   client,
		pageSize: pageSize,
		memo:     memo,
		logger:   logger,
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolve returns the first folder in breadth-first order whose display
// name matches name, ignoring case and surrounding whitespace.
func (r *Resolver) Resolve(ctx context.Context, name string) (types.Folder, error) {
	target := normalize(name)
	if target == "" {
		return types.Folder{}, fmt.Errorf("%w: empty name", ErrNotFound)
	}
	if folder, ok := r.memo.Get(target); ok {
		return folder, nil
	}

	queue, err := r.listAll(ctx, func(cursor string) (remote.FolderPage, error) {
		return r.client.ListRootFolders(ctx, r.pageSize, cursor)
	})
	if err != nil {
		return types.Folder{}, err
	}

	for len(queue) > 0 {
		folder := queue[0]
		queue = queue[1:]

		if normalize(folder.DisplayName) == target {
			r.memo.Add(target, folder)
			r.logger.WithFields(logrus.Fields{
				"name": folder.DisplayName,
				"id":   folder.ID,
			}).Debug("Resolved folder")
			return folder, nil
		}

		if folder.ChildFolderCount > 0 {
			children, err := r.children(ctx, folder.ID)
			if err != nil {
				return types.Folder{}, err
			}
			queue = append(queue, children...)
		}
	}

	return types.Folder{}, fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(name))
}

// Node is a folder with its subfolders
type Node struct {
	Folder   types.Folder
	Children []*Node
}

// Tree returns the whole folder hierarchy in listing order
func (r *Resolver) Tree(ctx context.Context) ([]*Node, error) {
	roots, err := r.listAll(ctx, func(cursor string) (remote.FolderPage, error) {
		return r.client.ListRootFolders(ctx, r.pageSize, cursor)
	})
	if err != nil {
		return nil, err
	}
	return r.expand(ctx, roots)
}

func (r *Resolver) expand(ctx context.Context, list []types.Folder) ([]*Node, error) {
	nodes := make([]*Node, 0, len(list))
	for _, folder := range list {
		node := &Node{Folder: folder}
		if folder.ChildFolderCount > 0 {
			children, err := r.children(ctx, folder.ID)
			if err != nil {
				return nil, err
			}
			if node.Children, err = r.expand(ctx, children); err != nil {
				return nil, err
			}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (r *Resolver) children(ctx context.Context, parentID string) ([]types.Folder, error) {
	return r.listAll(ctx, func(cursor string) (remote.FolderPage, error) {
		return r.client.ListChildFolders(ctx, parentID, r.pageSize, cursor)
	})
}

// listAll follows cursors until a page has no cursor or no folders
func (r *Resolver) listAll(ctx context.Context, fetch func(cursor string) (remote.FolderPage, error)) ([]types.Folder, error) {
	var all []types.Folder
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(cursor)
		if err != nil {
			return nil, fmt.Errorf("failed to list folders: %w", err)
		}
		all = append(all, page.Folders...)
		if page.NextCursor == "" || len(page.Folders) == 0 {
			return all, nil
		}
		cursor = page.NextCursor
	}
}
