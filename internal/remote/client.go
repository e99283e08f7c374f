// Package remote defines the capabilities the sync engine needs from a
// mailbox backend and the single authentication retry policy.
package remote

import (
	"context"
	"time"

	"github.com/brandon/outlook-email/pkg/types"
)

// AllFolders selects messages across every folder
const AllFolders = "ALL"

// MaxFolderPageSize is the largest folder page a backend is asked for
const MaxFolderPageSize = 200

// FolderPage is one page of a folder listing
type FolderPage struct {
	Folders    []types.Folder
	NextCursor string
}

// MessageQuery filters and pages a message listing. Results are ordered by
// receipt time, newest first.
type MessageQuery struct {
	FolderID   string
	UnreadOnly bool
	Since      time.Time
	PageSize   int
}

// MessagePage is one page of a message listing
type MessagePage struct {
	Messages   []types.Email
	NextCursor string
}

// MoveResult describes a moved message. Backends assign a new id on move.
type MoveResult struct {
	NewRemoteID string
	WebLink     string
}

// FolderLister is the read-only folder part of a backend
type FolderLister interface {
	ListRootFolders(ctx context.Context, pageSize int, cursor string) (FolderPage, error)
	ListChildFolders(ctx context.Context, parentID string, pageSize int, cursor string) (FolderPage, error)
}

// Mutator applies changes to remote messages
type Mutator interface {
	SetReadState(ctx context.Context, remoteID string, read bool) error
	DeleteMessage(ctx context.Context, remoteID string) error
	MoveMessage(ctx context.Context, remoteID, destinationID string) (MoveResult, error)
}

// Client is a mailbox backend
type Client interface {
	FolderLister
	Mutator
	ListMessages(ctx context.Context, query MessageQuery, cursor string) (MessagePage, error)
	SearchMessages(ctx context.Context, folderID, query string, limit int) ([]types.Email, error)
	CreateFolder(ctx context.Context, displayName string) (types.Folder, error)
}
