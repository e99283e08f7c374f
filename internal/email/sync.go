package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/folders"
	"github.com/brandon/outlook-email/internal/reconcile"
	"github.com/brandon/outlook-email/internal/remote"
	"github.com/brandon/outlook-email/internal/storage"
	"github.com/brandon/outlook-email/pkg/types"
)

// Plan lists every record with queued changes. It never contacts the remote.
func (m *Manager) Plan() (reconcile.Plan, error) {
	return reconcile.NewEngine(m.store, nil, nil, nil, m.logger).Plan()
}

// Apply replays plan against the remote account
func (m *Manager) Apply(ctx context.Context, plan reconcile.Plan, report func(reconcile.Outcome)) (reconcile.Result, error) {
	if len(plan.Items) == 0 {
		return reconcile.Result{}, nil
	}

	account, resolver, err := m.connect()
	if err != nil {
		return reconcile.Result{}, err
	}

	engine := reconcile.NewEngine(m.store, account.Client, resolver, account.Refresher, m.logger)
	if m.journal != nil {
		engine.SetJournal(m.journal)
	}
	return engine.Apply(ctx, plan, report), nil
}

// EnsureFolder resolves a folder by name, creating it at the top level if missing
func (m *Manager) EnsureFolder(ctx context.Context, name string) (types.Folder, error) {
	account, resolver, err := m.connect()
	if err != nil {
		return types.Folder{}, err
	}

	folder, err := remote.WithAuthRetry(ctx, account.Refresher, func(ctx context.Context) (types.Folder, error) {
		return resolver.Resolve(ctx, name)
	})
	if err == nil {
		return folder, nil
	}
	if !errors.Is(err, folders.ErrNotFound) {
		return types.Folder{}, fmt.Errorf("failed to resolve folder %s: %w", name, err)
	}

	m.logger.WithField("folder", name).Info("Creating folder")
	folder, err = remote.WithAuthRetry(ctx, account.Refresher, func(ctx context.Context) (types.Folder, error) {
		return account.Client.CreateFolder(ctx, name)
	})
	if err != nil {
		return types.Folder{}, fmt.Errorf("failed to create folder %s: %w", name, err)
	}
	return folder, nil
}

// PullOptions controls a pull
type PullOptions struct {
	Since     time.Time
	Limit     int
	NoArchive bool
}

// PullItem reports one pulled message
type PullItem struct {
	Email  *types.Email
	Stored bool
	Err    error
}

// PullResult summarizes a pull
type PullResult struct {
	Available int
	Processed int
	Written   int
	Skipped   int
	Failed    int
}

// Pull fetches unread messages from the source folder received on or after
// Since, caches the ones not cached yet and, unless NoArchive is set, marks
// them read and moves them into the archive folder. Records that already
// exist keep their offline state.
func (m *Manager) Pull(ctx context.Context, opts PullOptions, report func(PullItem)) (PullResult, error) {
	if report == nil {
		report = func(PullItem) {}
	}

	account, _, err := m.connect()
	if err != nil {
		return PullResult{}, err
	}

	var archive types.Folder
	if !opts.NoArchive {
		if archive, err = m.EnsureFolder(ctx, m.config.Pull.ArchiveFolder); err != nil {
			return PullResult{}, err
		}
	}

	messages, err := m.fetchUnread(ctx, account, opts.Since)
	if err != nil {
		return PullResult{}, err
	}

	result := PullResult{Available: len(messages)}
	for i := range messages {
		if opts.Limit > 0 && result.Processed >= opts.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		item := m.pullOne(ctx, account, &messages[i], archive, opts.NoArchive)
		switch {
		case item.Err != nil:
			result.Failed++
			m.logger.WithError(item.Err).WithField("remote_id", messages[i].RemoteID).Warn("Failed to pull message")
		case item.Stored:
			result.Written++
			result.Processed++
		default:
			result.Skipped++
			result.Processed++
		}
		report(item)
	}

	m.logger.WithFields(logrus.Fields{
		"available": result.Available,
		"written":   result.Written,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Pull finished")
	return result, nil
}

func (m *Manager) fetchUnread(ctx context.Context, account *Account, since time.Time) ([]types.Email, error) {
	query := remote.MessageQuery{
		FolderID:   m.config.Pull.SourceFolder,
		UnreadOnly: true,
		Since:      since,
		PageSize:   m.config.Graph.PageSize,
	}

	var all []types.Email
	cursor := ""
	for {
		page, err := remote.WithAuthRetry(ctx, account.Refresher, func(ctx context.Context) (remote.MessagePage, error) {
			return account.Client.ListMessages(ctx, query, cursor)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		if len(page.Messages) == 0 {
			return all, nil
		}
		for _, msg := range page.Messages {
			// ordering is by delivery, so an older message does not end the scan
			if !since.IsZero() && msg.ReceivedDateTime.Before(since) {
				continue
			}
			all = append(all, msg)
		}
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

func (m *Manager) pullOne(ctx context.Context, account *Account, msg *types.Email, archive types.Folder, noArchive bool) PullItem {
	id := storage.IDFor(msg.RemoteID)

	email, err := m.store.Load(id)
	stored := false
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		email = msg
		email.SourceFolder = m.config.Pull.SourceFolder
		if err := m.store.Save(email); err != nil {
			return PullItem{Email: msg, Err: err}
		}
		stored = true
	default:
		return PullItem{Email: msg, Err: err}
	}

	if noArchive {
		return PullItem{Email: email, Stored: stored}
	}

	remoteID := msg.RemoteID
	err = remote.Do(ctx, account.Refresher, func(ctx context.Context) error {
		return account.Client.SetReadState(ctx, remoteID, true)
	})
	if err != nil {
		return PullItem{Email: email, Stored: stored, Err: fmt.Errorf("failed to mark as read: %w", err)}
	}

	moved, err := remote.WithAuthRetry(ctx, account.Refresher, func(ctx context.Context) (remote.MoveResult, error) {
		return account.Client.MoveMessage(ctx, remoteID, archive.ID)
	})
	if err != nil {
		return PullItem{Email: email, Stored: stored, Err: fmt.Errorf("failed to move to %s: %w", archive.DisplayName, err)}
	}

	if moved.NewRemoteID != "" {
		email.RemoteID = moved.NewRemoteID
	}
	if moved.WebLink != "" {
		email.WebLink = moved.WebLink
	}
	email.ParentFolderID = archive.ID
	email.ParentFolderName = archive.DisplayName
	if err := m.store.Save(email); err != nil {
		return PullItem{Email: email, Stored: stored, Err: err}
	}
	return PullItem{Email: email, Stored: stored}
}

// SearchOptions controls a remote search
type SearchOptions struct {
	Query  string
	Folder string
	Limit  int
	Since  time.Time
	Store  bool
}

// SearchResult holds remote matches. Every email carries the id it has or
// would have in the cache.
type SearchResult struct {
	Emails []types.Email
	Stored int
}

// Search runs a remote keyword search, optionally caching new matches
func (m *Manager) Search(ctx context.Context, opts SearchOptions) (SearchResult, error) {
	account, resolver, err := m.connect()
	if err != nil {
		return SearchResult{}, err
	}

	limit := opts.Limit
	if limit <= 0 || limit > m.config.Search.MaxLimit {
		limit = m.config.Search.MaxLimit
	}

	folderID := remote.AllFolders
	if opts.Folder != "" {
		folder, err := remote.WithAuthRetry(ctx, account.Refresher, func(ctx context.Context) (types.Folder, error) {
			return resolver.Resolve(ctx, opts.Folder)
		})
		if err != nil {
			return SearchResult{}, err
		}
		folderID = folder.ID
	}

	found, err := remote.WithAuthRetry(ctx, account.Refresher, func(ctx context.Context) ([]types.Email, error) {
		return account.Client.SearchMessages(ctx, folderID, opts.Query, limit)
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("failed to search: %w", err)
	}

	var result SearchResult
	for _, email := range found {
		if !opts.Since.IsZero() && email.ReceivedDateTime.Before(opts.Since) {
			continue
		}
		if len(result.Emails) >= limit {
			break
		}
		email.StoredID = storage.IDFor(email.RemoteID)
		result.Emails = append(result.Emails, email)
	}

	if !opts.Store {
		return result, nil
	}
	for i := range result.Emails {
		email := result.Emails[i]
		if m.store.Exists(email.StoredID) {
			continue
		}
		if opts.Folder != "" {
			email.SourceFolder = opts.Folder
		}
		if err := m.store.Save(&email); err != nil {
			return result, err
		}
		result.Stored++
	}
	return result, nil
}

// FolderTree returns the remote folder hierarchy
func (m *Manager) FolderTree(ctx context.Context) ([]*folders.Node, error) {
	account, resolver, err := m.connect()
	if err != nil {
		return nil, err
	}
	return remote.WithAuthRetry(ctx, account.Refresher, func(ctx context.Context) ([]*folders.Node, error) {
		return resolver.Tree(ctx)
	})
}

// FolderMessages lists the newest messages of a remote folder
func (m *Manager) FolderMessages(ctx context.Context, name string, limit int) ([]types.Email, error) {
	account, resolver, err := m.connect()
	if err != nil {
		return nil, err
	}

	folder, err := remote.WithAuthRetry(ctx, account.Refresher, func(ctx context.Context) (types.Folder, error) {
		return resolver.Resolve(ctx, name)
	})
	if err != nil {
		return nil, err
	}

	page, err := remote.WithAuthRetry(ctx, account.Refresher, func(ctx context.Context) (remote.MessagePage, error) {
		return account.Client.ListMessages(ctx, remote.MessageQuery{FolderID: folder.ID, PageSize: limit}, "")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := page.Messages
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	for i := range messages {
		messages[i].StoredID = storage.IDFor(messages[i].RemoteID)
	}
	return messages, nil
}
