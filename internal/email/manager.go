package email

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/config"
	"github.com/brandon/outlook-email/internal/folders"
	"github.com/brandon/outlook-email/internal/journal"
	"github.com/brandon/outlook-email/internal/pending"
	"github.com/brandon/outlook-email/internal/storage"
	"github.com/brandon/outlook-email/pkg/types"
)

// ErrNoJournal is returned by History when no journal is attached
var ErrNoJournal = errors.New("apply journal is not available")

// Manager implements the mailbox use cases shared by the CLI and the MCP
// server. Offline operations never touch the remote account; it is opened
// on first remote use.
type Manager struct {
	store   *storage.Store
	open    AccountOpener
	journal *journal.Journal
	config  *config.Config
	logger  *logrus.Logger
	now     func() time.Time

	mu       sync.Mutex
	account  *Account
	resolver *folders.Resolver
}

// NewManager creates a new email manager
func NewManager(cfg *config.Config, store *storage.Store, open AccountOpener, logger *logrus.Logger) *Manager {
	return &Manager{
		store:  store,
		open:   open,
		config: cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// SetJournal attaches the apply journal
func (m *Manager) SetJournal(j *journal.Journal) {
	m.journal = j
}

// Store returns the record cache
func (m *Manager) Store() *storage.Store {
	return m.store
}

// Close closes the remote account if it was opened
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return nil
	}
	err := m.account.Close()
	m.account = nil
	m.resolver = nil
	return err
}

func (m *Manager) connect() (*Account, *folders.Resolver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account != nil {
		return m.account, m.resolver, nil
	}
	if m.open == nil {
		return nil, nil, fmt.Errorf("no remote account configured")
	}

	account, err := m.open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open account: %w", err)
	}
	m.account = account
	m.resolver = folders.NewResolver(account.Client, m.config.Graph.FolderPageSize, m.logger)
	return m.account, m.resolver, nil
}

// Change is the result of a queue operation on one record
type Change struct {
	Email   *types.Email
	Outcome pending.Outcome
}

// Find loads a record by full or partial id
func (m *Manager) Find(id string) (*types.Email, error) {
	return m.store.Find(id)
}

// MarkRead queues a read-state change
func (m *Manager) MarkRead(id string, read bool) (Change, error) {
	return m.mutate(id, func(email *types.Email) (pending.Outcome, error) {
		return pending.QueueRead(email, read), nil
	})
}

// QueueMove queues a move to the named folder
func (m *Manager) QueueMove(id, folder string) (Change, error) {
	return m.mutate(id, func(email *types.Email) (pending.Outcome, error) {
		return pending.QueueMove(email, folder)
	})
}

// ClearMove drops a queued move
func (m *Manager) ClearMove(id string) (Change, error) {
	return m.mutate(id, func(email *types.Email) (pending.Outcome, error) {
		return pending.ClearMove(email), nil
	})
}

// QueueDelete marks a record for remote deletion
func (m *Manager) QueueDelete(id string) (Change, error) {
	return m.mutate(id, func(email *types.Email) (pending.Outcome, error) {
		return pending.QueueDelete(email), nil
	})
}

// ClearDelete removes the delete marker
func (m *Manager) ClearDelete(id string) (Change, error) {
	return m.mutate(id, func(email *types.Email) (pending.Outcome, error) {
		return pending.ClearDelete(email), nil
	})
}

func (m *Manager) mutate(id string, fn func(*types.Email) (pending.Outcome, error)) (Change, error) {
	email, err := m.store.Find(id)
	if err != nil {
		return Change{}, err
	}

	outcome, err := fn(email)
	if err != nil {
		return Change{Email: email}, err
	}
	if outcome != pending.Unchanged {
		if err := m.store.Save(email); err != nil {
			return Change{Email: email}, err
		}
		m.logger.WithFields(logrus.Fields{
			"id":      email.StoredID,
			"outcome": outcome.String(),
		}).Debug("Updated pending changes")
	}
	return Change{Email: email, Outcome: outcome}, nil
}

// ToggleProcessed flips the local processed flag and returns its new value
func (m *Manager) ToggleProcessed(id string) (*types.Email, bool, error) {
	email, err := m.store.Find(id)
	if err != nil {
		return nil, false, err
	}
	processed := pending.ToggleProcessed(email)
	if err := m.store.Save(email); err != nil {
		return email, processed, err
	}
	return email, processed, nil
}

// ListOptions filters cached records
type ListOptions struct {
	Limit  int
	Since  time.Time
	Folder string
	All    bool
}

// Listing is a filtered, newest-first view of the cache
type Listing struct {
	Emails  []*types.Email
	Matched int
	Total   int
}

// List returns cached records newest first. Processed records are hidden
// unless All is set.
func (m *Manager) List(opts ListOptions) (Listing, error) {
	emails, err := m.store.LoadAll()
	if err != nil {
		return Listing{}, err
	}

	folder := strings.ToLower(strings.TrimSpace(opts.Folder))
	matched := make([]*types.Email, 0, len(emails))
	for _, email := range emails {
		if !opts.All && pending.IsProcessed(email) {
			continue
		}
		if folder != "" && strings.ToLower(strings.TrimSpace(email.Folder())) != folder {
			continue
		}
		if !opts.Since.IsZero() && email.ReceivedDateTime.Before(opts.Since) {
			continue
		}
		matched = append(matched, email)
	}
	SortNewestFirst(matched)

	listing := Listing{Matched: len(matched), Total: len(emails)}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	listing.Emails = matched
	return listing, nil
}

// SortNewestFirst orders records by receipt time, newest first
func SortNewestFirst(emails []*types.Email) {
	sort.SliceStable(emails, func(i, j int) bool {
		a, b := emails[i].ReceivedDateTime, emails[j].ReceivedDateTime
		if a.Equal(b) {
			return emails[i].StoredID < emails[j].StoredID
		}
		return a.After(b)
	})
}

// FolderCount tallies records of one folder
type FolderCount struct {
	Folder    string
	Unread    int
	Read      int
	Processed int
	Pending   int
	Total     int
}

func (c *FolderCount) add(email *types.Email) {
	c.Total++
	if pending.IsRead(email) {
		c.Read++
	} else {
		c.Unread++
	}
	if pending.IsProcessed(email) {
		c.Processed++
	}
	if pending.HasPending(email) {
		c.Pending++
	}
}

// Summary counts cached records by folder
type Summary struct {
	Folders []FolderCount
	Overall FolderCount
}

// Summary counts cached records by folder using the effective read state
func (m *Manager) Summary() (Summary, error) {
	emails, err := m.store.LoadAll()
	if err != nil {
		return Summary{}, err
	}

	byFolder := make(map[string]*FolderCount)
	var summary Summary
	for _, email := range emails {
		name := email.Folder()
		count, ok := byFolder[name]
		if !ok {
			count = &FolderCount{Folder: name}
			byFolder[name] = count
		}
		count.add(email)
		summary.Overall.add(email)
	}

	for _, count := range byFolder {
		summary.Folders = append(summary.Folders, *count)
	}
	sort.Slice(summary.Folders, func(i, j int) bool {
		return strings.ToLower(summary.Folders[i].Folder) < strings.ToLower(summary.Folders[j].Folder)
	})
	return summary, nil
}

// Clean removes every cached record
func (m *Manager) Clean() (int, error) {
	removed, err := m.store.Clear()
	if err != nil {
		return removed, err
	}
	m.logger.WithField("removed", removed).Info("Cleared record cache")
	return removed, nil
}

// History returns apply journal entries
func (m *Manager) History(opts journal.HistoryOptions) ([]journal.Entry, error) {
	if m.journal == nil {
		return nil, ErrNoJournal
	}
	return m.journal.History(opts)
}
