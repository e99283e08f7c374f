package email

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/outlook-email/internal/config"
	"github.com/brandon/outlook-email/internal/journal"
	"github.com/brandon/outlook-email/internal/pending"
	"github.com/brandon/outlook-email/internal/reconcile"
	"github.com/brandon/outlook-email/internal/remote"
	"github.com/brandon/outlook-email/internal/storage"
	"github.com/brandon/outlook-email/pkg/types"
)

// fakeMailbox is an in-memory backend with flat folders
type fakeMailbox struct {
	folders  []types.Folder
	messages map[string]*types.Email
	moves    int
	nextID   int
	calls    []string
	// listed, when set, is returned by ListMessages as is, like a server
	// that filters on a date other than ReceivedDateTime
	listed []string
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		folders:  []types.Folder{{ID: "inbox", DisplayName: "Inbox"}},
		messages: make(map[string]*types.Email),
	}
}

func (f *fakeMailbox) add(id, subject string, received time.Time) {
	f.messages[id] = &types.Email{
		RemoteID:         id,
		Subject:          subject,
		ReceivedDateTime: received,
		ParentFolderID:   "inbox",
		Body:             &types.Body{ContentType: "text", Content: "body of " + subject},
	}
}

func (f *fakeMailbox) ListRootFolders(ctx context.Context, pageSize int, cursor string) (remote.FolderPage, error) {
	return remote.FolderPage{Folders: append([]types.Folder(nil), f.folders...)}, nil
}

func (f *fakeMailbox) ListChildFolders(ctx context.Context, parentID string, pageSize int, cursor string) (remote.FolderPage, error) {
	return remote.FolderPage{}, nil
}

func (f *fakeMailbox) ListMessages(ctx context.Context, query remote.MessageQuery, cursor string) (remote.MessagePage, error) {
	var out []types.Email
	if f.listed != nil {
		for _, id := range f.listed {
			out = append(out, *f.messages[id])
		}
		return remote.MessagePage{Messages: out}, nil
	}
	for _, msg := range f.messages {
		if msg.ParentFolderID != query.FolderID {
			continue
		}
		if query.UnreadOnly && msg.IsRead {
			continue
		}
		if !query.Since.IsZero() && msg.ReceivedDateTime.Before(query.Since) {
			continue
		}
		out = append(out, *msg)
	}
	sortByReceived(out)
	return remote.MessagePage{Messages: out}, nil
}

func (f *fakeMailbox) SearchMessages(ctx context.Context, folderID, query string, limit int) ([]types.Email, error) {
	var out []types.Email
	for _, msg := range f.messages {
		if strings.Contains(strings.ToLower(msg.Subject), strings.ToLower(query)) {
			out = append(out, *msg)
		}
	}
	sortByReceived(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMailbox) SetReadState(ctx context.Context, remoteID string, read bool) error {
	f.calls = append(f.calls, fmt.Sprintf("read:%s:%v", remoteID, read))
	msg, ok := f.messages[remoteID]
	if !ok {
		return &remote.Error{Kind: remote.KindNotFound, Op: "set read state"}
	}
	msg.IsRead = read
	return nil
}

func (f *fakeMailbox) DeleteMessage(ctx context.Context, remoteID string) error {
	f.calls = append(f.calls, "delete:"+remoteID)
	delete(f.messages, remoteID)
	return nil
}

func (f *fakeMailbox) MoveMessage(ctx context.Context, remoteID, destinationID string) (remote.MoveResult, error) {
	f.calls = append(f.calls, fmt.Sprintf("move:%s:%s", remoteID, destinationID))
	msg, ok := f.messages[remoteID]
	if !ok {
		return remote.MoveResult{}, &remote.Error{Kind: remote.KindNotFound, Op: "move message"}
	}
	f.moves++
	newID := fmt.Sprintf("%s-moved%d", remoteID, f.moves)
	delete(f.messages, remoteID)
	msg.RemoteID = newID
	msg.ParentFolderID = destinationID
	f.messages[newID] = msg
	return remote.MoveResult{NewRemoteID: newID, WebLink: "https://mail/" + newID}, nil
}

func (f *fakeMailbox) CreateFolder(ctx context.Context, displayName string) (types.Folder, error) {
	f.nextID++
	folder := types.Folder{ID: fmt.Sprintf("folder-%d", f.nextID), DisplayName: displayName}
	f.folders = append(f.folders, folder)
	f.calls = append(f.calls, "create:"+displayName)
	return folder, nil
}

func sortByReceived(emails []types.Email) {
	for i := 1; i < len(emails); i++ {
		for j := i; j > 0 && emails[j].ReceivedDateTime.After(emails[j-1].ReceivedDateTime); j-- {
			emails[j], emails[j-1] = emails[j-1], emails[j]
		}
	}
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Dir: dir},
		Graph:   config.GraphConfig{PageSize: 50, FolderPageSize: 200},
		Pull:    config.PullConfig{SourceFolder: "inbox", ArchiveFolder: "Processed"},
		List:    config.ListConfig{DefaultLimit: 10},
		Search:  config.SearchConfig{MaxLimit: 50},
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeMailbox) {
	t.Helper()
	dir := t.TempDir()
	mailbox := newFakeMailbox()
	store := storage.NewStore(dir, quietLogger())
	opener := func() (*Account, error) { return NewAccount(mailbox, nil), nil }
	return NewManager(testConfig(dir), store, opener, quietLogger()), mailbox
}

func seedRecord(t *testing.T, m *Manager, remoteID, subject string, received time.Time, mutate func(*types.Email)) *types.Email {
	t.Helper()
	email := &types.Email{RemoteID: remoteID, Subject: subject, ReceivedDateTime: received}
	if mutate != nil {
		mutate(email)
	}
	require.NoError(t, m.Store().Save(email))
	return email
}

var day = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestManagerMarkReadOutcomes(t *testing.T) {
	m, _ := newTestManager(t)
	email := seedRecord(t, m, "r1", "Hello", day, nil)

	change, err := m.MarkRead(email.StoredID[:8], true)
	require.NoError(t, err)
	assert.Equal(t, pending.Queued, change.Outcome)

	change, err = m.MarkRead(email.StoredID, true)
	require.NoError(t, err)
	assert.Equal(t, pending.Unchanged, change.Outcome)

	change, err = m.MarkRead(email.StoredID, false)
	require.NoError(t, err)
	assert.Equal(t, pending.Cancelled, change.Outcome)

	loaded, err := m.Find(email.StoredID)
	require.NoError(t, err)
	assert.Nil(t, loaded.Offline)
}

func TestManagerUnknownID(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.MarkRead("abcdef", true)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = m.QueueMove("abcdef", "Archive")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManagerQueueMoveAndDelete(t *testing.T) {
	m, _ := newTestManager(t)
	email := seedRecord(t, m, "r1", "Hello", day, nil)

	_, err := m.QueueMove(email.StoredID, "  ")
	assert.ErrorIs(t, err, pending.ErrEmptyFolder)

	change, err := m.QueueMove(email.StoredID, " Archive ")
	require.NoError(t, err)
	assert.Equal(t, pending.Queued, change.Outcome)

	change, err = m.QueueMove(email.StoredID, "archive")
	require.NoError(t, err)
	assert.Equal(t, pending.Unchanged, change.Outcome)

	change, err = m.QueueDelete(email.StoredID)
	require.NoError(t, err)
	assert.Equal(t, pending.Queued, change.Outcome)

	change, err = m.ClearDelete(email.StoredID)
	require.NoError(t, err)
	assert.Equal(t, pending.Cancelled, change.Outcome)

	loaded, err := m.Find(email.StoredID)
	require.NoError(t, err)
	assert.Equal(t, "Archive", pending.MoveTarget(loaded))
	assert.False(t, pending.IsDeleteQueued(loaded))
}

func TestManagerListFilters(t *testing.T) {
	m, _ := newTestManager(t)
	seedRecord(t, m, "old", "Old", day.Add(-72*time.Hour), func(e *types.Email) { e.SourceFolder = "inbox" })
	seedRecord(t, m, "new", "New", day, func(e *types.Email) { e.SourceFolder = "inbox" })
	seedRecord(t, m, "alert", "Alert", day.Add(-time.Hour), func(e *types.Email) { e.ParentFolderName = "Alerts" })
	done := seedRecord(t, m, "done", "Done", day.Add(time.Hour), nil)
	_, _, err := m.ToggleProcessed(done.StoredID)
	require.NoError(t, err)

	listing, err := m.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, listing.Emails, 3)
	assert.Equal(t, 4, listing.Total)
	assert.Equal(t, []string{"New", "Alert", "Old"}, subjects(listing.Emails))

	listing, err = m.List(ListOptions{All: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"Done", "New"}, subjects(listing.Emails))
	assert.Equal(t, 4, listing.Matched)

	listing, err = m.List(ListOptions{Folder: " ALERTS "})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alert"}, subjects(listing.Emails))

	listing, err = m.List(ListOptions{Since: day.Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []string{"New", "Alert"}, subjects(listing.Emails))
}

func subjects(emails []*types.Email) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		out = append(out, e.Subject)
	}
	return out
}

func TestManagerSummary(t *testing.T) {
	m, _ := newTestManager(t)
	a := seedRecord(t, m, "a", "A", day, func(e *types.Email) { e.SourceFolder = "inbox" })
	seedRecord(t, m, "b", "B", day, func(e *types.Email) {
		e.SourceFolder = "inbox"
		e.Offline = &types.Offline{Read: true}
	})
	seedRecord(t, m, "c", "C", day, func(e *types.Email) { e.ParentFolderName = "Alerts" })

	_, err := m.MarkRead(a.StoredID, true)
	require.NoError(t, err)

	summary, err := m.Summary()
	require.NoError(t, err)
	require.Len(t, summary.Folders, 2)
	assert.Equal(t, FolderCount{Folder: "Alerts", Unread: 1, Total: 1}, summary.Folders[0])
	assert.Equal(t, FolderCount{Folder: "inbox", Read: 2, Pending: 1, Total: 2}, summary.Folders[1])
	assert.Equal(t, 3, summary.Overall.Total)
	assert.Equal(t, 1, summary.Overall.Unread)
}

func TestManagerPullArchivesAndSkipsExisting(t *testing.T) {
	m, mailbox := newTestManager(t)
	mailbox.add("m1", "First", day)
	mailbox.add("m2", "Second", day.Add(-time.Hour))
	mailbox.add("m3", "Too old", day.Add(-96*time.Hour))

	existing := seedRecord(t, m, "m2", "Second", day.Add(-time.Hour), func(e *types.Email) {
		e.Offline = &types.Offline{Processed: true}
	})

	var items []PullItem
	result, err := m.Pull(context.Background(), PullOptions{Since: day.Add(-48 * time.Hour)}, func(item PullItem) {
		items = append(items, item)
	})
	require.NoError(t, err)

	assert.Equal(t, PullResult{Available: 2, Processed: 2, Written: 1, Skipped: 1}, result)
	require.Len(t, items, 2)
	assert.Contains(t, mailbox.calls, "create:Processed")

	first, err := m.Find(storage.IDFor("m1"))
	require.NoError(t, err)
	assert.Equal(t, "inbox", first.SourceFolder)
	assert.Equal(t, "Processed", first.ParentFolderName)
	assert.True(t, strings.HasPrefix(first.RemoteID, "m1-moved"))
	assert.Equal(t, "https://mail/"+first.RemoteID, first.WebLink)
	require.NotNil(t, first.Body)
	assert.Equal(t, "body of First", first.Body.Content)

	second, err := m.Find(existing.StoredID)
	require.NoError(t, err)
	assert.True(t, pending.IsProcessed(second))
	assert.True(t, strings.HasPrefix(second.RemoteID, "m2-moved"))

	assert.True(t, mailbox.messages["m3"] != nil && !mailbox.messages["m3"].IsRead)
}

func TestManagerPullRespectsLimitAndNoArchive(t *testing.T) {
	m, mailbox := newTestManager(t)
	mailbox.add("m1", "First", day)
	mailbox.add("m2", "Second", day.Add(-time.Hour))

	result, err := m.Pull(context.Background(), PullOptions{Limit: 1, NoArchive: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, PullResult{Available: 2, Processed: 1, Written: 1}, result)
	assert.Empty(t, mailbox.calls)

	assert.True(t, m.Store().Exists(storage.IDFor("m1")))
	assert.False(t, m.Store().Exists(storage.IDFor("m2")))
}

func TestManagerPullSkipsOlderMessagesWithoutStopping(t *testing.T) {
	m, mailbox := newTestManager(t)
	mailbox.add("m30", "Fresh", day.Add(time.Hour))
	mailbox.add("m20", "Backdated", day.Add(-72*time.Hour))
	mailbox.add("m10", "Late delivery", day.Add(2*time.Hour))
	mailbox.listed = []string{"m30", "m20", "m10"}

	result, err := m.Pull(context.Background(), PullOptions{Since: day, NoArchive: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Available)
	assert.Equal(t, 2, result.Written)

	assert.True(t, m.Store().Exists(storage.IDFor("m30")))
	assert.True(t, m.Store().Exists(storage.IDFor("m10")))
	assert.False(t, m.Store().Exists(storage.IDFor("m20")))
}

func TestManagerSearchStore(t *testing.T) {
	m, mailbox := newTestManager(t)
	mailbox.add("m1", "Invoice March", day)
	mailbox.add("m2", "Invoice February", day.Add(-30*24*time.Hour))
	mailbox.add("m3", "Lunch", day)
	seedRecord(t, m, "m2", "Invoice February", day.Add(-30*24*time.Hour), nil)

	result, err := m.Search(context.Background(), SearchOptions{Query: "invoice", Store: true})
	require.NoError(t, err)
	require.Len(t, result.Emails, 2)
	assert.Equal(t, storage.IDFor("m1"), result.Emails[0].StoredID)
	assert.Equal(t, 1, result.Stored)

	result, err = m.Search(context.Background(), SearchOptions{Query: "invoice", Since: day.Add(-24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, result.Emails, 1)
	assert.Equal(t, "Invoice March", result.Emails[0].Subject)
}

func TestManagerApplyQueuedChanges(t *testing.T) {
	m, mailbox := newTestManager(t)
	mailbox.folders = append(mailbox.folders, types.Folder{ID: "archive-id", DisplayName: "Archive"})
	mailbox.add("m1", "Hello", day)
	email := seedRecord(t, m, "m1", "Hello", day, nil)

	_, err := m.MarkRead(email.StoredID, true)
	require.NoError(t, err)
	_, err = m.QueueMove(email.StoredID, "archive")
	require.NoError(t, err)

	plan, err := m.Plan()
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)

	result, err := m.Apply(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, []string{"read:m1:true", "move:m1:archive-id"}, mailbox.calls)

	loaded, err := m.Find(email.StoredID)
	require.NoError(t, err)
	assert.Equal(t, "Archive", loaded.ParentFolderName)
	assert.False(t, pending.HasPending(loaded))

	plan, err = m.Plan()
	require.NoError(t, err)
	assert.Empty(t, plan.Items)
}

func TestManagerOfflineCommandsDoNotOpenAccount(t *testing.T) {
	dir := t.TempDir()
	opened := false
	m := NewManager(testConfig(dir), storage.NewStore(dir, quietLogger()), func() (*Account, error) {
		opened = true
		return nil, fmt.Errorf("offline")
	}, quietLogger())

	email := seedRecord(t, m, "r1", "Hello", day, nil)
	_, err := m.MarkRead(email.StoredID, true)
	require.NoError(t, err)
	assert.False(t, opened)

	_, err = m.Apply(context.Background(), mustPlan(t, m), nil)
	require.Error(t, err)
	assert.True(t, opened)

	_, err = m.History(journal.HistoryOptions{})
	assert.ErrorIs(t, err, ErrNoJournal)
}

func mustPlan(t *testing.T, m *Manager) reconcile.Plan {
	t.Helper()
	plan, err := m.Plan()
	require.NoError(t, err)
	return plan
}
