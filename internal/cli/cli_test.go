package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/outlook-email/internal/storage"
	"github.com/brandon/outlook-email/pkg/types"
)

type fixture struct {
	configPath string
	store      *storage.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	storageDir := filepath.Join(dir, "emails")

	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("storage:\n  dir: %s\njournal:\n  path: %s\n",
		storageDir, filepath.Join(dir, "journal.db"))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &fixture{configPath: configPath, store: storage.NewStore(storageDir, logger)}
}

func (f *fixture) seed(t *testing.T, remoteID, subject string, body *types.Body) *types.Email {
	t.Helper()
	record := &types.Email{
		RemoteID:         remoteID,
		Subject:          subject,
		ReceivedDateTime: time.Now().Add(-2 * time.Hour).UTC(),
		From:             &types.Recipient{EmailAddress: types.EmailAddress{Name: "Ada", Address: "ada@example.com"}},
		SourceFolder:     "inbox",
		Body:             body,
	}
	require.NoError(t, f.store.Save(record))
	return record
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", f.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestReadOutcomesAreDistinct(t *testing.T) {
	f := newFixture(t)
	record := f.seed(t, "remote-1", "Quarterly report", nil)

	out, err := f.run(t, "read", record.ShortID())
	require.NoError(t, err)
	assert.Contains(t, out, "Marked as read")
	assert.NotContains(t, out, "Already")
	assert.Contains(t, out, "Quarterly report")

	out, err = f.run(t, "read", record.ShortID())
	require.NoError(t, err)
	assert.Contains(t, out, "Already marked as read")

	out, err = f.run(t, "inbox", "unread", record.StoredID)
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled pending read")

	out, err = f.run(t, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending changes.")
}

func TestPlanListsQueuedChanges(t *testing.T) {
	f := newFixture(t)
	first := f.seed(t, "remote-1", "Invoice", nil)
	second := f.seed(t, "remote-2", "Newsletter", nil)

	_, err := f.run(t, "move", first.ShortID(), "--folder", "Archive")
	require.NoError(t, err)
	out, err := f.run(t, "move", first.ShortID(), "--folder", " archive ")
	require.NoError(t, err)
	assert.Contains(t, out, "Already queued to move")

	out, err = f.run(t, "delete", second.ShortID())
	require.NoError(t, err)
	assert.Contains(t, out, "Marked for deletion")

	out, err = f.run(t, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "Invoice")
	assert.Contains(t, out, "move:")
	assert.Contains(t, out, "Archive")
	assert.Contains(t, out, "0 mark-read, 0 mark-unread, 1 move, 1 delete")
	assert.Contains(t, out, "removed from mailbox")
	assert.NotContains(t, out, "Deleted Items")

	out, err = f.run(t, "delete", second.ShortID(), "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared deletion marker")
}

func TestMoveRequiresFolder(t *testing.T) {
	f := newFixture(t)
	record := f.seed(t, "remote-1", "Invoice", nil)

	_, err := f.run(t, "move", record.ShortID())
	assert.Error(t, err)
}

func TestListAndProcessed(t *testing.T) {
	f := newFixture(t)
	record := f.seed(t, "remote-1", "Build failed", nil)
	f.seed(t, "remote-2", "Lunch plans", nil)

	out, err := f.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "2 emails")
	assert.Contains(t, out, "Build failed")
	assert.Contains(t, out, "Lunch plans")

	out, err = f.run(t, "processed", record.ShortID())
	require.NoError(t, err)
	assert.Contains(t, out, "Marked as processed")

	out, err = f.run(t, "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Build failed")

	out, err = f.run(t, "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Build failed")

	out, err = f.run(t, "inbox", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "inbox")
	assert.Contains(t, out, "Overall")
}

func TestViewText(t *testing.T) {
	f := newFixture(t)
	record := f.seed(t, "remote-1", "Styled", &types.Body{
		ContentType: "html",
		Content:     "<html><body><p>Hello <b>there</b></p></body></html>",
	})

	out, err := f.run(t, "view", record.ShortID(), "--text")
	require.NoError(t, err)
	assert.Contains(t, out, "Subject: Styled")
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, "Hello")
	assert.NotContains(t, out, "<p>")

	out, err = f.run(t, "view", record.ShortID())
	require.NoError(t, err)
	assert.Contains(t, out, "id: remote-1")
	assert.Contains(t, out, "<p>Hello")
}

func TestUnknownID(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "remote-1", "One", nil)

	_, err := f.run(t, "read", "zz-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email not found")
}

func TestApplyWithNothingQueuedStaysOffline(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "remote-1", "One", nil)

	out, err := f.run(t, "apply", "-y")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending changes to apply.")

	out, err = f.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No apply history.")
}

func TestCleanRemovesRecords(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "remote-1", "One", nil)
	f.seed(t, "remote-2", "Two", nil)

	out, err := f.run(t, "clean", "-y")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 2 emails")

	out, err = f.run(t, "clean", "-y")
	require.NoError(t, err)
	assert.Contains(t, out, "Storage is already empty.")
}

func TestVersion(t *testing.T) {
	f := newFixture(t)
	out, err := f.run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "outlook-email version test\n", out)
}

func TestPullRequiresSince(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "pull")
	assert.Error(t, err)
}
