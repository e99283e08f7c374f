package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/outlook-email/pkg/types"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func sampleEmail() *types.Email {
	received := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	readAt := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	stored := time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC)
	read := false

	return &types.Email{
		StoredID:         IDFor("AAMkAGI2"),
		StoredAt:         &stored,
		SourceFolder:     "Inbox",
		RemoteID:         "AAMkAGI2",
		Subject:          "Quarterly report: numbers",
		ReceivedDateTime: received,
		From:             &types.Recipient{EmailAddress: types.EmailAddress{Name: "Ada", Address: "ada@example.com"}},
		ToRecipients: []types.Recipient{
			{EmailAddress: types.EmailAddress{Name: "Bob", Address: "bob@example.com"}},
		},
		Flag:             &types.Flag{FlagStatus: "notFlagged"},
		BodyPreview:      "Numbers inside",
		Importance:       "normal",
		HasAttachments:   true,
		ConversationID:   "conv-1",
		WebLink:          "https://outlook.example/item",
		ParentFolderID:   "folder-1",
		ParentFolderName: "Inbox",
		Body: &types.Body{
			ContentType: "html",
			Content:     "<html><body><p>Hello</p>\n```\ncode\n```\n</body></html>",
		},
		Offline: &types.Offline{
			Read:      true,
			ReadAt:    &readAt,
			Processed: true,
			Pending:   &types.Pending{Read: &read, MoveToFolder: "Archive"},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := sampleEmail()

	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestEncodeLayout(t *testing.T) {
	data, err := Encode(sampleEmail())
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "---\n_stored_id: ")
	assert.Contains(t, text, "body:\n    contentType: html\n")
	assert.Contains(t, text, "\n# Quarterly report: numbers\n")
	assert.Contains(t, text, "\n```html\n<html>")
	assert.NotContains(t, text, "content: <html>")
}

func TestDecodeHeaderOnly(t *testing.T) {
	data := []byte("---\nid: abc\nsubject: Hi\n---\n")

	email, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "abc", email.RemoteID)
	assert.Equal(t, "Hi", email.Subject)
	assert.Nil(t, email.Body)
	assert.Nil(t, email.Offline)
}

func TestDecodeBodyTypeFromHeader(t *testing.T) {
	data := []byte("---\nid: abc\nbody:\n  contentType: text\n---\n\n# Hi\n")

	email, err := Decode(data)
	require.NoError(t, err)
	require.NotNil(t, email.Body)
	assert.Equal(t, "text", email.Body.ContentType)
	assert.Empty(t, email.Body.Content)
}

func TestDecodeEmptyBody(t *testing.T) {
	original := &types.Email{RemoteID: "x", Body: &types.Body{ContentType: "text"}}

	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeRejectsMissingHeader(t *testing.T) {
	_, err := Decode([]byte("# just a heading\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte("---\nid: x\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestStoreSaveLoadDelete(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "storage"), quietLogger())
	email := sampleEmail()

	require.NoError(t, store.Save(email))
	assert.True(t, store.Exists(email.StoredID))

	loaded, err := store.Load(email.StoredID)
	require.NoError(t, err)
	assert.Equal(t, email, loaded)

	require.NoError(t, store.Delete(email.StoredID))
	assert.False(t, store.Exists(email.StoredID))
	require.NoError(t, store.Delete(email.StoredID))

	_, err = store.Load(email.StoredID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreAssignsStoredID(t *testing.T) {
	store := NewStore(t.TempDir(), quietLogger())
	email := &types.Email{RemoteID: "remote-1", Subject: "x"}

	require.NoError(t, store.Save(email))
	assert.Equal(t, IDFor("remote-1"), email.StoredID)
	assert.NotNil(t, email.StoredAt)
	assert.Len(t, email.StoredID, 40)

	assert.Error(t, store.Save(&types.Email{}))
}

func TestStoreLoadAllSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, quietLogger())

	require.NoError(t, store.Save(&types.Email{RemoteID: "a"}))
	require.NoError(t, store.Save(&types.Email{RemoteID: "b"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.md"), []byte("nonsense"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	emails, err := store.LoadAll()
	require.NoError(t, err)
	assert.Len(t, emails, 2)
}

func TestStoreLoadAllMissingDirectory(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent"), quietLogger())

	emails, err := store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestStoreResolvePartialID(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, quietLogger())
	for _, id := range []string{"abc111", "abc222", "def333"} {
		require.NoError(t, store.Save(&types.Email{StoredID: id, RemoteID: id}))
	}

	id, err := store.Resolve("DEF")
	require.NoError(t, err)
	assert.Equal(t, "def333", id)

	id, err = store.Resolve("abc111")
	require.NoError(t, err)
	assert.Equal(t, "abc111", id)

	_, err = store.Resolve("abc")
	var ambiguous *AmbiguousIDError
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(t, []string{"abc111", "abc222"}, ambiguous.Matches)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Resolve("zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	email, err := store.Find("de")
	require.NoError(t, err)
	assert.Equal(t, "def333", email.StoredID)
}

func TestStoreClear(t *testing.T) {
	store := NewStore(t.TempDir(), quietLogger())
	require.NoError(t, store.Save(&types.Email{RemoteID: "a"}))
	require.NoError(t, store.Save(&types.Email{RemoteID: "b"}))

	removed, err := store.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	ids, err := store.IDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}
