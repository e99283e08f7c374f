package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/outlook-email/internal/auth"
	"github.com/brandon/outlook-email/internal/folders"
	"github.com/brandon/outlook-email/internal/remote"
)

type fixedToken string

func (f fixedToken) AccessToken(ctx context.Context) (string, error) {
	return string(f), nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestListRootFoldersFollowsNextLink(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if r.URL.Path != "/me/mailFolders" {
			writeJSON(w, http.StatusNotFound, `{}`)
			return
		}
		if r.URL.Query().Get("$skiptoken") == "" {
			assert.Equal(t, "200", r.URL.Query().Get("$top"))
			assert.Contains(t, r.URL.Query().Get("$select"), "childFolderCount")
			writeJSON(w, http.StatusOK, fmt.Sprintf(`{
				"value": [{"id":"f1","displayName":"Inbox","childFolderCount":1,"unreadItemCount":3,"totalItemCount":9}],
				"@odata.nextLink": "%s/me/mailFolders?$skiptoken=abc"
			}`, server.URL))
			return
		}
		writeJSON(w, http.StatusOK, `{"value":[{"id":"f2","displayName":"Archive","childFolderCount":0}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, fixedToken("tok"), server.Client(), quietLogger())

	first, err := client.ListRootFolders(context.Background(), 500, "")
	require.NoError(t, err)
	require.Len(t, first.Folders, 1)
	assert.Equal(t, "Inbox", first.Folders[0].DisplayName)
	assert.Equal(t, 3, first.Folders[0].UnreadItemCount)
	require.NotEmpty(t, first.NextCursor)

	second, err := client.ListRootFolders(context.Background(), 500, first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Folders, 1)
	assert.Equal(t, "f2", second.Folders[0].ID)
	assert.Empty(t, second.NextCursor)
}

func TestResolverOverGraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/mailFolders":
			writeJSON(w, http.StatusOK, `{"value":[{"id":"inbox","displayName":"Inbox","childFolderCount":1}]}`)
		case "/me/mailFolders/inbox/childFolders":
			writeJSON(w, http.StatusOK, `{"value":[{"id":"alerts","displayName":" Alerts ","childFolderCount":0}]}`)
		default:
			writeJSON(w, http.StatusNotFound, `{"error":{"code":"ErrorItemNotFound","message":"nope"}}`)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, fixedToken("tok"), server.Client(), quietLogger())
	resolver := folders.NewResolver(client, 200, quietLogger())

	folder, err := resolver.Resolve(context.Background(), "alerts")
	require.NoError(t, err)
	assert.Equal(t, "alerts", folder.ID)
}

func TestListMessagesQuery(t *testing.T) {
	since := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/mailFolders/inbox/messages", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "isRead eq false and receivedDateTime ge 2026-04-01T00:00:00Z", q.Get("$filter"))
		assert.Equal(t, "receivedDateTime desc", q.Get("$orderby"))
		assert.Equal(t, "50", q.Get("$top"))
		assert.Contains(t, q.Get("$select"), "webLink")
		writeJSON(w, http.StatusOK, `{"value":[{
			"id":"m1",
			"subject":"Hello",
			"receivedDateTime":"2026-04-02T08:00:00Z",
			"isRead":false,
			"from":{"emailAddress":{"name":"Ada","address":"ada@example.com"}},
			"body":{"contentType":"html","content":"<p>Hi</p>"},
			"parentFolderId":"inbox"
		}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, fixedToken("tok"), server.Client(), quietLogger())
	page, err := client.ListMessages(context.Background(), remote.MessageQuery{
		FolderID:   "inbox",
		UnreadOnly: true,
		Since:      since,
		PageSize:   50,
	}, "")
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)

	msg := page.Messages[0]
	assert.Equal(t, "m1", msg.RemoteID)
	assert.Equal(t, "Ada <ada@example.com>", msg.SenderAddress())
	require.NotNil(t, msg.Body)
	assert.Equal(t, "<p>Hi</p>", msg.Body.Content)
	assert.True(t, msg.Body.IsHTML())
	assert.Empty(t, page.NextCursor)
}

func TestMutations(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		switch {
		case r.Method == http.MethodPatch && r.URL.Path == "/me/messages/m1":
			assert.JSONEq(t, `{"isRead":true}`, string(body))
			writeJSON(w, http.StatusOK, `{"id":"m1","isRead":true}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/me/messages/m1":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/me/messages/m1/move":
			assert.JSONEq(t, `{"destinationId":"archive"}`, string(body))
			writeJSON(w, http.StatusCreated, `{"id":"m1-new","webLink":"https://outlook/m1-new"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/me/mailFolders":
			var req map[string]string
			require.NoError(t, json.Unmarshal(body, &req))
			writeJSON(w, http.StatusCreated, fmt.Sprintf(`{"id":"new-folder","displayName":%q}`, req["displayName"]))
		default:
			writeJSON(w, http.StatusNotFound, `{}`)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, fixedToken("tok"), server.Client(), quietLogger())
	ctx := context.Background()

	require.NoError(t, client.SetReadState(ctx, "m1", true))
	require.NoError(t, client.DeleteMessage(ctx, "m1"))

	moved, err := client.MoveMessage(ctx, "m1", "archive")
	require.NoError(t, err)
	assert.Equal(t, remote.MoveResult{NewRemoteID: "m1-new", WebLink: "https://outlook/m1-new"}, moved)

	folder, err := client.CreateFolder(ctx, "Processed")
	require.NoError(t, err)
	assert.Equal(t, "Processed", folder.DisplayName)

	assert.Len(t, seen, 4)
}

func TestErrorTranslation(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   remote.Kind
	}{
		{http.StatusUnauthorized, `{"error":{"code":"InvalidAuthenticationToken","message":"expired"}}`, remote.KindUnauthorized},
		{http.StatusForbidden, `{"error":{"code":"InvalidAuthenticationToken","message":"expired"}}`, remote.KindUnauthorized},
		{http.StatusNotFound, `{"error":{"code":"ErrorItemNotFound","message":"gone"}}`, remote.KindNotFound},
		{http.StatusTooManyRequests, ``, remote.KindRateLimited},
		{http.StatusInternalServerError, `not json`, remote.KindOther},
	}

	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, tc.status, tc.body)
		}))
		client := NewClient(server.URL, fixedToken("tok"), server.Client(), quietLogger())

		err := client.DeleteMessage(context.Background(), "m1")
		server.Close()

		require.Error(t, err)
		assert.Equal(t, tc.kind, remote.KindOf(err), "status %d", tc.status)
		var remoteErr *remote.Error
		require.ErrorAs(t, err, &remoteErr)
		assert.Equal(t, tc.status, remoteErr.StatusCode)
	}
}

type tokenSequence struct {
	tokens []string
	calls  int32
}

func (s *tokenSequence) FetchToken(ctx context.Context) (string, error) {
	n := atomic.AddInt32(&s.calls, 1)
	return s.tokens[int(n-1)%len(s.tokens)], nil
}

func TestSessionRefreshOnUnauthorized(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, `{"error":{"code":"InvalidAuthenticationToken","message":"Lifetime validation failed"}}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	source := &tokenSequence{tokens: []string{"stale", "fresh"}}
	session := auth.NewSession(source, nil, 5*time.Minute, quietLogger())
	client := NewClient(server.URL, session, server.Client(), quietLogger())

	err := remote.Do(context.Background(), session, func(ctx context.Context) error {
		return client.SetReadState(ctx, "m1", true)
	})

	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&requests))
	assert.EqualValues(t, 2, atomic.LoadInt32(&source.calls))
}
