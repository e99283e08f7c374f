package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/outlook-email/internal/config"
	"github.com/brandon/outlook-email/internal/email"
	"github.com/brandon/outlook-email/internal/storage"
	"github.com/brandon/outlook-email/internal/tools"
	"github.com/brandon/outlook-email/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{Dir: dir},
		List:    config.ListConfig{DefaultLimit: 10},
		Search:  config.SearchConfig{MaxLimit: 50},
	}
	store := storage.NewStore(dir, logger)
	manager := email.NewManager(cfg, store, nil, logger)
	return NewServer(tools.NewRegistry(cfg, manager, logger), "test", logger), store
}

func run(t *testing.T, server *Server, requests ...string) []map[string]interface{} {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, server.Run(context.Background(), strings.NewReader(strings.Join(requests, "\n")), &out))

	var responses []map[string]interface{}
	decoder := json.NewDecoder(&out)
	for decoder.More() {
		var resp map[string]interface{}
		require.NoError(t, decoder.Decode(&resp))
		responses = append(responses, resp)
	}
	return responses
}

func TestInitializeAndToolsList(t *testing.T) {
	server, _ := newTestServer(t)

	responses := run(t, server,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
	)
	require.Len(t, responses, 3)

	info := responses[0]["result"].(map[string]interface{})["serverInfo"].(map[string]interface{})
	assert.Equal(t, "outlook-email", info["name"])

	toolDefs := responses[1]["result"].(map[string]interface{})["tools"].([]interface{})
	var names []string
	for _, def := range toolDefs {
		names = append(names, def.(map[string]interface{})["name"].(string))
	}
	assert.Equal(t, []string{"get_email", "list_emails", "list_folders", "plan_changes", "queue_change", "search_emails"}, names)

	errBody := responses[2]["error"].(map[string]interface{})
	assert.EqualValues(t, -32601, errBody["code"])
}

func TestToolsCallQueuesChange(t *testing.T) {
	server, store := newTestServer(t)
	record := &types.Email{RemoteID: "remote-1", Subject: "Hello", ReceivedDateTime: time.Now().UTC()}
	require.NoError(t, store.Save(record))

	responses := run(t, server,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"queue_change","arguments":{"email_id":"`+record.ShortID()+`","action":"read"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"plan_changes"}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"queue_change","arguments":{"email_id":"zz-missing","action":"read"}}}`,
	)
	require.Len(t, responses, 3)

	var queued map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, responses[0])), &queued))
	assert.Equal(t, "queued", queued["outcome"])

	var plan map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, responses[1])), &plan))
	assert.EqualValues(t, 1, plan["mark_read"])
	assert.EqualValues(t, 1, plan["total"])

	failed := responses[2]["result"].(map[string]interface{})
	assert.Equal(t, true, failed["isError"])
}

func textContent(t *testing.T, resp map[string]interface{}) string {
	t.Helper()
	result, ok := resp["result"].(map[string]interface{})
	require.True(t, ok, "response has no result: %v", resp)
	content := result["content"].([]interface{})
	require.NotEmpty(t, content)
	return content[0].(map[string]interface{})["text"].(string)
}
