// Package graph is the Microsoft Graph mailbox backend.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/remote"
	"github.com/brandon/outlook-email/pkg/types"
)

// DefaultBaseURL is the Graph v1.0 endpoint
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const (
	messageFields = "id,from,subject,receivedDateTime,isRead,flag,body,bodyPreview,importance,hasAttachments,conversationId,sender,toRecipients,ccRecipients,bccRecipients,webLink,parentFolderId"
	folderFields  = "id,displayName,parentFolderId,childFolderCount,unreadItemCount,totalItemCount"
)

// TokenProvider supplies the bearer token for each request
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client talks to the Graph mail endpoints
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a Graph client. httpClient may be nil.
func NewClient(baseURL string, tokens TokenProvider, httpClient *http.Client, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
	}
}

type collection[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// ListRootFolders lists the top-level mail folders
func (c *Client) ListRootFolders(ctx context.Context, pageSize int, cursor string) (remote.FolderPage, error) {
	return c.listFolders(ctx, "list folders", "/me/mailFolders", pageSize, cursor)
}

// ListChildFolders lists the direct children of a folder
func (c *Client) ListChildFolders(ctx context.Context, parentID string, pageSize int, cursor string) (remote.FolderPage, error) {
	path := fmt.Sprintf("/me/mailFolders/%s/childFolders", url.PathEscape(parentID))
	return c.listFolders(ctx, "list child folders", path, pageSize, cursor)
}

func (c *Client) listFolders(ctx context.Context, op, path string, pageSize int, cursor string) (remote.FolderPage, error) {
	if pageSize <= 0 || pageSize > remote.MaxFolderPageSize {
		pageSize = remote.MaxFolderPageSize
	}
	target := cursor
	if target == "" {
		q := url.Values{}
		q.Set("$select", folderFields)
		q.Set("$top", strconv.Itoa(pageSize))
		target = path + "?" + q.Encode()
	}

	var page collection[types.Folder]
	if err := c.doJSON(ctx, op, http.MethodGet, target, nil, &page); err != nil {
		return remote.FolderPage{}, err
	}
	return remote.FolderPage{Folders: page.Value, NextCursor: page.NextLink}, nil
}

// ListMessages lists messages newest first
func (c *Client) ListMessages(ctx context.Context, query remote.MessageQuery, cursor string) (remote.MessagePage, error) {
	target := cursor
	if target == "" {
		q := url.Values{}
		q.Set("$select", messageFields)
		q.Set("$orderby", "receivedDateTime desc")
		if query.PageSize > 0 {
			q.Set("$top", strconv.Itoa(query.PageSize))
		}
		if filter := messageFilter(query); filter != "" {
			q.Set("$filter", filter)
		}
		target = messagesPath(query.FolderID) + "?" + q.Encode()
	}

	var page collection[types.Email]
	if err := c.doJSON(ctx, "list messages", http.MethodGet, target, nil, &page); err != nil {
		return remote.MessagePage{}, err
	}
	return remote.MessagePage{Messages: page.Value, NextCursor: page.NextLink}, nil
}

// SearchMessages runs a keyword search in a folder or across the mailbox
func (c *Client) SearchMessages(ctx context.Context, folderID, query string, limit int) ([]types.Email, error) {
	q := url.Values{}
	q.Set("$search", `"`+strings.ReplaceAll(query, `"`, `\"`)+`"`)
	q.Set("$select", messageFields)
	if limit > 0 {
		q.Set("$top", strconv.Itoa(limit))
	}

	var page collection[types.Email]
	if err := c.doJSON(ctx, "search messages", http.MethodGet, messagesPath(folderID)+"?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return page.Value, nil
}

// SetReadState patches the isRead flag
func (c *Client) SetReadState(ctx context.Context, remoteID string, read bool) error {
	body := map[string]bool{"isRead": read}
	return c.doJSON(ctx, "set read state", http.MethodPatch, messagePath(remoteID), body, nil)
}

// DeleteMessage moves a message to Deleted Items
func (c *Client) DeleteMessage(ctx context.Context, remoteID string) error {
	return c.doJSON(ctx, "delete message", http.MethodDelete, messagePath(remoteID), nil, nil)
}

// MoveMessage moves a message and returns its new identity
func (c *Client) MoveMessage(ctx context.Context, remoteID, destinationID string) (remote.MoveResult, error) {
	body := map[string]string{"destinationId": destinationID}
	var moved types.Email
	if err := c.doJSON(ctx, "move message", http.MethodPost, messagePath(remoteID)+"/move", body, &moved); err != nil {
		return remote.MoveResult{}, err
	}
	return remote.MoveResult{NewRemoteID: moved.RemoteID, WebLink: moved.WebLink}, nil
}

// CreateFolder creates a top-level folder
func (c *Client) CreateFolder(ctx context.Context, displayName string) (types.Folder, error) {
	body := map[string]string{"displayName": displayName}
	var folder types.Folder
	if err := c.doJSON(ctx, "create folder", http.MethodPost, "/me/mailFolders", body, &folder); err != nil {
		return types.Folder{}, err
	}
	return folder, nil
}

func messagePath(remoteID string) string {
	return "/me/messages/" + url.PathEscape(remoteID)
}

func messagesPath(folderID string) string {
	if folderID == "" || folderID == remote.AllFolders {
		return "/me/messages"
	}
	return fmt.Sprintf("/me/mailFolders/%s/messages", url.PathEscape(folderID))
}

func messageFilter(query remote.MessageQuery) string {
	var parts []string
	if query.UnreadOnly {
		parts = append(parts, "isRead eq false")
	}
	if !query.Since.IsZero() {
		parts = append(parts, "receivedDateTime ge "+query.Since.UTC().Format(time.RFC3339))
	}
	return strings.Join(parts, " and ")
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, op, method, target string, body, out any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return &remote.Error{Kind: remote.KindUnauthorized, Op: op, Err: err}
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	requestURL := target
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		requestURL = c.baseURL + target
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &remote.Error{Kind: remote.KindOther, Op: op, Err: err}
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &remote.Error{Kind: remote.KindOther, Op: op, StatusCode: resp.StatusCode, Err: readErr}
	}

	c.logger.WithFields(logrus.Fields{
		"op":     op,
		"method": method,
		"status": resp.StatusCode,
	}).Debug("Graph request")

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", op, err)
		}
		return nil
	}

	var errBody errorPayload
	_ = json.Unmarshal(payload, &errBody)
	return translateError(op, resp.StatusCode, errBody.Error.Code, errBody.Error.Message)
}

// translateError is the only place Graph failures become failure kinds
func translateError(op string, status int, code, message string) *remote.Error {
	kind := remote.KindForStatus(status)
	switch code {
	case "InvalidAuthenticationToken", "Unauthorized", "TokenExpired":
		kind = remote.KindUnauthorized
	case "ErrorItemNotFound", "ResourceNotFound":
		kind = remote.KindNotFound
	case "ApplicationThrottled", "TooManyRequests":
		kind = remote.KindRateLimited
	}
	return &remote.Error{
		Kind:       kind,
		Op:         op,
		StatusCode: status,
		Code:       code,
		Message:    message,
	}
}
