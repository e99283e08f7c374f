package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/commands"
	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/config"
	"github.com/brandon/outlook-email/internal/remote"
	"github.com/brandon/outlook-email/pkg/types"
)

const (
	defaultMailbox = "INBOX"
	previewLength  = 255
)

var (
	errNoMessage = errors.New("message not found")
	errNoDelete  = errors.New("server supports neither UIDPLUS nor a \\Trash mailbox")
)

// IMAPClient serves the mailbox over IMAP. Remote ids have the form
// "<mailbox>:<uid>" and folder ids are full mailbox names.
type IMAPClient struct {
	config *config.IMAPConfig
	logger *logrus.Logger

	mu        sync.Mutex
	client    *client.Client
	delimiter string
	// LIST result for the current connection
	mailboxes []*imap.MailboxInfo
}

// NewIMAPClient creates a new IMAP client (does not connect immediately)
func NewIMAPClient(cfg *config.IMAPConfig, logger *logrus.Logger) *IMAPClient {
	return &IMAPClient{
		config: cfg,
		logger: logger,
	}
}

// connect must be called with mu held
func (c *IMAPClient) connect() error {
	if c.client != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	cl, err := client.DialTLS(addr, &tls.Config{
		ServerName: c.config.Host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return &remote.Error{Kind: remote.KindOther, Op: "connect", Err: err}
	}

	if err := cl.Login(c.config.Username, c.config.Password); err != nil {
		c.logger.WithError(err).Error("Failed to login to IMAP server")
		cl.Logout() //nolint:errcheck
		return &remote.Error{Kind: remote.KindUnauthorized, Op: "login", Message: err.Error(), Err: err}
	}

	c.client = cl
	c.logger.WithField("host", c.config.Host).Info("Connected to IMAP server")
	return nil
}

// Close closes the IMAP connection
func (c *IMAPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *IMAPClient) closeLocked() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Logout()
	c.client = nil
	c.delimiter = ""
	c.forgetMailboxes()
	return err
}

// Invalidate drops the connection and logs in again
func (c *IMAPClient) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.closeLocked(); err != nil {
		c.logger.WithError(err).Debug("Logout before reconnect failed")
	}
	return c.connect()
}

func (c *IMAPClient) withClient(ctx context.Context, fn func(cl *client.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(); err != nil {
		return err
	}
	return fn(c.client)
}

// ListRootFolders lists the top-level mailboxes
func (c *IMAPClient) ListRootFolders(ctx context.Context, pageSize int, cursor string) (remote.FolderPage, error) {
	return c.listFolders(ctx, "", pageSize, cursor)
}

// ListChildFolders lists the mailboxes directly below parentID
func (c *IMAPClient) ListChildFolders(ctx context.Context, parentID string, pageSize int, cursor string) (remote.FolderPage, error) {
	return c.listFolders(ctx, parentID, pageSize, cursor)
}

func (c *IMAPClient) listFolders(ctx context.Context, parentID string, pageSize int, cursor string) (remote.FolderPage, error) {
	var page remote.FolderPage
	err := c.withClient(ctx, func(cl *client.Client) error {
		infos, err := c.cachedMailboxes(func() ([]*imap.MailboxInfo, error) {
			return listMailboxes(cl)
		})
		if err != nil {
			return err
		}

		tree := buildFolderTree(infos)
		children := tree[parentID]

		offset, err := parseCursor(cursor)
		if err != nil {
			return err
		}
		slice, next := paginate(len(children), offset, pageSize)
		for _, folder := range children[slice[0]:slice[1]] {
			c.fillCounts(cl, &folder)
			page.Folders = append(page.Folders, folder)
		}
		page.NextCursor = next
		return nil
	})
	return page, err
}

// cachedMailboxes runs list once per connection. Must be called with mu held.
func (c *IMAPClient) cachedMailboxes(list func() ([]*imap.MailboxInfo, error)) ([]*imap.MailboxInfo, error) {
	if c.mailboxes != nil {
		return c.mailboxes, nil
	}
	infos, err := list()
	if err != nil {
		return nil, err
	}
	for _, m := range infos {
		if c.delimiter == "" && m.Delimiter != "" {
			c.delimiter = m.Delimiter
		}
	}
	if infos == nil {
		infos = []*imap.MailboxInfo{}
	}
	c.mailboxes = infos
	return infos, nil
}

func (c *IMAPClient) forgetMailboxes() {
	c.mailboxes = nil
}

func listMailboxes(cl *client.Client) ([]*imap.MailboxInfo, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- cl.List("", "*", mailboxes)
	}()

	var infos []*imap.MailboxInfo
	for m := range mailboxes {
		infos = append(infos, m)
	}
	if err := <-done; err != nil {
		return nil, translateIMAPError("list folders", err)
	}
	return infos, nil
}

// trashMailbox returns the mailbox carrying the \Trash special-use attribute
func trashMailbox(infos []*imap.MailboxInfo) string {
	for _, info := range infos {
		if hasFlag(info.Attributes, imap.TrashAttr) {
			return info.Name
		}
	}
	return ""
}

func (c *IMAPClient) fillCounts(cl *client.Client, folder *types.Folder) {
	status, err := cl.Status(folder.ID, []imap.StatusItem{imap.StatusMessages, imap.StatusUnseen})
	if err != nil {
		c.logger.WithError(err).WithField("mailbox", folder.ID).Debug("Mailbox status unavailable")
		return
	}
	folder.TotalItemCount = int(status.Messages)
	folder.UnreadItemCount = int(status.Unseen)
}

// buildFolderTree groups folders by parent id. Root folders are keyed by "".
func buildFolderTree(infos []*imap.MailboxInfo) map[string][]types.Folder {
	tree := make(map[string][]types.Folder)
	counts := make(map[string]int)
	for _, info := range infos {
		parent, name := splitMailbox(info.Name, info.Delimiter)
		tree[parent] = append(tree[parent], types.Folder{
			ID:             info.Name,
			DisplayName:    name,
			ParentFolderID: parent,
		})
		if parent != "" {
			counts[parent]++
		}
	}
	for parent, folders := range tree {
		for i := range folders {
			folders[i].ChildFolderCount = counts[folders[i].ID]
		}
		sort.SliceStable(folders, func(a, b int) bool {
			return folders[a].ID < folders[b].ID
		})
		tree[parent] = folders
	}
	return tree
}

func splitMailbox(name, delimiter string) (parent, leaf string) {
	if delimiter == "" {
		return "", name
	}
	idx := strings.LastIndex(name, delimiter)
	if idx < 0 {
		return "", name
	}
	return name[:idx], name[idx+len(delimiter):]
}

func parseCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return offset, nil
}

// paginate returns the [start, end) window and the cursor for the next page
func paginate(total, offset, pageSize int) ([2]int, string) {
	if pageSize <= 0 {
		pageSize = total
	}
	if offset > total {
		offset = total
	}
	end := offset + pageSize
	if end >= total {
		return [2]int{offset, total}, ""
	}
	return [2]int{offset, end}, strconv.Itoa(end)
}

// ListMessages lists messages of one mailbox, newest first. AllFolders
// falls back to INBOX.
func (c *IMAPClient) ListMessages(ctx context.Context, query remote.MessageQuery, cursor string) (remote.MessagePage, error) {
	mailbox := mailboxFor(query.FolderID)
	criteria := imap.NewSearchCriteria()
	if query.UnreadOnly {
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}
	if !query.Since.IsZero() {
		criteria.Since = query.Since
	}

	offset, err := parseCursor(cursor)
	if err != nil {
		return remote.MessagePage{}, err
	}

	var page remote.MessagePage
	err = c.withClient(ctx, func(cl *client.Client) error {
		if _, err := cl.Select(mailbox, true); err != nil {
			return translateIMAPError("select "+mailbox, err)
		}
		uids, err := cl.UidSearch(criteria)
		if err != nil {
			return translateIMAPError("search messages", err)
		}
		if err := orderByReceived(cl, uids); err != nil {
			return err
		}

		window, next := paginate(len(uids), offset, query.PageSize)
		messages, err := c.fetch(cl, mailbox, uids[window[0]:window[1]])
		if err != nil {
			return err
		}
		page.Messages = messages
		page.NextCursor = next
		return nil
	})
	return page, err
}

// SearchMessages runs a full-text search in one mailbox
func (c *IMAPClient) SearchMessages(ctx context.Context, folderID, query string, limit int) ([]types.Email, error) {
	mailbox := mailboxFor(folderID)
	criteria := imap.NewSearchCriteria()
	criteria.Text = []string{query}

	var results []types.Email
	err := c.withClient(ctx, func(cl *client.Client) error {
		if _, err := cl.Select(mailbox, true); err != nil {
			return translateIMAPError("select "+mailbox, err)
		}
		uids, err := cl.UidSearch(criteria)
		if err != nil {
			return translateIMAPError("search messages", err)
		}
		if err := orderByReceived(cl, uids); err != nil {
			return err
		}
		if limit > 0 && len(uids) > limit {
			uids = uids[:limit]
		}
		results, err = c.fetch(cl, mailbox, uids)
		return err
	})
	return results, err
}

// orderByReceived sorts uids newest first by INTERNALDATE, the date SEARCH
// SINCE filters on.
func orderByReceived(cl *client.Client, uids []uint32) error {
	if len(uids) < 2 {
		return nil
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- cl.UidFetch(seqSet, []imap.FetchItem{imap.FetchInternalDate, imap.FetchUid}, messages)
	}()

	received := make(map[uint32]time.Time, len(uids))
	for msg := range messages {
		received[msg.Uid] = msg.InternalDate
	}
	if err := <-done; err != nil {
		return translateIMAPError("fetch dates", err)
	}
	sortUIDsByReceived(uids, received)
	return nil
}

// sortUIDsByReceived orders newest first; higher uids win ties
func sortUIDsByReceived(uids []uint32, received map[uint32]time.Time) {
	sort.SliceStable(uids, func(i, j int) bool {
		a, b := received[uids[i]], received[uids[j]]
		if !a.Equal(b) {
			return a.After(b)
		}
		return uids[i] > uids[j]
	})
}

func (c *IMAPClient) fetch(cl *client.Client, mailbox string, uids []uint32) ([]types.Email, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- cl.UidFetch(seqSet, items, messages)
	}()

	byUID := make(map[uint32]types.Email, len(uids))
	for msg := range messages {
		byUID[msg.Uid] = c.convertMessage(msg, mailbox, c.delimiter)
	}
	if err := <-done; err != nil {
		return nil, translateIMAPError("fetch messages", err)
	}

	emails := make([]types.Email, 0, len(byUID))
	for _, uid := range uids {
		if email, ok := byUID[uid]; ok {
			emails = append(emails, email)
		}
	}
	return emails, nil
}

// convertMessage parses an IMAP message into our Email type
func (c *IMAPClient) convertMessage(msg *imap.Message, mailbox, delimiter string) types.Email {
	_, folderName := splitMailbox(mailbox, delimiter)
	email := types.Email{
		RemoteID:         formatRemoteID(mailbox, msg.Uid),
		ReceivedDateTime: msg.InternalDate.UTC(),
		IsRead:           hasFlag(msg.Flags, imap.SeenFlag),
		ParentFolderID:   mailbox,
		ParentFolderName: folderName,
		Importance:       "normal",
	}
	if hasFlag(msg.Flags, imap.FlaggedFlag) {
		email.Flag = &types.Flag{FlagStatus: "flagged"}
	}

	if env := msg.Envelope; env != nil {
		email.Subject = env.Subject
		email.ConversationID = env.InReplyTo
		if msg.InternalDate.IsZero() && !env.Date.IsZero() {
			email.ReceivedDateTime = env.Date.UTC()
		}
		if len(env.From) > 0 {
			email.From = toRecipient(env.From[0])
		}
		if len(env.Sender) > 0 {
			email.Sender = toRecipient(env.Sender[0])
		}
		email.ToRecipients = toRecipients(env.To)
		email.CcRecipients = toRecipients(env.Cc)
		email.BccRecipients = toRecipients(env.Bcc)
	}

	var raw []byte
	for _, literal := range msg.Body {
		if literal == nil {
			continue
		}
		data, err := io.ReadAll(literal)
		if err != nil {
			c.logger.WithError(err).Error("Error reading literal")
			continue
		}
		if len(data) > 0 {
			raw = data
			break
		}
	}
	if len(raw) == 0 {
		return email
	}

	parsed, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		c.logger.WithError(err).Debug("Failed to parse with enmime, using raw body")
		email.Body = &types.Body{ContentType: "text", Content: string(raw)}
		email.BodyPreview = preview(string(raw))
		return email
	}

	if parsed.HTML != "" {
		email.Body = &types.Body{ContentType: "html", Content: parsed.HTML}
	} else {
		email.Body = &types.Body{ContentType: "text", Content: parsed.Text}
	}
	email.BodyPreview = preview(parsed.Text)
	email.HasAttachments = len(parsed.Attachments) > 0
	return email
}

// SetReadState adds or removes the \Seen flag
func (c *IMAPClient) SetReadState(ctx context.Context, remoteID string, read bool) error {
	mailbox, uid, err := parseRemoteID(remoteID)
	if err != nil {
		return err
	}
	var op imap.FlagsOp = imap.RemoveFlags
	if read {
		op = imap.AddFlags
	}
	return c.withClient(ctx, func(cl *client.Client) error {
		if err := c.selectMessage(cl, mailbox, uid); err != nil {
			return err
		}
		set := new(imap.SeqSet)
		set.AddNum(uid)
		if err := cl.UidStore(set, imap.FormatFlagsOp(op, true), []interface{}{imap.SeenFlag}, nil); err != nil {
			return translateIMAPError("set read state", err)
		}
		return nil
	})
}

// DeleteMessage removes exactly one message. With UIDPLUS it is flagged and
// expunged by uid; otherwise it moves to the \Trash mailbox. Other messages
// flagged \Deleted in the mailbox are never expunged.
func (c *IMAPClient) DeleteMessage(ctx context.Context, remoteID string) error {
	mailbox, uid, err := parseRemoteID(remoteID)
	if err != nil {
		return err
	}
	return c.withClient(ctx, func(cl *client.Client) error {
		uidPlus, err := cl.Support("UIDPLUS")
		if err != nil {
			return translateIMAPError("capability", err)
		}

		trash := ""
		if !uidPlus {
			infos, err := c.cachedMailboxes(func() ([]*imap.MailboxInfo, error) {
				return listMailboxes(cl)
			})
			if err != nil {
				return err
			}
			trash = trashMailbox(infos)
			if trash == "" || trash == mailbox {
				return &remote.Error{Kind: remote.KindOther, Op: "delete message", Message: errNoDelete.Error(), Err: errNoDelete}
			}
		}

		if err := c.selectMessage(cl, mailbox, uid); err != nil {
			return err
		}
		set := new(imap.SeqSet)
		set.AddNum(uid)

		if !uidPlus {
			if err := cl.UidMove(set, trash); err != nil {
				return translateIMAPError("move to trash", err)
			}
			return nil
		}

		if err := cl.UidStore(set, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.DeletedFlag}, nil); err != nil {
			return translateIMAPError("delete message", err)
		}
		status, err := cl.Execute(uidExpungeCommand(set), nil)
		if err == nil {
			err = status.Err()
		}
		if err != nil {
			return translateIMAPError("uid expunge", err)
		}
		return nil
	})
}

// uidExpunge is the EXPUNGE half of UID EXPUNGE (RFC 4315)
type uidExpunge struct {
	seqSet *imap.SeqSet
}

func (cmd *uidExpunge) Command() *imap.Command {
	return &imap.Command{Name: "EXPUNGE", Arguments: []interface{}{cmd.seqSet}}
}

func uidExpungeCommand(set *imap.SeqSet) imap.Commander {
	return &commands.Uid{Cmd: &uidExpunge{seqSet: set}}
}

// MoveMessage moves the message and locates its uid in the destination
func (c *IMAPClient) MoveMessage(ctx context.Context, remoteID, destinationID string) (remote.MoveResult, error) {
	mailbox, uid, err := parseRemoteID(remoteID)
	if err != nil {
		return remote.MoveResult{}, err
	}

	var result remote.MoveResult
	err = c.withClient(ctx, func(cl *client.Client) error {
		status, err := cl.Status(destinationID, []imap.StatusItem{imap.StatusUidNext})
		if err != nil {
			return translateIMAPError("status "+destinationID, err)
		}

		if err := c.selectMessage(cl, mailbox, uid); err != nil {
			return err
		}
		messageID, err := fetchMessageID(cl, uid)
		if err != nil {
			return err
		}

		set := new(imap.SeqSet)
		set.AddNum(uid)
		if err := cl.UidMove(set, destinationID); err != nil {
			return translateIMAPError("move message", err)
		}

		newUID := status.UidNext
		if messageID != "" {
			if _, err := cl.Select(destinationID, true); err != nil {
				return translateIMAPError("select "+destinationID, err)
			}
			criteria := imap.NewSearchCriteria()
			criteria.Header = textproto.MIMEHeader{"Message-Id": {messageID}}
			if uids, err := cl.UidSearch(criteria); err == nil && len(uids) > 0 {
				sortDescending(uids)
				newUID = uids[0]
			}
		}

		result.NewRemoteID = formatRemoteID(destinationID, newUID)
		return nil
	})
	return result, err
}

// CreateFolder creates a top-level mailbox
func (c *IMAPClient) CreateFolder(ctx context.Context, displayName string) (types.Folder, error) {
	var folder types.Folder
	err := c.withClient(ctx, func(cl *client.Client) error {
		if err := cl.Create(displayName); err != nil {
			return translateIMAPError("create folder", err)
		}
		c.forgetMailboxes()
		folder = types.Folder{ID: displayName, DisplayName: displayName}
		return nil
	})
	return folder, err
}

func (c *IMAPClient) selectMessage(cl *client.Client, mailbox string, uid uint32) error {
	if _, err := cl.Select(mailbox, false); err != nil {
		return translateIMAPError("select "+mailbox, err)
	}
	criteria := imap.NewSearchCriteria()
	criteria.Uid = new(imap.SeqSet)
	criteria.Uid.AddNum(uid)
	uids, err := cl.UidSearch(criteria)
	if err != nil {
		return translateIMAPError("search messages", err)
	}
	if len(uids) == 0 {
		return &remote.Error{
			Kind: remote.KindNotFound,
			Op:   "find message",
			Err:  fmt.Errorf("%w: %s", errNoMessage, formatRemoteID(mailbox, uid)),
		}
	}
	return nil
}

func fetchMessageID(cl *client.Client, uid uint32) (string, error) {
	set := new(imap.SeqSet)
	set.AddNum(uid)
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- cl.UidFetch(set, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, messages)
	}()

	var messageID string
	for msg := range messages {
		if msg.Envelope != nil {
			messageID = msg.Envelope.MessageId
		}
	}
	if err := <-done; err != nil {
		return "", translateIMAPError("fetch envelope", err)
	}
	return messageID, nil
}

func formatRemoteID(mailbox string, uid uint32) string {
	return mailbox + ":" + strconv.FormatUint(uint64(uid), 10)
}

func parseRemoteID(remoteID string) (string, uint32, error) {
	idx := strings.LastIndex(remoteID, ":")
	if idx <= 0 || idx == len(remoteID)-1 {
		return "", 0, &remote.Error{Kind: remote.KindNotFound, Op: "parse id", Message: "malformed message id " + remoteID}
	}
	uid, err := strconv.ParseUint(remoteID[idx+1:], 10, 32)
	if err != nil || uid == 0 {
		return "", 0, &remote.Error{Kind: remote.KindNotFound, Op: "parse id", Message: "malformed message id " + remoteID}
	}
	return remoteID[:idx], uint32(uid), nil
}

func mailboxFor(folderID string) string {
	if folderID == "" || folderID == remote.AllFolders || strings.EqualFold(folderID, "inbox") {
		return defaultMailbox
	}
	return folderID
}

func translateIMAPError(op string, err error) error {
	if err == nil {
		return nil
	}
	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) {
		return err
	}
	kind := remote.KindOther
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonexistent"), strings.Contains(msg, "doesn't exist"), strings.Contains(msg, "no such mailbox"):
		kind = remote.KindNotFound
	case strings.Contains(msg, "not authenticated"), strings.Contains(msg, "authentication"):
		kind = remote.KindUnauthorized
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "too many"):
		kind = remote.KindRateLimited
	}
	return &remote.Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

func sortDescending(uids []uint32) {
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

func toRecipient(addr *imap.Address) *types.Recipient {
	if addr == nil {
		return nil
	}
	return &types.Recipient{EmailAddress: types.EmailAddress{
		Name:    addr.PersonalName,
		Address: addr.Address(),
	}}
}

func toRecipients(addrs []*imap.Address) []types.Recipient {
	var out []types.Recipient
	for _, addr := range addrs {
		if r := toRecipient(addr); r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > previewLength {
		return string(runes[:previewLength])
	}
	return text
}
