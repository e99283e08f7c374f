package types

import "time"

// EmailAddress is a display name and address pair
type EmailAddress struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
}

// Recipient wraps an address the way the mailbox service returns it
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress" yaml:"emailAddress"`
}

// String returns "Name <address>" or the bare address
func (r Recipient) String() string {
	if r.EmailAddress.Name == "" {
		return r.EmailAddress.Address
	}
	if r.EmailAddress.Address == "" {
		return r.EmailAddress.Name
	}
	return r.EmailAddress.Name + " <" + r.EmailAddress.Address + ">"
}

// Flag is the follow-up flag of a message
type Flag struct {
	FlagStatus string `json:"flagStatus,omitempty" yaml:"flagStatus,omitempty"`
}

// Body holds the message payload. Content is stored outside the metadata header.
type Body struct {
	ContentType string `json:"contentType" yaml:"contentType"`
	Content     string `json:"content" yaml:"-"`
}

// IsHTML reports whether the body carries markup
func (b *Body) IsHTML() bool {
	return b != nil && (b.ContentType == "html" || b.ContentType == "HTML")
}

// Email represents one cached mailbox item
type Email struct {
	// StoredID is derived from the first remote id and never changes.
	StoredID     string     `json:"-" yaml:"_stored_id,omitempty"`
	StoredAt     *time.Time `json:"-" yaml:"_stored_at,omitempty"`
	SourceFolder string     `json:"-" yaml:"_source_folder,omitempty"`

	RemoteID         string      `json:"id" yaml:"id"`
	Subject          string      `json:"subject" yaml:"subject,omitempty"`
	ReceivedDateTime time.Time   `json:"receivedDateTime" yaml:"receivedDateTime"`
	IsRead           bool        `json:"isRead" yaml:"isRead"`
	From             *Recipient  `json:"from,omitempty" yaml:"from,omitempty"`
	Sender           *Recipient  `json:"sender,omitempty" yaml:"sender,omitempty"`
	ToRecipients     []Recipient `json:"toRecipients,omitempty" yaml:"toRecipients,omitempty"`
	CcRecipients     []Recipient `json:"ccRecipients,omitempty" yaml:"ccRecipients,omitempty"`
	BccRecipients    []Recipient `json:"bccRecipients,omitempty" yaml:"bccRecipients,omitempty"`
	Flag             *Flag       `json:"flag,omitempty" yaml:"flag,omitempty"`
	BodyPreview      string      `json:"bodyPreview,omitempty" yaml:"bodyPreview,omitempty"`
	Importance       string      `json:"importance,omitempty" yaml:"importance,omitempty"`
	HasAttachments   bool        `json:"hasAttachments,omitempty" yaml:"hasAttachments,omitempty"`
	ConversationID   string      `json:"conversationId,omitempty" yaml:"conversationId,omitempty"`
	WebLink          string      `json:"webLink,omitempty" yaml:"webLink,omitempty"`
	ParentFolderID   string      `json:"parentFolderId,omitempty" yaml:"parentFolderId,omitempty"`
	ParentFolderName string      `json:"parentFolderName,omitempty" yaml:"parentFolderName,omitempty"`
	Body             *Body       `json:"body,omitempty" yaml:"body,omitempty"`

	Offline *Offline `json:"-" yaml:"offline,omitempty"`
}

// SenderAddress returns the best available sender
func (e *Email) SenderAddress() string {
	if e.From != nil {
		return e.From.String()
	}
	if e.Sender != nil {
		return e.Sender.String()
	}
	return ""
}

// ShortID returns the abbreviated stored id shown in listings
func (e *Email) ShortID() string {
	if len(e.StoredID) > 6 {
		return e.StoredID[:6]
	}
	return e.StoredID
}

// Folder returns the folder the record was pulled from, else its current folder name
func (e *Email) Folder() string {
	if e.SourceFolder != "" {
		return e.SourceFolder
	}
	return e.ParentFolderName
}

// DisplaySubject returns the subject or a placeholder
func (e *Email) DisplaySubject() string {
	if e.Subject == "" {
		return "(No Subject)"
	}
	return e.Subject
}

// Offline is the local-only state of a record
type Offline struct {
	Read      bool       `json:"read,omitempty" yaml:"read,omitempty"`
	ReadAt    *time.Time `json:"readAt,omitempty" yaml:"readAt,omitempty"`
	Processed bool       `json:"processed,omitempty" yaml:"processed,omitempty"`
	Pending   *Pending   `json:"pending,omitempty" yaml:"pending,omitempty"`
	LastSync  *time.Time `json:"lastSync,omitempty" yaml:"last_sync,omitempty"`
}

// IsEmpty reports whether no field carries information
func (o *Offline) IsEmpty() bool {
	return o == nil || (!o.Read && o.ReadAt == nil && !o.Processed && o.Pending == nil && o.LastSync == nil)
}

// Pending is the queued mutation set. A nil Read means no read change is queued.
type Pending struct {
	Read         *bool  `json:"read,omitempty" yaml:"read,omitempty"`
	MoveToFolder string `json:"moveToFolder,omitempty" yaml:"moveToFolder,omitempty"`
	Delete       bool   `json:"delete,omitempty" yaml:"delete,omitempty"`
}

// IsEmpty reports whether nothing is queued
func (p *Pending) IsEmpty() bool {
	return p == nil || (p.Read == nil && p.MoveToFolder == "" && !p.Delete)
}

// Folder represents a remote mail folder
type Folder struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	ParentFolderID   string `json:"parentFolderId,omitempty"`
	ChildFolderCount int    `json:"childFolderCount"`
	UnreadItemCount  int    `json:"unreadItemCount"`
	TotalItemCount   int    `json:"totalItemCount"`
}
