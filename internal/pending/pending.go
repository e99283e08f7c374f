// Package pending records offline mutations against cached emails and keeps
// the offline state of a record in canonical form.
package pending

import (
	"errors"
	"strings"

	"github.com/brandon/outlook-email/pkg/types"
)

// Outcome describes what a queue operation did to a record
type Outcome int

const (
	// Unchanged means the request matched the current state
	Unchanged Outcome = iota
	// Queued means a new pending change was stored
	Queued
	// Cancelled means the request reverted an earlier pending change
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Queued:
		return "queued"
	case Cancelled:
		return "cancelled"
	default:
		return "unchanged"
	}
}

// ErrEmptyFolder is returned when a move names no folder
var ErrEmptyFolder = errors.New("folder name is required")

// IsRead returns the effective read state: a pending value wins over the
// last synced value, and a record without offline state is unread.
func IsRead(email *types.Email) bool {
	if email.Offline == nil {
		return false
	}
	if p := email.Offline.Pending; p != nil && p.Read != nil {
		return *p.Read
	}
	return email.Offline.Read
}

// SyncedRead returns the last synced read state, ignoring pending changes
func SyncedRead(email *types.Email) bool {
	return email.Offline != nil && email.Offline.Read
}

// QueueRead queues a read-state change
func QueueRead(email *types.Email, read bool) Outcome {
	if IsRead(email) == read {
		return Unchanged
	}

	p := ensurePending(email)
	p.Read = &read

	outcome := Queued
	if email.Offline.Read == read {
		p.Read = nil
		outcome = Cancelled
	}

	Normalize(email)
	return outcome
}

// QueueMove queues a move. Only the latest destination is kept.
func QueueMove(email *types.Email, folder string) (Outcome, error) {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return Unchanged, ErrEmptyFolder
	}

	if current := MoveTarget(email); current != "" && SameFolder(current, folder) {
		return Unchanged, nil
	}

	ensurePending(email).MoveToFolder = folder
	Normalize(email)
	return Queued, nil
}

// ClearMove drops a queued move
func ClearMove(email *types.Email) Outcome {
	if MoveTarget(email) == "" {
		return Unchanged
	}
	email.Offline.Pending.MoveToFolder = ""
	Normalize(email)
	return Cancelled
}

// MoveTarget returns the queued destination folder, if any
func MoveTarget(email *types.Email) string {
	if email.Offline == nil || email.Offline.Pending == nil {
		return ""
	}
	return strings.TrimSpace(email.Offline.Pending.MoveToFolder)
}

// QueueDelete marks the record for remote deletion
func QueueDelete(email *types.Email) Outcome {
	if IsDeleteQueued(email) {
		return Unchanged
	}
	ensurePending(email).Delete = true
	Normalize(email)
	return Queued
}

// ClearDelete removes the delete marker
func ClearDelete(email *types.Email) Outcome {
	if !IsDeleteQueued(email) {
		return Unchanged
	}
	email.Offline.Pending.Delete = false
	Normalize(email)
	return Cancelled
}

// IsDeleteQueued reports whether a delete is pending
func IsDeleteQueued(email *types.Email) bool {
	return email.Offline != nil && email.Offline.Pending != nil && email.Offline.Pending.Delete
}

// ToggleProcessed flips the local processed flag and returns the new value
func ToggleProcessed(email *types.Email) bool {
	if email.Offline == nil {
		email.Offline = &types.Offline{}
	}
	email.Offline.Processed = !email.Offline.Processed
	Normalize(email)
	return email.Offline != nil && email.Offline.Processed
}

// IsProcessed reports the local processed flag
func IsProcessed(email *types.Email) bool {
	return email.Offline != nil && email.Offline.Processed
}

// HasPending reports whether any change is queued
func HasPending(email *types.Email) bool {
	return email.Offline != nil && !email.Offline.Pending.IsEmpty()
}

// Normalize prunes an empty pending set and an empty offline structure.
// Every mutation of offline state ends with a call to Normalize.
func Normalize(email *types.Email) {
	o := email.Offline
	if o == nil {
		return
	}
	if p := o.Pending; p != nil {
		p.MoveToFolder = strings.TrimSpace(p.MoveToFolder)
		if p.IsEmpty() {
			o.Pending = nil
		}
	}
	if !o.Read {
		o.ReadAt = nil
	}
	if o.IsEmpty() {
		email.Offline = nil
	}
}

// SameFolder compares folder names ignoring case and surrounding whitespace
func SameFolder(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func ensurePending(email *types.Email) *types.Pending {
	if email.Offline == nil {
		email.Offline = &types.Offline{}
	}
	if email.Offline.Pending == nil {
		email.Offline.Pending = &types.Pending{}
	}
	return email.Offline.Pending
}
