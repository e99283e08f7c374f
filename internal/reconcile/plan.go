// Package reconcile turns queued offline changes into remote operations.
// Plan and Apply share Interpret, so a plan always lists exactly what an
// apply would do.
package reconcile

import (
	"github.com/brandon/outlook-email/internal/pending"
	"github.com/brandon/outlook-email/pkg/types"
)

// ReadChange is a queued read-state transition
type ReadChange struct {
	From bool
	To   bool
}

// MoveChange is a queued move
type MoveChange struct {
	Folder string
}

// Operations is the set of remote operations a record needs
type Operations struct {
	Delete bool
	Read   *ReadChange
	Move   *MoveChange
}

// IsEmpty reports whether nothing would be sent
func (o Operations) IsEmpty() bool {
	return !o.Delete && o.Read == nil && o.Move == nil
}

// Interpret reads the pending set of a record. A queued delete replaces
// every other operation; otherwise the read change runs before the move.
func Interpret(email *types.Email) Operations {
	if email.Offline == nil || email.Offline.Pending.IsEmpty() {
		return Operations{}
	}
	p := email.Offline.Pending

	if p.Delete {
		return Operations{Delete: true}
	}

	var ops Operations
	if p.Read != nil {
		ops.Read = &ReadChange{From: email.Offline.Read, To: *p.Read}
	}
	if folder := pending.MoveTarget(email); folder != "" {
		ops.Move = &MoveChange{Folder: folder}
	}
	return ops
}

// Item is a record scheduled for reconciliation
type Item struct {
	Email *types.Email
	Ops   Operations
}

// Tally counts planned operations by kind
type Tally struct {
	MarkRead   int
	MarkUnread int
	Move       int
	Delete     int
}

// Total returns the number of remote operations
func (t Tally) Total() int {
	return t.MarkRead + t.MarkUnread + t.Move + t.Delete
}

func (t *Tally) add(ops Operations) {
	if ops.Delete {
		t.Delete++
	}
	if ops.Read != nil {
		if ops.Read.To {
			t.MarkRead++
		} else {
			t.MarkUnread++
		}
	}
	if ops.Move != nil {
		t.Move++
	}
}

// Plan lists every record with pending changes
type Plan struct {
	Items []Item
	Tally Tally
}

// BuildPlan interprets the pending set of every record. It never touches
// the network or the cache.
func BuildPlan(emails []*types.Email) Plan {
	var plan Plan
	for _, email := range emails {
		ops := Interpret(email)
		if ops.IsEmpty() {
			continue
		}
		plan.Items = append(plan.Items, Item{Email: email, Ops: ops})
		plan.Tally.add(ops)
	}
	return plan
}
