package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/internal/journal"
	"github.com/brandon/outlook-email/internal/pending"
	"github.com/brandon/outlook-email/internal/remote"
	"github.com/brandon/outlook-email/pkg/types"
)

// Store is the cache the engine reads and commits to
type Store interface {
	LoadAll() ([]*types.Email, error)
	Save(email *types.Email) error
	Delete(id string) error
}

// FolderResolver maps a folder name to a remote folder
type FolderResolver interface {
	Resolve(ctx context.Context, name string) (types.Folder, error)
}

// Journal records apply runs
type Journal interface {
	StartRun(run journal.Run) error
	RecordEntry(entry journal.Entry) error
	FinishRun(run journal.Run) error
}

// State is the reconciliation state of one record
type State int

const (
	StatePending State = iota
	StateApplying
	StateApplied
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateApplying:
		return "applying"
	case StateApplied:
		return "applied"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Outcome reports the progress of one record
type Outcome struct {
	Email *types.Email
	Ops   Operations
	State State
	Err   error
}

// Result summarizes an apply run
type Result struct {
	RunID   string
	Applied int
	Failed  int
	Skipped int
}

// Engine replays queued changes against a backend
type Engine struct {
	store     Store
	client    remote.Mutator
	resolver  FolderResolver
	refresher remote.Refresher
	journal   Journal
	logger    *logrus.Logger
	now       func() time.Time
}

// NewEngine creates a reconciliation engine
func NewEngine(store Store, client remote.Mutator, resolver FolderResolver, refresher remote.Refresher, logger *logrus.Logger) *Engine {
	return &Engine{
		store:     store,
		client:    client,
		resolver:  resolver,
		refresher: refresher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// SetJournal enables run journaling
func (e *Engine) SetJournal(j Journal) {
	e.journal = j
}

// Plan loads the cache and interprets every pending set
func (e *Engine) Plan() (Plan, error) {
	emails, err := e.store.LoadAll()
	if err != nil {
		return Plan{}, fmt.Errorf("failed to load cache: %w", err)
	}
	return BuildPlan(emails), nil
}

// Apply processes plan items one at a time. A failing record is counted
// and left untouched in the cache; the loop continues with the next one.
// report, if set, is called when a record starts and when it finishes.
func (e *Engine) Apply(ctx context.Context, plan Plan, report func(Outcome)) Result {
	result := Result{RunID: uuid.NewString()}
	if report == nil {
		report = func(Outcome) {}
	}

	run := journal.Run{ID: result.RunID, StartedAt: e.now(), Planned: len(plan.Items)}
	e.journalDo("start run", func(j Journal) error { return j.StartRun(run) })

	for i, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			result.Skipped = len(plan.Items) - i
			e.logger.WithError(err).WithField("skipped", result.Skipped).Warn("Apply interrupted")
			break
		}

		report(Outcome{Email: item.Email, Ops: item.Ops, State: StateApplying})

		outcome := Outcome{Email: item.Email, Ops: item.Ops, State: StateApplied}
		if err := e.applyItem(ctx, item); err != nil {
			outcome.State = StateFailed
			outcome.Err = err
			result.Failed++
			e.logger.WithError(err).WithField("id", item.Email.StoredID).Warn("Failed to apply pending changes")
		} else {
			result.Applied++
			e.logger.WithField("id", item.Email.StoredID).Debug("Applied pending changes")
		}

		e.record(result.RunID, outcome)
		report(outcome)
	}

	finished := e.now()
	run.FinishedAt = &finished
	run.Applied = result.Applied
	run.Failed = result.Failed
	e.journalDo("finish run", func(j Journal) error { return j.FinishRun(run) })

	return result
}

func (e *Engine) applyItem(ctx context.Context, item Item) error {
	email := item.Email

	if item.Ops.Delete {
		err := remote.Do(ctx, e.refresher, func(ctx context.Context) error {
			return e.client.DeleteMessage(ctx, email.RemoteID)
		})
		if err != nil {
			return fmt.Errorf("failed to delete message: %w", err)
		}
		if err := e.store.Delete(email.StoredID); err != nil {
			return fmt.Errorf("failed to remove deleted email from cache: %w", err)
		}
		return nil
	}

	updated := cloneEmail(email)

	if change := item.Ops.Read; change != nil {
		err := remote.Do(ctx, e.refresher, func(ctx context.Context) error {
			return e.client.SetReadState(ctx, email.RemoteID, change.To)
		})
		if err != nil {
			return fmt.Errorf("failed to mark as %s: %w", readWord(change.To), err)
		}

		ensureOffline(updated).Read = change.To
		updated.IsRead = change.To
		if change.To {
			readAt := e.now()
			updated.Offline.ReadAt = &readAt
		} else {
			updated.Offline.ReadAt = nil
		}
	}

	if move := item.Ops.Move; move != nil {
		var target types.Folder
		moved, err := remote.WithAuthRetry(ctx, e.refresher, func(ctx context.Context) (remote.MoveResult, error) {
			folder, err := e.resolver.Resolve(ctx, move.Folder)
			if err != nil {
				return remote.MoveResult{}, err
			}
			target = folder
			return e.client.MoveMessage(ctx, email.RemoteID, folder.ID)
		})
		if err != nil {
			return fmt.Errorf("failed to move to %s: %w", move.Folder, err)
		}

		if moved.NewRemoteID != "" {
			updated.RemoteID = moved.NewRemoteID
		}
		if moved.WebLink != "" {
			updated.WebLink = moved.WebLink
		}
		updated.ParentFolderID = target.ID
		updated.ParentFolderName = target.DisplayName
		if strings.TrimSpace(updated.ParentFolderName) == "" {
			updated.ParentFolderName = move.Folder
		}
	}

	syncedAt := e.now()
	off := ensureOffline(updated)
	off.Pending = nil
	off.LastSync = &syncedAt
	pending.Normalize(updated)

	if err := e.store.Save(updated); err != nil {
		return fmt.Errorf("failed to save email: %w", err)
	}
	*email = *updated
	return nil
}

func (e *Engine) record(runID string, outcome Outcome) {
	entry := journal.Entry{
		RunID:     runID,
		StoredID:  outcome.Email.StoredID,
		RemoteID:  outcome.Email.RemoteID,
		Subject:   outcome.Email.Subject,
		Operation: Describe(outcome.Ops),
		Status:    outcome.State.String(),
		CreatedAt: e.now(),
	}
	if outcome.Err != nil {
		entry.Error = outcome.Err.Error()
	}
	e.journalDo("record entry", func(j Journal) error { return j.RecordEntry(entry) })
}

func (e *Engine) journalDo(what string, fn func(Journal) error) {
	if e.journal == nil {
		return
	}
	if err := fn(e.journal); err != nil {
		e.logger.WithError(err).WithField("step", what).Warn("Failed to write apply journal")
	}
}

// Describe renders operations as a short label, e.g. "read+move:Archive"
func Describe(ops Operations) string {
	if ops.Delete {
		return "delete"
	}
	var parts []string
	if ops.Read != nil {
		parts = append(parts, readWord(ops.Read.To))
	}
	if ops.Move != nil {
		parts = append(parts, "move:"+ops.Move.Folder)
	}
	return strings.Join(parts, "+")
}

func readWord(read bool) string {
	if read {
		return "read"
	}
	return "unread"
}

func ensureOffline(email *types.Email) *types.Offline {
	if email.Offline == nil {
		email.Offline = &types.Offline{}
	}
	return email.Offline
}

func cloneEmail(src *types.Email) *types.Email {
	dst := *src
	if src.Offline != nil {
		off := *src.Offline
		if src.Offline.Pending != nil {
			p := *src.Offline.Pending
			off.Pending = &p
		}
		dst.Offline = &off
	}
	return &dst
}
