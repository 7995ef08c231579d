package engine

import (
	"context"
	"errors"

	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/events"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/internal/store"
)

// Batch bundles ref compare-and-sets with change transitions. Either all of it takes
// effect or none of it does; events queued on the batch are sent only after it
// committed.
type Batch struct {
	req         *Request
	refs        []git.RefUpdate
	transitions []Transition
	events      []pendingEvent
}

type pendingEvent struct {
	ev      events.Event
	changes []int
}

func newBatch(req *Request) *Batch {
	return &Batch{req: req}
}

// UpdateRef queues a compare-and-set of ref from old to new. An empty old creates the ref.
func (b *Batch) UpdateRef(ref, newValue, oldValue string) *Batch {
	b.refs = append(b.refs, git.RefUpdate{Ref: ref, New: newValue, Old: oldValue})
	return b
}

// Transition queues a status transition
func (b *Batch) Transition(t Transition) *Batch {
	b.transitions = append(b.transitions, t)
	return b
}

// Notify queues an event
func (b *Batch) Notify(ev events.Event) *Batch {
	b.events = append(b.events, pendingEvent{ev: ev})
	return b
}

// NotifyChanges queues an event carrying the committed state of the given changes
func (b *Batch) NotifyChanges(ev events.Event, numbers ...int) *Batch {
	if len(numbers) == 0 {
		return b
	}
	b.events = append(b.events, pendingEvent{ev: ev, changes: numbers})
	return b
}

// Empty reports whether the batch would change anything
func (b *Batch) Empty() bool {
	return len(b.refs) == 0 && len(b.transitions) == 0
}

func (b *Batch) numbers() []int {
	out := make([]int, 0, len(b.transitions))
	for _, t := range b.transitions {
		out = append(out, t.Change)
	}
	return out
}

// commit applies b. The ref transaction is prepared first so git holds the ref locks and
// has verified every expected old value; the metadata is then written and the ref
// transaction committed. A failed metadata write aborts the refs; a failed ref commit
// restores the metadata written moments before.
func (e *engineImpl) commit(ctx context.Context, b *Batch) (map[int]*store.Change, error) {
	tx, err := e.repo.PrepareRefUpdates(ctx, b.refs)
	if err != nil {
		return nil, err
	}

	var snapshot, updated map[int]*store.Change
	if len(b.transitions) > 0 {
		err = e.store.Update(ctx, b.numbers(), func(changes map[int]*store.Change) error {
			snapshot = make(map[int]*store.Change, len(changes))
			for n, c := range changes {
				snapshot[n] = c.Clone()
			}
			for _, t := range b.transitions {
				if err := e.applyTransition(changes[t.Change], t, b.req); err != nil {
					return err
				}
			}
			updated = make(map[int]*store.Change, len(changes))
			for n, c := range changes {
				updated[n] = c.Clone()
			}
			return nil
		})
		if err != nil {
			if abortErr := tx.Abort(); abortErr != nil {
				e.logger.Warn("failed to abort ref transaction", "request_id", b.req.ID, "error", abortErr)
			}
			return nil, metadataError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		if snapshot != nil {
			e.restore(ctx, b, snapshot)
		}
		return nil, err
	}

	for _, p := range b.events {
		ev := p.ev
		if len(p.changes) > 0 {
			ev.Changes = changeInfos(updated, p.changes)
		}
		e.notify(ctx, b.req, ev)
	}
	return updated, nil
}

// restore puts back the metadata of a batch whose ref update failed after the
// metadata was written
func (e *engineImpl) restore(ctx context.Context, b *Batch, snapshot map[int]*store.Change) {
	err := e.store.Update(ctx, b.numbers(), func(changes map[int]*store.Change) error {
		for n := range changes {
			if prev, ok := snapshot[n]; ok {
				changes[n] = prev.Clone()
			}
		}
		return nil
	})
	if err != nil {
		e.logger.Error("failed to restore change metadata after ref update failure",
			"request_id", b.req.ID, "changes", b.numbers(), "error", err)
	}
}

// metadataError keeps status machine errors as they are and reports store failures as
// UpdateFailed
func metadataError(err error) error {
	switch slerrors.KindOf(err) {
	case slerrors.KindStatusConflict, slerrors.KindPreconditionFailed, slerrors.KindInvalidReference:
		return err
	}
	if errors.Is(err, store.ErrChangeNotFound) {
		return slerrors.Wrap(slerrors.KindInvalidReference, "update changes", err, "change not found")
	}
	return slerrors.Wrap(slerrors.KindUpdateFailed, "update changes", err, "update failed")
}

func (e *engineImpl) notify(ctx context.Context, req *Request, ev events.Event) {
	ev.RequestID = req.ID
	ev.Actor = req.Account()
	if ev.Time.IsZero() {
		ev.Time = req.Time
	}
	e.opts.Notifier.Notify(ctx, ev)
}

func changeInfo(c *store.Change) events.ChangeInfo {
	info := events.ChangeInfo{
		Number:   c.Number,
		Key:      c.Key,
		Subject:  c.Subject,
		Status:   string(c.Status),
		PatchSet: c.CurrentPatchSet,
	}
	if ps := c.Current(); ps != nil {
		info.Commit = ps.Commit
	}
	return info
}

// changeInfos returns event summaries for numbers in order, skipping unknown numbers
func changeInfos(changes map[int]*store.Change, numbers []int) []events.ChangeInfo {
	out := make([]events.ChangeInfo, 0, len(numbers))
	for _, n := range numbers {
		if c, ok := changes[n]; ok {
			out = append(out, changeInfo(c))
		}
	}
	return out
}
