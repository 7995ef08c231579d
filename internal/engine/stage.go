package engine

import (
	"context"
	"errors"
	"time"

	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/events"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/internal/store"
)

// Default history messages
const (
	StagedMessage   = "Staged for CI"
	UnstagedMessage = "Unstaged"
)

// Stage puts the current patch set of a NEW change on top of its branch's staging line
func (e *engineImpl) Stage(ctx context.Context, req *Request, number int, revision string) (res *StageResult, err error) {
	defer observe("stage", time.Now(), &err)

	c, err := e.Change(ctx, number)
	if err != nil {
		return nil, err
	}
	branch := c.Branch

	unlock, err := e.locks.Lock(StageLock, branch)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// the change may have moved while we waited for the lock
	if c, err = e.Change(ctx, number); err != nil {
		return nil, err
	}
	if c.Status != store.StatusNew {
		return nil, slerrors.NewStatusConflictError(c.Number, string(c.Status), string(store.StatusStaged))
	}
	branchTip, err := e.branchTip(branch)
	if err != nil {
		return nil, err
	}
	ps, err := checkRevision(c, revision)
	if err != nil {
		return nil, err
	}
	if unmet := e.opts.Review.Check(c.ApprovalsFor(ps.Number)); unmet != "" {
		return nil, slerrors.New(slerrors.KindPreconditionFailed, "stage", "change %d cannot be staged: %s", c.Number, unmet)
	}
	source, err := e.repo.Commit(ps.Commit)
	if err != nil {
		return nil, err
	}
	if err := e.checkMergeParents(ctx, c, source); err != nil {
		return nil, err
	}

	stagingRef := git.StagingRef(branch)
	exists, err := e.repo.RefExists(stagingRef)
	if err != nil {
		return nil, err
	}
	dest, old := branchTip, ""
	if exists {
		if dest, err = e.repo.ResolveRef(stagingRef); err != nil {
			return nil, err
		}
		old = dest
	}

	integ, err := e.integrate(ctx, req, source, c.ApprovalsFor(ps.Number), dest, true)
	if err != nil {
		return nil, err
	}

	b := newBatch(req).
		UpdateRef(stagingRef, integ.Commit, old).
		Transition(Transition{
			Change:  c.Number,
			From:    []store.Status{store.StatusNew},
			To:      store.StatusStaged,
			Message: StagedMessage,
			Tag:     TagCI,
			Commit:  integ.Commit,
		}).
		NotifyChanges(events.Event{Type: events.ChangeStaged, Branch: branch}, c.Number).
		Notify(events.Event{
			Type:     events.RefUpdated,
			Branch:   branch,
			Ref:      stagingRef,
			OldValue: old,
			NewValue: integ.Commit,
		})
	updated, err := e.commit(ctx, b)
	if err != nil {
		return nil, err
	}

	e.logger.Info("change staged", "branch", branch, "change", c.Number, "staging", integ.Commit,
		"mode", string(integ.Mode), "request_id", req.ID)
	return &StageResult{Change: updated[c.Number], Staging: integ.Commit, Mode: integ.Mode}, nil
}

// checkMergeParents refuses a merge commit whose merged-in side belongs to another
// change of the same branch that has not been merged yet
func (e *engineImpl) checkMergeParents(ctx context.Context, c *store.Change, source *git.CommitInfo) error {
	if !source.IsMerge() {
		return nil
	}
	for _, parent := range source.Parents[1:] {
		pc, err := e.repo.Commit(parent)
		if err != nil {
			return err
		}
		key := pc.ChangeKey()
		if key == "" {
			continue
		}
		other, err := e.store.GetByKey(ctx, c.Branch, key)
		if errors.Is(err, store.ErrChangeNotFound) {
			continue
		}
		if err != nil {
			return slerrors.Wrap(slerrors.KindUpdateFailed, "stage", err, "lookup change %s", key)
		}
		if other.Number != c.Number && other.Status != store.StatusMerged {
			return slerrors.New(slerrors.KindPreconditionFailed, "stage",
				"merge parent %s belongs to change %d which is %s, not merged", parent, other.Number, other.Status)
		}
	}
	return nil
}

// Unstage sends a STAGED change back to NEW and rebuilds staging without it. Both
// happen in one batch.
func (e *engineImpl) Unstage(ctx context.Context, req *Request, number int, revision string) (res *UnstageResult, err error) {
	defer observe("unstage", time.Now(), &err)

	c, err := e.Change(ctx, number)
	if err != nil {
		return nil, err
	}
	branch := c.Branch

	unlock, err := e.locks.Lock(StageLock, branch)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if c, err = e.Change(ctx, number); err != nil {
		return nil, err
	}
	if c.Status != store.StatusStaged {
		return nil, slerrors.NewStatusConflictError(c.Number, string(c.Status), string(store.StatusNew))
	}
	if _, err := checkRevision(c, revision); err != nil {
		return nil, err
	}

	rebuild, err := e.rebuildLocked(ctx, req, branch, rebuildOptions{
		exclude: map[int]bool{c.Number: true},
		extend: func(b *Batch) {
			b.Transition(Transition{
				Change:  c.Number,
				From:    []store.Status{store.StatusStaged},
				To:      store.StatusNew,
				Message: UnstagedMessage,
				Tag:     TagCI,
			}).NotifyChanges(events.Event{Type: events.ChangeUnstaged, Branch: branch}, c.Number)
		},
	})
	if err != nil {
		return nil, err
	}

	updated, err := e.Change(ctx, number)
	if err != nil {
		return nil, err
	}
	return &UnstageResult{Change: updated, Rebuild: rebuild}, nil
}
