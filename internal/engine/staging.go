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

// ConflictRevertMessage is left on staged changes sent back to NEW by a rebuild conflict
const ConflictRevertMessage = "Merge conflict in staging branch. Status changed back to new. Please rebase the change and stage again."

// rebuildOptions adjusts a rebuild for the operation that triggers it
type rebuildOptions struct {
	// exclude drops changes from the rebuilt line
	exclude map[int]bool
	// extend adds the triggering operation's own transitions to the rebuild batch
	extend func(b *Batch)
}

// RebuildStaging recomputes the staging ref of branch from the branch tip
func (e *engineImpl) RebuildStaging(ctx context.Context, req *Request, branch string) (res *RebuildResult, err error) {
	defer observe("rebuild-staging", time.Now(), &err)
	branch = git.ShortBranchName(branch)

	unlock, err := e.locks.Lock(StageLock, branch)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return e.rebuildLocked(ctx, req, branch, rebuildOptions{})
}

// rebuildLocked rebuilds staging from scratch: the INTEGRATING changes and then the
// STAGED ones are re-applied onto the branch tip in the order they had on the old
// staging line. The first staged change that conflicts and every staged change after
// it go back to NEW. The caller holds the stage lock.
func (e *engineImpl) rebuildLocked(ctx context.Context, req *Request, branch string, opts rebuildOptions) (*RebuildResult, error) {
	tip, err := e.branchTip(branch)
	if err != nil {
		return nil, err
	}
	stagingRef := git.StagingRef(branch)
	oldTip, err := e.repo.ResolveRef(stagingRef)
	if err != nil {
		return nil, err
	}

	integrating, staged, err := e.stagingOrder(ctx, branch, oldTip, tip, opts.exclude)
	if err != nil {
		return nil, err
	}

	res := &RebuildResult{Branch: branch, OldTip: oldTip}
	b := newBatch(req)

	for _, c := range integrating {
		integ, err := e.integrateChange(ctx, req, c, tip)
		if err != nil {
			return nil, err
		}
		tip = integ.Commit
		res.Applied = append(res.Applied, c.Number)
		if integ.Commit != c.Current().Commit {
			b.Transition(Transition{
				Change:      c.Number,
				From:        []store.Status{store.StatusIntegrating},
				To:          store.StatusIntegrating,
				AllowLocked: true,
				Commit:      integ.Commit,
			})
		}
	}

	for i, c := range staged {
		integ, err := e.integrateChange(ctx, req, c, tip)
		var conflict *slerrors.MergeConflictError
		if errors.As(err, &conflict) {
			res.Conflict = conflict
			for _, reverted := range staged[i:] {
				res.Reverted = append(res.Reverted, reverted.Number)
				b.Transition(Transition{
					Change:      reverted.Number,
					From:        []store.Status{store.StatusStaged},
					To:          store.StatusNew,
					Message:     ConflictRevertMessage,
					Tag:         TagRevert,
					AllowLocked: true,
				})
			}
			e.logger.Warn("staging rebuild stopped at a conflicting change",
				"branch", branch, "change", c.Number, "reverted", res.Reverted, "request_id", req.ID)
			break
		}
		if err != nil {
			return nil, err
		}
		tip = integ.Commit
		res.Applied = append(res.Applied, c.Number)
		if integ.Commit != c.Current().Commit {
			b.Transition(Transition{
				Change: c.Number,
				From:   []store.Status{store.StatusStaged},
				To:     store.StatusStaged,
				Commit: integ.Commit,
			})
		}
	}

	res.NewTip = tip
	if res.Changed() {
		b.UpdateRef(stagingRef, tip, oldTip)
		b.Notify(events.Event{
			Type:     events.RefUpdated,
			Branch:   branch,
			Ref:      stagingRef,
			OldValue: oldTip,
			NewValue: tip,
		})
	}
	b.NotifyChanges(events.Event{
		Type:    events.ChangeReverted,
		Branch:  branch,
		Message: ConflictRevertMessage,
	}, res.Reverted...)
	if opts.extend != nil {
		opts.extend(b)
	}

	if b.Empty() {
		return res, nil
	}
	if _, err := e.commit(ctx, b); err != nil {
		return nil, err
	}
	if len(res.Reverted) > 0 {
		rebuildRevertedTotal.Add(float64(len(res.Reverted)))
	}
	e.logger.Info("staging rebuilt", "branch", branch, "old", oldTip, "new", tip,
		"applied", len(res.Applied), "reverted", len(res.Reverted), "request_id", req.ID)
	return res, nil
}

// stagingOrder returns the INTEGRATING and STAGED changes of branch in the order they
// appear on the old staging line. Changes the store lists but the line does not carry
// follow in change-number order.
func (e *engineImpl) stagingOrder(ctx context.Context, branch, stagingTip, branchTip string, exclude map[int]bool) ([]*store.Change, []*store.Change, error) {
	entries, err := e.walk(ctx, branch, stagingTip, branchTip, e.rangeOptions())
	if err != nil {
		return nil, nil, err
	}
	listed, err := e.store.List(ctx, branch, store.StatusIntegrating, store.StatusStaged)
	if err != nil {
		return nil, nil, slerrors.Wrap(slerrors.KindUpdateFailed, "list changes", err, "branch %s", branch)
	}
	byNumber := make(map[int]*store.Change, len(listed))
	for _, c := range listed {
		byNumber[c.Number] = c
	}

	var integrating, staged []*store.Change
	seen := make(map[int]bool)
	add := func(c *store.Change) {
		if seen[c.Number] || exclude[c.Number] {
			return
		}
		seen[c.Number] = true
		if c.Status == store.StatusIntegrating {
			integrating = append(integrating, c)
		} else {
			staged = append(staged, c)
		}
	}

	for _, entry := range entries {
		if entry.Change == nil {
			continue
		}
		if c, ok := byNumber[entry.Change.Number]; ok {
			add(c)
		}
	}
	for _, c := range listed {
		if !seen[c.Number] && !exclude[c.Number] {
			e.logger.Warn("change missing from staging line, appending", "branch", branch, "change", c.Number, "status", string(c.Status))
			add(c)
		}
	}
	return integrating, staged, nil
}
