package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/events"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/internal/store"
)

// ImportChange registers the commit named by revision as a change of branch. The
// commit's Change-Id footer identifies the change: an unknown one creates a NEW change,
// a known NEW change gets the commit as its next patch set.
func (e *engineImpl) ImportChange(ctx context.Context, req *Request, revision, branch string) (c *store.Change, err error) {
	defer observe("import-change", time.Now(), &err)

	branch = git.ShortBranchName(branch)
	if _, err := e.branchTip(branch); err != nil {
		return nil, err
	}
	hash, err := e.repo.ResolveRevision(revision)
	if err != nil {
		return nil, err
	}
	commit, err := e.repo.Commit(hash)
	if err != nil {
		return nil, err
	}
	key := commit.ChangeKey()
	if key == "" {
		return nil, slerrors.New(slerrors.KindInvalidInput, "import change", "commit %s has no Change-Id footer", hash)
	}

	existing, err := e.store.GetByKey(ctx, branch, key)
	switch {
	case errors.Is(err, store.ErrChangeNotFound):
		created, err := e.store.Create(ctx, &store.Change{
			Key:             key,
			Branch:          branch,
			Subject:         commit.Subject(),
			Owner:           commit.Author.String(),
			Status:          store.StatusNew,
			CurrentPatchSet: 1,
			PatchSets: []store.PatchSet{{
				Number:   1,
				Commit:   hash,
				Uploader: req.Account(),
				Created:  req.Time,
			}},
			Created: req.Time,
			Updated: req.Time,
		})
		if err != nil {
			return nil, slerrors.Wrap(slerrors.KindUpdateFailed, "import change", err, "create change %s", key)
		}
		e.logger.Info("change imported", "branch", branch, "change", created.Number, "key", key, "request_id", req.ID)
		return created, nil
	case err != nil:
		return nil, slerrors.Wrap(slerrors.KindUpdateFailed, "import change", err, "lookup change %s", key)
	}

	if patchSetOf(existing.PatchSets, hash) != 0 {
		return existing, nil
	}
	if existing.Status != store.StatusNew {
		return nil, slerrors.NewStatusConflictError(existing.Number, string(existing.Status), string(store.StatusNew))
	}

	var updated *store.Change
	err = e.store.Update(ctx, []int{existing.Number}, func(changes map[int]*store.Change) error {
		c := changes[existing.Number]
		if c.Status != store.StatusNew {
			return slerrors.NewStatusConflictError(c.Number, string(c.Status), string(store.StatusNew))
		}
		next := len(c.PatchSets) + 1
		for _, ps := range c.PatchSets {
			next = max(next, ps.Number+1)
		}
		c.PatchSets = append(c.PatchSets, store.PatchSet{Number: next, Commit: hash, Uploader: req.Account(), Created: req.Time})
		c.CurrentPatchSet = next
		c.Subject = commit.Subject()
		c.Messages = append(c.Messages, store.Message{
			PatchSet: next,
			Author:   req.Account(),
			Text:     fmt.Sprintf("Uploaded patch set %d.", next),
			Date:     req.Time,
		})
		c.Updated = req.Time
		updated = c.Clone()
		return nil
	})
	if err != nil {
		return nil, metadataError(err)
	}
	return updated, nil
}

// Review records the actor's vote on a label for the current patch set
func (e *engineImpl) Review(ctx context.Context, req *Request, number int, label string, value int) (c *store.Change, err error) {
	defer observe("review", time.Now(), &err)

	if label == "" {
		return nil, slerrors.New(slerrors.KindInvalidInput, "review", "label is required")
	}
	var updated *store.Change
	err = e.store.Update(ctx, []int{number}, func(changes map[int]*store.Change) error {
		c := changes[number]
		c.SetApproval(store.Approval{
			PatchSet: c.CurrentPatchSet,
			Label:    label,
			Account:  req.Account(),
			Value:    value,
			Granted:  req.Time,
		})
		c.Messages = append(c.Messages, store.Message{
			PatchSet: c.CurrentPatchSet,
			Author:   req.Account(),
			Text:     fmt.Sprintf("Patch Set %d: %s%+d", c.CurrentPatchSet, label, value),
			Date:     req.Time,
		})
		c.Updated = req.Time
		updated = c.Clone()
		return nil
	})
	if err != nil {
		return nil, metadataError(err)
	}
	return updated, nil
}

// Defer parks a NEW or ABANDONED change
func (e *engineImpl) Defer(ctx context.Context, req *Request, number int, message string) (*store.Change, error) {
	return e.setStatus(ctx, req, "defer", Transition{
		Change:  number,
		From:    []store.Status{store.StatusNew, store.StatusAbandoned},
		To:      store.StatusDeferred,
		Message: withDefault(message, "Deferred"),
		Tag:     TagStatus,
	})
}

// Reopen brings a DEFERRED change back to NEW
func (e *engineImpl) Reopen(ctx context.Context, req *Request, number int, message string) (*store.Change, error) {
	return e.setStatus(ctx, req, "reopen", Transition{
		Change:  number,
		From:    []store.Status{store.StatusDeferred},
		To:      store.StatusNew,
		Message: withDefault(message, "Reopened"),
		Tag:     TagStatus,
	})
}

// Abandon abandons a DEFERRED change
func (e *engineImpl) Abandon(ctx context.Context, req *Request, number int, message string) (*store.Change, error) {
	return e.setStatus(ctx, req, "abandon", Transition{
		Change:  number,
		From:    []store.Status{store.StatusDeferred},
		To:      store.StatusAbandoned,
		Message: withDefault(message, "Abandoned"),
		Tag:     TagStatus,
	})
}

// SetStatus forces a change from one status to another. The move must still be one the
// status machine allows; refs are never touched.
func (e *engineImpl) SetStatus(ctx context.Context, req *Request, number int, from, to store.Status, message string) (*store.Change, error) {
	if !CanTransition(from, to) {
		return nil, slerrors.New(slerrors.KindInvalidInput, "change-status", "transition %s -> %s is not allowed", from, to)
	}
	return e.setStatus(ctx, req, "change-status", Transition{
		Change:      number,
		From:        []store.Status{from},
		To:          to,
		Message:     withDefault(message, fmt.Sprintf("Status changed from %s to %s", from, to)),
		Tag:         TagCommand,
		AllowLocked: true,
	})
}

func (e *engineImpl) setStatus(ctx context.Context, req *Request, operation string, t Transition) (c *store.Change, err error) {
	defer observe(operation, time.Now(), &err)

	current, err := e.Change(ctx, t.Change)
	if err != nil {
		return nil, err
	}
	b := newBatch(req).
		Transition(t).
		NotifyChanges(events.Event{Type: events.ChangeStatusChanged, Branch: current.Branch, Message: t.Message}, t.Change)
	updated, err := e.commit(ctx, b)
	if err != nil {
		return nil, err
	}
	e.logger.Info("change status changed", "change", t.Change, "from", string(current.Status), "to", string(t.To), "request_id", req.ID)
	return updated[t.Change], nil
}

func patchSetOf(patchSets []store.PatchSet, commit string) int {
	for _, ps := range patchSets {
		if ps.Commit == commit {
			return ps.Number
		}
	}
	return 0
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
