package engine

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/sync/errgroup"

	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/internal/store"
)

// rangeEntry is a commit of a walked range and the change it belongs to, if any
type rangeEntry struct {
	Commit *git.CommitInfo
	Key    string
	Change *store.Change
}

// walk returns the commits reachable from tip but not from exclude, oldest first,
// matched to the changes of branch. A merge commit without a Change-Id is matched
// through its second parent.
func (e *engineImpl) walk(ctx context.Context, branch, tip, exclude string, opts git.RangeOptions) ([]rangeEntry, error) {
	commits, err := e.repo.Range(ctx, tip, exclude, opts)
	if err != nil {
		return nil, err
	}

	entries := make([]rangeEntry, len(commits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.LookupWorkers)
	for i, commit := range commits {
		entries[i].Commit = commit
		g.Go(func() error {
			key, err := e.commitKey(commit)
			if err != nil {
				return err
			}
			entries[i].Key = key
			if key == "" {
				return nil
			}
			c, err := e.store.GetByKey(gctx, branch, key)
			if errors.Is(err, store.ErrChangeNotFound) {
				return nil
			}
			if err != nil {
				return slerrors.Wrap(slerrors.KindUpdateFailed, "lookup change", err, "change %s", key)
			}
			entries[i].Change = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (e *engineImpl) commitKey(c *git.CommitInfo) (string, error) {
	if key := c.ChangeKey(); key != "" || !c.IsMerge() {
		return key, nil
	}
	parent, err := e.repo.Commit(c.Parents[1])
	if err != nil {
		return "", err
	}
	return parent.ChangeKey(), nil
}

// Change returns a change by number
func (e *engineImpl) Change(ctx context.Context, number int) (*store.Change, error) {
	c, err := e.store.Get(ctx, number)
	if errors.Is(err, store.ErrChangeNotFound) {
		return nil, slerrors.Wrap(slerrors.KindInvalidReference, "get change", err, "change %d not found", number)
	}
	if err != nil {
		return nil, slerrors.Wrap(slerrors.KindUpdateFailed, "get change", err, "change %d", number)
	}
	return c, nil
}

// checkRevision returns the current patch set of c after checking revision names it.
// An empty revision means the current one; otherwise it is a patch set number or a
// commit id prefix.
func checkRevision(c *store.Change, revision string) (*store.PatchSet, error) {
	current := c.Current()
	if current == nil {
		return nil, slerrors.New(slerrors.KindInvalidReference, "check revision", "change %d has no patch set", c.Number)
	}
	if revision == "" {
		return current, nil
	}

	var match *store.PatchSet
	for i := range c.PatchSets {
		ps := &c.PatchSets[i]
		if revision == strconv.Itoa(ps.Number) || (len(revision) >= 4 && len(revision) <= len(ps.Commit) && ps.Commit[:len(revision)] == revision) {
			match = ps
		}
	}
	switch {
	case match == nil:
		return nil, slerrors.New(slerrors.KindInvalidReference, "check revision", "revision %s not found in change %d", revision, c.Number)
	case match.Number != current.Number:
		return nil, slerrors.New(slerrors.KindPreconditionFailed, "check revision", "Revision %s is not current.", revision)
	}
	return current, nil
}

// branchTip resolves a branch, reporting a missing one as InvalidReference
func (e *engineImpl) branchTip(branch string) (string, error) {
	tip, err := e.repo.ResolveRef(git.BranchRef(branch))
	if err != nil {
		if slerrors.KindOf(err) == slerrors.KindInvalidReference {
			return "", slerrors.Wrap(slerrors.KindInvalidReference, "resolve branch", err, "destination branch %s not found", branch)
		}
		return "", err
	}
	return tip, nil
}
