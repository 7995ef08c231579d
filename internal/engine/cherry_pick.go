package engine

import (
	"context"
	"fmt"

	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/internal/store"
)

// IntegrationMode says how a commit landed on its destination
type IntegrationMode string

// Integration modes
const (
	ModeFastForward IntegrationMode = "fastforward"
	ModeCherryPick  IntegrationMode = "cherrypick"
	ModeMerge       IntegrationMode = "merge"
)

// Integration is the commit that carries a change on top of a destination
type Integration struct {
	Commit string
	Mode   IntegrationMode
}

// integrate applies source on top of dest.
//
// A single-parent commit already based on dest is reused as is when fastForward is
// set. A merge commit whose first parent is dest is always reused. Any other merge is
// merged into dest, keeping the original merge as second parent. Everything else is
// cherry-picked onto dest with the footer policy applied to its message.
func (e *engineImpl) integrate(ctx context.Context, req *Request, source *git.CommitInfo, approvals []store.Approval, dest string, fastForward bool) (*Integration, error) {
	switch {
	case fastForward && len(source.Parents) == 1 && source.Parents[0] == dest:
		return e.integrated(source.Hash, ModeFastForward), nil

	case source.IsMerge() && source.Parents[0] == dest:
		return e.integrated(source.Hash, ModeFastForward), nil

	case source.IsMerge():
		tree, err := e.repo.MergeTrees(ctx, "", dest, source.Hash)
		if err != nil {
			return nil, err
		}
		commit, err := e.repo.WriteCommit(git.CommitSpec{
			Tree:      tree,
			Parents:   []string{dest, source.Hash},
			Author:    source.Author,
			Committer: req.Committer(),
			Message:   fmt.Sprintf("Merge %q\n", source.Subject()),
		})
		if err != nil {
			return nil, err
		}
		return e.integrated(commit, ModeMerge), nil
	}

	var base string
	if len(source.Parents) > 0 {
		base = source.Parents[0]
	} else {
		root, err := e.repo.WriteEmptyRoot(source.Author)
		if err != nil {
			return nil, err
		}
		base = root
	}
	tree, err := e.repo.MergeTrees(ctx, base, dest, source.Hash)
	if err != nil {
		return nil, err
	}
	commit, err := e.repo.WriteCommit(git.CommitSpec{
		Tree:      tree,
		Parents:   []string{dest},
		Author:    source.Author,
		Committer: req.Committer(),
		Message:   e.opts.Footers.Apply(source.Message, approvals),
	})
	if err != nil {
		return nil, err
	}
	return e.integrated(commit, ModeCherryPick), nil
}

func (e *engineImpl) integrated(commit string, mode IntegrationMode) *Integration {
	integrationsTotal.WithLabelValues(string(mode)).Inc()
	return &Integration{Commit: commit, Mode: mode}
}

// integrateChange applies the current patch set of c onto dest
func (e *engineImpl) integrateChange(ctx context.Context, req *Request, c *store.Change, dest string) (*Integration, error) {
	ps := c.Current()
	if ps == nil {
		return nil, fmt.Errorf("change %d has no current patch set", c.Number)
	}
	source, err := e.repo.Commit(ps.Commit)
	if err != nil {
		return nil, err
	}
	return e.integrate(ctx, req, source, c.ApprovalsFor(ps.Number), dest, true)
}
