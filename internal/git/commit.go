package git

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CommitSpec describes a commit object to write
type CommitSpec struct {
	Tree      string
	Parents   []string
	Author    Signature
	Committer Signature
	Message   string
}

// WriteCommit writes a commit object and returns its hash. No ref is touched.
func (r *Repo) WriteCommit(spec CommitSpec) (string, error) {
	if !plumbing.IsHash(spec.Tree) {
		return "", fmt.Errorf("invalid tree id %q", spec.Tree)
	}

	parents := make([]plumbing.Hash, 0, len(spec.Parents))
	for _, p := range spec.Parents {
		if !plumbing.IsHash(p) {
			return "", fmt.Errorf("invalid parent id %q", p)
		}
		parents = append(parents, plumbing.NewHash(p))
	}

	commit := &object.Commit{
		Author: object.Signature{
			Name:  spec.Author.Name,
			Email: spec.Author.Email,
			When:  spec.Author.When,
		},
		Committer: object.Signature{
			Name:  spec.Committer.Name,
			Email: spec.Committer.Email,
			When:  spec.Committer.When,
		},
		Message:      spec.Message,
		TreeHash:     plumbing.NewHash(spec.Tree),
		ParentHashes: parents,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	obj := r.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return "", fmt.Errorf("failed to encode commit: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("failed to write commit: %w", err)
	}
	return hash.String(), nil
}

// WriteEmptyRoot writes a parentless commit of the empty tree. merge-tree only takes
// a commit as merge base, so root commits are cherry-picked against this one.
func (r *Repo) WriteEmptyRoot(sig Signature) (string, error) {
	return r.WriteCommit(CommitSpec{
		Tree:      EmptyTreeHash,
		Author:    sig,
		Committer: sig,
		Message:   "empty\n",
	})
}
