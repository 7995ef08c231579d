package git

import (
	"fmt"
)

// IsAncestor checks if ancestor is reachable from descendant. A commit is its own ancestor.
func (r *Repo) IsAncestor(ancestor, descendant string) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ancestorCommit, err := r.commitObject(ancestor)
	if err != nil {
		return false, err
	}
	descendantCommit, err := r.commitObject(descendant)
	if err != nil {
		return false, err
	}

	ok, err := ancestorCommit.IsAncestor(descendantCommit)
	if err != nil {
		return false, fmt.Errorf("failed to check ancestry of %s: %w", ancestor, err)
	}
	return ok, nil
}

// MergeBases returns the best common ancestors of two commits
func (r *Repo) MergeBases(a, b string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	commitA, err := r.commitObject(a)
	if err != nil {
		return nil, err
	}
	commitB, err := r.commitObject(b)
	if err != nil {
		return nil, err
	}

	bases, err := commitA.MergeBase(commitB)
	if err != nil {
		return nil, fmt.Errorf("failed to find merge base: %w", err)
	}

	hashes := make([]string, 0, len(bases))
	for _, c := range bases {
		hashes = append(hashes, c.Hash.String())
	}
	return hashes, nil
}
