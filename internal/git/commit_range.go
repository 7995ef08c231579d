package git

import (
	"context"
	"fmt"
	"strconv"

	slerrors "stageline.dev/stageline/internal/errors"
)

// RangeOptions controls a history walk
type RangeOptions struct {
	// FirstParent follows only first parents, the shape of a staging chain
	FirstParent bool
	// Limit bounds the walk; zero means unbounded. Exceeding it is a
	// TraversalBoundExceeded error, never a truncated result.
	Limit int
}

// RangeHashes returns the commits reachable from tip but not from exclude, oldest first
func (r *Repo) RangeHashes(ctx context.Context, tip, exclude string, opts RangeOptions) ([]string, error) {
	args := []string{"rev-list", "--topo-order", "--reverse"}
	if opts.FirstParent {
		args = append(args, "--first-parent")
	}
	if opts.Limit > 0 {
		args = append(args, "--max-count="+strconv.Itoa(opts.Limit+1))
	}
	args = append(args, tip)
	if exclude != "" && exclude != ZeroHash {
		args = append(args, "^"+exclude)
	}
	args = append(args, "--")

	hashes, err := r.runner.RunLines(ctx, args...)
	if err != nil {
		return nil, slerrors.Wrap(slerrors.KindInvalidReference, "rev-list", err, "cannot walk %s..%s", short(exclude), short(tip))
	}
	if opts.Limit > 0 && len(hashes) > opts.Limit {
		return nil, slerrors.New(slerrors.KindTraversalBoundExceeded, "rev-list",
			"more than %d commits between %s and %s", opts.Limit, short(exclude), short(tip))
	}
	return hashes, nil
}

// Range returns the commits reachable from tip but not from exclude, oldest first
func (r *Repo) Range(ctx context.Context, tip, exclude string, opts RangeOptions) ([]*CommitInfo, error) {
	hashes, err := r.RangeHashes(ctx, tip, exclude, opts)
	if err != nil {
		return nil, err
	}

	commits := make([]*CommitInfo, 0, len(hashes))
	for _, hash := range hashes {
		c, err := r.Commit(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to read commit in range: %w", err)
		}
		commits = append(commits, c)
	}
	return commits, nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
