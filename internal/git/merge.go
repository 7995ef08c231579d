package git

import (
	"context"
	"errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	slerrors "stageline.dev/stageline/internal/errors"
)

// MergeTrees performs a three-way merge of two commits without touching the index or
// the work tree and returns the resulting tree id. An empty base lets git pick the
// merge base itself. Conflicts are returned as a *errors.MergeConflictError; a
// revision that does not resolve to a commit is an InvalidReference.
func (r *Repo) MergeTrees(ctx context.Context, base, ours, theirs string) (string, error) {
	for _, rev := range []string{base, ours, theirs} {
		if rev == "" {
			continue
		}
		if _, err := r.ResolveRevision(rev); err != nil {
			return "", err
		}
	}

	args := []string{"merge-tree", "--write-tree", "--name-only", "--no-messages"}
	if base != "" {
		args = append(args, "--merge-base="+base)
	}
	args = append(args, ours, theirs)

	out, err := r.runner.Run(ctx, args...)
	if err == nil {
		tree, _ := parseMergeTree(out)
		return tree, nil
	}

	// merge-tree exits 1 for a conflicted merge and prints the tree followed by the
	// conflicting paths. It also exits 1 for arguments it cannot merge, without a tree.
	var gitErr *slerrors.GitCommandError
	if exitCode(err) == 1 && errors.As(err, &gitErr) {
		if tree, paths := parseMergeTree(gitErr.Stdout); plumbing.IsHash(tree) {
			return "", slerrors.NewMergeConflictError(theirs, ours, paths)
		}
	}
	return "", slerrors.Wrap(slerrors.KindInvalidReference, "merge-tree", err, "cannot merge %s into %s", short(theirs), short(ours))
}

func parseMergeTree(out string) (string, []string) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	tree := strings.TrimSpace(lines[0])

	seen := make(map[string]bool)
	var paths []string
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		paths = append(paths, line)
	}
	return tree, paths
}
