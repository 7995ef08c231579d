package engine

import (
	"context"
	"time"

	"stageline.dev/stageline/internal/git"
)

// ListStaging returns the commits reachable from ref but not from destination, oldest
// first, with the change each belongs to. It takes no lock: the result is a snapshot.
func (e *engineImpl) ListStaging(ctx context.Context, ref, destination string) (entries []StagingEntry, err error) {
	defer observe("list-staging", time.Now(), &err)

	tip, err := e.repo.ResolveRevision(git.QualifyRef(ref))
	if err != nil {
		return nil, err
	}
	destination = git.QualifyRef(destination)
	dest, err := e.repo.ResolveRevision(destination)
	if err != nil {
		return nil, err
	}

	walked, err := e.walk(ctx, git.ShortBranchName(destination), tip, dest, git.RangeOptions{})
	if err != nil {
		return nil, err
	}
	entries = make([]StagingEntry, 0, len(walked))
	for _, w := range walked {
		entry := StagingEntry{Commit: w.Commit.Hash, Subject: w.Commit.Subject(), Change: w.Change}
		if w.Change != nil {
			entry.PatchSet = patchSetOf(w.Change.PatchSets, w.Commit.Hash)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
