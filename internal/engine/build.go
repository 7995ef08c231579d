package engine

import (
	"context"
	"fmt"
	"time"

	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/events"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/internal/store"
)

// BranchMoveMessage is left on changes of a build whose approval could not be merged
const BranchMoveMessage = "Branch update failed, changed back to NEW. Either the destination branch was changed externally, or the build no longer matches its changes."

// CreateBuild snapshots the staging line of branch into refs/builds/<build> and moves
// the staged changes on it to INTEGRATING. An empty stagingRef means the branch's own.
func (e *engineImpl) CreateBuild(ctx context.Context, req *Request, branch, stagingRef, build string) (res *BuildResult, err error) {
	defer observe("new-build", time.Now(), &err)

	branch = git.ShortBranchName(branch)
	build = git.ShortBuildID(build)
	buildRef := git.BuildRef(build)
	if err := e.repo.ValidateRefName(ctx, buildRef); err != nil {
		return nil, err
	}
	if stagingRef == "" {
		stagingRef = git.StagingRef(branch)
	}
	stagingRef = git.QualifyRef(stagingRef)

	unlock, err := e.locks.Lock(StageLock, branch)
	if err != nil {
		return nil, err
	}
	defer unlock()

	exists, err := e.repo.RefExists(buildRef)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, slerrors.New(slerrors.KindPreconditionFailed, "new-build", "build %s already exists", build)
	}
	tip, err := e.repo.ResolveRef(stagingRef)
	if err != nil {
		return nil, err
	}
	branchTip, err := e.branchTip(branch)
	if err != nil {
		return nil, err
	}

	entries, err := e.walk(ctx, branch, tip, branchTip, e.rangeOptions())
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Added to build %s for %s", build, branch)
	b := newBatch(req).UpdateRef(buildRef, tip, "")
	var numbers []int
	seen := make(map[int]bool)
	for _, entry := range entries {
		c := entry.Change
		if c == nil || seen[c.Number] {
			continue
		}
		seen[c.Number] = true
		switch c.Status {
		case store.StatusStaged:
			b.Transition(Transition{
				Change:  c.Number,
				From:    []store.Status{store.StatusStaged},
				To:      store.StatusIntegrating,
				Message: message,
				Tag:     TagCI,
				Build:   build,
			})
		case store.StatusIntegrating:
			e.logger.Info("change already integrating, carried into new build",
				"branch", branch, "change", c.Number, "previous_build", c.Build, "build", build)
			b.Transition(Transition{
				Change: c.Number,
				From:   []store.Status{store.StatusIntegrating},
				To:     store.StatusIntegrating,
				Build:  build,
			})
		default:
			e.logger.Warn("commit on staging belongs to a change that is not staged",
				"branch", branch, "change", c.Number, "status", string(c.Status), "commit", entry.Commit.Hash)
			continue
		}
		numbers = append(numbers, c.Number)
	}
	if len(numbers) == 0 {
		return nil, slerrors.New(slerrors.KindPreconditionFailed, "new-build", "no changes in staging branch %s", git.DescribeRef(stagingRef))
	}

	b.NotifyChanges(events.Event{
		Type:     events.BuildCreated,
		Branch:   branch,
		Ref:      buildRef,
		NewValue: tip,
		Build:    build,
	}, numbers...)
	updated, err := e.commit(ctx, b)
	if err != nil {
		return nil, err
	}

	e.logger.Info("build created", "branch", branch, "build", build, "tip", tip, "changes", numbers, "request_id", req.ID)
	return &BuildResult{Build: build, Ref: buildRef, Tip: tip, Changes: ordered(updated, numbers)}, nil
}

// ApproveBuild moves the branch to the build tip and marks the build's changes MERGED.
// When that is impossible, because the branch moved or the changes no longer match
// the build, the approval degrades into a rejection. Staging is rebuilt either way.
func (e *engineImpl) ApproveBuild(ctx context.Context, req *Request, build, branch, message string) (res *ApproveResult, err error) {
	defer observe("approve-build", time.Now(), &err)

	branch = git.ShortBranchName(branch)
	build = git.ShortBuildID(build)

	unlock, err := e.locks.LockAll(branch, BuildLock, StageLock)
	if err != nil {
		return nil, err
	}
	defer unlock()

	buildTip, branchTip, open, err := e.openBuildChanges(ctx, branch, build)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = fmt.Sprintf("Change merged into branch %s", branch)
	}

	res = &ApproveResult{Build: build, Branch: branch, OldTip: branchTip, NewTip: branchTip}
	reason := e.checkApprovable(branchTip, buildTip, open)
	if reason == nil {
		var merged map[int]*store.Change
		merged, reason = e.merge(ctx, req, branch, build, branchTip, buildTip, open, message)
		if reason == nil {
			res.Outcome = OutcomeMerged
			res.NewTip = buildTip
			res.Changes = ordered(merged, numbersOf(open))
		} else if k := slerrors.KindOf(reason); k != slerrors.KindConcurrentBranchMove && k != slerrors.KindUpdateFailed {
			return nil, reason
		}
	}

	if reason != nil {
		e.logger.Warn("build approval failed, rejecting", "branch", branch, "build", build, "reason", reason, "request_id", req.ID)
		res.Outcome = OutcomeRejected
		res.Reason = reason
		rejected, err := e.reject(ctx, req, branch, build, open, BranchMoveMessage)
		if err != nil {
			return nil, err
		}
		res.Changes = rejected
	}

	res.Rebuild, res.RebuildErr = e.rebuildLocked(ctx, req, branch, rebuildOptions{})
	if res.RebuildErr != nil {
		e.logger.Error("staging rebuild after build result failed", "branch", branch, "build", build, "error", res.RebuildErr)
	}
	return res, nil
}

// checkApprovable returns why the build cannot be merged, or nil
func (e *engineImpl) checkApprovable(branchTip, buildTip string, open []rangeEntry) error {
	for _, entry := range open {
		c := entry.Change
		if c.Status != store.StatusIntegrating {
			return slerrors.NewStatusConflictError(c.Number, string(c.Status), string(store.StatusMerged))
		}
		if ps := c.Current(); ps == nil || ps.Commit != entry.Commit.Hash {
			return slerrors.New(slerrors.KindPreconditionFailed, "approve-build",
				"change %d current patch set is not the build's commit %s", c.Number, entry.Commit.Hash)
		}
	}
	ok, err := e.repo.IsAncestor(branchTip, buildTip)
	if err != nil {
		return err
	}
	if !ok {
		return slerrors.New(slerrors.KindConcurrentBranchMove, "approve-build",
			"branch tip %s is not an ancestor of the build", branchTip)
	}
	return nil
}

func (e *engineImpl) merge(ctx context.Context, req *Request, branch, build, branchTip, buildTip string, open []rangeEntry, message string) (map[int]*store.Change, error) {
	branchRef := git.BranchRef(branch)
	b := newBatch(req).UpdateRef(branchRef, buildTip, branchTip)
	for _, entry := range open {
		b.Transition(Transition{
			Change:      entry.Change.Number,
			From:        []store.Status{store.StatusIntegrating},
			To:          store.StatusMerged,
			Message:     message,
			Tag:         TagMerged,
			AllowLocked: true,
		})
	}
	b.NotifyChanges(events.Event{
		Type:    events.ChangeMerged,
		Branch:  branch,
		Build:   build,
		Message: message,
		Email:   true,
	}, numbersOf(open)...)
	b.Notify(events.Event{
		Type:     events.RefUpdated,
		Branch:   branch,
		Ref:      branchRef,
		OldValue: branchTip,
		NewValue: buildTip,
	})

	merged, err := e.commit(ctx, b)
	if err != nil {
		return nil, err
	}
	e.logger.Info("build merged", "branch", branch, "build", build, "tip", buildTip, "changes", numbersOf(open), "request_id", req.ID)
	return merged, nil
}

// RejectBuild reverts the open changes of a build to NEW. The branch and the staging
// ref are left alone.
func (e *engineImpl) RejectBuild(ctx context.Context, req *Request, build, branch, message string) (res *RejectResult, err error) {
	defer observe("reject-build", time.Now(), &err)

	branch = git.ShortBranchName(branch)
	build = git.ShortBuildID(build)

	unlock, err := e.locks.Lock(BuildLock, branch)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return e.rejectBuildLocked(ctx, req, build, branch, message)
}

// FailBuild rejects a build and rebuilds staging
func (e *engineImpl) FailBuild(ctx context.Context, req *Request, build, branch, message string) (res *RejectResult, err error) {
	defer observe("fail-build", time.Now(), &err)

	branch = git.ShortBranchName(branch)
	build = git.ShortBuildID(build)

	unlock, err := e.locks.LockAll(branch, BuildLock, StageLock)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err = e.rejectBuildLocked(ctx, req, build, branch, message)
	if err != nil {
		return nil, err
	}
	res.Rebuild, res.RebuildErr = e.rebuildLocked(ctx, req, branch, rebuildOptions{})
	if res.RebuildErr != nil {
		e.logger.Error("staging rebuild after build result failed", "branch", branch, "build", build, "error", res.RebuildErr)
	}
	return res, nil
}

func (e *engineImpl) rejectBuildLocked(ctx context.Context, req *Request, build, branch, message string) (*RejectResult, error) {
	_, _, open, err := e.openBuildChanges(ctx, branch, build)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = fmt.Sprintf("Change rejected for branch %s", branch)
	}
	rejected, err := e.reject(ctx, req, branch, build, open, message)
	if err != nil {
		return nil, err
	}
	return &RejectResult{Build: build, Branch: branch, Changes: rejected}, nil
}

// reject moves the INTEGRATING changes among open back to NEW
func (e *engineImpl) reject(ctx context.Context, req *Request, branch, build string, open []rangeEntry, message string) ([]*store.Change, error) {
	b := newBatch(req)
	var numbers []int
	for _, entry := range open {
		if entry.Change.Status != store.StatusIntegrating {
			continue
		}
		numbers = append(numbers, entry.Change.Number)
		b.Transition(Transition{
			Change:      entry.Change.Number,
			From:        []store.Status{store.StatusIntegrating},
			To:          store.StatusNew,
			Message:     message,
			Tag:         TagRevert,
			AllowLocked: true,
			ClearBuild:  true,
		})
	}
	if len(numbers) == 0 {
		return nil, slerrors.New(slerrors.KindPreconditionFailed, "reject-build", "no open changes in the build %s", build)
	}
	b.NotifyChanges(events.Event{
		Type:    events.BuildFailed,
		Branch:  branch,
		Build:   build,
		Message: message,
		Email:   true,
	}, numbers...)

	updated, err := e.commit(ctx, b)
	if err != nil {
		return nil, err
	}
	e.logger.Info("build rejected", "branch", branch, "build", build, "changes", numbers, "request_id", req.ID)
	return ordered(updated, numbers), nil
}

// openBuildChanges resolves a build and its branch and returns the changes on the
// build that are not merged yet, oldest first
func (e *engineImpl) openBuildChanges(ctx context.Context, branch, build string) (string, string, []rangeEntry, error) {
	buildTip, err := e.repo.ResolveRef(git.BuildRef(build))
	if err != nil {
		return "", "", nil, err
	}
	branchTip, err := e.branchTip(branch)
	if err != nil {
		return "", "", nil, err
	}
	entries, err := e.walk(ctx, branch, buildTip, branchTip, e.rangeOptions())
	if err != nil {
		return "", "", nil, err
	}

	var open []rangeEntry
	seen := make(map[int]bool)
	for _, entry := range entries {
		c := entry.Change
		if c == nil {
			e.logger.Debug("build commit without a change", "build", build, "commit", entry.Commit.Hash)
			continue
		}
		if seen[c.Number] || c.Status == store.StatusMerged {
			continue
		}
		seen[c.Number] = true
		open = append(open, entry)
	}
	if len(open) == 0 {
		return "", "", nil, slerrors.New(slerrors.KindPreconditionFailed, "build", "no open changes in the build %s", build)
	}
	return buildTip, branchTip, open, nil
}

func numbersOf(entries []rangeEntry) []int {
	out := make([]int, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Change.Number)
	}
	return out
}

func ordered(changes map[int]*store.Change, numbers []int) []*store.Change {
	out := make([]*store.Change, 0, len(numbers))
	for _, n := range numbers {
		if c, ok := changes[n]; ok {
			out = append(out, c)
		}
	}
	return out
}
