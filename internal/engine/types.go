package engine

import (
	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/store"
)

// StageResult is the outcome of staging a change
type StageResult struct {
	Change *store.Change
	// Staging is the new staging tip
	Staging string
	Mode    IntegrationMode
}

// RebuildResult describes a staging rebuild
type RebuildResult struct {
	Branch string
	OldTip string
	NewTip string
	// Applied lists the changes on the rebuilt staging line in order
	Applied []int
	// Reverted lists the staged changes sent back to NEW by Conflict
	Reverted []int
	Conflict *slerrors.MergeConflictError
}

// Changed reports whether the staging ref moved
func (r *RebuildResult) Changed() bool {
	return r.OldTip != r.NewTip
}

// UnstageResult is the outcome of unstaging a change
type UnstageResult struct {
	Change  *store.Change
	Rebuild *RebuildResult
}

// BuildResult describes a created build snapshot
type BuildResult struct {
	Build   string
	Ref     string
	Tip     string
	Changes []*store.Change
}

// ApproveOutcome says what an approval ended up doing
type ApproveOutcome string

// Approval outcomes
const (
	OutcomeMerged   ApproveOutcome = "merged"
	OutcomeRejected ApproveOutcome = "rejected"
)

// ApproveResult is the outcome of approving a build
type ApproveResult struct {
	Outcome ApproveOutcome
	// Reason explains why a merge degraded into a rejection
	Reason  error
	Build   string
	Branch  string
	OldTip  string
	NewTip  string
	Changes []*store.Change
	Rebuild *RebuildResult
	// RebuildErr reports a staging rebuild failure after the build result was recorded
	RebuildErr error
}

// RejectResult is the outcome of rejecting a build
type RejectResult struct {
	Build      string
	Branch     string
	Changes    []*store.Change
	Rebuild    *RebuildResult
	RebuildErr error
}

// StagingEntry is one commit of a staging line
type StagingEntry struct {
	Commit  string
	Subject string
	// Change is nil for commits that belong to no known change
	Change   *store.Change
	PatchSet int
}
