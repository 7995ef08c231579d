package engine

import (
	"context"
	"log/slog"

	"stageline.dev/stageline/internal/events"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/internal/store"
)

// DefaultTraversalLimit bounds the staging walk used to recover change order
const DefaultTraversalLimit = 100

// StagingManager moves changes in and out of a branch's staging line
// Thread-safe: All methods are safe for concurrent use
type StagingManager interface {
	Stage(ctx context.Context, req *Request, change int, revision string) (*StageResult, error)
	Unstage(ctx context.Context, req *Request, change int, revision string) (*UnstageResult, error)
	RebuildStaging(ctx context.Context, req *Request, branch string) (*RebuildResult, error)
	ListStaging(ctx context.Context, ref, destination string) ([]StagingEntry, error)
}

// BuildManager cuts build snapshots from staging and applies their results
// Thread-safe: All methods are safe for concurrent use
type BuildManager interface {
	CreateBuild(ctx context.Context, req *Request, branch, stagingRef, build string) (*BuildResult, error)
	// ApproveBuild merges a passed build. Failures to merge degrade into a rejection and
	// are reported in the result, not as an error.
	ApproveBuild(ctx context.Context, req *Request, build, branch, message string) (*ApproveResult, error)
	// RejectBuild reverts the build's open changes to NEW and leaves staging alone
	RejectBuild(ctx context.Context, req *Request, build, branch, message string) (*RejectResult, error)
	// FailBuild rejects the build and rebuilds staging
	FailBuild(ctx context.Context, req *Request, build, branch, message string) (*RejectResult, error)
}

// ChangeManager registers changes and performs metadata-only transitions
// Thread-safe: All methods are safe for concurrent use
type ChangeManager interface {
	Change(ctx context.Context, number int) (*store.Change, error)
	ImportChange(ctx context.Context, req *Request, revision, branch string) (*store.Change, error)
	Review(ctx context.Context, req *Request, change int, label string, value int) (*store.Change, error)
	Defer(ctx context.Context, req *Request, change int, message string) (*store.Change, error)
	Reopen(ctx context.Context, req *Request, change int, message string) (*store.Change, error)
	Abandon(ctx context.Context, req *Request, change int, message string) (*store.Change, error)
	SetStatus(ctx context.Context, req *Request, change int, from, to store.Status, message string) (*store.Change, error)
}

// Engine is the staged-integration engine
type Engine interface {
	StagingManager
	BuildManager
	ChangeManager
}

// Options configures an engine
type Options struct {
	// TraversalLimit bounds staging and build walks; exceeding it is an error
	TraversalLimit int
	Footers        FooterPolicy
	Review         ReviewPolicy
	// IntegrationLabel is granted with IntegrationValue on every patch set the engine creates
	IntegrationLabel string
	IntegrationValue int
	// LockDir holds the cross-process branch lock files; empty locks in-process only
	LockDir string
	// LookupWorkers bounds concurrent store lookups while resolving commit ranges
	LookupWorkers int
	Notifier      events.Notifier
	Logger        *slog.Logger
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		TraversalLimit:   DefaultTraversalLimit,
		Footers:          DefaultFooterPolicy(),
		IntegrationLabel: "Verified",
		IntegrationValue: 1,
		LookupWorkers:    8,
	}
}

// engineImpl implements Engine over a repository and a change store
type engineImpl struct {
	repo   *git.Repo
	store  store.Store
	opts   Options
	locks  *LockSet
	logger *slog.Logger
}

// New creates an engine
func New(repo *git.Repo, st store.Store, opts Options) Engine {
	if opts.TraversalLimit <= 0 {
		opts.TraversalLimit = DefaultTraversalLimit
	}
	if opts.LookupWorkers <= 0 {
		opts.LookupWorkers = 8
	}
	if opts.Notifier == nil {
		opts.Notifier = events.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &engineImpl{
		repo:   repo,
		store:  st,
		opts:   opts,
		locks:  NewLockSet(opts.LockDir),
		logger: opts.Logger,
	}
}

func (e *engineImpl) rangeOptions() git.RangeOptions {
	return git.RangeOptions{FirstParent: true, Limit: e.opts.TraversalLimit}
}
