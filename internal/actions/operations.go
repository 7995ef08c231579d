package actions

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"stageline.dev/stageline/internal/engine"
	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/internal/runtime"
	"stageline.dev/stageline/internal/store"
)

// Operation is one stageline operation with its parameters
type Operation interface {
	// Name is the operation's command name
	Name() string
	execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error)
}

// Build results accepted by approve-build
const (
	ResultPass = "pass"
	ResultFail = "fail"
)

// Stage integrates a change into its branch's staging line
type Stage struct {
	Change int `json:"change" validate:"required,gt=0"`
	// Revision names the current patch set by number or commit; empty means current
	Revision string `json:"revision,omitempty"`
}

// Unstage takes a change back out of the staging line
type Unstage struct {
	Change   int    `json:"change" validate:"required,gt=0"`
	Revision string `json:"revision,omitempty"`
}

// NewBuild snapshots a staging line as a build
type NewBuild struct {
	Branch string `json:"branch" validate:"required"`
	// Staging defaults to staging/<branch>
	Staging string `json:"staging,omitempty"`
	Build   string `json:"build" validate:"required"`
}

// ApproveBuild applies a build result: pass merges the build, fail rejects it
type ApproveBuild struct {
	Build   string `json:"build" validate:"required"`
	Branch  string `json:"branch" validate:"required"`
	Result  string `json:"result" validate:"required,oneof=pass fail"`
	Message string `json:"message,omitempty"`
}

// RejectBuild reverts a build's open changes without touching staging
type RejectBuild struct {
	Build   string `json:"build" validate:"required"`
	Branch  string `json:"branch" validate:"required"`
	Message string `json:"message,omitempty"`
}

// RebuildStaging recomputes a branch's staging line
type RebuildStaging struct {
	Branch string `json:"branch" validate:"required"`
}

// ListStaging lists the commits reachable from Ref but not from Destination
type ListStaging struct {
	Ref         string `json:"ref" validate:"required"`
	Destination string `json:"destination" validate:"required"`
}

// Defer parks a NEW or ABANDONED change
type Defer struct {
	Change  int    `json:"change" validate:"required,gt=0"`
	Message string `json:"message,omitempty"`
}

// Reopen returns a DEFERRED change to NEW
type Reopen struct {
	Change  int    `json:"change" validate:"required,gt=0"`
	Message string `json:"message,omitempty"`
}

// Abandon abandons a DEFERRED change
type Abandon struct {
	Change  int    `json:"change" validate:"required,gt=0"`
	Message string `json:"message,omitempty"`
}

// ChangeStatus forces a legal status transition without touching refs
type ChangeStatus struct {
	Change  int    `json:"change" validate:"required,gt=0"`
	From    string `json:"from" validate:"required,status"`
	To      string `json:"to" validate:"required,status"`
	Message string `json:"message,omitempty"`
}

// ImportChange registers a commit as a change or a new patch set of one
type ImportChange struct {
	Revision string `json:"revision" validate:"required"`
	Branch   string `json:"branch" validate:"required"`
}

// Review records a vote on a change's current patch set
type Review struct {
	Change int    `json:"change" validate:"required,gt=0"`
	Label  string `json:"label" validate:"required"`
	Value  int    `json:"value" validate:"gte=-2,lte=2"`
}

// Name returns "stage"
func (Stage) Name() string { return "stage" }

// Name returns "unstage"
func (Unstage) Name() string { return "unstage" }

// Name returns "new-build"
func (NewBuild) Name() string { return "new-build" }

// Name returns "approve-build"
func (ApproveBuild) Name() string { return "approve-build" }

// Name returns "reject-build"
func (RejectBuild) Name() string { return "reject-build" }

// Name returns "rebuild-staging"
func (RebuildStaging) Name() string { return "rebuild-staging" }

// Name returns "list-staging"
func (ListStaging) Name() string { return "list-staging" }

// Name returns "defer"
func (Defer) Name() string { return "defer" }

// Name returns "reopen"
func (Reopen) Name() string { return "reopen" }

// Name returns "abandon"
func (Abandon) Name() string { return "abandon" }

// Name returns "change-status"
func (ChangeStatus) Name() string { return "change-status" }

// Name returns "import-change"
func (ImportChange) Name() string { return "import-change" }

// Name returns "review"
func (Review) Name() string { return "review" }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		_, err := store.ParseStatus(fl.Field().String())
		return err == nil
	})
	return v
}

// Execute validates op and runs it on behalf of the context's actor
func Execute(ctx context.Context, rt *runtime.Context, op Operation) (*Result, error) {
	return ExecuteRequest(ctx, rt, rt.NewRequest(), op)
}

// ExecuteRequest validates op and runs it as part of req
func ExecuteRequest(ctx context.Context, rt *runtime.Context, req *engine.Request, op Operation) (*Result, error) {
	if err := validate.Struct(op); err != nil {
		return nil, slerrors.Wrap(slerrors.KindInvalidInput, op.Name(), err, "invalid parameters")
	}
	rt.Splog.Debug("%s (request %s)", op.Name(), req.ID)

	res, err := op.execute(ctx, rt, req)
	if err != nil {
		return nil, err
	}
	res.Operation = op.Name()
	return res, nil
}

func (op Stage) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	res, err := rt.Engine.Stage(ctx, req, op.Change, op.Revision)
	if err != nil {
		return nil, err
	}
	return &Result{
		Branch:  res.Change.Branch,
		Ref:     git.StagingRef(res.Change.Branch),
		Tip:     res.Staging,
		Mode:    string(res.Mode),
		Changes: []ChangeSummary{summarize(res.Change)},
	}, nil
}

func (op Unstage) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	res, err := rt.Engine.Unstage(ctx, req, op.Change, op.Revision)
	if err != nil {
		return nil, err
	}
	out := &Result{
		Branch:  res.Change.Branch,
		Ref:     git.StagingRef(res.Change.Branch),
		Changes: []ChangeSummary{summarize(res.Change)},
	}
	if res.Rebuild != nil {
		out.Tip = res.Rebuild.NewTip
	}
	out.addRebuild(res.Rebuild, nil)
	return out, nil
}

func (op NewBuild) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	res, err := rt.Engine.CreateBuild(ctx, req, op.Branch, op.Staging, op.Build)
	if err != nil {
		return nil, err
	}
	return &Result{
		Branch:  git.ShortBranchName(op.Branch),
		Build:   res.Build,
		Ref:     res.Ref,
		Tip:     res.Tip,
		Changes: summarizeAll(res.Changes),
	}, nil
}

func (op ApproveBuild) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	if op.Result == ResultFail {
		res, err := rt.Engine.FailBuild(ctx, req, op.Build, op.Branch, op.Message)
		if err != nil {
			return nil, err
		}
		out := rejected(res)
		out.Outcome = string(engine.OutcomeRejected)
		return out, nil
	}

	res, err := rt.Engine.ApproveBuild(ctx, req, op.Build, op.Branch, op.Message)
	if err != nil {
		return nil, err
	}
	out := &Result{
		Outcome: string(res.Outcome),
		Branch:  res.Branch,
		Build:   res.Build,
		Ref:     git.BranchRef(res.Branch),
		Tip:     res.NewTip,
		Changes: summarizeAll(res.Changes),
	}
	if res.Reason != nil {
		out.Reason = res.Reason.Error()
	}
	out.addRebuild(res.Rebuild, res.RebuildErr)
	return out, nil
}

func (op RejectBuild) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	res, err := rt.Engine.RejectBuild(ctx, req, op.Build, op.Branch, op.Message)
	if err != nil {
		return nil, err
	}
	return rejected(res), nil
}

func rejected(res *engine.RejectResult) *Result {
	out := &Result{
		Branch:  res.Branch,
		Build:   res.Build,
		Changes: summarizeAll(res.Changes),
	}
	out.addRebuild(res.Rebuild, res.RebuildErr)
	return out
}

func (op RebuildStaging) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	res, err := rt.Engine.RebuildStaging(ctx, req, op.Branch)
	if err != nil {
		return nil, err
	}
	out := &Result{
		Branch: res.Branch,
		Ref:    git.StagingRef(res.Branch),
		Tip:    res.NewTip,
	}
	out.addRebuild(res, nil)
	return out, nil
}

func (op ListStaging) execute(ctx context.Context, rt *runtime.Context, _ *engine.Request) (*Result, error) {
	entries, err := rt.Engine.ListStaging(ctx, op.Ref, op.Destination)
	if err != nil {
		return nil, err
	}
	out := &Result{Ref: op.Ref, Staging: make([]StagingLine, 0, len(entries))}
	for _, e := range entries {
		line := StagingLine{Commit: e.Commit, Subject: e.Subject, PatchSet: e.PatchSet}
		if e.Change != nil {
			line.Change = e.Change.Number
		}
		out.Staging = append(out.Staging, line)
	}
	return out, nil
}

func changeResult(c *store.Change, err error) (*Result, error) {
	if err != nil {
		return nil, err
	}
	return &Result{Branch: c.Branch, Changes: []ChangeSummary{summarize(c)}}, nil
}

func (op Defer) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	return changeResult(rt.Engine.Defer(ctx, req, op.Change, op.Message))
}

func (op Reopen) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	return changeResult(rt.Engine.Reopen(ctx, req, op.Change, op.Message))
}

func (op Abandon) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	return changeResult(rt.Engine.Abandon(ctx, req, op.Change, op.Message))
}

func (op ChangeStatus) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	from, err := store.ParseStatus(op.From)
	if err != nil {
		return nil, slerrors.Wrap(slerrors.KindInvalidInput, op.Name(), err, "bad --from")
	}
	to, err := store.ParseStatus(op.To)
	if err != nil {
		return nil, slerrors.Wrap(slerrors.KindInvalidInput, op.Name(), err, "bad --to")
	}
	return changeResult(rt.Engine.SetStatus(ctx, req, op.Change, from, to, op.Message))
}

func (op ImportChange) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	return changeResult(rt.Engine.ImportChange(ctx, req, op.Revision, op.Branch))
}

func (op Review) execute(ctx context.Context, rt *runtime.Context, req *engine.Request) (*Result, error) {
	return changeResult(rt.Engine.Review(ctx, req, op.Change, op.Label, op.Value))
}

// String renders a one-line summary of r for the console
func (r *Result) String() string {
	switch r.Operation {
	case "stage":
		return fmt.Sprintf("Staged change %d on %s (%s)", r.Changes[0].Number, r.Ref, r.Mode)
	case "unstage":
		return fmt.Sprintf("Unstaged change %d from %s", r.Changes[0].Number, r.Ref)
	case "new-build":
		return fmt.Sprintf("Created build %s with %d change(s)", r.Build, len(r.Changes))
	case "approve-build":
		if r.Outcome == string(engine.OutcomeMerged) {
			return fmt.Sprintf("Merged build %s into %s", r.Build, r.Branch)
		}
		return fmt.Sprintf("Rejected build %s for %s", r.Build, r.Branch)
	case "reject-build":
		return fmt.Sprintf("Rejected build %s for %s", r.Build, r.Branch)
	case "rebuild-staging":
		return fmt.Sprintf("Rebuilt %s", r.Ref)
	default:
		if len(r.Changes) == 1 {
			c := r.Changes[0]
			return fmt.Sprintf("Change %d is %s", c.Number, c.Status)
		}
		return r.Operation
	}
}
