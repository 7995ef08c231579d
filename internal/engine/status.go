package engine

import (
	"slices"

	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/store"
)

// transitions is the complete status machine
var transitions = map[store.Status][]store.Status{
	store.StatusNew:         {store.StatusStaged, store.StatusDeferred},
	store.StatusStaged:      {store.StatusIntegrating, store.StatusNew},
	store.StatusIntegrating: {store.StatusMerged, store.StatusNew},
	store.StatusAbandoned:   {store.StatusDeferred},
	store.StatusDeferred:    {store.StatusNew, store.StatusAbandoned},
}

// CanTransition reports whether the status machine allows from -> to
func CanTransition(from, to store.Status) bool {
	return slices.Contains(transitions[from], to)
}

// Message tags
const (
	TagCI      = "autogenerated:ci"
	TagMerged  = "autogenerated:merged"
	TagRevert  = "autogenerated:revert"
	TagStatus  = "autogenerated:status"
	TagCommand = "autogenerated:command"
)

// Transition moves one change to a new status inside a Batch
type Transition struct {
	Change int
	// From lists the statuses the change may be in; anything else is a StatusConflict
	From []store.Status
	To   store.Status
	// Message is appended to the change history when not empty
	Message string
	Tag     string
	// AllowLocked lets engine-driven transitions through a locked patch set
	AllowLocked bool
	// Commit, when it differs from the current patch set's, becomes a new patch set
	// carrying the old one's approvals
	Commit string
	// Build records the build snapshot the change joins
	Build string
	// ClearBuild detaches the change from its build
	ClearBuild bool
}

// applyTransition mutates c according to t on behalf of req
func (e *engineImpl) applyTransition(c *store.Change, t Transition, req *Request) error {
	if len(t.From) > 0 && !slices.Contains(t.From, c.Status) {
		return slerrors.NewStatusConflictError(c.Number, string(c.Status), string(t.To))
	}
	if c.Status != t.To && !CanTransition(c.Status, t.To) {
		return slerrors.NewStatusConflictError(c.Number, string(c.Status), string(t.To))
	}
	current := c.Current()
	if current == nil {
		return slerrors.New(slerrors.KindInvalidReference, "transition", "change %d has no patch set", c.Number)
	}
	if current.Locked && !t.AllowLocked {
		return slerrors.New(slerrors.KindPreconditionFailed, "transition",
			"patch set %d of change %d is locked", current.Number, c.Number)
	}

	if t.Commit != "" && t.Commit != current.Commit {
		e.associate(c, t.Commit, req)
	}

	c.Status = t.To
	switch {
	case t.Build != "":
		c.Build = t.Build
	case t.ClearBuild:
		c.Build = ""
	}
	if t.Message != "" {
		c.Messages = append(c.Messages, store.Message{
			PatchSet: c.CurrentPatchSet,
			Author:   req.Account(),
			Text:     t.Message,
			Tag:      t.Tag,
			Date:     req.Time,
		})
	}
	c.Updated = req.Time
	return nil
}

// associate records commit as a new current patch set. Every approval on the old patch
// set is copied, then the integration label is granted for the actor.
func (e *engineImpl) associate(c *store.Change, commit string, req *Request) {
	old := c.CurrentPatchSet
	next := 0
	for _, ps := range c.PatchSets {
		next = max(next, ps.Number)
	}
	next++

	c.PatchSets = append(c.PatchSets, store.PatchSet{
		Number:   next,
		Commit:   commit,
		Uploader: req.Account(),
		Created:  req.Time,
	})
	c.CurrentPatchSet = next

	for _, a := range c.ApprovalsFor(old) {
		a.PatchSet = next
		c.SetApproval(a)
	}
	if e.opts.IntegrationLabel != "" {
		c.SetApproval(store.Approval{
			PatchSet: next,
			Label:    e.opts.IntegrationLabel,
			Account:  req.Account(),
			Value:    e.opts.IntegrationValue,
			Granted:  req.Time,
		})
	}
}
