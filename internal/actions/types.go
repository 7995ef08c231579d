package actions

import (
	"stageline.dev/stageline/internal/engine"
	"stageline.dev/stageline/internal/store"
)

// Result is the rendered outcome of an operation
type Result struct {
	Operation string `json:"operation"`
	// Outcome is "merged" or "rejected" for approve-build
	Outcome string `json:"outcome,omitempty"`
	// Reason says why an approval degraded into a rejection
	Reason string `json:"reason,omitempty"`
	Branch string `json:"branch,omitempty"`
	Build  string `json:"build,omitempty"`
	Ref    string `json:"ref,omitempty"`
	// Tip is the ref's new target: staging for stage and rebuild, the build for new-build,
	// the branch for approve-build
	Tip  string `json:"tip,omitempty"`
	Mode string `json:"mode,omitempty"`

	Changes  []ChangeSummary `json:"changes,omitempty"`
	Reverted []int           `json:"reverted,omitempty"`
	Conflict []string        `json:"conflict,omitempty"`
	Staging  []StagingLine   `json:"staging,omitempty"`
	// Warning reports a staging rebuild failure after a build result was recorded
	Warning string `json:"warning,omitempty"`
}

// ChangeSummary is a change as reported to callers
type ChangeSummary struct {
	Number   int    `json:"number"`
	Branch   string `json:"branch"`
	Status   string `json:"status"`
	PatchSet int    `json:"patch_set"`
	Commit   string `json:"commit"`
	Subject  string `json:"subject"`
	Build    string `json:"build,omitempty"`
}

// StagingLine is one list-staging row
type StagingLine struct {
	Commit   string `json:"commit"`
	PatchSet int    `json:"patch_set,omitempty"`
	Change   int    `json:"change,omitempty"`
	Subject  string `json:"subject"`
}

func summarize(c *store.Change) ChangeSummary {
	s := ChangeSummary{
		Number:   c.Number,
		Branch:   c.Branch,
		Status:   string(c.Status),
		PatchSet: c.CurrentPatchSet,
		Subject:  c.Subject,
		Build:    c.Build,
	}
	if ps := c.Current(); ps != nil {
		s.Commit = ps.Commit
	}
	return s
}

func summarizeAll(changes []*store.Change) []ChangeSummary {
	out := make([]ChangeSummary, 0, len(changes))
	for _, c := range changes {
		out = append(out, summarize(c))
	}
	return out
}

func (r *Result) addRebuild(rebuild *engine.RebuildResult, rebuildErr error) {
	if rebuild != nil {
		r.Reverted = rebuild.Reverted
		if rebuild.Conflict != nil {
			r.Conflict = rebuild.Conflict.Paths
		}
	}
	if rebuildErr != nil {
		r.Warning = "staging rebuild failed: " + rebuildErr.Error()
	}
}
