package engine

import (
	"fmt"

	"stageline.dev/stageline/internal/store"
)

// Requirement asks for at least one vote of Min or more on Label. Any vote of -Min or
// less on the label vetoes the change.
type Requirement struct {
	Label string
	Min   int
}

// ReviewPolicy lists the requirements a change must meet before it can be staged
type ReviewPolicy struct {
	Requirements []Requirement
}

// Check returns a description of the first unmet requirement, or "" when all are met
func (p ReviewPolicy) Check(approvals []store.Approval) string {
	for _, req := range p.Requirements {
		satisfied := false
		for _, a := range approvals {
			if a.Label != req.Label {
				continue
			}
			if req.Min > 0 && a.Value <= -req.Min {
				return fmt.Sprintf("%s vetoed by %s", req.Label, a.Account)
			}
			if a.Value >= req.Min {
				satisfied = true
			}
		}
		if !satisfied {
			return fmt.Sprintf("needs %s %+d", req.Label, req.Min)
		}
	}
	return ""
}
