package store

import (
	"fmt"
	"strings"
	"time"
)

// Status is a change's position in the integration workflow
type Status string

// Change statuses
const (
	StatusNew         Status = "NEW"
	StatusStaged      Status = "STAGED"
	StatusIntegrating Status = "INTEGRATING"
	StatusMerged      Status = "MERGED"
	StatusAbandoned   Status = "ABANDONED"
	StatusDeferred    Status = "DEFERRED"
)

// AllStatuses lists every status in workflow order
var AllStatuses = []Status{StatusNew, StatusStaged, StatusIntegrating, StatusMerged, StatusAbandoned, StatusDeferred}

// ParseStatus accepts a status name in any case
func ParseStatus(s string) (Status, error) {
	upper := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range AllStatuses {
		if st == upper {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IsOpen reports whether a change in this status can still reach a branch
func (s Status) IsOpen() bool {
	return s == StatusNew || s == StatusStaged || s == StatusIntegrating
}

// PatchSet is one immutable revision of a change
type PatchSet struct {
	Number   int       `json:"number"`
	Commit   string    `json:"commit"`
	Uploader string    `json:"uploader"`
	Created  time.Time `json:"created"`
	// Locked patch sets reject user-initiated status transitions
	Locked bool `json:"locked,omitempty"`
}

// Approval is one account's vote on a label for a patch set
type Approval struct {
	PatchSet int       `json:"patchSet"`
	Label    string    `json:"label"`
	Account  string    `json:"account"`
	Value    int       `json:"value"`
	Granted  time.Time `json:"granted"`
}

// Message is an entry in a change's history
type Message struct {
	PatchSet int       `json:"patchSet"`
	Author   string    `json:"author"`
	Text     string    `json:"text"`
	Tag      string    `json:"tag,omitempty"`
	Date     time.Time `json:"date"`
}

// Change is the unit of review tracked by the store
type Change struct {
	Number          int        `json:"number"`
	Key             string     `json:"key"`
	Project         string     `json:"project,omitempty"`
	Branch          string     `json:"branch"`
	Subject         string     `json:"subject"`
	Owner           string     `json:"owner"`
	Status          Status     `json:"status"`
	CurrentPatchSet int        `json:"currentPatchSet"`
	PatchSets       []PatchSet `json:"patchSets"`
	Messages        []Message  `json:"messages,omitempty"`
	Approvals       []Approval `json:"approvals,omitempty"`
	// Build is the build snapshot the change was last added to
	Build   string    `json:"build,omitempty"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// Current returns the current patch set, or nil if the change has none
func (c *Change) Current() *PatchSet {
	return c.PatchSet(c.CurrentPatchSet)
}

// PatchSet returns the patch set with the given number
func (c *Change) PatchSet(number int) *PatchSet {
	for i := range c.PatchSets {
		if c.PatchSets[i].Number == number {
			return &c.PatchSets[i]
		}
	}
	return nil
}

// ApprovalsFor returns the approvals recorded on a patch set
func (c *Change) ApprovalsFor(patchSet int) []Approval {
	var out []Approval
	for _, a := range c.Approvals {
		if a.PatchSet == patchSet {
			out = append(out, a)
		}
	}
	return out
}

// SetApproval records or replaces an account's vote on a label for a patch set
func (c *Change) SetApproval(a Approval) {
	for i := range c.Approvals {
		existing := &c.Approvals[i]
		if existing.PatchSet == a.PatchSet && existing.Label == a.Label && existing.Account == a.Account {
			*existing = a
			return
		}
	}
	c.Approvals = append(c.Approvals, a)
}

// Clone returns a deep copy
func (c *Change) Clone() *Change {
	if c == nil {
		return nil
	}
	out := *c
	out.PatchSets = append([]PatchSet(nil), c.PatchSets...)
	out.Messages = append([]Message(nil), c.Messages...)
	out.Approvals = append([]Approval(nil), c.Approvals...)
	return &out
}

// String identifies the change in logs
func (c *Change) String() string {
	return fmt.Sprintf("%d (%s)", c.Number, c.Key)
}
