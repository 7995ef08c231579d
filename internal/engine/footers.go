package engine

import (
	"regexp"
	"sort"
	"strings"

	"stageline.dev/stageline/internal/store"
)

// DefaultStripFooters are the review-server footers removed on integration
var DefaultStripFooters = []string{"Reviewed-on:", "Tested-by:", "Sanity-Review:", "ChangeLog:"}

// FooterPolicy rewrites commit messages of cherry-picked changes
type FooterPolicy struct {
	// Strip lists line prefixes to remove, matched case-insensitively
	Strip []string
	// ReviewedBy adds a Reviewed-by footer for each ReviewLabel vote at ReviewMax or above
	ReviewedBy  bool
	ReviewLabel string
	ReviewMax   int
}

// DefaultFooterPolicy strips the default footers and adds no Reviewed-by lines
func DefaultFooterPolicy() FooterPolicy {
	return FooterPolicy{
		Strip:       append([]string(nil), DefaultStripFooters...),
		ReviewLabel: "Code-Review",
		ReviewMax:   2,
	}
}

var footerLine = regexp.MustCompile(`^[A-Za-z0-9-]+:\s`)

// Apply returns message with the policy applied. Change-Id footers are never touched.
func (p FooterPolicy) Apply(message string, approvals []store.Approval) string {
	var lines []string
	for _, line := range strings.Split(strings.TrimRight(message, "\n \t"), "\n") {
		if p.stripped(line) {
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t"))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	if reviewers := p.reviewers(approvals); len(reviewers) > 0 {
		lines = insertFooters(lines, reviewers)
	}
	return strings.Join(lines, "\n") + "\n"
}

func (p FooterPolicy) stripped(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if strings.HasPrefix(lower, "change-id:") {
		return false
	}
	for _, prefix := range p.Strip {
		if prefix != "" && strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

func (p FooterPolicy) reviewers(approvals []store.Approval) []string {
	if !p.ReviewedBy {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, a := range approvals {
		if a.Label != p.ReviewLabel || a.Value < p.ReviewMax || seen[a.Account] {
			continue
		}
		seen[a.Account] = true
		out = append(out, "Reviewed-by: "+a.Account)
	}
	sort.Strings(out)
	return out
}

// insertFooters places footers before the Change-Id line of the trailing footer
// paragraph, or opens a new paragraph when the message has none.
func insertFooters(lines, footers []string) []string {
	start := len(lines)
	for start > 0 && lines[start-1] != "" && footerLine.MatchString(lines[start-1]) {
		start--
	}
	if start == len(lines) || start == 0 {
		return append(append(lines, ""), footers...)
	}

	at := len(lines)
	for i := start; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "Change-Id:") {
			at = i
			break
		}
	}
	out := make([]string, 0, len(lines)+len(footers))
	out = append(out, lines[:at]...)
	out = append(out, footers...)
	return append(out, lines[at:]...)
}
