package git

import (
	"context"
	"strings"

	slerrors "stageline.dev/stageline/internal/errors"
)

// Ref namespaces. The short forms heads/<name>, staging/<name> and builds/<id> are
// shared with existing review-server tooling and must not change.
const (
	HeadsPrefix   = "refs/heads/"
	StagingPrefix = "refs/staging/"
	BuildsPrefix  = "refs/builds/"
)

// BranchRef returns the full ref of a branch given as name, heads/name or refs/heads/name
func BranchRef(name string) string {
	return HeadsPrefix + trimNamespace(name, "heads/")
}

// StagingRef returns the staging ref mirroring a branch
func StagingRef(branch string) string {
	return StagingPrefix + ShortBranchName(branch)
}

// BuildRef returns the full ref of a build snapshot given as id, builds/id or refs/builds/id
func BuildRef(id string) string {
	return BuildsPrefix + trimNamespace(id, "builds/")
}

// ShortBranchName strips any heads/ or staging/ namespace from a branch name
func ShortBranchName(name string) string {
	name = strings.TrimPrefix(name, "refs/")
	for _, ns := range []string{"heads/", "staging/"} {
		if strings.HasPrefix(name, ns) {
			return strings.TrimPrefix(name, ns)
		}
	}
	return name
}

// ShortBuildID strips any builds/ namespace from a build id
func ShortBuildID(id string) string {
	return trimNamespace(id, "builds/")
}

// IsStagingRef reports whether ref names a staging ref
func IsStagingRef(ref string) bool {
	return strings.HasPrefix(ref, StagingPrefix) || strings.HasPrefix(ref, "staging/")
}

// QualifyRef expands the short forms heads/, staging/ and builds/ to full refs and
// returns anything else unchanged.
func QualifyRef(ref string) string {
	if strings.HasPrefix(ref, "refs/") {
		return ref
	}
	for _, ns := range []string{"heads/", "staging/", "builds/"} {
		if strings.HasPrefix(ref, ns) {
			return "refs/" + ref
		}
	}
	return ref
}

func trimNamespace(name, ns string) string {
	name = strings.TrimPrefix(name, "refs/")
	return strings.TrimPrefix(name, ns)
}

// ValidateRefName checks a full ref name with git check-ref-format
func (r *Repo) ValidateRefName(ctx context.Context, ref string) error {
	if strings.TrimSpace(ref) == "" || strings.HasSuffix(ref, "/") {
		return slerrors.New(slerrors.KindInvalidInput, "validate ref", "invalid ref name %q", ref)
	}
	if _, err := r.runner.Run(ctx, "check-ref-format", ref); err != nil {
		return slerrors.Wrap(slerrors.KindInvalidInput, "validate ref", err, "invalid ref name %q", ref)
	}
	return nil
}

// DescribeRef returns a short human form of a full ref for messages
func DescribeRef(ref string) string {
	if strings.HasPrefix(ref, "refs/") {
		return strings.TrimPrefix(ref, "refs/")
	}
	return ref
}
