package git

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	slerrors "stageline.dev/stageline/internal/errors"
)

// ZeroHash is the all-zero object id git uses for "no value"
const ZeroHash = "0000000000000000000000000000000000000000"

// EmptyTreeHash is the id of the empty tree
const EmptyTreeHash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Signature identifies an author or committer
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// String formats the signature as "Name <email>"
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// CommitInfo is the engine's read-only view of a commit
type CommitInfo struct {
	Hash      string
	Tree      string
	Parents   []string
	Author    Signature
	Committer Signature
	Message   string
}

// IsMerge reports whether the commit has two or more parents
func (c *CommitInfo) IsMerge() bool {
	return len(c.Parents) > 1
}

// Subject returns the first line of the message
func (c *CommitInfo) Subject() string {
	return strings.TrimSpace(strings.SplitN(strings.TrimSpace(c.Message), "\n", 2)[0])
}

// ChangeKey returns the commit's Change-Id footer, or "" if it has none
func (c *CommitInfo) ChangeKey() string {
	return ChangeKey(c.Message)
}

var changeIDFooter = regexp.MustCompile(`(?m)^Change-Id:\s*(I[0-9a-fA-F]{4,40})\s*$`)

// ChangeKey returns the last Change-Id footer value in a commit message
func ChangeKey(message string) string {
	matches := changeIDFooter.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1][1]
}

// ResolveRef resolves a full or short ref to a commit hash. A missing ref is reported
// as an InvalidReference error.
func (r *Repo) ResolveRef(ref string) (string, error) {
	hash, ok, err := r.lookupRef(ref)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", slerrors.NewRefNotFoundError(QualifyRef(ref))
	}
	return hash, nil
}

// RefExists reports whether a ref exists
func (r *Repo) RefExists(ref string) (bool, error) {
	_, ok, err := r.lookupRef(ref)
	return ok, err
}

func (r *Repo) lookupRef(ref string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := plumbing.ReferenceName(QualifyRef(ref))
	resolved, err := r.repo.Reference(name, true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read ref %s: %w", name, err)
	}
	return resolved.Hash().String(), true, nil
}

// ResolveRevision resolves a ref or a commit id to a commit hash
func (r *Repo) ResolveRevision(rev string) (string, error) {
	if hash, ok, err := r.lookupRef(rev); err != nil {
		return "", err
	} else if ok {
		return hash, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", slerrors.Wrap(slerrors.KindInvalidReference, "resolve", err, "revision %s not found", rev)
	}
	return hash.String(), nil
}

// Commit reads a commit object
func (r *Repo) Commit(hash string) (*CommitInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.commitObject(hash)
	if err != nil {
		return nil, err
	}
	return toCommitInfo(c), nil
}

func (r *Repo) commitObject(hash string) (*object.Commit, error) {
	if !plumbing.IsHash(hash) {
		return nil, slerrors.New(slerrors.KindInvalidReference, "read commit", "%q is not a commit id", hash)
	}
	c, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, slerrors.Wrap(slerrors.KindInvalidReference, "read commit", err, "commit %s", hash)
	}
	return c, nil
}

func toCommitInfo(c *object.Commit) *CommitInfo {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return &CommitInfo{
		Hash:      c.Hash.String(),
		Tree:      c.TreeHash.String(),
		Parents:   parents,
		Author:    Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
		Message:   c.Message,
	}
}
