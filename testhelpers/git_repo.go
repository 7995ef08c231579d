package testhelpers

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitRepo represents a Git repository for testing purposes.
type GitRepo struct {
	Dir string
}

// NewGitRepo initializes a new Git repository in the specified directory using 'git init'.
// The initial branch is main.
func NewGitRepo(dir string) (*GitRepo, error) {
	cmd := exec.Command("git", "-c", "init.defaultBranch=main", "-c", "core.autocrlf=false", "init", dir, "-b", "main")
	cmd.Env = gitEnv()
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("failed to init repo: %w: %s", err, out)
	}

	repo := &GitRepo{Dir: dir}
	// Configure Git user (required for commits)
	if err := repo.RunGitCommand("config", "user.name", "Test User"); err != nil {
		return nil, err
	}
	if err := repo.RunGitCommand("config", "user.email", "test@example.com"); err != nil {
		return nil, err
	}
	return repo, nil
}

// gitEnv avoids reading the global git config and pins commit dates so hashes are stable
func gitEnv() []string {
	return append(os.Environ(),
		"GIT_CONFIG_GLOBAL=/dev/null",
		"GIT_AUTHOR_DATE=2024-01-01T00:00:00Z",
		"GIT_COMMITTER_DATE=2024-01-01T00:00:00Z",
	)
}

// RunGitCommand executes a git command and returns an error if it fails.
func (r *GitRepo) RunGitCommand(args ...string) error {
	_, err := r.RunGitCommandAndGetOutput(args...)
	return err
}

// RunGitCommandAndGetOutput executes a git command and returns its trimmed output.
func (r *GitRepo) RunGitCommandAndGetOutput(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = gitEnv()
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %v failed: %w: %s", args, err, stderr.String())
	}
	return strings.TrimSpace(string(output)), nil
}

// WriteFile writes a file relative to the repository root and stages it.
func (r *GitRepo) WriteFile(name, content string) error {
	path := filepath.Join(r.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return r.RunGitCommand("add", name)
}

// Commit commits the staged changes and returns the new commit id.
func (r *GitRepo) Commit(message string) (string, error) {
	if err := r.RunGitCommand("commit", "--allow-empty", "-q", "-m", message); err != nil {
		return "", err
	}
	return r.RevParse("HEAD")
}

// CommitFile writes a file and commits it.
func (r *GitRepo) CommitFile(name, content, message string) (string, error) {
	if err := r.WriteFile(name, content); err != nil {
		return "", err
	}
	return r.Commit(message)
}

// CommitChange commits a file with a message carrying a Change-Id footer derived from
// key and returns the commit id and the Change-Id.
func (r *GitRepo) CommitChange(key, name, content, subject string) (string, string, error) {
	changeID := ChangeID(key)
	message := fmt.Sprintf("%s\n\nReviewed-on: https://review.example.com/%s\nChange-Id: %s\n", subject, key, changeID)
	hash, err := r.CommitFile(name, content, message)
	return hash, changeID, err
}

// Checkout checks out a branch, commit or new branch (with -b in args).
func (r *GitRepo) Checkout(args ...string) error {
	return r.RunGitCommand(append([]string{"checkout", "-q"}, args...)...)
}

// RevParse resolves a revision to a commit id.
func (r *GitRepo) RevParse(rev string) (string, error) {
	return r.RunGitCommandAndGetOutput("rev-parse", rev)
}

// UpdateRef points ref at hash.
func (r *GitRepo) UpdateRef(ref, hash string) error {
	return r.RunGitCommand("update-ref", ref, hash)
}

// Parents returns the parent ids of a commit.
func (r *GitRepo) Parents(rev string) ([]string, error) {
	out, err := r.RunGitCommandAndGetOutput("rev-list", "--parents", "-n", "1", rev)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(out)
	return fields[1:], nil
}

// ShowFile returns a file's content at a revision.
func (r *GitRepo) ShowFile(rev, name string) (string, error) {
	return r.RunGitCommandAndGetOutput("show", rev+":"+name)
}

// ChangeID derives a stable Change-Id from a seed.
func ChangeID(seed string) string {
	sum := sha1.Sum([]byte(seed))
	return "I" + hex.EncodeToString(sum[:])
}
