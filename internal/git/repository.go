package git

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	gogit "github.com/go-git/go-git/v5"
)

// Repo is the object store the staging engine works against. Reads go through
// go-git; merges and ref transactions shell out through the CommandRunner.
type Repo struct {
	repo   *gogit.Repository
	root   string
	gitDir string
	runner *CommandRunner

	// go-git packfile access is not safe for concurrent use
	mu sync.Mutex
}

// Open opens the git repository containing path
func Open(ctx context.Context, path string) (*Repo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(absPath, &gogit.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	runner := NewCommandRunner(absPath)
	if err := CheckVersion(ctx, runner); err != nil {
		return nil, err
	}
	gitDir, err := runner.Run(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return nil, fmt.Errorf("failed to locate git dir: %w", err)
	}

	root := absPath
	if top, err := runner.Run(ctx, "rev-parse", "--show-toplevel"); err == nil && top != "" {
		root = top
	}

	return &Repo{
		repo:   repo,
		root:   root,
		gitDir: gitDir,
		runner: runner,
	}, nil
}

// Root returns the work tree root, or the path the repository was opened with if bare
func (r *Repo) Root() string {
	return r.root
}

// GitDir returns the absolute path of the repository's git directory
func (r *Repo) GitDir() string {
	return r.gitDir
}

// Runner returns the command runner bound to this repository
func (r *Repo) Runner() *CommandRunner {
	return r.runner
}
