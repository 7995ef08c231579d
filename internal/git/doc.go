// Package git is the object store layer of the staging engine.
//
// It provides:
//   - Reads over the commit graph (refs, commits, footers, ancestry, ranges) via go-git
//   - Commit object writes via go-git
//   - Three-way tree merges via `git merge-tree --write-tree`
//   - Multi-ref compare-and-set transactions via `git update-ref --stdin`
//   - The heads/, staging/ and builds/ ref naming convention
//
// This package should be the only place where git commands are executed.
package git
