// Package testhelpers provides testing utilities for stageline,
// including a scene system, Git repository helpers, and custom assertions.
package testhelpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Must is a generic helper function that panics if err is not nil,
// otherwise returns the value. This is useful for test setup code
// where errors are not expected and should halt execution immediately.
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// ExpectRef asserts that ref points at hash.
func ExpectRef(t *testing.T, repo *GitRepo, ref, hash string) {
	t.Helper()

	actual, err := repo.RevParse(ref)
	require.NoError(t, err, "Failed to resolve %s", ref)
	require.Equal(t, hash, actual, "%s is at the wrong commit", ref)
}

// ExpectNoRef asserts that ref does not exist.
func ExpectNoRef(t *testing.T, repo *GitRepo, ref string) {
	t.Helper()

	_, err := repo.RunGitCommandAndGetOutput("rev-parse", "--verify", "--quiet", ref)
	require.Error(t, err, "%s exists", ref)
}

// ExpectLine asserts the subjects of the commits reachable from tip but not from base,
// oldest first. An empty expected list means tip and base hold the same history.
func ExpectLine(t *testing.T, repo *GitRepo, base, tip string, expected []string) {
	t.Helper()

	output, err := repo.RunGitCommandAndGetOutput("log", "--reverse", "--format=%s", base+".."+tip)
	require.NoError(t, err, "Failed to list commits")

	// Filter out empty strings
	actual := []string{}
	for _, s := range strings.Split(output, "\n") {
		if s = strings.TrimSpace(s); s != "" {
			actual = append(actual, s)
		}
	}
	if expected == nil {
		expected = []string{}
	}
	require.Equal(t, expected, actual, "Commits between %s and %s do not match", base, tip)
}

// ExpectFile asserts a file's content at rev.
func ExpectFile(t *testing.T, repo *GitRepo, rev, name, content string) {
	t.Helper()

	actual, err := repo.ShowFile(rev, name)
	require.NoError(t, err, "Failed to read %s at %s", name, rev)
	require.Equal(t, strings.TrimSpace(content), actual)
}
