package git_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/testhelpers"
)

func TestMergeTrees(t *testing.T) {
	ctx := context.Background()

	t.Run("clean cherry-pick merge writes a tree and a commit", func(t *testing.T) {
		scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
		a, err := scene.Repo.RevParse("HEAD")
		require.NoError(t, err)
		x, err := scene.Repo.CommitFile("x.txt", "x\n", "x")
		require.NoError(t, err)
		require.NoError(t, scene.Repo.Checkout("-b", "side", a))
		y, err := scene.Repo.CommitFile("y.txt", "y\n", "y")
		require.NoError(t, err)

		repo := openRepo(t, scene)
		tree, err := repo.MergeTrees(ctx, a, x, y)
		require.NoError(t, err)
		require.Len(t, tree, 40)

		when := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		hash, err := repo.WriteCommit(git.CommitSpec{
			Tree:      tree,
			Parents:   []string{x},
			Author:    git.Signature{Name: "Author", Email: "author@example.com", When: when},
			Committer: git.Signature{Name: "Bot", Email: "bot@example.com", When: when},
			Message:   "y\n",
		})
		require.NoError(t, err)

		parents, err := scene.Repo.Parents(hash)
		require.NoError(t, err)
		require.Equal(t, []string{x}, parents)

		content, err := scene.Repo.ShowFile(hash, "x.txt")
		require.NoError(t, err)
		require.Equal(t, "x", content)
		content, err = scene.Repo.ShowFile(hash, "y.txt")
		require.NoError(t, err)
		require.Equal(t, "y", content)
	})

	t.Run("conflict names the paths", func(t *testing.T) {
		scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
		a, err := scene.Repo.RevParse("HEAD")
		require.NoError(t, err)
		x, err := scene.Repo.CommitFile("README.md", "ours\n", "ours")
		require.NoError(t, err)
		require.NoError(t, scene.Repo.Checkout("-b", "side", a))
		y, err := scene.Repo.CommitFile("README.md", "theirs\n", "theirs")
		require.NoError(t, err)

		repo := openRepo(t, scene)
		_, err = repo.MergeTrees(ctx, a, x, y)
		require.ErrorIs(t, err, slerrors.ErrMergeConflict)

		var conflict *slerrors.MergeConflictError
		require.ErrorAs(t, err, &conflict)
		require.Equal(t, []string{"README.md"}, conflict.Paths)
		require.Equal(t, y, conflict.Source)
		require.Equal(t, x, conflict.Dest)
	})

	t.Run("unknown commit is not a conflict", func(t *testing.T) {
		scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
		repo := openRepo(t, scene)
		_, err := repo.MergeTrees(ctx, "", "HEAD", "1234567890123456789012345678901234567890")
		require.ErrorIs(t, err, slerrors.ErrInvalidReference)
		require.NotErrorIs(t, err, slerrors.ErrMergeConflict)

		_, err = repo.MergeTrees(ctx, "no-such-branch", "HEAD", "HEAD")
		require.ErrorIs(t, err, slerrors.ErrInvalidReference)
	})

	t.Run("root commit merges against an empty base", func(t *testing.T) {
		scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
		head, err := scene.Repo.RevParse("HEAD")
		require.NoError(t, err)
		require.NoError(t, scene.Repo.RunGitCommand("checkout", "--orphan", "other"))
		require.NoError(t, scene.Repo.RunGitCommand("rm", "-rf", "--cached", "."))
		orphan, err := scene.Repo.CommitFile("orphan.txt", "orphan\n", "orphan")
		require.NoError(t, err)

		repo := openRepo(t, scene)
		when := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		base, err := repo.WriteEmptyRoot(git.Signature{Name: "Bot", Email: "bot@example.com", When: when})
		require.NoError(t, err)

		tree, err := repo.MergeTrees(ctx, base, head, orphan)
		require.NoError(t, err)
		hash, err := repo.WriteCommit(git.CommitSpec{
			Tree:      tree,
			Parents:   []string{head},
			Author:    git.Signature{Name: "Bot", Email: "bot@example.com", When: when},
			Committer: git.Signature{Name: "Bot", Email: "bot@example.com", When: when},
			Message:   "orphan\n",
		})
		require.NoError(t, err)
		testhelpers.ExpectFile(t, scene.Repo, hash, "orphan.txt", "orphan")
		testhelpers.ExpectFile(t, scene.Repo, hash, "README.md", testhelpers.Must(scene.Repo.ShowFile(head, "README.md")))
	})
}

func TestRange(t *testing.T) {
	ctx := context.Background()
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	a, err := scene.Repo.RevParse("HEAD")
	require.NoError(t, err)
	var chain []string
	for _, name := range []string{"1", "2", "3"} {
		h, err := scene.Repo.CommitFile(name+".txt", name, "commit "+name)
		require.NoError(t, err)
		chain = append(chain, h)
	}
	repo := openRepo(t, scene)

	t.Run("oldest first, base excluded", func(t *testing.T) {
		hashes, err := repo.RangeHashes(ctx, chain[2], a, git.RangeOptions{})
		require.NoError(t, err)
		require.Equal(t, chain, hashes)

		commits, err := repo.Range(ctx, chain[2], a, git.RangeOptions{FirstParent: true})
		require.NoError(t, err)
		require.Len(t, commits, 3)
		require.Equal(t, "commit 1", commits[0].Subject())
	})

	t.Run("empty range", func(t *testing.T) {
		hashes, err := repo.RangeHashes(ctx, a, a, git.RangeOptions{})
		require.NoError(t, err)
		require.Empty(t, hashes)
	})

	t.Run("limit is a hard bound", func(t *testing.T) {
		_, err := repo.RangeHashes(ctx, chain[2], a, git.RangeOptions{Limit: 2})
		require.ErrorIs(t, err, slerrors.ErrTraversalBoundExceeded)

		hashes, err := repo.RangeHashes(ctx, chain[2], a, git.RangeOptions{Limit: 3})
		require.NoError(t, err)
		require.Len(t, hashes, 3)
	})

	t.Run("exclude off the tip's history drops shared ancestors", func(t *testing.T) {
		require.NoError(t, scene.Repo.Checkout("-b", "moved", chain[0]))
		moved, err := scene.Repo.CommitFile("moved.txt", "moved", "moved")
		require.NoError(t, err)

		hashes, err := repo.RangeHashes(ctx, chain[2], moved, git.RangeOptions{FirstParent: true})
		require.NoError(t, err)
		require.Equal(t, chain[1:], hashes)
	})
}
