package git_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/testhelpers"
)

func TestRefTransaction(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*testhelpers.Scene, *git.Repo, string, string) {
		scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
		a, err := scene.Repo.RevParse("HEAD")
		require.NoError(t, err)
		b, err := scene.Repo.CommitFile("b.txt", "b\n", "b")
		require.NoError(t, err)
		require.NoError(t, scene.Repo.UpdateRef("refs/heads/main", a))
		return scene, openRepo(t, scene), a, b
	}

	t.Run("commit applies every update", func(t *testing.T) {
		_, repo, a, b := setup(t)

		tx, err := repo.PrepareRefUpdates(ctx, []git.RefUpdate{
			{Ref: git.BranchRef("main"), New: b, Old: a},
			{Ref: git.StagingRef("main"), New: b},
		})
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		head, err := repo.ResolveRef("heads/main")
		require.NoError(t, err)
		require.Equal(t, b, head)
		staging, err := repo.ResolveRef("staging/main")
		require.NoError(t, err)
		require.Equal(t, b, staging)
	})

	t.Run("abort leaves refs untouched", func(t *testing.T) {
		_, repo, a, b := setup(t)

		tx, err := repo.PrepareRefUpdates(ctx, []git.RefUpdate{{Ref: git.BranchRef("main"), New: b, Old: a}})
		require.NoError(t, err)
		require.NoError(t, tx.Abort())
		require.NoError(t, tx.Abort())

		head, err := repo.ResolveRef("heads/main")
		require.NoError(t, err)
		require.Equal(t, a, head)
	})

	t.Run("stale expected value fails the whole transaction", func(t *testing.T) {
		_, repo, a, b := setup(t)

		_, err := repo.PrepareRefUpdates(ctx, []git.RefUpdate{
			{Ref: git.StagingRef("main"), New: a},
			{Ref: git.BranchRef("main"), New: a, Old: b},
		})
		require.ErrorIs(t, err, slerrors.ErrConcurrentBranchMove)

		exists, err := repo.RefExists("staging/main")
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("create fails when the ref exists", func(t *testing.T) {
		_, repo, a, b := setup(t)

		_, err := repo.PrepareRefUpdates(ctx, []git.RefUpdate{{Ref: git.BranchRef("main"), New: b}})
		require.ErrorIs(t, err, slerrors.ErrConcurrentBranchMove)

		head, err := repo.ResolveRef("heads/main")
		require.NoError(t, err)
		require.Equal(t, a, head)
	})

	t.Run("empty transaction is a no-op", func(t *testing.T) {
		_, repo, _, _ := setup(t)
		tx, err := repo.PrepareRefUpdates(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	})
}

func TestRefNames(t *testing.T) {
	require.Equal(t, "refs/heads/main", git.BranchRef("main"))
	require.Equal(t, "refs/heads/main", git.BranchRef("heads/main"))
	require.Equal(t, "refs/heads/dev/6.8", git.BranchRef("refs/heads/dev/6.8"))
	require.Equal(t, "refs/staging/main", git.StagingRef("heads/main"))
	require.Equal(t, "refs/staging/main", git.StagingRef("staging/main"))
	require.Equal(t, "refs/builds/b-1", git.BuildRef("b-1"))
	require.Equal(t, "refs/builds/b-1", git.BuildRef("builds/b-1"))
	require.Equal(t, "main", git.ShortBranchName("refs/heads/main"))
	require.Equal(t, "refs/staging/main", git.QualifyRef("staging/main"))
	require.Equal(t, "HEAD", git.QualifyRef("HEAD"))
	require.True(t, git.IsStagingRef("staging/main"))
	require.False(t, git.IsStagingRef("heads/main"))

	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	repo := openRepo(t, scene)
	require.NoError(t, repo.ValidateRefName(context.Background(), git.BuildRef("b-1")))
	require.ErrorIs(t, repo.ValidateRefName(context.Background(), git.BuildRef("bad..id")), slerrors.ErrInvalidInput)
}
