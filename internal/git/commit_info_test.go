package git_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/testhelpers"
)

func openRepo(t *testing.T, scene *testhelpers.Scene) *git.Repo {
	t.Helper()
	repo, err := git.Open(context.Background(), scene.Dir)
	require.NoError(t, err)
	return repo
}

func TestCommit(t *testing.T) {
	t.Run("reads parents, subject and change key", func(t *testing.T) {
		scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
		base, err := scene.Repo.RevParse("HEAD")
		require.NoError(t, err)
		hash, changeID, err := scene.Repo.CommitChange("x", "x.txt", "x\n", "Add x")
		require.NoError(t, err)

		repo := openRepo(t, scene)
		info, err := repo.Commit(hash)
		require.NoError(t, err)
		require.Equal(t, hash, info.Hash)
		require.Equal(t, []string{base}, info.Parents)
		require.Equal(t, "Add x", info.Subject())
		require.Equal(t, changeID, info.ChangeKey())
		require.False(t, info.IsMerge())
		require.Equal(t, "Test User", info.Author.Name)
	})

	t.Run("missing commit is an invalid reference", func(t *testing.T) {
		scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
		repo := openRepo(t, scene)

		_, err := repo.Commit("1234567890123456789012345678901234567890")
		require.ErrorIs(t, err, slerrors.ErrInvalidReference)

		_, err = repo.Commit("not-a-hash")
		require.ErrorIs(t, err, slerrors.ErrInvalidReference)
	})
}

func TestResolveRef(t *testing.T) {
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	head, err := scene.Repo.RevParse("HEAD")
	require.NoError(t, err)
	require.NoError(t, scene.Repo.UpdateRef("refs/staging/main", head))

	repo := openRepo(t, scene)

	t.Run("short and full forms resolve", func(t *testing.T) {
		for _, ref := range []string{"heads/main", "refs/heads/main", "staging/main", "refs/staging/main"} {
			hash, err := repo.ResolveRef(ref)
			require.NoError(t, err, ref)
			require.Equal(t, head, hash, ref)
		}
	})

	t.Run("missing ref", func(t *testing.T) {
		_, err := repo.ResolveRef("builds/nope")
		require.ErrorIs(t, err, slerrors.ErrInvalidReference)

		ok, err := repo.RefExists("builds/nope")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("revision by commit id", func(t *testing.T) {
		hash, err := repo.ResolveRevision(head)
		require.NoError(t, err)
		require.Equal(t, head, hash)
	})
}

func TestChangeKey(t *testing.T) {
	t.Run("last footer wins", func(t *testing.T) {
		msg := "Subject\n\nChange-Id: I1111111111111111111111111111111111111111\n\nMore\n\nChange-Id: I2222222222222222222222222222222222222222\n"
		require.Equal(t, "I2222222222222222222222222222222222222222", git.ChangeKey(msg))
	})

	t.Run("no footer", func(t *testing.T) {
		require.Equal(t, "", git.ChangeKey("Merge \"Add x\"\n"))
	})

	t.Run("footer text inside a line is ignored", func(t *testing.T) {
		require.Equal(t, "", git.ChangeKey("Subject mentions Change-Id: Iabcdef in prose\n"))
	})
}

func TestAncestry(t *testing.T) {
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	a, err := scene.Repo.RevParse("HEAD")
	require.NoError(t, err)
	b, err := scene.Repo.CommitFile("b.txt", "b\n", "b")
	require.NoError(t, err)
	require.NoError(t, scene.Repo.Checkout("-b", "side", a))
	c, err := scene.Repo.CommitFile("c.txt", "c\n", "c")
	require.NoError(t, err)

	repo := openRepo(t, scene)

	ok, err := repo.IsAncestor(a, b)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.IsAncestor(b, c)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.IsAncestor(c, c)
	require.NoError(t, err)
	require.True(t, ok)

	bases, err := repo.MergeBases(b, c)
	require.NoError(t, err)
	require.Equal(t, []string{a}, bases)
}
