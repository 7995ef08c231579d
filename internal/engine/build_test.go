package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stageline.dev/stageline/internal/engine"
	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/store"
	"stageline.dev/stageline/testhelpers"
)

func TestCreateBuild(t *testing.T) {
	t.Run("refuses an existing build id", func(t *testing.T) {
		f := newFixture(t)
		f.stage(f.newChange("x", "x.txt", "x\n"))
		_, err := f.eng.CreateBuild(f.ctx, f.req, "main", "", "b1")
		require.NoError(t, err)

		_, err = f.eng.CreateBuild(f.ctx, f.req, "main", "", "builds/b1")
		require.ErrorIs(t, err, slerrors.ErrPreconditionFailed)
		require.Contains(t, err.Error(), "already exists")
	})

	t.Run("refuses a missing staging ref", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.eng.CreateBuild(f.ctx, f.req, "main", "", "b1")
		require.ErrorIs(t, err, slerrors.ErrInvalidReference)
	})

	t.Run("refuses an empty staging range", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.scene.Repo.UpdateRef("refs/staging/main", f.base))

		_, err := f.eng.CreateBuild(f.ctx, f.req, "main", "", "b1")
		require.ErrorIs(t, err, slerrors.ErrPreconditionFailed)
		require.Contains(t, err.Error(), "no changes in staging branch")
		testhelpers.ExpectNoRef(t, f.scene.Repo, "refs/builds/b1")
	})

	t.Run("refuses an invalid build id", func(t *testing.T) {
		f := newFixture(t)
		f.stage(f.newChange("x", "x.txt", "x\n"))
		_, err := f.eng.CreateBuild(f.ctx, f.req, "main", "", "bad..id")
		require.ErrorIs(t, err, slerrors.ErrInvalidInput)
	})

	t.Run("carries integrating changes into a later build", func(t *testing.T) {
		f := newFixture(t)
		x := f.newChange("x", "x.txt", "x\n")
		y := f.newChange("y", "y.txt", "y\n")
		f.stage(x)
		_, err := f.eng.CreateBuild(f.ctx, f.req, "main", "", "b1")
		require.NoError(t, err)
		f.stage(y)

		res, err := f.eng.CreateBuild(f.ctx, f.req, "main", "", "b2")
		require.NoError(t, err)
		require.Len(t, res.Changes, 2)
		require.Equal(t, "b2", f.change(x).Build)
		require.Equal(t, store.StatusIntegrating, f.status(y))
	})
}

func TestApproveBuild(t *testing.T) {
	t.Run("merges only the changes in the build", func(t *testing.T) {
		f := newFixture(t)
		x := f.newChange("x", "x.txt", "x\n")
		z := f.newChange("z", "z.txt", "z\n")
		f.stage(x)
		_, err := f.eng.CreateBuild(f.ctx, f.req, "main", "", "b1")
		require.NoError(t, err)
		zStaged := f.stage(z)

		res, err := f.eng.ApproveBuild(f.ctx, f.req, "b1", "main", "Verified by CI")
		require.NoError(t, err)
		require.Equal(t, engine.OutcomeMerged, res.Outcome)
		require.Len(t, res.Changes, 1)
		require.Equal(t, x.Number, res.Changes[0].Number)
		require.Equal(t, "Verified by CI", res.Changes[0].Messages[len(res.Changes[0].Messages)-1].Text)

		require.Equal(t, x.Current().Commit, f.ref("heads/main"))
		require.Equal(t, store.StatusMerged, f.status(x))
		require.Equal(t, store.StatusStaged, f.status(z))
		require.Equal(t, zStaged.Staging, f.ref("staging/main"))
	})

	t.Run("degrades into a rejection when the branch moved", func(t *testing.T) {
		f := newFixture(t)
		x := f.newChange("x", "x.txt", "x\n")
		f.stage(x)
		_, err := f.eng.CreateBuild(f.ctx, f.req, "main", "", "b1")
		require.NoError(t, err)
		moved := f.moveMain("external.txt", "external\n")

		res, err := f.eng.ApproveBuild(f.ctx, f.req, "b1", "main", "")
		require.NoError(t, err)
		require.Equal(t, engine.OutcomeRejected, res.Outcome)
		require.ErrorIs(t, res.Reason, slerrors.ErrConcurrentBranchMove)
		require.Equal(t, moved, f.ref("heads/main"))
		require.Equal(t, store.StatusNew, f.status(x))
		require.Equal(t, engine.BranchMoveMessage, f.change(x).Messages[len(f.change(x).Messages)-1].Text)

		require.NoError(t, res.RebuildErr)
		testhelpers.ExpectRef(t, f.scene.Repo, "refs/staging/main", moved)
		testhelpers.ExpectLine(t, f.scene.Repo, "refs/heads/main", "refs/staging/main", nil)
	})

	t.Run("degrades when a change no longer matches the build", func(t *testing.T) {
		f := newFixture(t)
		x := f.newChange("x", "x.txt", "x\n")
		f.stage(x)
		_, err := f.eng.CreateBuild(f.ctx, f.req, "main", "", "b1")
		require.NoError(t, err)
		require.NoError(t, f.store.Update(f.ctx, []int{x.Number}, func(changes map[int]*store.Change) error {
			c := changes[x.Number]
			c.PatchSets = append(c.PatchSets, store.PatchSet{Number: 2, Commit: f.base})
			c.CurrentPatchSet = 2
			return nil
		}))

		res, err := f.eng.ApproveBuild(f.ctx, f.req, "b1", "main", "")
		require.NoError(t, err)
		require.Equal(t, engine.OutcomeRejected, res.Outcome)
		require.ErrorIs(t, res.Reason, slerrors.ErrPreconditionFailed)
		require.Equal(t, f.base, f.ref("heads/main"))
		require.Equal(t, store.StatusNew, f.status(x))
	})

	t.Run("unknown build", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.eng.ApproveBuild(f.ctx, f.req, "nope", "main", "")
		require.ErrorIs(t, err, slerrors.ErrInvalidReference)
	})
}

func TestRejectBuild(t *testing.T) {
	f := newFixture(t)
	x := f.newChange("x", "x.txt", "x\n")
	y := f.newChange("y", "y.txt", "y\n")
	f.stage(x)
	f.stage(y)
	_, err := f.eng.CreateBuild(f.ctx, f.req, "main", "", "b1")
	require.NoError(t, err)
	stagingBefore := f.ref("staging/main")

	res, err := f.eng.RejectBuild(f.ctx, f.req, "b1", "main", "Tests failed")
	require.NoError(t, err)
	require.Len(t, res.Changes, 2)
	require.Nil(t, res.Rebuild)

	require.Equal(t, f.base, f.ref("heads/main"))
	require.Equal(t, stagingBefore, f.ref("staging/main"))
	for _, c := range []*store.Change{x, y} {
		got := f.change(c)
		require.Equal(t, store.StatusNew, got.Status)
		require.Equal(t, "Tests failed", got.Messages[len(got.Messages)-1].Text)
	}

	_, err = f.eng.RejectBuild(f.ctx, f.req, "b1", "main", "")
	require.ErrorIs(t, err, slerrors.ErrPreconditionFailed)
	require.Contains(t, err.Error(), "no open changes in the build")
}
