package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stageline.dev/stageline/internal/engine"
	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/events"
	"stageline.dev/stageline/internal/store"
	"stageline.dev/stageline/testhelpers"
)

func TestRebuildStaging(t *testing.T) {
	t.Run("conflict reverts the change and everything after it", func(t *testing.T) {
		f := newFixture(t)
		c1 := f.newChange("c1", "a.txt", "a\n")
		c2 := f.newChange("c2", "b.txt", "b\n")
		c3 := f.newChange("c3", "c.txt", "c\n")
		c4 := f.newChange("c4", "d.txt", "d\n")
		for _, c := range []*store.Change{c1, c2, c3, c4} {
			f.stage(c)
		}
		moved := f.moveMain("c.txt", "other\n")

		res, err := f.eng.RebuildStaging(f.ctx, f.req, "main")
		require.NoError(t, err)
		require.Equal(t, []int{c1.Number, c2.Number}, res.Applied)
		require.Equal(t, []int{c3.Number, c4.Number}, res.Reverted)
		require.NotNil(t, res.Conflict)
		require.Equal(t, []string{"c.txt"}, res.Conflict.Paths)

		tip := f.ref("staging/main")
		require.Equal(t, res.NewTip, tip)
		require.Equal(t, tip, f.change(c2).Current().Commit)
		testhelpers.ExpectFile(t, f.scene.Repo, tip, "c.txt", "other")
		testhelpers.ExpectLine(t, f.scene.Repo, "refs/heads/main", "refs/staging/main", []string{"Add a.txt", "Add b.txt"})
		parents, err := f.scene.Repo.Parents(f.change(c1).Current().Commit)
		require.NoError(t, err)
		require.Equal(t, []string{moved}, parents)

		require.Equal(t, store.StatusStaged, f.status(c1))
		require.Equal(t, store.StatusStaged, f.status(c2))
		for _, c := range []*store.Change{c3, c4} {
			got := f.change(c)
			require.Equal(t, store.StatusNew, got.Status)
			require.Equal(t, engine.ConflictRevertMessage, got.Messages[len(got.Messages)-1].Text)
		}

		reverted := f.events.OfType(events.ChangeReverted)
		require.Len(t, reverted, 1)
		require.Len(t, reverted[0].Changes, 2)
	})

	t.Run("is deterministic", func(t *testing.T) {
		f := newFixture(t)
		x := f.newChange("x", "x.txt", "x\n")
		y := f.newChange("y", "y.txt", "y\n")
		f.stage(x)
		f.stage(y)
		f.moveMain("external.txt", "e\n")

		first, err := f.eng.RebuildStaging(f.ctx, f.req, "main")
		require.NoError(t, err)
		require.True(t, first.Changed())

		second, err := f.eng.RebuildStaging(f.ctx, f.req, "main")
		require.NoError(t, err)
		require.False(t, second.Changed())
		require.Equal(t, first.NewTip, second.NewTip)
		require.Equal(t, []int{x.Number, y.Number}, second.Applied)

		// replaying the same inputs from the old line gives the same commits
		other := newFixture(t)
		ox := other.newChange("x", "x.txt", "x\n")
		oy := other.newChange("y", "y.txt", "y\n")
		other.stage(ox)
		other.stage(oy)
		other.moveMain("external.txt", "e\n")
		replayed, err := other.eng.RebuildStaging(other.ctx, other.req, "main")
		require.NoError(t, err)
		require.Equal(t, first.NewTip, replayed.NewTip)
	})

	t.Run("integrating changes go first", func(t *testing.T) {
		f := newFixture(t)
		x := f.newChange("x", "x.txt", "x\n")
		y := f.newChange("y", "y.txt", "y\n")
		f.stage(x)
		f.stage(y)
		// y ends up integrating while x is only staged
		require.NoError(t, f.store.Update(f.ctx, []int{y.Number}, func(changes map[int]*store.Change) error {
			changes[y.Number].Status = store.StatusIntegrating
			return nil
		}))

		res, err := f.eng.RebuildStaging(f.ctx, f.req, "main")
		require.NoError(t, err)
		require.Equal(t, []int{y.Number, x.Number}, res.Applied)
		parents, err := f.scene.Repo.Parents(f.change(y).Current().Commit)
		require.NoError(t, err)
		require.Equal(t, []string{f.base}, parents)
	})

	t.Run("bounded walk fails loudly", func(t *testing.T) {
		f := newFixture(t, func(o *engine.Options) { o.TraversalLimit = 1 })
		f.stage(f.newChange("x", "x.txt", "x\n"))
		f.stage(f.newChange("y", "y.txt", "y\n"))
		tip := f.ref("staging/main")

		_, err := f.eng.RebuildStaging(f.ctx, f.req, "main")
		require.ErrorIs(t, err, slerrors.ErrTraversalBoundExceeded)
		require.Equal(t, tip, f.ref("staging/main"))
	})

	t.Run("missing staging ref", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.eng.RebuildStaging(f.ctx, f.req, "main")
		require.ErrorIs(t, err, slerrors.ErrInvalidReference)
	})
}

func TestListStaging(t *testing.T) {
	f := newFixture(t)
	x := f.newChange("x", "x.txt", "x\n")
	y := f.newChange("y", "y.txt", "y\n")
	f.stage(x)
	f.stage(y)

	entries, err := f.eng.ListStaging(f.ctx, "staging/main", "heads/main")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, x.Current().Commit, entries[0].Commit)
	require.Equal(t, x.Number, entries[0].Change.Number)
	require.Equal(t, 1, entries[0].PatchSet)
	require.Equal(t, "Add y.txt", entries[1].Subject)
	require.Equal(t, 2, entries[1].PatchSet)

	_, err = f.eng.ListStaging(f.ctx, "staging/missing", "heads/main")
	require.ErrorIs(t, err, slerrors.ErrInvalidReference)
	_, err = f.eng.ListStaging(f.ctx, "staging/main", "heads/missing")
	require.ErrorIs(t, err, slerrors.ErrInvalidReference)
}
