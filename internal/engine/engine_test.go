package engine_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stageline.dev/stageline/internal/engine"
	slerrors "stageline.dev/stageline/internal/errors"
	"stageline.dev/stageline/internal/events"
	"stageline.dev/stageline/internal/git"
	"stageline.dev/stageline/internal/store"
	"stageline.dev/stageline/testhelpers"
)

// fixture is a repository with a root commit on main, a memory store and an engine
type fixture struct {
	t      *testing.T
	ctx    context.Context
	scene  *testhelpers.Scene
	repo   *git.Repo
	store  store.Store
	events *events.Recorder
	eng    engine.Engine
	req    *engine.Request
	base   string
}

func newFixture(t *testing.T, configure ...func(*engine.Options)) *fixture {
	t.Helper()
	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	base, err := scene.Repo.RevParse("HEAD")
	require.NoError(t, err)
	// keep the work tree off main so the engine can move it freely
	require.NoError(t, scene.Repo.Checkout("--detach", base))

	ctx := context.Background()
	repo, err := git.Open(ctx, scene.Dir)
	require.NoError(t, err)

	rec := &events.Recorder{}
	opts := engine.DefaultOptions()
	opts.Notifier = rec
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.LockDir = t.TempDir()
	for _, fn := range configure {
		fn(&opts)
	}
	st := store.NewMemoryStore()

	return &fixture{
		t:      t,
		ctx:    ctx,
		scene:  scene,
		repo:   repo,
		store:  st,
		events: rec,
		eng:    engine.New(repo, st, opts),
		req: &engine.Request{
			ID:    "req-1",
			Actor: engine.Actor{Name: "CI Bot", Email: "ci@example.com"},
			Time:  time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		},
		base: base,
	}
}

// commitOn creates a commit with a Change-Id footer on top of parent
func (f *fixture) commitOn(parent, seed, file, content string) string {
	f.t.Helper()
	require.NoError(f.t, f.scene.Repo.Checkout("--detach", parent))
	hash, _, err := f.scene.Repo.CommitChange(seed, file, content, "Add "+file)
	require.NoError(f.t, err)
	return hash
}

// newChange registers a change whose commit sits directly on the base commit
func (f *fixture) newChange(seed, file, content string) *store.Change {
	f.t.Helper()
	return f.importCommit(f.commitOn(f.base, seed, file, content))
}

func (f *fixture) importCommit(hash string) *store.Change {
	f.t.Helper()
	c, err := f.eng.ImportChange(f.ctx, f.req, hash, "main")
	require.NoError(f.t, err)
	return c
}

func (f *fixture) stage(c *store.Change) *engine.StageResult {
	f.t.Helper()
	res, err := f.eng.Stage(f.ctx, f.req, c.Number, "")
	require.NoError(f.t, err)
	return res
}

func (f *fixture) ref(name string) string {
	f.t.Helper()
	hash, err := f.repo.ResolveRef(name)
	require.NoError(f.t, err)
	return hash
}

func (f *fixture) status(c *store.Change) store.Status {
	f.t.Helper()
	got, err := f.store.Get(f.ctx, c.Number)
	require.NoError(f.t, err)
	return got.Status
}

func (f *fixture) change(c *store.Change) *store.Change {
	f.t.Helper()
	got, err := f.store.Get(f.ctx, c.Number)
	require.NoError(f.t, err)
	return got
}

// moveMain advances main outside the engine with a commit adding file
func (f *fixture) moveMain(file, content string) string {
	f.t.Helper()
	require.NoError(f.t, f.scene.Repo.Checkout("--detach", f.ref("heads/main")))
	hash, err := f.scene.Repo.CommitFile(file, content, "External "+file)
	require.NoError(f.t, err)
	require.NoError(f.t, f.scene.Repo.UpdateRef("refs/heads/main", hash))
	return hash
}

func TestScenarioPassingBuild(t *testing.T) {
	f := newFixture(t)
	x := f.newChange("x", "x.txt", "x\n")
	y := f.newChange("y", "y.txt", "y\n")
	xCommit := x.Current().Commit

	t.Run("first change fast-forwards", func(t *testing.T) {
		res := f.stage(x)
		require.Equal(t, engine.ModeFastForward, res.Mode)
		require.Equal(t, xCommit, res.Staging)
		require.Equal(t, xCommit, f.ref("staging/main"))
		require.Equal(t, 1, res.Change.CurrentPatchSet)
		require.Equal(t, store.StatusStaged, res.Change.Status)
	})

	var yPrime string
	t.Run("second change is cherry-picked onto the first", func(t *testing.T) {
		res := f.stage(y)
		require.Equal(t, engine.ModeCherryPick, res.Mode)
		yPrime = res.Staging
		require.NotEqual(t, y.Current().Commit, yPrime)

		parents, err := f.scene.Repo.Parents(yPrime)
		require.NoError(t, err)
		require.Equal(t, []string{xCommit}, parents)

		content, err := f.scene.Repo.ShowFile(yPrime, "x.txt")
		require.NoError(t, err)
		require.Equal(t, "x", content)

		info, err := f.repo.Commit(yPrime)
		require.NoError(t, err)
		require.NotContains(t, info.Message, "Reviewed-on:")
		require.Equal(t, y.Key, info.ChangeKey())
		require.Equal(t, "Test User", info.Author.Name)
		require.Equal(t, "CI Bot", info.Committer.Name)

		staged := res.Change
		require.Equal(t, 2, staged.CurrentPatchSet)
		require.Equal(t, yPrime, staged.Current().Commit)
		verified := staged.ApprovalsFor(2)
		require.Len(t, verified, 1)
		require.Equal(t, "Verified", verified[0].Label)
		require.Equal(t, 1, verified[0].Value)
	})

	t.Run("new build snapshots staging", func(t *testing.T) {
		res, err := f.eng.CreateBuild(f.ctx, f.req, "main", "", "b1")
		require.NoError(t, err)
		require.Equal(t, yPrime, res.Tip)
		require.Equal(t, "refs/builds/b1", res.Ref)
		require.Equal(t, yPrime, f.ref("builds/b1"))
		require.Len(t, res.Changes, 2)
		require.Equal(t, x.Number, res.Changes[0].Number)
		for _, c := range []*store.Change{x, y} {
			got := f.change(c)
			require.Equal(t, store.StatusIntegrating, got.Status)
			require.Equal(t, "b1", got.Build)
		}
		created := f.events.OfType(events.BuildCreated)
		require.Len(t, created, 1)
		require.Len(t, created[0].Changes, 2)
	})

	t.Run("approve merges the build", func(t *testing.T) {
		res, err := f.eng.ApproveBuild(f.ctx, f.req, "b1", "main", "")
		require.NoError(t, err)
		require.Equal(t, engine.OutcomeMerged, res.Outcome)
		require.NoError(t, res.Reason)
		require.NoError(t, res.RebuildErr)
		require.Equal(t, f.base, res.OldTip)
		require.Equal(t, yPrime, res.NewTip)
		require.Equal(t, yPrime, f.ref("heads/main"))
		require.Equal(t, store.StatusMerged, f.status(x))
		require.Equal(t, store.StatusMerged, f.status(y))

		merged := f.events.OfType(events.ChangeMerged)
		require.Len(t, merged, 1)
		require.True(t, merged[0].Email)
		require.Len(t, merged[0].Changes, 2)

		last := f.change(y).Messages
		require.Equal(t, "Change merged into branch main", last[len(last)-1].Text)
	})

	t.Run("staging follows the branch", func(t *testing.T) {
		res, err := f.eng.RebuildStaging(f.ctx, f.req, "main")
		require.NoError(t, err)
		require.False(t, res.Changed())
		require.Equal(t, f.ref("heads/main"), f.ref("staging/main"))
	})

	t.Run("approving again finds nothing open", func(t *testing.T) {
		_, err := f.eng.ApproveBuild(f.ctx, f.req, "b1", "main", "")
		require.ErrorIs(t, err, slerrors.ErrPreconditionFailed)
	})
}

func TestScenarioFailingBuild(t *testing.T) {
	f := newFixture(t)
	x := f.newChange("x", "x.txt", "x\n")
	y := f.newChange("y", "y.txt", "y\n")
	f.stage(x)
	f.stage(y)
	_, err := f.eng.CreateBuild(f.ctx, f.req, "main", "staging/main", "b1")
	require.NoError(t, err)

	res, err := f.eng.FailBuild(f.ctx, f.req, "b1", "main", "")
	require.NoError(t, err)
	require.Len(t, res.Changes, 2)
	require.NoError(t, res.RebuildErr)
	require.True(t, res.Rebuild.Changed())

	require.Equal(t, f.base, f.ref("heads/main"))
	require.Equal(t, f.base, f.ref("staging/main"))
	for _, c := range []*store.Change{x, y} {
		got := f.change(c)
		require.Equal(t, store.StatusNew, got.Status)
		require.Empty(t, got.Build)
		require.Equal(t, "Change rejected for branch main", got.Messages[len(got.Messages)-1].Text)
	}

	failed := f.events.OfType(events.BuildFailed)
	require.Len(t, failed, 1)
	require.True(t, failed[0].Email)
	require.Equal(t, "b1", failed[0].Build)
}
