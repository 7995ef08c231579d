package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"stageline.dev/stageline/internal/store"
)

func TestStoreContract(t *testing.T) {
	cases := []struct {
		name    string
		factory func(t *testing.T) store.Store
	}{
		{
			name: "memory",
			factory: func(t *testing.T) store.Store {
				return store.NewMemoryStore()
			},
		},
		{
			name: "badger",
			factory: func(t *testing.T) store.Store {
				st, err := store.OpenBadgerStore(store.InMemoryBadgerConfig())
				require.NoError(t, err)
				t.Cleanup(func() { _ = st.Close() })
				return st
			},
		},
		{
			name: "badger on disk",
			factory: func(t *testing.T) store.Store {
				st, err := store.OpenBadgerStore(store.DefaultBadgerConfig(t.TempDir()))
				require.NoError(t, err)
				t.Cleanup(func() { _ = st.Close() })
				return st
			},
		},
		{
			name: "redis",
			factory: func(t *testing.T) store.Store {
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = client.Close() })
				return store.NewRedisStore(client, "test")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runStoreContract(t, tc.factory)
		})
	}
}

func newChange(key, branch string) *store.Change {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &store.Change{
		Key:             key,
		Branch:          branch,
		Subject:         "subject " + key,
		Owner:           "Dev <dev@example.com>",
		Status:          store.StatusNew,
		CurrentPatchSet: 1,
		PatchSets:       []store.PatchSet{{Number: 1, Commit: "1111111111111111111111111111111111111111", Created: now}},
		Created:         now,
		Updated:         now,
	}
}

func runStoreContract(t *testing.T, factory func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("create assigns numbers and rejects duplicates", func(t *testing.T) {
		st := factory(t)
		c1, err := st.Create(ctx, newChange("I1", "main"))
		require.NoError(t, err)
		c2, err := st.Create(ctx, newChange("I2", "main"))
		require.NoError(t, err)
		require.NotZero(t, c1.Number)
		require.NotEqual(t, c1.Number, c2.Number)

		_, err = st.Create(ctx, newChange("I1", "main"))
		require.ErrorIs(t, err, store.ErrChangeExists)

		// the same Change-Id may exist once per branch
		_, err = st.Create(ctx, newChange("I1", "dev"))
		require.NoError(t, err)

		_, err = st.Create(ctx, &store.Change{Branch: "main"})
		require.Error(t, err)
	})

	t.Run("get and get by key", func(t *testing.T) {
		st := factory(t)
		created, err := st.Create(ctx, newChange("Iabc", "main"))
		require.NoError(t, err)

		got, err := st.Get(ctx, created.Number)
		require.NoError(t, err)
		require.Equal(t, "Iabc", got.Key)
		require.Equal(t, store.StatusNew, got.Status)
		require.Equal(t, "1111111111111111111111111111111111111111", got.Current().Commit)

		byKey, err := st.GetByKey(ctx, "main", "Iabc")
		require.NoError(t, err)
		require.Equal(t, created.Number, byKey.Number)

		_, err = st.Get(ctx, 999)
		require.ErrorIs(t, err, store.ErrChangeNotFound)
		_, err = st.GetByKey(ctx, "dev", "Iabc")
		require.ErrorIs(t, err, store.ErrChangeNotFound)
	})

	t.Run("list filters by branch and status", func(t *testing.T) {
		st := factory(t)
		var numbers []int
		for _, key := range []string{"Ia", "Ib", "Ic"} {
			c, err := st.Create(ctx, newChange(key, "main"))
			require.NoError(t, err)
			numbers = append(numbers, c.Number)
		}
		_, err := st.Create(ctx, newChange("Id", "dev"))
		require.NoError(t, err)

		require.NoError(t, st.Update(ctx, numbers[:2], func(changes map[int]*store.Change) error {
			for _, c := range changes {
				c.Status = store.StatusStaged
			}
			return nil
		}))

		staged, err := st.List(ctx, "main", store.StatusStaged)
		require.NoError(t, err)
		require.Len(t, staged, 2)
		require.Equal(t, numbers[0], staged[0].Number)
		require.Equal(t, numbers[1], staged[1].Number)

		all, err := st.List(ctx, "main")
		require.NoError(t, err)
		require.Len(t, all, 3)

		open, err := st.List(ctx, "main", store.StatusNew, store.StatusIntegrating)
		require.NoError(t, err)
		require.Len(t, open, 1)
		require.Equal(t, "Ic", open[0].Key)

		everywhere, err := st.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, everywhere, 4)
	})

	t.Run("update is all or nothing", func(t *testing.T) {
		st := factory(t)
		a, err := st.Create(ctx, newChange("Ia", "main"))
		require.NoError(t, err)
		b, err := st.Create(ctx, newChange("Ib", "main"))
		require.NoError(t, err)

		boom := errors.New("boom")
		err = st.Update(ctx, []int{a.Number, b.Number}, func(changes map[int]*store.Change) error {
			changes[a.Number].Status = store.StatusMerged
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := st.Get(ctx, a.Number)
		require.NoError(t, err)
		require.Equal(t, store.StatusNew, got.Status)

		err = st.Update(ctx, []int{a.Number, 4242}, func(map[int]*store.Change) error { return nil })
		require.ErrorIs(t, err, store.ErrChangeNotFound)

		err = st.Update(ctx, []int{a.Number}, func(changes map[int]*store.Change) error {
			changes[a.Number].Key = "Iother"
			return nil
		})
		require.ErrorIs(t, err, store.ErrIdentityChanged)

		require.NoError(t, st.Update(ctx, []int{a.Number, b.Number}, func(changes map[int]*store.Change) error {
			for _, c := range changes {
				c.Status = store.StatusStaged
				c.Messages = append(c.Messages, store.Message{PatchSet: 1, Author: "bot", Text: "Staged for CI"})
				c.SetApproval(store.Approval{PatchSet: 1, Label: "Code-Review", Account: "rev", Value: 2})
			}
			return nil
		}))
		got, err = st.Get(ctx, b.Number)
		require.NoError(t, err)
		require.Equal(t, store.StatusStaged, got.Status)
		require.Len(t, got.Messages, 1)
		require.Len(t, got.ApprovalsFor(1), 1)
	})

	t.Run("returned changes are copies", func(t *testing.T) {
		st := factory(t)
		c, err := st.Create(ctx, newChange("Ia", "main"))
		require.NoError(t, err)

		got, err := st.Get(ctx, c.Number)
		require.NoError(t, err)
		got.Status = store.StatusMerged
		got.PatchSets[0].Commit = "changed"

		again, err := st.Get(ctx, c.Number)
		require.NoError(t, err)
		require.Equal(t, store.StatusNew, again.Status)
		require.Equal(t, "1111111111111111111111111111111111111111", again.PatchSets[0].Commit)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, factory(t).Ping(ctx))
	})
}

func TestParseStatus(t *testing.T) {
	st, err := store.ParseStatus("integrating")
	require.NoError(t, err)
	require.Equal(t, store.StatusIntegrating, st)
	require.True(t, st.IsOpen())

	_, err = store.ParseStatus("submitted")
	require.Error(t, err)
}

func TestSetApprovalReplaces(t *testing.T) {
	c := newChange("Ia", "main")
	c.SetApproval(store.Approval{PatchSet: 1, Label: "Code-Review", Account: "rev", Value: 1})
	c.SetApproval(store.Approval{PatchSet: 1, Label: "Code-Review", Account: "rev", Value: 2})
	c.SetApproval(store.Approval{PatchSet: 2, Label: "Code-Review", Account: "rev", Value: -1})
	require.Len(t, c.Approvals, 2)
	require.Equal(t, 2, c.ApprovalsFor(1)[0].Value)
}
