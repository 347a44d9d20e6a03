// Package storetesting contains a conformance suite every store.IStore backend runs.
package storetesting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/project-dy/Essentials/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory creates a new, empty store for one subtest.
// The suite closes the store when the subtest ends.
type StoreFactory func(t *testing.T) store.IStore

// RunIStoreTests runs the conformance suite against the given backend.
func RunIStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("UpsertGet", func(t *testing.T) {
			testUpsertGet(t, open(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, open(t, factory))
		})

		t.Run("FindByAddress", func(t *testing.T) {
			testFindByAddress(t, open(t, factory))
		})

		t.Run("Bans", func(t *testing.T) {
			testBans(t, open(t, factory))
		})

		t.Run("WarpBlocks", func(t *testing.T) {
			testWarpBlocks(t, open(t, factory))
		})

		t.Run("Validation", func(t *testing.T) {
			testValidation(t, open(t, factory))
		})

		t.Run("ConcurrentUpserts", func(t *testing.T) {
			testConcurrentUpserts(t, open(t, factory))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, open(t, factory))
		})
	})
}

// NewPlayer returns a well-formed player record used across the tests.
func NewPlayer(id string, addresses ...string) store.PlayerRecord {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return store.PlayerRecord{
		ID:           id,
		Name:         "name-" + id,
		PasswordHash: "hash-" + id,
		JoinedAt:     now,
		LastSeenAt:   now.Add(time.Hour),
		JoinCount:    3,
		RegionCode:   "KOR",
		Addresses:    addresses,
	}
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func open(t *testing.T, factory StoreFactory) store.IStore {
	s := factory(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testUpsertGet(t *testing.T, s store.IStore) {
	ctx := context.Background()
	record := NewPlayer("p1", "10.0.0.1")

	require.NoError(t, s.UpsertPlayer(ctx, record))

	got, err := s.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, record.JoinedAt.Equal(got.JoinedAt))
	assert.True(t, record.LastSeenAt.Equal(got.LastSeenAt))
	got.JoinedAt, got.LastSeenAt = record.JoinedAt, record.LastSeenAt
	assert.Equal(t, record, got)

	// overwrite
	record.Name = "renamed"
	record.JoinCount++
	require.NoError(t, s.UpsertPlayer(ctx, record))
	got, err = s.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, uint64(4), got.JoinCount)

	_, err = s.GetPlayer(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDelete(t *testing.T, s store.IStore) {
	ctx := context.Background()
	require.NoError(t, s.UpsertPlayer(ctx, NewPlayer("p1", "10.0.0.1")))
	require.NoError(t, s.DeletePlayer(ctx, "p1"))

	_, err := s.GetPlayer(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	found, err := s.FindPlayersByAddress(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Empty(t, found)

	// deleting twice is fine
	assert.NoError(t, s.DeletePlayer(ctx, "p1"))
}

func testFindByAddress(t *testing.T, s store.IStore) {
	ctx := context.Background()
	require.NoError(t, s.UpsertPlayer(ctx, NewPlayer("a", "10.0.0.1", "10.0.0.2")))
	require.NoError(t, s.UpsertPlayer(ctx, NewPlayer("b", "10.0.0.2")))
	require.NoError(t, s.UpsertPlayer(ctx, NewPlayer("c", "10.0.0.3")))

	found, err := s.FindPlayersByAddress(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "a", found[0].ID)
	assert.Equal(t, "b", found[1].ID)

	found, err = s.FindPlayersByAddress(ctx, "192.168.1.1")
	require.NoError(t, err)
	assert.Empty(t, found)

	// an address dropped from a record no longer matches it
	updated := NewPlayer("a", "10.0.0.1")
	require.NoError(t, s.UpsertPlayer(ctx, updated))
	found, err = s.FindPlayersByAddress(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0].ID)
}

func testBans(t *testing.T, s store.IStore) {
	ctx := context.Background()
	bans, err := s.ListBans(ctx)
	require.NoError(t, err)
	assert.Empty(t, bans)

	require.NoError(t, s.UpsertBan(ctx, store.BanRecord{ID: "b2", Names: []string{"griefer"}}))
	require.NoError(t, s.UpsertBan(ctx, store.BanRecord{ID: "b1", Addresses: []string{"10.0.0.9"}}))

	bans, err = s.ListBans(ctx)
	require.NoError(t, err)
	require.Len(t, bans, 2)
	assert.Equal(t, "b1", bans[0].ID)
	assert.Equal(t, []string{"10.0.0.9"}, bans[0].Addresses)
	assert.Equal(t, "b2", bans[1].ID)
	assert.Equal(t, []string{"griefer"}, bans[1].Names)
}

func testWarpBlocks(t *testing.T, s store.IStore) {
	ctx := context.Background()
	w := store.WarpBlockRecord{MapName: "Ancient Caldera", X: 10, Y: 20, BlockName: "power-node"}
	require.NoError(t, s.UpsertWarpBlock(ctx, w))

	// same tile replaces
	w.BlockName = "battery"
	require.NoError(t, s.UpsertWarpBlock(ctx, w))
	require.NoError(t, s.UpsertWarpBlock(ctx, store.WarpBlockRecord{MapName: "Ancient Caldera", X: 11, Y: 20, BlockName: "router"}))

	warps, err := s.ListWarpBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, warps, 2)
	assert.Equal(t, "battery", warps[0].BlockName)
	assert.Equal(t, "router", warps[1].BlockName)
}

func testValidation(t *testing.T, s store.IStore) {
	ctx := context.Background()
	assert.Error(t, s.UpsertPlayer(ctx, store.PlayerRecord{Name: "no id"}))
	assert.Error(t, s.UpsertBan(ctx, store.BanRecord{}))
	assert.Error(t, s.UpsertWarpBlock(ctx, store.WarpBlockRecord{X: 1}))
}

func testConcurrentUpserts(t *testing.T, s store.IStore) {
	ctx := context.Background()
	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("w%d-p%d", w, i)
				if err := s.UpsertPlayer(ctx, NewPlayer(id, fmt.Sprintf("10.%d.0.%d", w, i))); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			id := fmt.Sprintf("w%d-p%d", w, i)
			got, err := s.GetPlayer(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "name-"+id, got.Name)
			assert.Equal(t, []string{fmt.Sprintf("10.%d.0.%d", w, i)}, got.Addresses)
		}
	}
}

func testInfo(t *testing.T, s store.IStore) {
	ctx := context.Background()
	require.NoError(t, s.UpsertPlayer(ctx, NewPlayer("p1")))
	require.NoError(t, s.UpsertBan(ctx, store.BanRecord{ID: "b1"}))

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, info.Backend)
	assert.Equal(t, 1, info.Players)
	assert.Equal(t, 1, info.Bans)
	assert.Equal(t, 0, info.WarpBlocks)
}
