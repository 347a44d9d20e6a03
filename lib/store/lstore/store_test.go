package lstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/project-dy/Essentials/lib/store"
	"github.com/project-dy/Essentials/lib/store/storetesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	storetesting.RunIStoreTests(t, "LocalStore", func(t *testing.T) store.IStore {
		s, err := Open(filepath.Join(t.TempDir(), "database"), DefaultOptions())
		require.NoError(t, err)
		return s
	})
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "database")

	s, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	info, err := s.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, info.Players)
	assert.Equal(t, path, info.Location)
	assert.FileExists(t, path)
}

func TestCloseAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "database")

	s, err := Open(path, DefaultOptions())
	require.NoError(t, err)

	player := storetesting.NewPlayer("p1", "10.0.0.1")
	require.NoError(t, s.UpsertPlayer(ctx, player))
	require.NoError(t, s.UpsertPlayer(ctx, storetesting.NewPlayer("p2")))
	require.NoError(t, s.DeletePlayer(ctx, "p2"))
	require.NoError(t, s.UpsertBan(ctx, store.BanRecord{ID: "b1", Names: []string{"x"}}))
	require.NoError(t, s.UpsertWarpBlock(ctx, store.WarpBlockRecord{MapName: "m", X: 1, Y: 2, BlockName: "core"}))
	require.NoError(t, s.Close())

	// operations after close are rejected, a second close is fine
	_, err = s.GetPlayer(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.NoError(t, s.Close())

	reopened, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, player.Name, got.Name)
	assert.Equal(t, player.Addresses, got.Addresses)
	assert.True(t, player.JoinedAt.Equal(got.JoinedAt))

	_, err = reopened.GetPlayer(ctx, "p2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	bans, err := reopened.ListBans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.BanRecord{{ID: "b1", Names: []string{"x"}}}, bans)

	warps, err := reopened.ListWarpBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.WarpBlockRecord{{MapName: "m", X: 1, Y: 2, BlockName: "core"}}, warps)
}

func TestFlushWithoutChangesIsNoop(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "database")
	s, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertPlayer(ctx, storetesting.NewPlayer("p1")))
	require.NoError(t, s.Flush(ctx))

	s.mu.RLock()
	assert.Equal(t, s.version, s.flushed)
	s.mu.RUnlock()

	require.NoError(t, s.Flush(ctx))
}

func TestOpenLockedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database")
	first, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(path, Options{OpenTimeout: 100 * time.Millisecond})
	require.Error(t, err)

	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.RetCOpenFailed, storeErr.Code)
}

func TestOpenCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a bolt file"), 0o600))

	_, err := Open(path, Options{OpenTimeout: 100 * time.Millisecond})
	require.Error(t, err)

	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.RetCOpenFailed, storeErr.Code)
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open("  ", DefaultOptions())
	require.Error(t, err)
}
