package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/project-dy/Essentials/lib/store"
	"github.com/project-dy/Essentials/lib/store/storetesting"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func Test(t *testing.T) {
	storetesting.RunIStoreTests(t, "RedisStore", func(t *testing.T) store.IStore {
		mini := miniredis.RunT(t)
		cfg := DefaultConfig()
		cfg.URL = "redis://" + mini.Addr()
		s, err := Open(context.Background(), cfg)
		require.NoError(t, err)
		return s
	})
}

type StoreSuite struct {
	suite.Suite
	mini  *miniredis.Miniredis
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())

	client := redis.NewClient(&redis.Options{
		Addr: s.mini.Addr(),
	})

	s.store = NewWithClient(client, "test")
	s.ctx = context.Background()
}

func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *StoreSuite) TestKeysUsePrefix() {
	s.Require().NoError(s.store.UpsertPlayer(s.ctx, storetesting.NewPlayer("p1", "10.0.0.1")))

	s.True(s.mini.Exists("test:player:p1"))
	members, err := s.mini.Members("test:idx:addr:10.0.0.1")
	s.Require().NoError(err)
	s.Equal([]string{"p1"}, members)
}

func (s *StoreSuite) TestStaleAddressIndexRemoved() {
	s.Require().NoError(s.store.UpsertPlayer(s.ctx, storetesting.NewPlayer("p1", "10.0.0.1", "10.0.0.2")))
	s.Require().NoError(s.store.UpsertPlayer(s.ctx, storetesting.NewPlayer("p1", "10.0.0.2")))

	s.False(s.mini.Exists("test:idx:addr:10.0.0.1"))
}

func (s *StoreSuite) TestDeleteClearsIndexes() {
	s.Require().NoError(s.store.UpsertPlayer(s.ctx, storetesting.NewPlayer("p1", "10.0.0.1")))
	s.Require().NoError(s.store.DeletePlayer(s.ctx, "p1"))

	s.False(s.mini.Exists("test:player:p1"))
	s.False(s.mini.Exists("test:idx:addr:10.0.0.1"))
	s.False(s.mini.Exists("test:idx:players"))
}

func (s *StoreSuite) TestClosed() {
	s.Require().NoError(s.store.Close())
	s.Require().NoError(s.store.Close())

	_, err := s.store.GetPlayer(s.ctx, "p1")
	s.ErrorIs(err, store.ErrClosed)
	s.ErrorIs(s.store.Flush(s.ctx), store.ErrClosed)
}

func (s *StoreSuite) TestServerDown() {
	s.mini.Close()

	_, err := s.store.GetPlayer(s.ctx, "p1")
	s.Require().Error(err)
	var storeErr *store.Error
	s.Require().ErrorAs(err, &storeErr)
	s.Equal(store.RetCInternalError, storeErr.Code)
}

func TestOpenUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "redis://127.0.0.1:1"
	_, err := Open(context.Background(), cfg)
	require.Error(t, err)

	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, store.RetCOpenFailed, storeErr.Code)
}

func TestOpenBadURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "http://nope"
	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
}
