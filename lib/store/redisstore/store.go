package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/project-dy/Essentials/lib/logger"
	"github.com/project-dy/Essentials/lib/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"
)

var Logger = logger.GetLogger("redisstore")

// Store is a Redis-backed implementation of store.IStore
type Store struct {
	client *redis.Client
	prefix string
	closed *atomic.Bool
}

var _ store.IStore = (*Store)(nil)

// Open connects to the server named by cfg.URL and verifies the connection.
// Failures are returned as *store.Error with code RetCOpenFailed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, store.NewError(store.RetCOpenFailed, fmt.Sprintf("parse redis url: %v", err))
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}

	client := redis.NewClient(opts)

	// Verify connection
	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, store.NewError(store.RetCOpenFailed, fmt.Sprintf("connect to %s: %v", opts.Addr, err))
	}

	Logger.Infof("connected to redis store at %s", opts.Addr)
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient creates a store around an existing client (used by tests)
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultConfig().KeyPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		closed: atomic.NewBool(false),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) GetPlayer(ctx context.Context, id string) (store.PlayerRecord, error) {
	if s.closed.Load() {
		return store.PlayerRecord{}, store.ErrClosed
	}
	record, err := s.getPlayer(ctx, id)
	if errors.Is(err, redis.Nil) {
		return store.PlayerRecord{}, store.NotFound("player", id)
	}
	if err != nil {
		return store.PlayerRecord{}, wrap("get player", err)
	}
	return record, nil
}

func (s *Store) FindPlayersByAddress(ctx context.Context, address string) ([]store.PlayerRecord, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	ids, err := s.client.SMembers(ctx, s.addressIndexKey(address)).Result()
	if err != nil {
		return nil, wrap("read address index", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.playerKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrap("read players", err)
	}

	var records []store.PlayerRecord
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// index entry without a record, removed concurrently
			continue
		}
		var record store.PlayerRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, wrap("decode player", err)
		}
		if record.HasAddress(address) {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (s *Store) UpsertPlayer(ctx context.Context, record store.PlayerRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if s.closed.Load() {
		return store.ErrClosed
	}

	data, err := json.Marshal(record)
	if err != nil {
		return wrap("encode player", err)
	}

	// addresses the previous version had but this one dropped
	var stale []string
	previous, err := s.getPlayer(ctx, record.ID)
	switch {
	case err == nil:
		for _, address := range previous.Addresses {
			if !slices.Contains(record.Addresses, address) {
				stale = append(stale, address)
			}
		}
	case !errors.Is(err, redis.Nil):
		return wrap("read previous player", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.playerKey(record.ID), data, 0)
		pipe.SAdd(ctx, s.playersIndexKey(), record.ID)
		for _, address := range stale {
			pipe.SRem(ctx, s.addressIndexKey(address), record.ID)
		}
		for _, address := range record.Addresses {
			pipe.SAdd(ctx, s.addressIndexKey(address), record.ID)
		}
		return nil
	})
	return wrap("upsert player", err)
}

func (s *Store) DeletePlayer(ctx context.Context, id string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	previous, err := s.getPlayer(ctx, id)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return wrap("read player", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.playerKey(id))
		pipe.SRem(ctx, s.playersIndexKey(), id)
		for _, address := range previous.Addresses {
			pipe.SRem(ctx, s.addressIndexKey(address), id)
		}
		return nil
	})
	return wrap("delete player", err)
}

func (s *Store) UpsertBan(ctx context.Context, record store.BanRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if s.closed.Load() {
		return store.ErrClosed
	}
	data, err := json.Marshal(record)
	if err != nil {
		return wrap("encode ban", err)
	}
	return wrap("upsert ban", s.client.HSet(ctx, s.bansKey(), record.ID, data).Err())
}

func (s *Store) ListBans(ctx context.Context) ([]store.BanRecord, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	values, err := s.client.HGetAll(ctx, s.bansKey()).Result()
	if err != nil {
		return nil, wrap("list bans", err)
	}
	records := make([]store.BanRecord, 0, len(values))
	for _, raw := range values {
		var record store.BanRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, wrap("decode ban", err)
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (s *Store) UpsertWarpBlock(ctx context.Context, record store.WarpBlockRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if s.closed.Load() {
		return store.ErrClosed
	}
	data, err := json.Marshal(record)
	if err != nil {
		return wrap("encode warp block", err)
	}
	return wrap("upsert warp block", s.client.HSet(ctx, s.warpsKey(), record.Key(), data).Err())
}

func (s *Store) ListWarpBlocks(ctx context.Context) ([]store.WarpBlockRecord, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	values, err := s.client.HGetAll(ctx, s.warpsKey()).Result()
	if err != nil {
		return nil, wrap("list warp blocks", err)
	}
	records := make([]store.WarpBlockRecord, 0, len(values))
	for _, raw := range values {
		var record store.WarpBlockRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, wrap("decode warp block", err)
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key() < records[j].Key() })
	return records, nil
}

// Flush has nothing to persist; the server owns durability.
func (s *Store) Flush(_ context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Info(ctx context.Context) (store.Info, error) {
	if s.closed.Load() {
		return store.Info{}, store.ErrClosed
	}
	pipe := s.client.Pipeline()
	players := pipe.SCard(ctx, s.playersIndexKey())
	bans := pipe.HLen(ctx, s.bansKey())
	warps := pipe.HLen(ctx, s.warpsKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return store.Info{}, wrap("read counts", err)
	}
	return store.Info{
		Backend:    "redis",
		Location:   s.client.Options().Addr,
		Players:    int(players.Val()),
		Bans:       int(bans.Val()),
		WarpBlocks: int(warps.Val()),
	}, nil
}

// Close releases the connection pool. Closing twice is a no-op.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.Close()
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// getPlayer returns redis.Nil for a missing record
func (s *Store) getPlayer(ctx context.Context, id string) (store.PlayerRecord, error) {
	data, err := s.client.Get(ctx, s.playerKey(id)).Bytes()
	if err != nil {
		return store.PlayerRecord{}, err
	}
	var record store.PlayerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return store.PlayerRecord{}, err
	}
	return record, nil
}

// wrap converts a redis failure into a *store.Error. A nil err stays nil.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.ErrClosed) {
		return store.ErrClosed
	}
	return store.NewError(store.RetCInternalError, fmt.Sprintf("%s: %v", op, err))
}
