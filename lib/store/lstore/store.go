package lstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/project-dy/Essentials/lib/logger"
	"github.com/project-dy/Essentials/lib/store"
	"go.etcd.io/bbolt"
	"go.uber.org/multierr"
)

var Logger = logger.GetLogger("store")

const (
	fileMode os.FileMode = 0o600
	dirMode  os.FileMode = 0o755
)

// Options configures how the backing file is opened.
type Options struct {
	// OpenTimeout bounds the wait for the file lock. Another process holding the
	// same file makes Open fail after this duration instead of blocking forever.
	OpenTimeout time.Duration
}

// DefaultOptions returns the options used by the node.
func DefaultOptions() Options {
	return Options{OpenTimeout: time.Second}
}

// Store is the embedded, file-backed store. All records live in memory and
// are written to a bbolt file on Flush and Close.
type Store struct {
	path string
	db   *bbolt.DB

	// mu guards every table and the version counters
	mu      sync.RWMutex
	players map[string]store.PlayerRecord
	bans    map[string]store.BanRecord
	warps   map[string]store.WarpBlockRecord
	version uint64 // incremented on every mutation
	flushed uint64 // version written by the last successful flush
	closed  bool

	// flushMu orders concurrent flushes so an older snapshot never overwrites a newer one
	flushMu sync.Mutex
}

var _ store.IStore = (*Store)(nil)

// Open loads the store from path. A missing file is created empty.
// Any failure is returned as a *store.Error with code RetCOpenFailed.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, store.NewError(store.RetCOpenFailed, "store path is required")
	}
	cleanPath := filepath.Clean(path)

	if err := os.MkdirAll(filepath.Dir(cleanPath), dirMode); err != nil {
		return nil, store.NewError(store.RetCOpenFailed, fmt.Sprintf("create directory for %s: %v", cleanPath, err))
	}

	db, err := bbolt.Open(cleanPath, fileMode, &bbolt.Options{Timeout: opts.OpenTimeout})
	if err != nil {
		return nil, store.NewError(store.RetCOpenFailed, fmt.Sprintf("open %s: %v", cleanPath, err))
	}

	s := &Store{
		path:    cleanPath,
		db:      db,
		players: make(map[string]store.PlayerRecord),
		bans:    make(map[string]store.BanRecord),
		warps:   make(map[string]store.WarpBlockRecord),
	}

	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, store.NewError(store.RetCOpenFailed, fmt.Sprintf("load %s: %v", cleanPath, err))
	}

	Logger.Infof("opened local store %s (%d players, %d bans, %d warp blocks)",
		cleanPath, len(s.players), len(s.bans), len(s.warps))
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) GetPlayer(_ context.Context, id string) (store.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.PlayerRecord{}, store.ErrClosed
	}
	record, ok := s.players[id]
	if !ok {
		return store.PlayerRecord{}, store.NotFound("player", id)
	}
	return record.Clone(), nil
}

func (s *Store) FindPlayersByAddress(_ context.Context, address string) ([]store.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	var records []store.PlayerRecord
	for _, record := range s.players {
		if record.HasAddress(address) {
			records = append(records, record.Clone())
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (s *Store) UpsertPlayer(_ context.Context, record store.PlayerRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.players[record.ID] = record.Clone()
	s.version++
	return nil
}

func (s *Store) DeletePlayer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.players[id]; ok {
		delete(s.players, id)
		s.version++
	}
	return nil
}

func (s *Store) UpsertBan(_ context.Context, record store.BanRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.bans[record.ID] = record.Clone()
	s.version++
	return nil
}

func (s *Store) ListBans(_ context.Context) ([]store.BanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	records := make([]store.BanRecord, 0, len(s.bans))
	for _, record := range s.bans {
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (s *Store) UpsertWarpBlock(_ context.Context, record store.WarpBlockRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.warps[record.Key()] = record
	s.version++
	return nil
}

func (s *Store) ListWarpBlocks(_ context.Context) ([]store.WarpBlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	records := make([]store.WarpBlockRecord, 0, len(s.warps))
	for _, record := range s.warps {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key() < records[j].Key() })
	return records, nil
}

func (s *Store) Info(_ context.Context) (store.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.Info{}, store.ErrClosed
	}
	return store.Info{
		Backend:    "local",
		Location:   s.path,
		Players:    len(s.players),
		Bans:       len(s.bans),
		WarpBlocks: len(s.warps),
	}, nil
}

func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return store.ErrClosed
	}
	if s.version == s.flushed {
		s.mu.RUnlock()
		return nil
	}
	snap, err := s.snapshot()
	s.mu.RUnlock()
	if err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("encode snapshot: %v", err))
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	if err := s.write(snap); err != nil {
		return store.NewError(store.RetCInternalError, fmt.Sprintf("write %s: %v", s.path, err))
	}

	s.mu.Lock()
	if snap.version > s.flushed {
		s.flushed = snap.version
	}
	s.mu.Unlock()

	Logger.Debugf("flushed local store %s in %s", s.path, time.Since(start))
	return nil
}

// Close flushes pending state and releases the file lock. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil
	}

	err := s.Flush(context.Background())

	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err = multierr.Append(err, s.db.Close())
	Logger.Infof("closed local store %s", s.path)
	return err
}
