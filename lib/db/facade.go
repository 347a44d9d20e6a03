package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/project-dy/Essentials/lib/logger"
	"github.com/project-dy/Essentials/lib/store"
	"github.com/project-dy/Essentials/lib/store/lstore"
	"github.com/project-dy/Essentials/lib/store/redisstore"
	"github.com/project-dy/Essentials/rpc/client"
	"github.com/project-dy/Essentials/rpc/common"
	"github.com/project-dy/Essentials/rpc/serializer"
	"github.com/project-dy/Essentials/rpc/transport"
	"github.com/project-dy/Essentials/rpc/transport/tcp"
	"github.com/project-dy/Essentials/rpc/transport/unix"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"golang.org/x/crypto/bcrypt"
)

var Logger = logger.GetLogger("db")

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// RemoteConfig configures the client used for tcp:// and unix:// locations
type RemoteConfig struct {
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
	// Serializer is "json" or "gob" and must match the Owner's data endpoint
	Serializer string
}

// Config configures Open
type Config struct {
	// Location of the records, see parseLocation. Empty uses DefaultLocation.
	Location string
	// DefaultLocation is this process's own store file
	DefaultLocation string

	// OpenTimeout bounds the wait for the store file lock
	OpenTimeout time.Duration
	Remote      RemoteConfig
	// RedisKeyPrefix namespaces the keys of redis locations
	RedisKeyPrefix string

	// Regions resolves the region of new players, nil always uses the locale
	Regions RegionResolver
	// Locale is used for local players and failed lookups, empty reads $LANG
	Locale string
	// BcryptCost for password hashes, 0 uses bcrypt.DefaultCost
	BcryptCost int
}

func DefaultConfig(defaultLocation string) Config {
	return Config{
		DefaultLocation: defaultLocation,
		OpenTimeout:     lstore.DefaultOptions().OpenTimeout,
		Remote: RemoteConfig{
			TimeoutSecond:          5,
			RetryCount:             3,
			ConnectionsPerEndpoint: 2,
			Serializer:             "json",
		},
		RedisKeyPrefix: redisstore.DefaultConfig().KeyPrefix,
	}
}

// --------------------------------------------------------------------------
// DB
// --------------------------------------------------------------------------

// DB is the entry point other subsystems use for player, ban and warp block
// data. It is safe for concurrent use.
type DB struct {
	cfg      Config
	store    store.IStore
	location location
	region   string // locale fallback, alpha-3

	// caches for the action filter, keyed by ban id and warp block key
	bans          *xsync.MapOf[string, cachedBan]
	banGeneration *atomic.Uint64
	bannedAddrs   *xsync.MapOf[string, string]
	bannedNames   *xsync.MapOf[string, string]
	warps         *xsync.MapOf[string, store.WarpBlockRecord]
	closed        *atomic.Bool
	lastRefreshed *atomic.Time
}

// Open connects to the configured location and seeds the ban and warp block
// caches. Store failures are returned as *store.Error.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	raw := cfg.Location
	if strings.TrimSpace(raw) == "" {
		raw = cfg.DefaultLocation
	}
	loc, err := parseLocation(raw)
	if err != nil {
		return nil, store.NewError(store.RetCInvalidOperation, err.Error())
	}

	st, err := openStore(ctx, cfg, loc)
	if err != nil {
		return nil, err
	}

	d := newDB(cfg, st, loc)
	if !d.IsDefaultLocation() {
		Logger.Infof("database location %s differs from the default %s, using it as configured", d.Location(), cfg.DefaultLocation)
	}

	if err := d.RefreshBans(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := d.RefreshWarpBlocks(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	Logger.Infof("opened %s database at %s", d.Mode(), d.Location())
	return d, nil
}

func newDB(cfg Config, st store.IStore, loc location) *DB {
	return &DB{
		cfg:           cfg,
		store:         st,
		location:      loc,
		region:        localeRegion(cfg.Locale),
		bans:          xsync.NewMapOf[string, cachedBan](),
		banGeneration: atomic.NewUint64(0),
		bannedAddrs:   xsync.NewMapOf[string, string](),
		bannedNames:   xsync.NewMapOf[string, string](),
		warps:         xsync.NewMapOf[string, store.WarpBlockRecord](),
		closed:        atomic.NewBool(false),
		lastRefreshed: atomic.NewTime(time.Time{}),
	}
}

func openStore(ctx context.Context, cfg Config, loc location) (store.IStore, error) {
	switch loc.scheme {
	case schemeFile:
		local, err := lstore.Open(loc.target, lstore.Options{OpenTimeout: cfg.OpenTimeout})
		if err != nil {
			return nil, err
		}
		return local, nil

	case schemeTCP, schemeUnix:
		ser, err := newSerializer(cfg.Remote.Serializer)
		if err != nil {
			return nil, store.NewError(store.RetCInvalidOperation, err.Error())
		}
		var tr transport.IRPCClientTransport
		if loc.scheme == schemeTCP {
			tr = tcp.NewTCPClientTransport()
		} else {
			tr = unix.NewUnixClientTransport()
		}
		return client.NewRPCStore(common.StoreShardID, common.ClientConfig{
			TimeoutSecond: cfg.Remote.TimeoutSecond,
			Transport: common.ClientTransportConfig{
				Endpoints:              []string{loc.target},
				RetryCount:             cfg.Remote.RetryCount,
				ConnectionsPerEndpoint: cfg.Remote.ConnectionsPerEndpoint,
				TCPConf:                common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
			},
		}, tr, ser)

	case schemeRedis:
		rc := redisstore.DefaultConfig()
		rc.URL = loc.target
		if cfg.RedisKeyPrefix != "" {
			rc.KeyPrefix = cfg.RedisKeyPrefix
		}
		remote, err := redisstore.Open(ctx, rc)
		if err != nil {
			return nil, err
		}
		return remote, nil
	}
	return nil, store.NewError(store.RetCUnsupportedOperation, fmt.Sprintf("no store for scheme %s", loc.scheme))
}

func newSerializer(name string) (serializer.IRPCSerializer, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q", name)
	}
}

// --------------------------------------------------------------------------
// Location
// --------------------------------------------------------------------------

// Mode reports whether the records are kept locally or remotely
func (d *DB) Mode() Mode { return d.location.mode() }

// Location returns the location the DB was opened with
func (d *DB) Location() string {
	switch d.location.scheme {
	case schemeTCP, schemeUnix:
		return string(d.location.scheme) + "://" + d.location.target
	default:
		return d.location.target
	}
}

// IsDefaultLocation reports whether the DB uses this process's own store file
func (d *DB) IsDefaultLocation() bool {
	return d.location.scheme == schemeFile && d.cfg.DefaultLocation != "" &&
		sameFile(d.location.target, d.cfg.DefaultLocation)
}

// Store returns the underlying store, the Owner serves it on its data endpoint
func (d *DB) Store() store.IStore { return d.store }

// --------------------------------------------------------------------------
// Players
// --------------------------------------------------------------------------

// Lookup returns the player with the unique id
func (d *DB) Lookup(ctx context.Context, id string) (store.PlayerRecord, error) {
	return d.store.GetPlayer(ctx, id)
}

// LookupByAddress returns the players seen with address
func (d *DB) LookupByAddress(ctx context.Context, address string) ([]store.PlayerRecord, error) {
	return d.store.FindPlayersByAddress(ctx, address)
}

func (d *DB) Upsert(ctx context.Context, record store.PlayerRecord) error {
	return d.store.UpsertPlayer(ctx, record)
}

func (d *DB) Delete(ctx context.Context, id string) error {
	return d.store.DeletePlayer(ctx, id)
}

// NewPlayer describes a player authenticating for the first time
type NewPlayer struct {
	ID      string
	Name    string
	Address string
	// Password is hashed before it is stored. Empty uses the name.
	Password string
}

// CreatePlayer registers a new player. Registering an existing id fails
// with RetCInvalidOperation.
func (d *DB) CreatePlayer(ctx context.Context, p NewPlayer) (store.PlayerRecord, error) {
	if _, err := d.store.GetPlayer(ctx, p.ID); err == nil {
		return store.PlayerRecord{}, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("player %q already exists", p.ID))
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.PlayerRecord{}, err
	}

	password := p.Password
	if password == "" {
		password = p.Name
	}
	hash, err := d.hash(password)
	if err != nil {
		return store.PlayerRecord{}, err
	}

	now := time.Now().UTC()
	record := store.PlayerRecord{
		ID:           p.ID,
		Name:         p.Name,
		PasswordHash: hash,
		JoinedAt:     now,
		LastSeenAt:   now,
		RegionCode:   d.resolveRegion(ctx, p.Address),
	}
	if p.Address != "" {
		record.Addresses = []string{p.Address}
	}

	if err := d.store.UpsertPlayer(ctx, record); err != nil {
		return store.PlayerRecord{}, err
	}
	Logger.Debugf("created player %s (%s)", record.ID, record.RegionCode)
	return record, nil
}

// LoadPlayer starts a session for an existing player: the current name is
// taken over, the join count incremented and the address remembered.
func (d *DB) LoadPlayer(ctx context.Context, id, name, address string) (store.PlayerRecord, error) {
	record, err := d.store.GetPlayer(ctx, id)
	if err != nil {
		return store.PlayerRecord{}, err
	}

	if name != "" {
		record.Name = name
	}
	record.LastSeenAt = time.Now().UTC()
	record.JoinCount++
	if address != "" && !record.HasAddress(address) {
		record.Addresses = append(record.Addresses, address)
	}

	if err := d.store.UpsertPlayer(ctx, record); err != nil {
		return store.PlayerRecord{}, err
	}
	return record, nil
}

// Authenticate returns the player if password matches its hash
func (d *DB) Authenticate(ctx context.Context, id, password string) (store.PlayerRecord, error) {
	record, err := d.store.GetPlayer(ctx, id)
	if err != nil {
		return store.PlayerRecord{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)) != nil {
		return store.PlayerRecord{}, store.NewError(store.RetCInvalidOperation, "wrong password")
	}
	return record, nil
}

func (d *DB) hash(password string) (string, error) {
	cost := d.cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", store.NewError(store.RetCInvalidOperation, fmt.Sprintf("cannot hash password: %v", err))
	}
	return string(hash), nil
}

// resolveRegion asks the resolver for remote players and falls back to the locale
func (d *DB) resolveRegion(ctx context.Context, address string) string {
	if address == "" || d.cfg.Regions == nil || isLocalAddress(address) {
		return d.region
	}
	code, err := d.cfg.Regions.Region(ctx, address)
	if err != nil {
		Logger.Debugf("region lookup for %s failed: %v", address, err)
		return d.region
	}
	region, ok := normalizeRegion(code)
	if !ok {
		Logger.Debugf("region lookup for %s returned unknown code %q", address, code)
		return d.region
	}
	return region
}

// --------------------------------------------------------------------------
// Bans
// --------------------------------------------------------------------------

// Ban stores the ban and adds it to the cache
func (d *DB) Ban(ctx context.Context, record store.BanRecord) error {
	if err := d.store.UpsertBan(ctx, record); err != nil {
		return err
	}
	d.cacheBan(record)
	Logger.Infof("banned %s", record.ID)
	return nil
}

// IsBanned reports whether the id is banned. It answers from the cache.
func (d *DB) IsBanned(id string) bool {
	_, ok := d.bans.Load(id)
	return ok
}

// IsAddressBanned reports whether a ban lists address
func (d *DB) IsAddressBanned(address string) bool {
	_, ok := d.bannedAddrs.Load(address)
	return ok
}

// IsNameBanned reports whether a ban lists name
func (d *DB) IsNameBanned(name string) bool {
	_, ok := d.bannedNames.Load(name)
	return ok
}

// RefreshBans reloads the ban cache from the store. Bans made by other
// processes become visible here. Bans cached while the refresh runs are kept
// even when the listing missed them.
func (d *DB) RefreshBans(ctx context.Context) error {
	generation := d.banGeneration.Inc()

	bans, err := d.store.ListBans(ctx)
	if err != nil {
		return err
	}

	current := make(map[string]struct{}, len(bans))
	for _, ban := range bans {
		current[ban.ID] = struct{}{}
		d.cacheBan(ban)
	}

	// bans are never lifted here, but the store may have been replaced
	d.bans.Range(func(id string, cached cachedBan) bool {
		if _, ok := current[id]; !ok && cached.generation < generation {
			d.bans.Delete(id)
		}
		return true
	})
	prune := func(m *xsync.MapOf[string, string]) {
		m.Range(func(key, id string) bool {
			if _, ok := d.bans.Load(id); !ok {
				m.Delete(key)
			}
			return true
		})
	}
	prune(d.bannedAddrs)
	prune(d.bannedNames)

	d.lastRefreshed.Store(time.Now())
	Logger.Debugf("ban cache holds %d bans", d.bans.Size())
	return nil
}

// cachedBan remembers the refresh generation a ban was cached in
type cachedBan struct {
	record     store.BanRecord
	generation uint64
}

func (d *DB) cacheBan(record store.BanRecord) {
	d.bans.Store(record.ID, cachedBan{record: record.Clone(), generation: d.banGeneration.Load()})
	for _, address := range record.Addresses {
		d.bannedAddrs.Store(address, record.ID)
	}
	for _, name := range record.Names {
		d.bannedNames.Store(name, record.ID)
	}
}

// --------------------------------------------------------------------------
// Warp blocks
// --------------------------------------------------------------------------

// AddWarpBlock stores the warp block and adds it to the cache
func (d *DB) AddWarpBlock(ctx context.Context, record store.WarpBlockRecord) error {
	if err := d.store.UpsertWarpBlock(ctx, record); err != nil {
		return err
	}
	d.warps.Store(record.Key(), record)
	return nil
}

// WarpBlocks lists the warp blocks of the store
func (d *DB) WarpBlocks(ctx context.Context) ([]store.WarpBlockRecord, error) {
	return d.store.ListWarpBlocks(ctx)
}

// IsWarpBlocked reports whether the block on the tile is protected. It
// answers from the cache.
func (d *DB) IsWarpBlocked(mapName string, x, y int16, blockName string) bool {
	record, ok := d.warps.Load(store.WarpBlockRecord{MapName: mapName, X: x, Y: y}.Key())
	return ok && record.BlockName == blockName
}

// RefreshWarpBlocks reloads the warp block cache from the store
func (d *DB) RefreshWarpBlocks(ctx context.Context) error {
	records, err := d.store.ListWarpBlocks(ctx)
	if err != nil {
		return err
	}

	current := make(map[string]struct{}, len(records))
	for _, record := range records {
		current[record.Key()] = struct{}{}
		d.warps.Store(record.Key(), record)
	}
	d.warps.Range(func(key string, _ store.WarpBlockRecord) bool {
		if _, ok := current[key]; !ok {
			d.warps.Delete(key)
		}
		return true
	})
	return nil
}

// --------------------------------------------------------------------------
// Maintenance
// --------------------------------------------------------------------------

// Flush persists pending changes of a local store
func (d *DB) Flush(ctx context.Context) error {
	return d.store.Flush(ctx)
}

// Info describes the underlying store
func (d *DB) Info(ctx context.Context) (store.Info, error) {
	return d.store.Info(ctx)
}

// CachedBans returns the number of bans in the cache
func (d *DB) CachedBans() int { return d.bans.Size() }

// LastRefreshed returns the time of the last ban cache refresh
func (d *DB) LastRefreshed() time.Time { return d.lastRefreshed.Load() }

// Close closes the store. Repeated calls return nil.
func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := d.store.Close(); err != nil {
		return err
	}
	Logger.Infof("closed database at %s", d.Location())
	return nil
}
