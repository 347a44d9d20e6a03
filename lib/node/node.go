package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/project-dy/Essentials/lib/coord"
	"github.com/project-dy/Essentials/lib/credential"
	"github.com/project-dy/Essentials/lib/daemon"
	"github.com/project-dy/Essentials/lib/db"
	"github.com/project-dy/Essentials/lib/lifecycle"
	"github.com/project-dy/Essentials/lib/logger"
	"github.com/project-dy/Essentials/rpc/common"
	"github.com/project-dy/Essentials/rpc/serializer"
	"github.com/project-dy/Essentials/rpc/server"
	"github.com/project-dy/Essentials/rpc/transport"
	"github.com/project-dy/Essentials/rpc/transport/tcp"
	"github.com/project-dy/Essentials/rpc/transport/unix"
	"github.com/spf13/viper"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

var Logger = logger.GetLogger("node")

// ErrNotOwner is returned by owner-only operations on other roles
var ErrNotOwner = errors.New("node is not the owner")

// Option customizes a Node
type Option func(*Node)

// WithCredentials sets the provider asked for the sudo password when block-ip
// is enabled. The default asks the environment, then the terminal.
func WithCredentials(p credential.Provider) Option {
	return func(n *Node) { n.credentials = p }
}

// WithRegionResolver sets the resolver used for the region of new players
func WithRegionResolver(r db.RegionResolver) Option {
	return func(n *Node) { n.regions = r }
}

// Node is one game-server process in a coordination domain. It owns the
// database, the elected role and the background jobs, and is passed to the
// collaborators that need them.
type Node struct {
	cfg         Config
	credentials credential.Provider
	regions     db.RegionResolver

	mu        sync.Mutex
	started   bool
	startedAt time.Time

	db        *db.DB
	election  coord.Election
	owner     *lifecycle.Owner
	sub       *lifecycle.Subordinate
	scheduler *daemon.Scheduler
	trigger   *daemon.Trigger
	watcher   *daemon.Watcher
	adminLn   net.Listener
	blockIP   bool
	sudo      string

	metrics    *metrics.Set
	broadcasts *metrics.Counter
	reloads    *atomic.Uint64

	shutdownOnce      sync.Once
	shutdownRequested chan struct{}
	stopOnce          sync.Once
	stopErr           error
	done              chan struct{}
}

func New(cfg Config, opts ...Option) *Node {
	n := &Node{
		cfg: cfg,
		credentials: credential.Chain{
			credential.NewEnv(),
			credential.NewTerminal("sudo password for address blocking: "),
		},
		reloads:           atomic.NewUint64(0),
		shutdownRequested: make(chan struct{}),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// --------------------------------------------------------------------------
// Start
// --------------------------------------------------------------------------

// Start opens the database, elects the role and starts the background jobs.
// Errors are fatal for the process: the coordination port is unusable
// (*coord.FatalError), the Owner is unreachable (*lifecycle.UnreachableError)
// or the store can not be opened (*store.Error). Everything started so far is
// released before Start returns an error.
func (n *Node) Start(ctx context.Context) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return fmt.Errorf("node already started")
	}
	if err := n.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level, _ := logger.ParseLevel(n.cfg.LogLevel)
	logger.SetLevel(level)
	Logger.Debugf("starting node with configuration:%s", n.cfg.String())

	defer func() {
		if err != nil {
			n.release()
		}
	}()

	// the store opens before the role is known
	if n.db, err = db.Open(ctx, n.dbConfig()); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if n.cfg.Coordination {
		if n.election, err = coord.ElectRole(ctx, n.cfg.Host, n.cfg.Port); err != nil {
			return err
		}
	} else {
		n.election = coord.Disabled()
		Logger.Infof("coordination disabled, running standalone")
	}

	if n.election.Role == coord.RoleOwner && n.db.Mode() == db.ModeRemote {
		Logger.Warningf("running as owner with the remote database %s, no local copy is kept", n.db.Location())
	}

	if err = n.readCredentials(ctx); err != nil {
		return err
	}

	// the subordinate must reach its owner before anything else runs
	if n.election.Role == coord.RoleSubordinate {
		opts := lifecycle.DefaultSubordinateOptions(n.election.Address)
		opts.ReconnectBackoff = n.cfg.ReconnectBackoff
		opts.ReconnectAttempts = n.cfg.ReconnectAttempts
		opts.OnExit = n.requestShutdown
		n.sub = lifecycle.NewSubordinate(opts)
		if err = n.sub.Connect(ctx); err != nil {
			return err
		}
	}

	if n.cfg.AdminEndpoint != "" {
		if n.adminLn, err = net.Listen("tcp", n.cfg.AdminEndpoint); err != nil {
			return fmt.Errorf("failed to listen on admin endpoint %s: %w", n.cfg.AdminEndpoint, err)
		}
	}

	n.initMetrics()

	n.scheduler = daemon.NewScheduler(n.cfg.Workers)
	if err = n.scheduler.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	n.startedAt = time.Now()
	if err = n.submitJobs(); err != nil {
		return err
	}

	n.started = true
	Logger.Infof("node started as %s (database %s, %s)", n.election.Role, n.db.Location(), n.db.Mode())
	return nil
}

func (n *Node) dbConfig() db.Config {
	cfg := db.DefaultConfig(n.cfg.DatabasePath())
	cfg.Location = n.cfg.Database
	cfg.Remote.Serializer = n.cfg.Serializer
	cfg.Remote.TimeoutSecond = n.cfg.TimeoutSecond
	cfg.RedisKeyPrefix = n.cfg.RedisKeyPrefix
	cfg.Regions = n.regions
	cfg.Locale = n.cfg.Locale
	return cfg
}

// readCredentials asks for the sudo password once. A missing password turns
// address blocking off instead of failing the boot.
func (n *Node) readCredentials(ctx context.Context) error {
	if !n.cfg.BlockIP {
		return nil
	}
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd", "aix":
	default:
		Logger.Warningf("address blocking is not supported on %s, disabling it", runtime.GOOS)
		return nil
	}

	password, err := n.credentials.Password(ctx)
	switch {
	case err == nil:
		n.sudo = password
		n.blockIP = true
		Logger.Infof("sudo password received, it is not verified")
		return nil
	case errors.Is(err, credential.ErrNotFound), errors.Is(err, credential.ErrNoTerminal):
		Logger.Warningf("no sudo password available (%v), address blocking disabled", err)
		return nil
	default:
		return fmt.Errorf("failed to read sudo password: %w", err)
	}
}

func (n *Node) submitJobs() error {
	var jobs []struct {
		name string
		job  daemon.Job
	}
	add := func(name string, job daemon.Job) {
		jobs = append(jobs, struct {
			name string
			job  daemon.Job
		}{name, job})
	}

	switch {
	case n.sub != nil:
		add("lifecycle-subordinate", n.sub.Run)
	case n.election.Listener != nil:
		n.owner = lifecycle.NewOwner(n.election.Listener, lifecycle.DefaultOwnerOptions())
		add("lifecycle-owner", n.owner.Serve)
	}

	if n.election.Role == coord.RoleOwner && n.cfg.DataEndpoint != "" {
		srv, err := n.dataServer()
		if err != nil {
			return err
		}
		add("data-endpoint", srv.Serve)
	}

	n.trigger = daemon.NewTrigger(n.maintenanceTasks()...)
	add("maintenance", n.trigger.Run)

	if n.cfg.ConfigFile != "" {
		n.watcher = daemon.NewWatcher(n.cfg.ConfigFile, n.reload)
		add("config-watcher", n.watcher.Run)
	}

	if n.adminLn != nil {
		add("admin", n.serveAdmin)
	}

	for _, j := range jobs {
		if err := n.scheduler.Submit(j.name, j.job); err != nil {
			return fmt.Errorf("failed to start %s (%d jobs on %d workers): %w", j.name, len(jobs), n.scheduler.Workers(), err)
		}
	}
	return nil
}

// dataServer serves the local store to subordinates using a remote location
func (n *Node) dataServer() (*server.RPCServer, error) {
	if n.db.Mode() != db.ModeLocal {
		return nil, fmt.Errorf("data endpoint needs a local database, not %s", n.db.Location())
	}

	var ser serializer.IRPCSerializer
	switch n.cfg.Serializer {
	case "gob":
		ser = serializer.NewGOBSerializer()
	default:
		ser = serializer.NewJSONSerializer()
	}

	var tr transport.IRPCServerTransport
	switch n.cfg.Transport {
	case "unix":
		tr = unix.NewUnixDefaultServerTransport()
	default:
		tr = tcp.NewTCPDefaultServerTransport()
	}

	srv := server.NewRPCServer(common.ServerConfig{
		TimeoutSecond: int64(n.cfg.TimeoutSecond),
		Transport: common.ServerTransportConfig{
			Endpoint:       n.cfg.DataEndpoint,
			WorkersPerConn: 4,
			TCPConf:        common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
		},
	}, tr, ser)
	srv.RegisterStore(common.StoreShardID, n.db.Store())
	return srv, nil
}

// maintenanceTasks refreshes the caches. Only a local store is flushed, a
// remote one belongs to its Owner or to redis.
func (n *Node) maintenanceTasks() []daemon.Task {
	interval := n.cfg.MaintenanceInterval
	var tasks []daemon.Task
	if n.db.Mode() == db.ModeLocal {
		tasks = append(tasks, daemon.Task{Name: "store-flush", Interval: interval, Run: n.db.Flush})
	}
	return append(tasks,
		daemon.Task{Name: "ban-refresh", Interval: interval, Run: n.db.RefreshBans},
		daemon.Task{Name: "warp-refresh", Interval: interval, Run: n.db.RefreshWarpBlocks},
	)
}

// reload applies a changed configuration file. Only the log level is applied
// at runtime, other changes are reported and need a restart.
func (n *Node) reload(v *viper.Viper) error {
	if v.IsSet("log-level") {
		level, err := logger.ParseLevel(v.GetString("log-level"))
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		Logger.Infof("log level set to %s", level)
	}

	if v.IsSet("database") {
		location := v.GetString("database")
		if location == "" {
			location = n.cfg.DatabasePath()
		}
		if !db.SameLocation(location, n.db.Location()) {
			Logger.Infof("database location changed to %s, the node keeps using %s until restarted", location, n.db.Location())
		}
	}

	n.reloads.Inc()
	return nil
}

// requestShutdown is called when the Owner sends exit
func (n *Node) requestShutdown() {
	n.shutdownOnce.Do(func() {
		Logger.Infof("shutdown requested by the owner")
		close(n.shutdownRequested)
	})
}

// --------------------------------------------------------------------------
// Stop
// --------------------------------------------------------------------------

// Stop shuts the node down: the Owner broadcasts exit and stops accepting, a
// Subordinate sends its own exit, the jobs are cancelled and waited for until
// ctx ends (ShutdownGrace when ctx has no deadline), then the store is
// flushed and closed. Repeated calls return the first result.
func (n *Node) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		defer close(n.done)

		// a failed Start already released everything
		if !n.started {
			return
		}

		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, n.cfg.ShutdownGrace)
			defer cancel()
		}

		n.stopErr = n.shutdown(ctx)
		if n.stopErr != nil {
			Logger.Errorf("node stopped with errors: %v", n.stopErr)
		} else {
			Logger.Infof("node stopped")
		}
	})
	return n.stopErr
}

func (n *Node) shutdown(ctx context.Context) error {
	var errs error

	if n.owner != nil {
		n.owner.Shutdown()
	}
	if n.sub != nil {
		errs = multierr.Append(errs, n.sub.Close())
	}

	if n.scheduler != nil {
		errs = multierr.Append(errs, n.scheduler.Stop(ctx))
	}

	if n.adminLn != nil {
		// only needed when the admin job never ran
		if err := n.adminLn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierr.Append(errs, err)
		}
	}

	if n.db != nil {
		// the Owner of a remote store may already be gone
		if n.db.Mode() == db.ModeLocal {
			errs = multierr.Append(errs, n.db.Flush(ctx))
		}
		errs = multierr.Append(errs, n.db.Close())
	}
	return errs
}

// release frees what a failed Start acquired
func (n *Node) release() {
	if n.owner == nil && n.election.Listener != nil {
		_ = n.election.Listener.Close()
	}
	if err := n.shutdown(context.Background()); err != nil {
		Logger.Debugf("cleanup after failed start: %v", err)
	}
}

// --------------------------------------------------------------------------
// Collaborator interface
// --------------------------------------------------------------------------

// CurrentRole returns the elected role, valid once Start returned
func (n *Node) CurrentRole() coord.Role { return n.election.Role }

// ConnectedSubordinateCount returns the number of connected Subordinates,
// 0 for every role but a coordinating Owner
func (n *Node) ConnectedSubordinateCount() int {
	if n.owner == nil {
		return 0
	}
	return n.owner.Len()
}

// TriggerShutdownBroadcast sends exit to every connected Subordinate without
// stopping this node. It returns the number of Subordinates reached, always 0
// when coordination is disabled.
func (n *Node) TriggerShutdownBroadcast() (int, error) {
	if n.owner == nil {
		if n.election.Role == coord.RoleOwner && !n.cfg.Coordination {
			return 0, nil
		}
		return 0, ErrNotOwner
	}
	sent := n.owner.Broadcast()
	n.broadcasts.Inc()
	Logger.Infof("shutdown broadcast sent to %d subordinates", sent)
	return sent, nil
}

// DB returns the data façade, nil before Start
func (n *Node) DB() *db.DB { return n.db }

// Config returns the configuration the node was created with
func (n *Node) Config() Config { return n.cfg }

// SudoPassword returns the password for address blocking, empty when
// blocking is disabled
func (n *Node) SudoPassword() string { return n.sudo }

// BlockIP reports whether address blocking is active
func (n *Node) BlockIP() bool { return n.blockIP }

// ShutdownRequested is closed when the Owner asked this node to shut down.
// The host is expected to call Stop.
func (n *Node) ShutdownRequested() <-chan struct{} { return n.shutdownRequested }

// Done is closed once Stop has finished
func (n *Node) Done() <-chan struct{} { return n.done }
