package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/project-dy/Essentials/lib/coord"
	"github.com/project-dy/Essentials/lib/credential"
	"github.com/project-dy/Essentials/lib/daemon"
	"github.com/project-dy/Essentials/lib/db"
	"github.com/project-dy/Essentials/lib/logger"
	"github.com/project-dy/Essentials/lib/store/lstore"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticPassword struct {
	password string
	err      error
}

func (s staticPassword) Password(context.Context) (string, error) {
	return s.password, s.err
}

func testConfig(t *testing.T, port int) Config {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Port = port
	cfg.ReconnectBackoff = 20 * time.Millisecond
	cfg.ReconnectAttempts = 3
	cfg.MaintenanceInterval = 50 * time.Millisecond
	return cfg
}

// startNode starts a node that is stopped when the test ends. Nodes stop in
// reverse start order and every stop must be clean.
func startNode(t *testing.T, cfg Config, opts ...Option) *Node {
	n := New(cfg, opts...)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { assert.NoError(t, n.Stop(context.Background())) })
	return n
}

// logBuffer collects log output written from several goroutines
type logBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *logBuffer {
	out := &logBuffer{}
	logger.SetOutput(out)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })
	return out
}

func taskNames(n *Node) []string {
	var names []string
	for _, task := range n.maintenanceTasks() {
		names = append(names, task.Name)
	}
	return names
}

func waitForEndpoint(t *testing.T, endpoint string) {
	t.Helper()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", endpoint)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func requireClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("%s not closed", what)
	}
}

// --------------------------------------------------------------------------
// Roles
// --------------------------------------------------------------------------

func TestOwnerWithoutSubordinates(t *testing.T) {
	n := startNode(t, testConfig(t, dynaport.Get(1)[0]))

	assert.Equal(t, coord.RoleOwner, n.CurrentRole())
	assert.Equal(t, 0, n.ConnectedSubordinateCount())
	assert.Equal(t, db.ModeLocal, n.DB().Mode())
	assert.True(t, n.DB().IsDefaultLocation())

	sent, err := n.TriggerShutdownBroadcast()
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	require.NoError(t, n.Stop(context.Background()))
	requireClosed(t, n.Done(), "done")
	require.NoError(t, n.Stop(context.Background()))

	select {
	case <-n.ShutdownRequested():
		t.Fatal("owner must not be asked to shut down")
	default:
	}
}

func TestOwnerShutsDownSubordinates(t *testing.T) {
	port := dynaport.Get(1)[0]
	owner := startNode(t, testConfig(t, port))

	subs := []*Node{
		startNode(t, testConfig(t, port)),
		startNode(t, testConfig(t, port)),
	}
	for _, sub := range subs {
		assert.Equal(t, coord.RoleSubordinate, sub.CurrentRole())
		assert.Equal(t, 0, sub.ConnectedSubordinateCount())
		_, err := sub.TriggerShutdownBroadcast()
		assert.ErrorIs(t, err, ErrNotOwner)
	}

	require.Eventually(t, func() bool {
		return owner.ConnectedSubordinateCount() == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, owner.Stop(context.Background()))
	assert.Equal(t, 0, owner.ConnectedSubordinateCount())

	for i, sub := range subs {
		requireClosed(t, sub.ShutdownRequested(), fmt.Sprintf("shutdown request of subordinate %d", i))
		require.NoError(t, sub.Stop(context.Background()))
	}
}

func TestBroadcastKeepsOwnerRunning(t *testing.T) {
	port := dynaport.Get(1)[0]
	owner := startNode(t, testConfig(t, port))
	sub := startNode(t, testConfig(t, port))

	require.Eventually(t, func() bool {
		return owner.ConnectedSubordinateCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	sent, err := owner.TriggerShutdownBroadcast()
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	requireClosed(t, sub.ShutdownRequested(), "shutdown request")

	// the owner keeps accepting
	late := startNode(t, testConfig(t, port))
	require.Eventually(t, func() bool {
		return owner.ConnectedSubordinateCount() == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, late.Stop(context.Background()))
	require.Eventually(t, func() bool {
		return owner.ConnectedSubordinateCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUnusableCoordinationPort(t *testing.T) {
	cfg := testConfig(t, dynaport.Get(1)[0])
	cfg.Host = "192.0.2.1"

	n := New(cfg)
	err := n.Start(context.Background())
	var fatal *coord.FatalError
	require.ErrorAs(t, err, &fatal)

	// the store was released again
	local, err := lstore.Open(cfg.DatabasePath(), lstore.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, local.Close())

	require.NoError(t, n.Stop(context.Background()))
	requireClosed(t, n.Done(), "done")
}

func TestCoordinationDisabled(t *testing.T) {
	port := dynaport.Get(1)[0]
	cfg := testConfig(t, port)
	cfg.Coordination = false
	a := startNode(t, cfg)

	cfg = testConfig(t, port)
	cfg.Coordination = false
	b := startNode(t, cfg)

	for _, n := range []*Node{a, b} {
		assert.Equal(t, coord.RoleOwner, n.CurrentRole())
		sent, err := n.TriggerShutdownBroadcast()
		require.NoError(t, err)
		assert.Equal(t, 0, sent)
		assert.NotContains(t, n.Status().Jobs, "lifecycle-owner")
	}

	// the port was never bound
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	require.NoError(t, ln.Close())
}

func TestPoolTooSmall(t *testing.T) {
	cfg := testConfig(t, dynaport.Get(1)[0])
	cfg.Workers = daemon.MinWorkers
	cfg.AdminEndpoint = "127.0.0.1:0"
	cfg.ConfigFile = filepath.Join(t.TempDir(), "essentials.yaml")

	n := New(cfg)
	err := n.Start(context.Background())
	require.ErrorIs(t, err, daemon.ErrPoolExhausted)

	// the coordination port is free again
	again := startNode(t, testConfig(t, cfg.Port))
	assert.Equal(t, coord.RoleOwner, again.CurrentRole())
}

// --------------------------------------------------------------------------
// Data
// --------------------------------------------------------------------------

func TestSubordinateUsesOwnerData(t *testing.T) {
	ctx := context.Background()
	port := dynaport.Get(1)[0]
	endpoint := fmt.Sprintf("127.0.0.1:%d", dynaport.Get(1)[0])

	ownerCfg := testConfig(t, port)
	ownerCfg.DataEndpoint = endpoint
	owner := startNode(t, ownerCfg)
	waitForEndpoint(t, endpoint)

	subCfg := testConfig(t, port)
	subCfg.Database = "tcp://" + endpoint
	sub := startNode(t, subCfg)

	assert.Equal(t, db.ModeRemote, sub.DB().Mode())
	assert.Equal(t, "tcp://"+endpoint, sub.DB().Location())
	assert.False(t, sub.DB().IsDefaultLocation())

	created, err := sub.DB().CreatePlayer(ctx, db.NewPlayer{ID: "uuid-1", Name: "alice", Address: "127.0.0.1"})
	require.NoError(t, err)

	got, err := owner.DB().Lookup(ctx, "uuid-1")
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	// the subordinate never created its own store file
	_, err = os.Stat(subCfg.DatabasePath())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSubordinateStopsAfterOwnerData(t *testing.T) {
	ctx := context.Background()
	port := dynaport.Get(1)[0]
	endpoint := fmt.Sprintf("127.0.0.1:%d", dynaport.Get(1)[0])

	ownerCfg := testConfig(t, port)
	ownerCfg.DataEndpoint = endpoint
	owner := startNode(t, ownerCfg)
	waitForEndpoint(t, endpoint)

	subCfg := testConfig(t, port)
	subCfg.Database = "tcp://" + endpoint
	sub := startNode(t, subCfg)
	assert.NotContains(t, taskNames(sub), "store-flush")
	assert.Contains(t, taskNames(owner), "store-flush")

	_, err := sub.DB().CreatePlayer(ctx, db.NewPlayer{ID: "uuid-2", Name: "bob", Address: "127.0.0.2"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return owner.ConnectedSubordinateCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// the owner leaves first and takes the data endpoint with it
	require.NoError(t, owner.Stop(ctx))
	requireClosed(t, sub.ShutdownRequested(), "shutdown request")
	require.NoError(t, sub.Stop(ctx))
	requireClosed(t, sub.Done(), "done")

	// the owner flushed its own copy before leaving
	local, err := lstore.Open(ownerCfg.DatabasePath(), lstore.DefaultOptions())
	require.NoError(t, err)
	defer local.Close()
	info, err := local.Info(ctx)
	require.NoError(t, err)
	assert.NotZero(t, info.Players)
}

func TestDataEndpointNeedsLocalStore(t *testing.T) {
	port := dynaport.Get(1)[0]
	ownerCfg := testConfig(t, port)
	ownerCfg.Coordination = false
	ownerCfg.DataEndpoint = fmt.Sprintf("127.0.0.1:%d", dynaport.Get(1)[0])
	first := startNode(t, ownerCfg)
	waitForEndpoint(t, ownerCfg.DataEndpoint)

	cfg := testConfig(t, port)
	cfg.Coordination = false
	cfg.Database = "tcp://" + ownerCfg.DataEndpoint
	cfg.DataEndpoint = fmt.Sprintf("127.0.0.1:%d", dynaport.Get(1)[0])

	err := New(cfg).Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a local database")
	assert.Equal(t, coord.RoleOwner, first.CurrentRole())
}

// --------------------------------------------------------------------------
// Block IP
// --------------------------------------------------------------------------

func TestBlockIPCredentials(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("address blocking is only supported on unix hosts")
	}

	t.Run("Provided", func(t *testing.T) {
		cfg := testConfig(t, dynaport.Get(1)[0])
		cfg.BlockIP = true
		n := startNode(t, cfg, WithCredentials(staticPassword{password: "hunter2"}))
		assert.True(t, n.BlockIP())
		assert.Equal(t, "hunter2", n.SudoPassword())
	})

	t.Run("Missing", func(t *testing.T) {
		cfg := testConfig(t, dynaport.Get(1)[0])
		cfg.BlockIP = true
		missing := credential.Chain{staticPassword{err: credential.ErrNotFound}, staticPassword{err: credential.ErrNoTerminal}}
		n := startNode(t, cfg, WithCredentials(missing))
		assert.False(t, n.BlockIP())
		assert.Empty(t, n.SudoPassword())
	})

	t.Run("Failed", func(t *testing.T) {
		cfg := testConfig(t, dynaport.Get(1)[0])
		cfg.BlockIP = true
		n := New(cfg, WithCredentials(staticPassword{err: io.ErrUnexpectedEOF}))
		err := n.Start(context.Background())
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("Disabled", func(t *testing.T) {
		cfg := testConfig(t, dynaport.Get(1)[0])
		n := startNode(t, cfg, WithCredentials(staticPassword{password: "unused"}))
		assert.False(t, n.BlockIP())
		assert.Empty(t, n.SudoPassword())
	})
}

// --------------------------------------------------------------------------
// Admin
// --------------------------------------------------------------------------

// adminClient does not keep idle connections around after a test
var adminClient = &http.Client{
	Timeout:   5 * time.Second,
	Transport: &http.Transport{DisableKeepAlives: true},
}

func adminURL(n *Node, path string) string {
	return "http://" + n.AdminAddr() + path
}

func TestAdminEndpoint(t *testing.T) {
	port := dynaport.Get(1)[0]
	cfg := testConfig(t, port)
	cfg.AdminEndpoint = "127.0.0.1:0"
	owner := startNode(t, cfg)
	require.NotEmpty(t, owner.AdminAddr())

	subCfg := testConfig(t, port)
	subCfg.AdminEndpoint = "127.0.0.1:0"
	sub := startNode(t, subCfg)

	require.Eventually(t, func() bool {
		resp, err := adminClient.Get(adminURL(owner, "/status"))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var status Status
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return false
		}
		// the admin job is running, so the start time is already set
		return status.Role == "owner" && status.Subordinates == 1 && !status.StartedAt.IsZero()
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := adminClient.Get(adminURL(owner, "/metrics"))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "essentials_is_owner 1")
	assert.Contains(t, string(body), "essentials_subordinates 1")

	require.Eventually(t, func() bool {
		resp, err := adminClient.Get(adminURL(sub, "/status"))
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err = adminClient.Post(adminURL(sub, "/broadcast"), "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = adminClient.Post(adminURL(owner, "/broadcast"), "application/json", nil)
	require.NoError(t, err)
	var result BroadcastResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, result.Sent)
	requireClosed(t, sub.ShutdownRequested(), "shutdown request")

	resp, err = adminClient.Get(adminURL(owner, "/broadcast"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// --------------------------------------------------------------------------
// Config
// --------------------------------------------------------------------------

func TestConfigReload(t *testing.T) {
	t.Cleanup(func() { logger.SetLevel(logger.INFO) })
	logs := captureLogs(t)

	path := filepath.Join(t.TempDir(), "essentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log-level: info\n"), 0o644))

	cfg := testConfig(t, dynaport.Get(1)[0])
	cfg.ConfigFile = path
	n := startNode(t, cfg)
	requireClosed(t, n.watcher.Ready(), "watcher ready")

	// another spelling of the current location is not a change
	same := "file://" + cfg.DataDir + "/./database"
	require.NoError(t, os.WriteFile(path, []byte("log-level: info\ndatabase: "+same+"\n"), 0o644))
	require.Eventually(t, func() bool {
		return n.reloads.Load() >= 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotContains(t, logs.String(), "database location changed")

	require.NoError(t, os.WriteFile(path, []byte("log-level: debug\ndatabase: /elsewhere/db\n"), 0o644))
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "database location changed to /elsewhere/db")
	}, 5*time.Second, 20*time.Millisecond)

	// the location is only picked up by a restart
	assert.Equal(t, cfg.DatabasePath(), n.DB().Location())
}

func TestConfigFromViper(t *testing.T) {
	v := viper.New()
	v.Set("data-dir", "/srv/essentials")
	v.Set("database", "redis://cache:6379/0")
	v.Set("coordination", false)
	v.Set("port", 7000)
	v.Set("reconnect-backoff", "250ms")
	v.Set("workers", 4)
	v.Set("admin-endpoint", "127.0.0.1:9100")
	v.Set("block-ip", true)

	cfg := FromViper(v)
	assert.Equal(t, "/srv/essentials", cfg.DataDir)
	assert.Equal(t, "redis://cache:6379/0", cfg.Database)
	assert.False(t, cfg.Coordination)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectBackoff)
	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.BlockIP)
	assert.Equal(t, filepath.Join("/srv/essentials", "database"), cfg.DatabasePath())

	// unset keys keep their defaults
	def := DefaultConfig()
	assert.Equal(t, def.Host, cfg.Host)
	assert.Equal(t, def.Transport, cfg.Transport)
	assert.Equal(t, def.MaintenanceInterval, cfg.MaintenanceInterval)
	require.NoError(t, cfg.Validate())

	out := cfg.String()
	assert.Contains(t, out, "redis://cache:6379/0")
	assert.Contains(t, out, "127.0.0.1:9100")
	assert.True(t, strings.Contains(def.String(), "(default)"))
}

func TestConfigValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"DataDir":     func(c *Config) { c.DataDir = "" },
		"Port":        func(c *Config) { c.Port = 70000 },
		"Attempts":    func(c *Config) { c.ReconnectAttempts = 0 },
		"Maintenance": func(c *Config) { c.MaintenanceInterval = 0 },
		"Transport":   func(c *Config) { c.Transport = "http" },
		"Serializer":  func(c *Config) { c.Serializer = "binary" },
		"LogLevel":    func(c *Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Coordination = false
	cfg.Port = 0
	assert.NoError(t, cfg.Validate())
}
