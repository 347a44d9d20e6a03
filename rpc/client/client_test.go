package client_test

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/project-dy/Essentials/lib/store"
	"github.com/project-dy/Essentials/lib/store/lstore"
	"github.com/project-dy/Essentials/lib/store/storetesting"
	"github.com/project-dy/Essentials/rpc/client"
	"github.com/project-dy/Essentials/rpc/common"
	"github.com/project-dy/Essentials/rpc/serializer"
	"github.com/project-dy/Essentials/rpc/server"
	"github.com/project-dy/Essentials/rpc/transport"
	"github.com/project-dy/Essentials/rpc/transport/tcp"
	"github.com/project-dy/Essentials/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type transportCase struct {
	network   string
	newServer func() transport.IRPCServerTransport
	newClient func() transport.IRPCClientTransport
	endpoint  func(t *testing.T) string
}

var transports = map[string]transportCase{
	"TCP": {
		network:   "tcp",
		newServer: tcp.NewTCPDefaultServerTransport,
		newClient: tcp.NewTCPClientTransport,
		endpoint: func(t *testing.T) string {
			return fmt.Sprintf("127.0.0.1:%d", dynaport.Get(1)[0])
		},
	},
	"Unix": {
		network:   "unix",
		newServer: unix.NewUnixDefaultServerTransport,
		newClient: unix.NewUnixClientTransport,
		endpoint: func(t *testing.T) string {
			// socket paths are limited to ~100 bytes, keep them short
			dir, err := os.MkdirTemp("", "ess")
			require.NoError(t, err)
			t.Cleanup(func() { _ = os.RemoveAll(dir) })
			return filepath.Join(dir, "d.sock")
		},
	},
}

var serializers = map[string]func() serializer.IRPCSerializer{
	"JSON": serializer.NewJSONSerializer,
	"GOB":  serializer.NewGOBSerializer,
}

// startOwner serves a fresh local store on endpoint until the test ends
func startOwner(t *testing.T, tc transportCase, ser serializer.IRPCSerializer, endpoint string) *lstore.Store {
	local, err := lstore.Open(filepath.Join(t.TempDir(), "database"), lstore.DefaultOptions())
	require.NoError(t, err)

	srv := server.NewRPCServer(common.ServerConfig{
		TimeoutSecond: 5,
		Transport: common.ServerTransportConfig{
			Endpoint:       endpoint,
			WorkersPerConn: 4,
			TCPConf:        common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
		},
	}, tc.newServer(), ser)
	srv.RegisterStore(common.StoreShardID, local)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		assert.NoError(t, local.Close())
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial(tc.network, endpoint)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	return local
}

func clientConfig(endpoint string) common.ClientConfig {
	return common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{endpoint},
			RetryCount:             3,
			ConnectionsPerEndpoint: 2,
			TCPConf:                common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
		},
	}
}

func TestRPCStore(t *testing.T) {
	for transportName, tc := range transports {
		for serializerName, newSerializer := range serializers {
			storetesting.RunIStoreTests(t, transportName+"_"+serializerName, func(t *testing.T) store.IStore {
				endpoint := tc.endpoint(t)
				startOwner(t, tc, newSerializer(), endpoint)

				s, err := client.NewRPCStore(common.StoreShardID, clientConfig(endpoint), tc.newClient(), newSerializer())
				require.NoError(t, err)
				return s
			})
		}
	}
}

func TestWritesReachOwnerStore(t *testing.T) {
	ctx := context.Background()
	tc := transports["TCP"]
	endpoint := tc.endpoint(t)
	local := startOwner(t, tc, serializer.NewJSONSerializer(), endpoint)

	s, err := client.NewRPCStore(common.StoreShardID, clientConfig(endpoint), tc.newClient(), serializer.NewJSONSerializer())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertPlayer(ctx, storetesting.NewPlayer("p1", "10.0.0.1")))
	require.NoError(t, s.Flush(ctx))

	got, err := local.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "name-p1", got.Name)

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rpc", info.Backend)
	assert.Equal(t, endpoint, info.Location)
	assert.Equal(t, 1, info.Players)
}

func TestUnknownShard(t *testing.T) {
	tc := transports["TCP"]
	endpoint := tc.endpoint(t)
	startOwner(t, tc, serializer.NewJSONSerializer(), endpoint)

	s, err := client.NewRPCStore(7, clientConfig(endpoint), tc.newClient(), serializer.NewJSONSerializer())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetPlayer(context.Background(), "p1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "shard 7 not found")
}

func TestConnectUnreachable(t *testing.T) {
	endpoint := fmt.Sprintf("127.0.0.1:%d", dynaport.Get(1)[0])
	_, err := client.NewRPCStore(common.StoreShardID, clientConfig(endpoint), tcp.NewTCPClientTransport(), serializer.NewJSONSerializer())
	require.Error(t, err)

	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.RetCOpenFailed, storeErr.Code)
}

func TestClosedClient(t *testing.T) {
	tc := transports["TCP"]
	endpoint := tc.endpoint(t)
	startOwner(t, tc, serializer.NewJSONSerializer(), endpoint)

	s, err := client.NewRPCStore(common.StoreShardID, clientConfig(endpoint), tc.newClient(), serializer.NewJSONSerializer())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.ListBans(context.Background())
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestClientReconnectsAfterOwnerRestart(t *testing.T) {
	ctx := context.Background()
	tc := transports["TCP"]
	endpoint := tc.endpoint(t)
	ser := serializer.NewJSONSerializer()

	local, err := lstore.Open(filepath.Join(t.TempDir(), "database"), lstore.DefaultOptions())
	require.NoError(t, err)
	defer local.Close()

	serve := func() (context.CancelFunc, chan error) {
		srv := server.NewRPCServer(common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: endpoint}}, tc.newServer(), ser)
		srv.RegisterStore(common.StoreShardID, local)
		srvCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- srv.Serve(srvCtx) }()
		return cancel, done
	}

	cancel, done := serve()
	var s store.IStore
	require.Eventually(t, func() bool {
		s, err = client.NewRPCStore(common.StoreShardID, clientConfig(endpoint), tc.newClient(), ser)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	defer s.Close()

	require.NoError(t, s.UpsertPlayer(ctx, storetesting.NewPlayer("p1")))

	// owner goes away and comes back on the same endpoint
	cancel()
	require.NoError(t, <-done)
	cancel, done = serve()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		_, err := s.GetPlayer(ctx, "p1")
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)
}
