package server

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/project-dy/Essentials/lib/logger"
	"github.com/project-dy/Essentials/lib/store"
	"github.com/project-dy/Essentials/rpc/common"
	"github.com/project-dy/Essentials/rpc/serializer"
	"github.com/project-dy/Essentials/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the store it encapsulates and the adapter that handles
// requests for the store
type serverShard struct {
	Store   store.IStore
	Adapter IRPCServerAdapter
}

// RPCServer relays store operations received on the data endpoint to the
// registered stores.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(config, tcp.NewTCPDefaultServerTransport(), serializer.NewJSONSerializer())
//	s.RegisterStore(common.StoreShardID, localStore)
//	if err := s.Serve(ctx); err != nil {
//		return err
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Debugf("Created RPC Server %s", config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// RegisterStore serves s under shardID. The server never closes registered stores.
func (s *RPCServer) RegisterStore(shardID uint64, st store.IStore) {
	s.shards.Store(shardID, serverShard{
		Store:   st,
		Adapter: NewIStoreServerAdapter(),
	})
	Logger.Infof("serving store for shard %d", shardID)
}

// Serve starts the transport layer and blocks until ctx is done
func (s *RPCServer) Serve(ctx context.Context) error {
	if s.shards.Size() == 0 {
		return fmt.Errorf("no store registered")
	}
	s.registerTransportHandler(ctx)
	return s.transport.Listen(ctx, s.config)
}

func (s *RPCServer) registerTransportHandler(ctx context.Context) {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		shard, ok := s.shards.Load(shardId)
		if !ok {
			respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			// Let the adapter handle the request
			respMsg = shard.Adapter.Handle(ctx, &msg, shard.Store)
		}

		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize %s response: %v", respMsg.MsgType, err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}
