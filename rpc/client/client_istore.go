package client

import (
	"context"
	"strings"

	"github.com/project-dy/Essentials/lib/store"
	"github.com/project-dy/Essentials/rpc/common"
	"github.com/project-dy/Essentials/rpc/serializer"
	"github.com/project-dy/Essentials/rpc/transport"
	"go.uber.org/atomic"
)

// NewRPCStore creates a new RPC store
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It connects the transport and returns a store.IStore. A failed connection is
// reported as *store.Error with code RetCOpenFailed.
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IStore, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, store.NewError(store.RetCOpenFailed, err.Error())
	}

	return &rpcStore{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		closed: atomic.NewBool(false),
	}, nil
}

type rpcStore struct {
	rpcClientAdapter
	closed *atomic.Bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) GetPlayer(ctx context.Context, id string) (store.PlayerRecord, error) {
	resp, err := i.invoke(ctx, common.NewGetPlayerRequest(id))
	if err != nil {
		return store.PlayerRecord{}, err
	}
	if resp.Player == nil {
		return store.PlayerRecord{}, store.NotFound("player", id)
	}
	return *resp.Player, nil
}

func (i *rpcStore) FindPlayersByAddress(ctx context.Context, address string) ([]store.PlayerRecord, error) {
	resp, err := i.invoke(ctx, common.NewFindPlayersRequest(address))
	if err != nil {
		return nil, err
	}
	return resp.Players, nil
}

func (i *rpcStore) UpsertPlayer(ctx context.Context, record store.PlayerRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	_, err := i.invoke(ctx, common.NewUpsertPlayerRequest(record))
	return err
}

func (i *rpcStore) DeletePlayer(ctx context.Context, id string) error {
	_, err := i.invoke(ctx, common.NewDeletePlayerRequest(id))
	return err
}

func (i *rpcStore) UpsertBan(ctx context.Context, record store.BanRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	_, err := i.invoke(ctx, common.NewUpsertBanRequest(record))
	return err
}

func (i *rpcStore) ListBans(ctx context.Context) ([]store.BanRecord, error) {
	resp, err := i.invoke(ctx, common.NewRequest(common.MsgTListBans))
	if err != nil {
		return nil, err
	}
	return resp.Bans, nil
}

func (i *rpcStore) UpsertWarpBlock(ctx context.Context, record store.WarpBlockRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	_, err := i.invoke(ctx, common.NewUpsertWarpBlockRequest(record))
	return err
}

func (i *rpcStore) ListWarpBlocks(ctx context.Context) ([]store.WarpBlockRecord, error) {
	resp, err := i.invoke(ctx, common.NewRequest(common.MsgTListWarpBlocks))
	if err != nil {
		return nil, err
	}
	return resp.Warps, nil
}

// Flush asks the owner to persist its store
func (i *rpcStore) Flush(ctx context.Context) error {
	_, err := i.invoke(ctx, common.NewRequest(common.MsgTFlush))
	return err
}

// Info returns the owner's counts, with this client as backend and location
func (i *rpcStore) Info(ctx context.Context) (store.Info, error) {
	resp, err := i.invoke(ctx, common.NewRequest(common.MsgTInfo))
	if err != nil {
		return store.Info{}, err
	}
	var info store.Info
	if resp.Info != nil {
		info = *resp.Info
	}
	info.Backend = "rpc"
	info.Location = strings.Join(i.config.Transport.Endpoints, ",")
	return info, nil
}

// Close closes the transport. The owner's store stays open.
func (i *rpcStore) Close() error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	return i.transport.Close()
}

func (i *rpcStore) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	if i.closed.Load() {
		return nil, store.ErrClosed
	}
	return invokeRPCRequest(ctx, i.shardId, req, i.transport, i.serializer)
}
