package server

import (
	"context"
	"fmt"

	"github.com/project-dy/Essentials/lib/store"
	"github.com/project-dy/Essentials/rpc/common"
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(ctx context.Context, req *common.Message, s store.IStore) *common.Message {
	// Check for nil store
	if s == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	switch req.MsgType {
	case common.MsgTGetPlayer:
		record, err := s.GetPlayer(ctx, req.ID)
		return common.NewPlayerResponse(record, err)
	case common.MsgTFindPlayers:
		records, err := s.FindPlayersByAddress(ctx, req.Address)
		return common.NewPlayersResponse(records, err)
	case common.MsgTUpsertPlayer:
		if req.Player == nil {
			return common.NewErrorResponse("upsertPlayer: missing player record")
		}
		return common.NewResponse(req.MsgType, s.UpsertPlayer(ctx, *req.Player))
	case common.MsgTDeletePlayer:
		return common.NewResponse(req.MsgType, s.DeletePlayer(ctx, req.ID))
	case common.MsgTUpsertBan:
		if req.Ban == nil {
			return common.NewErrorResponse("upsertBan: missing ban record")
		}
		return common.NewResponse(req.MsgType, s.UpsertBan(ctx, *req.Ban))
	case common.MsgTListBans:
		records, err := s.ListBans(ctx)
		return common.NewBansResponse(records, err)
	case common.MsgTUpsertWarpBlock:
		if req.Warp == nil {
			return common.NewErrorResponse("upsertWarpBlock: missing warp block record")
		}
		return common.NewResponse(req.MsgType, s.UpsertWarpBlock(ctx, *req.Warp))
	case common.MsgTListWarpBlocks:
		records, err := s.ListWarpBlocks(ctx)
		return common.NewWarpBlocksResponse(records, err)
	case common.MsgTFlush:
		return common.NewResponse(req.MsgType, s.Flush(ctx))
	case common.MsgTInfo:
		info, err := s.Info(ctx)
		return common.NewInfoResponse(info, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
