package client

import (
	"context"
	"fmt"

	"github.com/project-dy/Essentials/lib/logger"
	"github.com/project-dy/Essentials/lib/store"
	"github.com/project-dy/Essentials/rpc/common"
	"github.com/project-dy/Essentials/rpc/serializer"
	"github.com/project-dy/Essentials/rpc/transport"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest is a helper function used for all RPC Clients to send requests
// It takes a shard ID, a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
// This method also checks if the response is an error response and if the type of the response is the expected type
// Every returned error is a *store.Error.
func invokeRPCRequest(ctx context.Context, shardId uint64, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("RPC - failed to serialize %s request: %v", req.MsgType, err))
	}

	respBytes, err := transport.Send(ctx, shardId, reqBytes)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("RPC - %s: %v", req.MsgType, err))
	}

	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("RPC - failed to deserialize %s response: %v", req.MsgType, err))
	}

	// Check if the response is an error response
	if err := resp.AsError(); err != nil {
		if _, ok := err.(*store.Error); ok {
			return nil, err
		}
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, store.NewError(store.RetCInternalError,
			fmt.Sprintf("RPC - Unexpected message type: %s, expected %s", resp.MsgType, req.MsgType))
	}

	return resp, nil
}
