// Package server implements the data endpoint of the owner process. It decodes
// requests from subordinates and runs them against the owner's local store, so
// a subordinate configured with a tcp:// or unix:// database location shares
// the owner's records instead of keeping its own copy.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a store.IStore.
//
//   - NewIStoreServerAdapter: Translates RPC requests to store.IStore method calls.
//     Store errors are returned with their RetCode.
//
//   - RPCServer: Routes frames by shard id to the registered store. Serve blocks
//     until its context is done; the registered stores stay open and are closed
//     by their owner.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:6001"},
//	}
//	s := server.NewRPCServer(config, tcp.NewTCPDefaultServerTransport(), serializer.NewJSONSerializer())
//	s.RegisterStore(common.StoreShardID, localStore)
//	go s.Serve(ctx)
//
// Thread Safety:
//
//	Requests are processed concurrently, bounded per connection by
//	ServerTransportConfig.WorkersPerConn. Stores must be safe for concurrent use.
package server
