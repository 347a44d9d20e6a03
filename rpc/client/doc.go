// Package client implements store.IStore on top of the RPC transport, talking
// to the data endpoint of the owner process.
//
// Key Components:
//
//   - NewRPCStore: Factory function that connects the transport and returns a
//     client implementing store.IStore. All operations are forwarded to the
//     owner; errors come back as *store.Error with the owner's RetCode.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:  []string{"127.0.0.1:6001"},
//	    RetryCount: 3,
//	  },
//	}
//	s, err := client.NewRPCStore(common.StoreShardID, config, tcp.NewTCPClientTransport(), serializer.NewJSONSerializer())
//	if err != nil {
//	  return err
//	}
//	defer s.Close()
//	p, err := s.GetPlayer(ctx, id)
//
// Thread Safety:
//
//	The client is safe for concurrent use. Requests are multiplexed over the
//	transport's connections.
package client
