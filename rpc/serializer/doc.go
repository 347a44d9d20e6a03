// Package serializer converts RPC messages to and from bytes for the data
// endpoint transport.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding. Human readable, handy when debugging a
//     subordinate against a running owner. This is the default.
//
//   - gobSerializerImpl: Go's gob encoding. Smaller payloads for large player
//     lists, only usable between Go processes.
//
// Both ends of a connection must use the same serializer; the wire carries no
// format marker.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	serializer := serializer.NewJSONSerializer()
//	data, err := serializer.Serialize(*common.NewGetPlayerRequest(id))
//	// ... send data ...
//	var resp common.Message
//	err = serializer.Deserialize(receivedData, &resp)
package serializer
