// Package base implements the transport logic shared by the tcp and unix
// transports: framing, request correlation, reconnects and the accept loop.
// Protocol specifics are injected through IClientConnector and IServerConnector.
//
// Frame format (all integers big endian):
//
//	8 bytes shard id | 8 bytes request id | 4 bytes length | payload
//
// Key Components:
//
//   - clientTransport: Keeps one or more connections per endpoint and picks
//     them round robin. Every request gets a fresh id; a reader goroutine per
//     connection hands responses to the waiting caller. A broken stream fails
//     all pending requests at once and is re-dialed with backoff
//     (flowchartsman/retry). Send itself retries on another attempt.
//
//   - serverTransport: Accepts connections until the context passed to Listen
//     is done, then closes the listener and every open connection and waits
//     for in-flight requests. Each connection processes up to WorkersPerConn
//     requests concurrently, reading into pooled buffers.
//
// Thread Safety:
//
//	All public methods are thread-safe. Writes to a connection are serialized
//	by a mutex; reads happen on a single goroutine per connection.
package base
