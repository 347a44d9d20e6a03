// Package tcp implements the TCP transport for the data endpoint. It provides
// TCP specific connectors (socket options such as TCP_NODELAY, keep-alive and
// linger) on top of the base package, which holds the framing, reconnect and
// accept logic.
//
// The default server buffer size is 512 KB.
package tcp
