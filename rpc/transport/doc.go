// Package transport defines the interfaces for moving RPC frames between the
// owner's data endpoint and its clients. Implementations live in the tcp and
// unix subpackages and share their logic through the base package.
//
// Transports move opaque byte slices; serialization is handled by the
// serializer package.
package transport
