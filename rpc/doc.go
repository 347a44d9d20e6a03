// Package rpc lets subordinate processes use the owner's local store over the
// network. It is the data relay behind tcp:// and unix:// database locations;
// the lifecycle connection on the coordination port never carries data.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol and configuration structures.
//
//   - transport: Frame transport with tcp and unix implementations.
//
//   - serializer: Message serialization (JSON, GOB).
//
//   - client: store.IStore implementation that forwards to the owner.
//
//   - server: The owner's data endpoint.
package rpc
