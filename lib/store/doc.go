// Package store defines the shared player database used by every game-server
// process of one deployment: player accounts, bans and warp blocks.
//
// The package focuses on:
//   - A unified interface (IStore) for record operations across different backends
//   - Typed errors (Error with a RetCode) that survive the trip over the wire
//
// Key Components:
//
//   - IStore Interface: The core abstraction. The data façade (lib/db) and the
//     RPC server (rpc/server) only ever talk to an IStore, so the backend is a
//     deployment decision and not a code change.
//
//   - Records: PlayerRecord, BanRecord and WarpBlockRecord. Records are plain
//     values; backends copy them on the way in and out.
//
//   - Error System: Every backend reports failures as *Error. Use errors.Is with
//     ErrNotFound or ErrClosed to test for the common cases, or inspect Code.
//
// Implementations:
//
//	- Local Store (lstore): Embedded, bbolt file backed store. Used by the
//	  owner process for the authoritative copy and by subordinates that keep
//	  their own cache file.
//	  Available in the "github.com/project-dy/Essentials/lib/store/lstore" package.
//
//	- Remote Store (rpc/client): Talks to the owner's local store through the
//	  data endpoint. Available in the "github.com/project-dy/Essentials/rpc/client" package.
//
//	- Redis Store (redisstore): Keeps all records in a Redis server shared by
//	  every process. Available in the "github.com/project-dy/Essentials/lib/store/redisstore" package.
//
// All implementations pass the conformance suite in lib/store/storetesting.
package store
