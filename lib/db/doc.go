// Package db is the Data Façade: the single entry point the rest of the
// server uses for player, ban and warp block data.
//
// The configured location decides where the records live:
//
//	/var/lib/essentials/database   embedded store file (ModeLocal)
//	file:///var/lib/essentials/db  same, explicit
//	tcp://10.0.0.5:6001            the Owner's data endpoint (ModeRemote)
//	unix:///run/essentials.sock    the Owner's data endpoint on a socket (ModeRemote)
//	redis://cache:6379/0           a Redis server (ModeRemote)
//
// The Owner always keeps its authoritative copy in ModeLocal. A Subordinate
// either keeps its own pre-seeded local file, or points at a remote location
// and shares the Owner's records. The two are mutually exclusive per
// deployment since a location has exactly one scheme. The lifecycle
// connection never carries data.
//
// A location other than the process's default file is not an error; Open only
// logs a notice, since pointing elsewhere is a deliberate deployment choice.
//
// Key Components:
//
//   - Players: Lookup, LookupByAddress, Upsert and Delete pass through to the
//     store. CreatePlayer registers a new player with a bcrypt password hash
//     and a region code, LoadPlayer updates the player on every session start.
//
//   - Bans: Ban stores a ban and caches it. IsBanned, IsAddressBanned and
//     IsNameBanned answer from the cache without touching the store, so the
//     action filter never waits on I/O. RefreshBans picks up bans made by other
//     processes.
//
//   - Warp blocks: AddWarpBlock, WarpBlocks and the cached IsWarpBlocked.
//
// Errors are *store.Error values; errors.Is(err, store.ErrNotFound) works for
// every location.
package db
