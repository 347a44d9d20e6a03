// Package lstore implements the embedded, file-backed store based on the
// store.IStore interface. It is the authoritative copy of the shared player
// database when this process is the owner, and the local cache when a
// subordinate is deployed with its own database file.
//
// Implementation Details:
//
//   - Memory first: Open reads the whole bbolt file into three maps (players,
//     bans, warp blocks). Reads and writes never touch the disk.
//
//   - Single lock: one sync.RWMutex guards all maps. Records are copied on the
//     way in and out, so a caller can never observe or mutate a half written
//     record.
//
//   - Versioned flush: each mutation bumps a version counter. Flush encodes a
//     snapshot under the read lock, writes it in one bbolt transaction and only
//     then marks that version as flushed. A flush with nothing new is a no-op.
//
//   - File lock: bbolt holds an exclusive lock on the file for the lifetime of
//     the store. A second process opening the same path fails after
//     Options.OpenTimeout with a RetCOpenFailed error instead of corrupting it.
//
// Usage Example:
//
//	s, err := lstore.Open("data/database", lstore.DefaultOptions())
//	if err != nil {
//		return err // *store.Error with RetCOpenFailed
//	}
//	defer s.Close()
//
//	_ = s.UpsertPlayer(ctx, store.PlayerRecord{ID: "uuid-1", Name: "alice"})
//	p, err := s.GetPlayer(ctx, "uuid-1")
//
// The store does not replicate. Sharing data between processes is done by
// pointing the other processes at a remote location (see lib/db).
package lstore
