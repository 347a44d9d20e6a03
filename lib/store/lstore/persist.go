package lstore

import (
	"encoding/json"
	"fmt"

	"github.com/project-dy/Essentials/lib/store"
	"go.etcd.io/bbolt"
)

const (
	bucketPlayers = "players"
	bucketBans    = "bans"
	bucketWarps   = "warps"
)

var buckets = []string{bucketPlayers, bucketBans, bucketWarps}

// snapshot is an encoded copy of all tables, taken under the read lock.
type snapshot struct {
	version uint64
	data    map[string]map[string][]byte
}

// snapshot encodes every table. Caller must hold s.mu.
func (s *Store) snapshot() (snapshot, error) {
	snap := snapshot{
		version: s.version,
		data: map[string]map[string][]byte{
			bucketPlayers: make(map[string][]byte, len(s.players)),
			bucketBans:    make(map[string][]byte, len(s.bans)),
			bucketWarps:   make(map[string][]byte, len(s.warps)),
		},
	}

	for id, record := range s.players {
		raw, err := json.Marshal(record)
		if err != nil {
			return snap, err
		}
		snap.data[bucketPlayers][id] = raw
	}
	for id, record := range s.bans {
		raw, err := json.Marshal(record)
		if err != nil {
			return snap, err
		}
		snap.data[bucketBans][id] = raw
	}
	for key, record := range s.warps {
		raw, err := json.Marshal(record)
		if err != nil {
			return snap, err
		}
		snap.data[bucketWarps][key] = raw
	}
	return snap, nil
}

// write replaces the file contents with snap in a single transaction.
func (s *Store) write(snap snapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if tx.Bucket([]byte(name)) != nil {
				if err := tx.DeleteBucket([]byte(name)); err != nil {
					return err
				}
			}
			bucket, err := tx.CreateBucket([]byte(name))
			if err != nil {
				return err
			}
			for key, value := range snap.data[name] {
				if err := bucket.Put([]byte(key), value); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// load reads every bucket into memory, creating missing buckets first.
func (s *Store) load() error {
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("initializing buckets: %w", err)
	}

	return s.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(bucketPlayers)).ForEach(func(k, v []byte) error {
			var record store.PlayerRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("decode player %q: %w", k, err)
			}
			s.players[record.ID] = record
			return nil
		}); err != nil {
			return err
		}

		if err := tx.Bucket([]byte(bucketBans)).ForEach(func(k, v []byte) error {
			var record store.BanRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("decode ban %q: %w", k, err)
			}
			s.bans[record.ID] = record
			return nil
		}); err != nil {
			return err
		}

		return tx.Bucket([]byte(bucketWarps)).ForEach(func(k, v []byte) error {
			var record store.WarpBlockRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("decode warp block %q: %w", k, err)
			}
			s.warps[record.Key()] = record
			return nil
		})
	})
}
