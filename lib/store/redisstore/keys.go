package redisstore

import "fmt"

// playerKey holds the JSON encoded player record
func (s *Store) playerKey(id string) string {
	return fmt.Sprintf("%s:player:%s", s.prefix, id)
}

// playersIndexKey is the SET of all player ids
func (s *Store) playersIndexKey() string {
	return fmt.Sprintf("%s:idx:players", s.prefix)
}

// addressIndexKey is the SET of player ids that used address
func (s *Store) addressIndexKey(address string) string {
	return fmt.Sprintf("%s:idx:addr:%s", s.prefix, address)
}

// bansKey is the HASH ban id -> JSON ban record
func (s *Store) bansKey() string {
	return fmt.Sprintf("%s:bans", s.prefix)
}

// warpsKey is the HASH tile key -> JSON warp block record
func (s *Store) warpsKey() string {
	return fmt.Sprintf("%s:warps", s.prefix)
}
