package store

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// PlayerRecord is one registered player account.
type PlayerRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash,omitempty"`
	JoinedAt     time.Time `json:"joined_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	JoinCount    uint64    `json:"join_count"`
	RegionCode   string    `json:"region_code,omitempty"`
	Addresses    []string  `json:"addresses,omitempty"` // historical network addresses
}

// Validate reports whether the record can be stored.
func (p PlayerRecord) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return NewError(RetCInvalidOperation, "player id is required")
	}
	return nil
}

// HasAddress reports whether the player has ever used address.
func (p PlayerRecord) HasAddress(address string) bool {
	return slices.Contains(p.Addresses, address)
}

// Clone returns a deep copy of the record.
func (p PlayerRecord) Clone() PlayerRecord {
	p.Addresses = slices.Clone(p.Addresses)
	return p
}

// BanRecord is a banned identity with the addresses and names it was seen with.
type BanRecord struct {
	ID        string   `json:"id"`
	Addresses []string `json:"addresses,omitempty"`
	Names     []string `json:"names,omitempty"`
}

// Validate reports whether the record can be stored.
func (b BanRecord) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return NewError(RetCInvalidOperation, "ban id is required")
	}
	return nil
}

// Clone returns a deep copy of the record.
func (b BanRecord) Clone() BanRecord {
	b.Addresses = slices.Clone(b.Addresses)
	b.Names = slices.Clone(b.Names)
	return b
}

// WarpBlockRecord marks a tile whose block may not be built or broken.
type WarpBlockRecord struct {
	MapName   string `json:"map_name"`
	X         int16  `json:"x"`
	Y         int16  `json:"y"`
	BlockName string `json:"block_name"`
}

// Key identifies the tile; at most one warp block exists per tile.
func (w WarpBlockRecord) Key() string {
	return fmt.Sprintf("%s:%d:%d", w.MapName, w.X, w.Y)
}

// Validate reports whether the record can be stored.
func (w WarpBlockRecord) Validate() error {
	if strings.TrimSpace(w.MapName) == "" {
		return NewError(RetCInvalidOperation, "warp block map name is required")
	}
	return nil
}
