package store

import (
	"context"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the interface for the shared player database.
// Implementations are the embedded local store (lstore), the RPC client store
// talking to the owner process (rpc/client) and the Redis store (redisstore).
// All methods are safe for concurrent use.
type IStore interface {
	// GetPlayer returns the player with the given unique id.
	// A missing player is reported with an error matching ErrNotFound.
	GetPlayer(ctx context.Context, id string) (record PlayerRecord, err error)
	// FindPlayersByAddress returns every player that has used the given network address.
	// An empty result is not an error.
	FindPlayersByAddress(ctx context.Context, address string) (records []PlayerRecord, err error)
	// UpsertPlayer inserts or replaces the player with record.ID.
	UpsertPlayer(ctx context.Context, record PlayerRecord) (err error)
	// DeletePlayer removes the player. Deleting a missing player is not an error.
	DeletePlayer(ctx context.Context, id string) (err error)

	// UpsertBan inserts or replaces a ban record.
	UpsertBan(ctx context.Context, record BanRecord) (err error)
	// ListBans returns all ban records.
	ListBans(ctx context.Context) (records []BanRecord, err error)

	// UpsertWarpBlock inserts or replaces the warp block at the record's position.
	UpsertWarpBlock(ctx context.Context, record WarpBlockRecord) (err error)
	// ListWarpBlocks returns all warp block records.
	ListWarpBlocks(ctx context.Context) (records []WarpBlockRecord, err error)

	// Flush persists pending state. Backends without local state return nil.
	Flush(ctx context.Context) (err error)
	// Info returns metadata about the store. Counts may be approximate for remote backends.
	Info(ctx context.Context) (info Info, err error)
	// Close flushes and releases all resources held by the store.
	Close() (err error)
}

// Info describes a store instance.
type Info struct {
	Backend    string `json:"backend"`
	Location   string `json:"location"`
	Players    int    `json:"players"`
	Bans       int    `json:"bans"`
	WarpBlocks int    `json:"warp_blocks"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// ErrNotFound is matched (errors.Is) by every error with code RetCNotFound.
var ErrNotFound = &Error{Code: RetCNotFound, Msg: "record not found"}

// ErrClosed is matched by every error with code RetCClosed.
var ErrClosed = &Error{Code: RetCClosed, Msg: "store is closed"}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is a *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// NotFound creates an error matching ErrNotFound that names the missing id.
func NotFound(kind, id string) *Error {
	return NewError(RetCNotFound, fmt.Sprintf("%s %q not found", kind, id))
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the backend.
	RetCInvalidOperation                    // 3: Invalid operation or argument.
	RetCNotFound                            // 4: Record does not exist.
	RetCOpenFailed                          // 5: Backing file or connection could not be opened.
	RetCClosed                              // 6: Store was already closed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotFound:
		return "NotFound"
	case RetCOpenFailed:
		return "OpenFailed"
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
