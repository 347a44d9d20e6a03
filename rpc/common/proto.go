package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/project-dy/Essentials/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	ID      string `json:"id,omitempty"`      // Used for: GetPlayer, DeletePlayer
	Address string `json:"address,omitempty"` // Used for: FindPlayers

	// Record fields (request for upserts, response for reads)
	Player  *store.PlayerRecord     `json:"player,omitempty"`
	Players []store.PlayerRecord    `json:"players,omitempty"`
	Ban     *store.BanRecord        `json:"ban,omitempty"`
	Bans    []store.BanRecord       `json:"bans,omitempty"`
	Warp    *store.WarpBlockRecord  `json:"warp,omitempty"`
	Warps   []store.WarpBlockRecord `json:"warps,omitempty"`
	Info    *store.Info             `json:"info,omitempty"`

	// Response only fields
	ErrCode store.RetCode `json:"err_code,omitempty"` // Code of a *store.Error, RetCSuccess otherwise
	Err     string        `json:"err,omitempty"`      // Empty if no error, otherwise contains the error message
}

// AsError reconstructs the error carried by a response, nil if there is none.
// Store errors keep their code, so errors.Is(err, store.ErrNotFound) works on
// the client side.
func (m *Message) AsError() error {
	if m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	if m.ErrCode != store.RetCSuccess {
		return store.NewError(m.ErrCode, m.Err)
	}
	return fmt.Errorf("rpc: %s", m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewGetPlayerRequest creates a new GetPlayer request
func NewGetPlayerRequest(id string) *Message {
	return &Message{MsgType: MsgTGetPlayer, ID: id}
}

// NewFindPlayersRequest creates a new FindPlayers request
func NewFindPlayersRequest(address string) *Message {
	return &Message{MsgType: MsgTFindPlayers, Address: address}
}

// NewUpsertPlayerRequest creates a new UpsertPlayer request
func NewUpsertPlayerRequest(record store.PlayerRecord) *Message {
	return &Message{MsgType: MsgTUpsertPlayer, Player: &record}
}

// NewDeletePlayerRequest creates a new DeletePlayer request
func NewDeletePlayerRequest(id string) *Message {
	return &Message{MsgType: MsgTDeletePlayer, ID: id}
}

// NewUpsertBanRequest creates a new UpsertBan request
func NewUpsertBanRequest(record store.BanRecord) *Message {
	return &Message{MsgType: MsgTUpsertBan, Ban: &record}
}

// NewUpsertWarpBlockRequest creates a new UpsertWarpBlock request
func NewUpsertWarpBlockRequest(record store.WarpBlockRecord) *Message {
	return &Message{MsgType: MsgTUpsertWarpBlock, Warp: &record}
}

// NewRequest creates a request that carries no arguments (ListBans, ListWarpBlocks, Flush, Info)
func NewRequest(t MessageType) *Message {
	return &Message{MsgType: t}
}

// NewResponse creates a response of type t that only reports err
func NewResponse(t MessageType, err error) *Message {
	msg := &Message{MsgType: t}
	msg.setErr(err)
	return msg
}

// NewPlayerResponse creates a new GetPlayer response
func NewPlayerResponse(record store.PlayerRecord, err error) *Message {
	msg := &Message{MsgType: MsgTGetPlayer}
	if err == nil {
		msg.Player = &record
	}
	msg.setErr(err)
	return msg
}

// NewPlayersResponse creates a new FindPlayers response
func NewPlayersResponse(records []store.PlayerRecord, err error) *Message {
	msg := &Message{MsgType: MsgTFindPlayers, Players: records}
	msg.setErr(err)
	return msg
}

// NewBansResponse creates a new ListBans response
func NewBansResponse(records []store.BanRecord, err error) *Message {
	msg := &Message{MsgType: MsgTListBans, Bans: records}
	msg.setErr(err)
	return msg
}

// NewWarpBlocksResponse creates a new ListWarpBlocks response
func NewWarpBlocksResponse(records []store.WarpBlockRecord, err error) *Message {
	msg := &Message{MsgType: MsgTListWarpBlocks, Warps: records}
	msg.setErr(err)
	return msg
}

// NewInfoResponse creates a new Info response
func NewInfoResponse(info store.Info, err error) *Message {
	msg := &Message{MsgType: MsgTInfo}
	if err == nil {
		msg.Info = &info
	}
	msg.setErr(err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

func (m *Message) setErr(err error) {
	if err == nil {
		return
	}
	m.Err = err.Error()
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		m.ErrCode = storeErr.Code
		m.Err = storeErr.Msg
	} else {
		m.ErrCode = store.RetCInternalError
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var msgTypeNames = map[MessageType]string{
	MsgTSuccess:         "success",
	MsgTError:           "error",
	MsgTGetPlayer:       "getPlayer",
	MsgTFindPlayers:     "findPlayers",
	MsgTUpsertPlayer:    "upsertPlayer",
	MsgTDeletePlayer:    "deletePlayer",
	MsgTUpsertBan:       "upsertBan",
	MsgTListBans:        "listBans",
	MsgTUpsertWarpBlock: "upsertWarpBlock",
	MsgTListWarpBlocks:  "listWarpBlocks",
	MsgTFlush:           "flush",
	MsgTInfo:            "info",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for msgType, name := range msgTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTGetPlayer       // Get a player by id
	MsgTFindPlayers     // Find players by network address
	MsgTUpsertPlayer    // Insert or replace a player
	MsgTDeletePlayer    // Delete a player
	MsgTUpsertBan       // Insert or replace a ban
	MsgTListBans        // List all bans
	MsgTUpsertWarpBlock // Insert or replace a warp block
	MsgTListWarpBlocks  // List all warp blocks
	MsgTFlush           // Persist pending state on the owner
	MsgTInfo            // Store metadata
)
