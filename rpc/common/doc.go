// Package common provides the data structures shared by the RPC client and
// server that relay store operations to the owner process.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. One struct serves
//     every operation; which fields are set depends on MsgType. Store errors keep
//     their RetCode across the wire (see Message.AsError).
//
//   - MessageType: Enumeration of all supported store operations plus the
//     control messages success and error.
//
//   - ServerConfig / ClientConfig: Settings for the data endpoint and for
//     clients connecting to it.
package common
