// Package unix implements the data endpoint transport over Unix domain
// sockets, for owner and subordinates running on the same machine.
//
// The server removes a stale socket file before listening. The default buffer
// size is 64 KB.
package unix
