// Package redisstore implements store.IStore on top of a Redis server.
// Every process of a deployment points at the same server, so there is no
// local state and Flush is a no-op.
package redisstore
