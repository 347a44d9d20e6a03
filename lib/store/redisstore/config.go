package redisstore

import "time"

// Config holds Redis connection settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379/0)
	URL string

	// KeyPrefix namespaces every key so several deployments can share one server
	KeyPrefix string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// DialTimeout bounds the connection check done by Open
	DialTimeout time.Duration
}

// DefaultConfig returns the defaults used when only a URL is configured
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		KeyPrefix:    "essentials",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
	}
}
