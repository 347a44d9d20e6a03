package db

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Mode tells where the data of a DB lives.
type Mode int

const (
	// ModeLocal keeps the records in this process (embedded store file)
	ModeLocal Mode = iota
	// ModeRemote reads and writes a store owned by somebody else
	// (the Owner's data endpoint or a Redis server)
	ModeRemote
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeRemote:
		return "remote"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

type scheme string

const (
	schemeFile  scheme = "file"
	schemeTCP   scheme = "tcp"
	schemeUnix  scheme = "unix"
	schemeRedis scheme = "redis"
)

// location is a parsed database location
type location struct {
	scheme scheme
	// target is a file path, host:port, socket path or the full redis URL
	target string
}

func (l location) mode() Mode {
	if l.scheme == schemeFile {
		return ModeLocal
	}
	return ModeRemote
}

// parseLocation accepts a plain path, file://path, tcp://host:port,
// unix:///socket/path, redis://... and rediss://...
func parseLocation(raw string) (location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return location{}, fmt.Errorf("empty database location")
	}

	prefix, rest, found := strings.Cut(raw, "://")
	if !found {
		return location{scheme: schemeFile, target: filepath.Clean(raw)}, nil
	}

	switch strings.ToLower(prefix) {
	case "file":
		return location{scheme: schemeFile, target: filepath.Clean(rest)}, nil
	case "tcp":
		if rest == "" || !strings.Contains(rest, ":") {
			return location{}, fmt.Errorf("tcp location needs host:port, got %q", raw)
		}
		return location{scheme: schemeTCP, target: rest}, nil
	case "unix":
		if rest == "" {
			return location{}, fmt.Errorf("unix location needs a socket path, got %q", raw)
		}
		return location{scheme: schemeUnix, target: rest}, nil
	case "redis", "rediss":
		return location{scheme: schemeRedis, target: raw}, nil
	default:
		return location{}, fmt.Errorf("unsupported database location scheme %q", prefix)
	}
}

// SameLocation reports whether two database locations name the same store,
// so "data/database", "./data/database" and "file://data/database" match
func SameLocation(a, b string) bool {
	locA, errA := parseLocation(a)
	locB, errB := parseLocation(b)
	if errA != nil || errB != nil {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	if locA.scheme != locB.scheme {
		return false
	}
	if locA.scheme == schemeFile {
		return sameFile(locA.target, locB.target)
	}
	return locA.target == locB.target
}

// sameFile reports whether two paths name the same file
func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
