package coord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/project-dy/Essentials/lib/logger"
)

var Logger = logger.GetLogger("coord")

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 6000
)

// winsock reports a busy address with its own errno
const wsaeaddrinuse syscall.Errno = 10048

// Role is the part a process plays in its coordination domain.
type Role int

const (
	RoleOwner Role = iota
	RoleSubordinate
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleSubordinate:
		return "subordinate"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Election is the outcome of ElectRole.
type Election struct {
	Role Role
	// Address is the coordination address (host:port), empty when disabled
	Address string
	// Listener is the bound coordination socket, only set for RoleOwner.
	// The lifecycle acceptor takes it over.
	Listener net.Listener
}

// FatalError is returned when the coordination port can not be bound for any
// reason other than another process holding it.
type FatalError struct {
	Address string
	Err     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("coordination port %s unusable: %v", e.Address, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// ElectRole binds host:port. A successful bind makes this process the Owner,
// "address in use" makes it a Subordinate and everything else is fatal.
// It never blocks longer than the bind itself.
func ElectRole(ctx context.Context, host string, port int) (Election, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", address)
	if err == nil {
		Logger.Infof("bound %s, running as %s", address, RoleOwner)
		return Election{Role: RoleOwner, Address: address, Listener: listener}, nil
	}

	if isAddrInUse(err) {
		Logger.Infof("%s is taken, running as %s", address, RoleSubordinate)
		return Election{Role: RoleSubordinate, Address: address}, nil
	}

	return Election{}, &FatalError{Address: address, Err: err}
}

// Disabled returns the election of a process that runs without coordination.
// It owns its data but has no lifecycle listener.
func Disabled() Election {
	return Election{Role: RoleOwner}
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == wsaeaddrinuse
}
