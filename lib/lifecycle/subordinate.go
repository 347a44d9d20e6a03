package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"go.uber.org/atomic"
)

var (
	// ErrNotConnected is returned by Run before a successful Connect
	ErrNotConnected = errors.New("subordinate is not connected")

	errClosed = errors.New("subordinate is closed")
)

// UnreachableError is returned by Connect when the Owner can not be reached.
// Without an Owner there is no shared data, so this is fatal at startup.
type UnreachableError struct {
	Address string
	Err     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("owner at %s unreachable: %v", e.Address, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// SubordinateOptions configures a Subordinate
type SubordinateOptions struct {
	// Address of the Owner (host:port)
	Address     string
	DialTimeout time.Duration
	// ReconnectBackoff is the pause between two dial attempts after a drop
	ReconnectBackoff time.Duration
	// ReconnectAttempts is the number of dials per round, rounds repeat until
	// the context ends
	ReconnectAttempts int
	WriteTimeout      time.Duration
	// OnExit runs once when the Owner sends exit
	OnExit func()
}

func DefaultSubordinateOptions(address string) SubordinateOptions {
	return SubordinateOptions{
		Address:           address,
		DialTimeout:       5 * time.Second,
		ReconnectBackoff:  time.Second,
		ReconnectAttempts: 10,
		WriteTimeout:      2 * time.Second,
	}
}

// Subordinate keeps the connection to the Owner.
type Subordinate struct {
	opts SubordinateOptions

	mu     sync.Mutex // protects handle and cancel
	handle *Handle
	cancel context.CancelFunc

	exitOnce   sync.Once
	closed     *atomic.Bool
	connected  *atomic.Bool
	reconnects *atomic.Uint64
}

func NewSubordinate(opts SubordinateOptions) *Subordinate {
	return &Subordinate{
		opts:       opts,
		closed:     atomic.NewBool(false),
		connected:  atomic.NewBool(false),
		reconnects: atomic.NewUint64(0),
	}
}

// Connect dials the Owner once. Failure is an *UnreachableError.
func (s *Subordinate) Connect(ctx context.Context) error {
	if err := s.dial(ctx); err != nil {
		return &UnreachableError{Address: s.opts.Address, Err: err}
	}
	Logger.Infof("connected to owner %s", s.opts.Address)
	return nil
}

// Run reads from the Owner until it sends exit, ctx is done or Close is
// called. Drops are followed by reconnect rounds, they never end Run.
func (s *Subordinate) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.handle == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.cancel = cancel
	s.mu.Unlock()

	// unblock the pending read when ctx ends
	stop := context.AfterFunc(ctx, s.closeHandle)
	defer stop()

	for {
		h := s.current()
		if h == nil {
			return nil
		}

		exit, err := readUntilExit(h.conn, s.opts.Address)
		s.connected.Store(false)
		_ = h.Close()

		if exit {
			Logger.Infof("owner %s requested shutdown", s.opts.Address)
			s.exitOnce.Do(func() {
				if s.opts.OnExit != nil {
					s.opts.OnExit()
				}
			})
			return nil
		}

		if ctx.Err() != nil || s.closed.Load() {
			return nil
		}

		if err == nil {
			err = io.EOF
		}
		Logger.Warningf("lost connection to owner %s: %v, reconnecting", s.opts.Address, err)

		if err := s.reconnect(ctx); err != nil {
			return nil
		}
	}
}

// Close tells the Owner this process leaves and closes the connection.
// It also ends Run.
func (s *Subordinate) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	h, cancel := s.handle, s.cancel
	s.handle = nil
	s.mu.Unlock()

	var err error
	if h != nil {
		if sendErr := h.Send(CommandExit); sendErr != nil {
			Logger.Debugf("exit to owner %s not delivered: %v", s.opts.Address, sendErr)
		}
		err = h.Close()
	}
	if cancel != nil {
		cancel()
	}
	s.connected.Store(false)

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Connected reports whether a connection to the Owner is currently up
func (s *Subordinate) Connected() bool { return s.connected.Load() }

// Reconnects returns how often the connection was restored after a drop
func (s *Subordinate) Reconnects() uint64 { return s.reconnects.Load() }

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *Subordinate) dial(ctx context.Context) error {
	dialer := net.Dialer{Timeout: s.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.opts.Address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Close or the end of Run may have happened while dialing
	if s.closed.Load() || ctx.Err() != nil {
		_ = conn.Close()
		return errClosed
	}
	s.handle = newHandle(conn, s.opts.WriteTimeout)
	s.connected.Store(true)
	return nil
}

// reconnect dials in rounds of ReconnectAttempts until it succeeds or ctx ends
func (s *Subordinate) reconnect(ctx context.Context) error {
	attempts := max(1, s.opts.ReconnectAttempts)
	for round := 1; ; round++ {
		retrier := retry.NewRetrier(attempts, s.opts.ReconnectBackoff, s.opts.ReconnectBackoff)
		err := retrier.RunContext(ctx, s.dial)
		if err == nil {
			s.reconnects.Inc()
			Logger.Infof("reconnected to owner %s", s.opts.Address)
			return nil
		}
		if ctx.Err() != nil || s.closed.Load() {
			return errClosed
		}
		Logger.Warningf("owner %s still unreachable after round %d of %d attempts: %v",
			s.opts.Address, round, attempts, err)
	}
}

func (s *Subordinate) current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Subordinate) closeHandle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		_ = s.handle.Close()
	}
}
