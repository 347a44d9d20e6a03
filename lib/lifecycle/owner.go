package lifecycle

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// OwnerOptions configures an Owner
type OwnerOptions struct {
	// WriteTimeout bounds the exit write to a single Subordinate (0 disables it)
	WriteTimeout time.Duration
}

func DefaultOwnerOptions() OwnerOptions {
	return OwnerOptions{WriteTimeout: 2 * time.Second}
}

// Owner accepts Subordinate connections and broadcasts lifecycle events to them.
type Owner struct {
	listener net.Listener
	registry *Registry
	opts     OwnerOptions

	wg           sync.WaitGroup
	shutdownOnce sync.Once

	accepted  *atomic.Uint64
	exitsSent *atomic.Uint64
}

// NewOwner takes over listener, usually the one won by coord.ElectRole
func NewOwner(listener net.Listener, opts OwnerOptions) *Owner {
	return &Owner{
		listener:  listener,
		registry:  NewRegistry(),
		opts:      opts,
		accepted:  atomic.NewUint64(0),
		exitsSent: atomic.NewUint64(0),
	}
}

// --------------------------------------------------------------------------
// Accept loop
// --------------------------------------------------------------------------

// Serve accepts connections until Shutdown is called or ctx is done (which
// triggers Shutdown). It returns after every connection handler has finished.
func (o *Owner) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, o.Shutdown)
	defer stop()

	Logger.Infof("accepting subordinates on %s (protocol v%d)", o.listener.Addr(), Version)

	for {
		conn, err := o.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || o.registry.Closed() || ctx.Err() != nil {
				break
			}
			Logger.Warningf("accept on %s failed: %v", o.listener.Addr(), err)
			select {
			case <-ctx.Done():
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.handleConnection(conn)
		}()
	}

	// make sure the broadcast is complete before the handlers are awaited
	o.Shutdown()
	o.wg.Wait()
	return nil
}

// handleConnection registers conn and blocks until the peer leaves
func (o *Owner) handleConnection(conn net.Conn) {
	h := newHandle(conn, o.opts.WriteTimeout)

	if err := o.registry.Add(h); err != nil {
		// accepted while shutting down, the peer gets its exit right away
		o.sendExit(h)
		return
	}
	o.accepted.Inc()
	Logger.Infof("subordinate %s connected", h.RemoteAddr())

	left, err := readUntilExit(conn, h.RemoteAddr())

	if !o.registry.Remove(h.ID()) {
		// the broadcaster took over this handle
		return
	}
	_ = h.Close()

	switch {
	case left:
		Logger.Infof("subordinate %s left", h.RemoteAddr())
	case err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed):
		Logger.Infof("subordinate %s disconnected", h.RemoteAddr())
	default:
		Logger.Warningf("subordinate %s dropped: %v", h.RemoteAddr(), err)
	}
}

// --------------------------------------------------------------------------
// Broadcast and shutdown
// --------------------------------------------------------------------------

// Broadcast writes exit to every registered Subordinate, closes and removes
// its handle. Failed writes are expected when a peer is already gone and are
// not reported. It returns the number of handles it went through.
func (o *Owner) Broadcast() int {
	handles := o.registry.Snapshot()
	for _, h := range handles {
		o.registry.Remove(h.ID())
		o.sendExit(h)
	}
	return len(handles)
}

// Shutdown stops accepting and broadcasts exit. Only the first call has an effect.
func (o *Owner) Shutdown() {
	o.shutdownOnce.Do(func() {
		o.registry.Close()
		if err := o.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			Logger.Warningf("closing %s: %v", o.listener.Addr(), err)
		}

		n := o.Broadcast()
		Logger.Infof("sent exit to %d subordinates", n)
	})
}

func (o *Owner) sendExit(h *Handle) {
	if err := h.Send(CommandExit); err != nil {
		Logger.Debugf("exit to %s not delivered: %v", h.RemoteAddr(), err)
	} else {
		o.exitsSent.Inc()
	}
	_ = h.Close()
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Len returns the number of connected Subordinates
func (o *Owner) Len() int { return o.registry.Len() }

// Addr returns the address the Owner listens on
func (o *Owner) Addr() net.Addr { return o.listener.Addr() }

// Accepted returns the number of connections registered so far
func (o *Owner) Accepted() uint64 { return o.accepted.Load() }

// ExitsSent returns the number of exit lines written successfully
func (o *Owner) ExitsSent() uint64 { return o.exitsSent.Load() }
