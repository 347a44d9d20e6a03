package base

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/project-dy/Essentials/lib/logger"
	"github.com/project-dy/Essentials/rpc/common"
	"github.com/project-dy/Essentials/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

var (
	// ErrNoConnection is returned when no connection to any endpoint is up
	ErrNoConnection = errors.New("no active connections available")

	// ErrTimeout is returned when the server did not answer within the configured timeout
	ErrTimeout = errors.New("request timed out")
)

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientConnection represents a single net connection
type clientConnection struct {
	endpoint     string
	requestChans *xsync.MapOf[uint64, chan responseResult]
	parent       *clientTransport

	connMu sync.Mutex // Protects conn and serializes writes
	conn   net.Conn
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex uint64 // Atomic counter for Round Robin
	nextRequestID uint64 // Atomic counter for unique request IDs

	// ctx is cancelled by Close and stops every reader and reconnect loop
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector:     connector,
		nextRequestID: 1, // Start from 1
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	_ = t.Close()

	t.config = config
	t.ctx, t.cancel = context.WithCancel(context.Background())

	// Create the configured number of connections per endpoint
	connectionsPerEP := max(1, config.Transport.ConnectionsPerEndpoint)
	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)

	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint:     endpoint,
				requestChans: xsync.NewMapOf[uint64, chan responseResult](),
				parent:       t,
			}

			if err := clientConn.reconnect(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connections = append(connections, clientConn)
			Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, i+1, connectionsPerEP)

			// Start the response reader
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				clientConn.readResponses()
			}()
		}
	}

	// Publish the new connection set
	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	// Fail only if no endpoint could be reached at all
	if len(connections) == 0 {
		t.cancel()
		return fmt.Errorf("failed to connect to any endpoint")
	}

	Logger.Infof("Connected to %d out of %d connections to %d endpoints using %s transport",
		len(connections), len(config.Transport.Endpoints)*connectionsPerEP, len(config.Transport.Endpoints), t.connector.GetName())

	return nil
}

func (t *clientTransport) Send(ctx context.Context, shardId uint64, req []byte) ([]byte, error) {
	var resp []byte

	// We always try at least once
	retrier := retry.NewRetrier(max(1, t.config.Transport.RetryCount), initialBackoff, maxBackoff)
	attempt := 0
	err := retrier.RunContext(ctx, func(ctx context.Context) error {
		attempt++

		// Pick a connection via Round Robin
		connection := t.getNextConnection()
		if connection == nil {
			return ErrNoConnection
		}

		data, err := connection.send(ctx, shardId, req)
		if err != nil {
			Logger.Debugf("Request attempt %d failed: %v", attempt, err)
			return err
		}
		resp = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send request after %d attempts: %w", attempt, err)
	}
	return resp, nil
}

func (t *clientTransport) Close() error {
	// Stop readers and reconnect loops
	if t.cancel != nil {
		t.cancel()
	}

	t.connectionsMu.Lock()
	for _, connection := range t.connections {
		connection.close()
	}
	t.connections = nil
	t.connectionsMu.Unlock()

	// Wait for all readers to exit
	t.wg.Wait()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	if len(t.connections) == 0 {
		return nil
	}
	if len(t.connections) == 1 {
		return t.connections[0]
	}
	index := atomic.AddUint64(&t.nextConnIndex, 1) % uint64(len(t.connections))
	return t.connections[index]
}

// timeout returns the configured request timeout, 0 if disabled
func (t *clientTransport) timeout() time.Duration {
	return time.Duration(t.config.TimeoutSecond) * time.Second
}

// send writes one request frame and waits for the matching response
func (c *clientConnection) send(ctx context.Context, shardId uint64, req []byte) ([]byte, error) {
	// Generate a unique request ID
	requestID := atomic.AddUint64(&c.parent.nextRequestID, 1)

	// Register the response channel before writing, the answer may be fast
	respCh := make(chan responseResult, 1)
	c.requestChans.Store(requestID, respCh)
	defer c.requestChans.Delete(requestID)

	timeout := c.parent.timeout()

	// Write the request under the connection lock
	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		return nil, fmt.Errorf("connection to %s is down", c.endpoint)
	}
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err := writeFrame(c.conn, shardId, requestID, req)
	c.connMu.Unlock()
	if err != nil {
		return nil, err
	}

	// Wait for response or timeout
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case result := <-respCh:
		return result.data, result.err
	case <-timeoutCh:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readResponses reads responses in a loop and distributes them to waiting requests
func (c *clientConnection) readResponses() {
	stopped := c.parent.ctx.Done()
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		// Read the next frame (blocks until data arrives)
		shardID, requestID, data, err := readFrame(conn, nil)
		if err != nil {
			select {
			case <-stopped:
				return
			default:
			}

			// The stream is broken, no pending request will get its answer
			c.failPending(fmt.Errorf("error reading response: %w", err))
			Logger.Warningf("Connection to %s lost: %v", c.endpoint, err)

			// Keep trying in rounds until the endpoint is back or the transport is closed
			for {
				err := c.reconnectWithBackoff()
				if err == nil {
					break
				}
				select {
				case <-stopped:
					return
				default:
				}
				Logger.Errorf("Failed to reconnect to %s: %v", c.endpoint, err)
			}
			Logger.Infof("Reconnected to %s", c.endpoint)
			continue
		}

		// Hand the response to the waiting request
		if respCh, found := c.requestChans.Load(requestID); found {
			select {
			case respCh <- responseResult{data, nil}:
			default:
			}
		} else {
			// Late answer for a request that already timed out
			Logger.Debugf("Received response for unknown request ID %d with shard ID %d", requestID, shardID)
		}
	}
}

// failPending wakes every waiting request with err
func (c *clientConnection) failPending(err error) {
	c.requestChans.Range(func(_ uint64, respCh chan responseResult) bool {
		select {
		case respCh <- responseResult{nil, err}:
		default:
		}
		return true
	})
}

// reconnectWithBackoff retries reconnect until it succeeds, the attempts are
// used up or the transport is closed
func (c *clientConnection) reconnectWithBackoff() error {
	attempts := max(1, c.parent.config.Transport.RetryCount)
	retrier := retry.NewRetrier(attempts, initialBackoff, maxBackoff)
	return retrier.RunContext(c.parent.ctx, func(context.Context) error {
		return c.reconnect()
	})
}

// reconnect establishes or restores a connection to the endpoint
func (c *clientConnection) reconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	// Close the old connection if it exists
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	// Establish a new connection
	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}

	// Apply protocol-specific settings
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, err)
	}

	c.conn = conn
	return nil
}

// close shuts the connection down, the reader goroutine exits on the read error
func (c *clientConnection) close() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
