package lifecycle

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle is one live lifecycle connection.
type Handle struct {
	id           string
	conn         net.Conn
	remote       string
	connectedAt  time.Time
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newHandle(conn net.Conn, writeTimeout time.Duration) *Handle {
	return &Handle{
		id:           uuid.NewString(),
		conn:         conn,
		remote:       conn.RemoteAddr().String(),
		connectedAt:  time.Now(),
		writeTimeout: writeTimeout,
	}
}

// ID uniquely identifies the connection within the process
func (h *Handle) ID() string { return h.id }

// RemoteAddr is the address of the peer
func (h *Handle) RemoteAddr() string { return h.remote }

// ConnectedAt is the time the connection was established
func (h *Handle) ConnectedAt() time.Time { return h.connectedAt }

// Send writes cmd to the peer. Writes on one handle are serialized and keep
// their order.
func (h *Handle) Send(cmd Command) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.writeTimeout > 0 {
		_ = h.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	}
	return WriteCommand(h.conn, cmd)
}

// Close closes the connection, repeated calls return the first result
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.conn.Close()
	})
	return h.closeErr
}
