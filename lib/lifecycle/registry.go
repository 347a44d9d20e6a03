package lifecycle

import (
	"errors"
	"sort"
	"sync"
)

// ErrRegistryClosed is returned by Add once the Owner has started shutting down
var ErrRegistryClosed = errors.New("connection registry is closed")

// Registry is the Owner's set of live Subordinate connections.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Add registers h, it fails after Close
func (r *Registry) Add(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	r.handles[h.ID()] = h
	return nil
}

// Remove drops the handle with id and reports whether it was registered
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.handles[id]
	delete(r.handles, id)
	return ok
}

// Snapshot returns the registered handles, oldest first. Callers work on the
// copy so no lock is held while writing to sockets.
func (r *Registry) Snapshot() []*Handle {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	sort.Slice(handles, func(i, j int) bool {
		return handles[i].ConnectedAt().Before(handles[j].ConnectedAt())
	})
	return handles
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close rejects further Adds. Registered handles stay until removed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
