// Package session tracks live connections and their binding to
// authenticated users. At most one connection is bound per user; a
// second login evicts the first.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/infodancer/chatd/internal/protocol"
)

// Peer is a live client connection as the registry sees it.
// Implemented by server.Conn.
type Peer interface {
	WriteFrame(f *protocol.Frame) error
	RemoteAddr() string
	Close() error
}

type binding struct {
	peer         Peer
	lastActivity time.Time
}

// Registry maps authenticated users to their live connection and
// tracks activity for the idle sweep. Unauthenticated connections are
// tracked too so the sweep can reap them.
type Registry struct {
	mu     sync.RWMutex
	bound  map[int64]*binding
	users  map[Peer]int64
	conns  map[Peer]time.Time
	logger *slog.Logger

	// now is the clock; replaced in tests to drive the idle sweep.
	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		bound:  make(map[int64]*binding),
		users:  make(map[Peer]int64),
		conns:  make(map[Peer]time.Time),
		logger: logger,
		now:    time.Now,
	}
}

// AddConnection registers a connection before authentication.
func (r *Registry) AddConnection(p Peer) {
	r.mu.Lock()
	r.conns[p] = r.now()
	r.mu.Unlock()
}

// RemoveConnection forgets a connection entirely and returns the user
// it was bound to, if any. The second return is false for connections
// that never authenticated.
func (r *Registry) RemoveConnection(p Peer) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, p)
	userID, ok := r.users[p]
	if !ok {
		return 0, false
	}
	delete(r.users, p)

	// Only drop the binding if this peer still owns it; an evicted
	// connection must not unbind its replacement.
	if b, bound := r.bound[userID]; bound && b.peer == p {
		delete(r.bound, userID)
	}
	return userID, true
}

// Bind associates a user with a connection, returning the previously
// bound peer when the login displaces one.
func (r *Registry) Bind(userID int64, p Peer) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted Peer
	if prev, ok := r.bound[userID]; ok && prev.peer != p {
		evicted = prev.peer
		delete(r.users, prev.peer)
	}

	r.bound[userID] = &binding{peer: p, lastActivity: r.now()}
	r.users[p] = userID
	delete(r.conns, p)

	return evicted, evicted != nil
}

// Lookup returns the live connection for a user.
func (r *Registry) Lookup(userID int64) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bound[userID]
	if !ok {
		return nil, false
	}
	return b.peer, true
}

// UserFor returns the user bound to a connection.
func (r *Registry) UserFor(p Peer) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.users[p]
	return id, ok
}

// TouchConn records activity for a connection whether or not it has
// authenticated, so a client still exchanging pre-login frames is not
// swept as idle. Called on every inbound frame including heartbeats.
func (r *Registry) TouchConn(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if userID, ok := r.users[p]; ok {
		if b, bound := r.bound[userID]; bound {
			b.lastActivity = r.now()
		}
		return
	}
	if _, ok := r.conns[p]; ok {
		r.conns[p] = r.now()
	}
}

// Online returns the ids of all bound users.
func (r *Registry) Online() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.bound))
	for id := range r.bound {
		ids = append(ids, id)
	}
	return ids
}

// SweepIdle removes every binding and unauthenticated connection whose
// last activity is older than the threshold, and returns the evicted
// peers for the caller to close.
func (r *Registry) SweepIdle(threshold time.Duration) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-threshold)
	var idle []Peer

	for userID, b := range r.bound {
		if b.lastActivity.Before(cutoff) {
			r.logger.Info("evicting idle session", "user_id", userID, "remote", b.peer.RemoteAddr())
			delete(r.bound, userID)
			delete(r.users, b.peer)
			idle = append(idle, b.peer)
		}
	}
	for p, added := range r.conns {
		if added.Before(cutoff) {
			r.logger.Info("evicting idle unauthenticated connection", "remote", p.RemoteAddr())
			delete(r.conns, p)
			idle = append(idle, p)
		}
	}
	return idle
}
