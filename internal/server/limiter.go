package server

import "sync/atomic"

// ConnectionLimiter caps concurrent client connections. Acquire and
// Release bracket a connection's lifetime; turned-away attempts are
// counted so operators can see clients bouncing off the cap.
type ConnectionLimiter struct {
	limit    int64
	active   atomic.Int64
	rejected atomic.Int64
}

// NewConnectionLimiter creates a limiter allowing at most max
// concurrent connections.
func NewConnectionLimiter(max int) *ConnectionLimiter {
	return &ConnectionLimiter{limit: int64(max)}
}

// Acquire claims a slot, reporting false when the server is full.
func (l *ConnectionLimiter) Acquire() bool {
	for {
		n := l.active.Load()
		if n >= l.limit {
			l.rejected.Add(1)
			return false
		}
		if l.active.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release frees a slot claimed by Acquire.
func (l *ConnectionLimiter) Release() {
	l.active.Add(-1)
}

// Active returns the number of connections currently holding a slot.
func (l *ConnectionLimiter) Active() int64 {
	return l.active.Load()
}

// Rejected returns the number of connection attempts turned away at
// the cap.
func (l *ConnectionLimiter) Rejected() int64 {
	return l.rejected.Load()
}
