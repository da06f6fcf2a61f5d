package server

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/infodancer/chatd/internal/protocol"
)

// Conn wraps a network connection with line framing. Reads happen only
// from the connection's own goroutine; writes are serialized by a
// mutex because pushed messages arrive from other sessions'
// goroutines.
type Conn struct {
	netConn     net.Conn
	reader      *bufio.Reader
	readTimeout time.Duration

	writeMu sync.Mutex
	writer  *bufio.Writer

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps an accepted network connection.
func NewConn(netConn net.Conn, readTimeout time.Duration) *Conn {
	return &Conn{
		netConn:     netConn,
		reader:      bufio.NewReader(netConn),
		readTimeout: readTimeout,
		writer:      bufio.NewWriter(netConn),
		closed:      make(chan struct{}),
	}
}

// ReadFrame reads and parses the next frame. The read deadline is
// renewed per frame; heartbeats keep an idle session alive.
func (c *Conn) ReadFrame() (*protocol.Frame, error) {
	if c.readTimeout > 0 {
		if err := c.netConn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, err
		}
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return protocol.Parse(line)
}

// WriteFrame encodes and sends one frame, flushing immediately.
func (c *Conn) WriteFrame(f *protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.writer.WriteString(f.Encode() + "\n"); err != nil {
		return err
	}
	return c.writer.Flush()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.netConn.RemoteAddr().String()
}

// Close closes the underlying connection. Safe to call multiple times
// and from any goroutine.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.netConn.Close()
	})
	return err
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
