// Package server owns the TCP listener and the per-connection framing.
// Protocol semantics live in the dispatch package; this one only
// accepts connections, enforces limits and deadlines, and hands framed
// lines to a handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/infodancer/chatd/internal/config"
	"github.com/infodancer/chatd/internal/logging"
	"github.com/infodancer/chatd/internal/metrics"
)

// ConnectionHandler runs the protocol loop for one accepted
// connection. It must close the connection before returning or leave
// it for the server's teardown.
type ConnectionHandler func(ctx context.Context, conn *Conn)

// Server accepts chat connections on a single listener.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics metrics.Collector
	handler ConnectionHandler
	limiter *ConnectionLimiter

	mu       sync.Mutex
	listener net.Listener
}

// Config holds configuration for creating a new Server.
type Config struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	Metrics metrics.Collector
}

// New creates a new Server with the given configuration.
func New(sc Config) (*Server, error) {
	logger := sc.Logger
	if logger == nil {
		logger = logging.NewLogger(sc.Cfg.LogLevel)
	}
	collector := sc.Metrics
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	return &Server{
		cfg:     sc.Cfg,
		logger:  logger,
		metrics: collector,
		limiter: NewConnectionLimiter(sc.Cfg.Limits.MaxConnections),
	}, nil
}

// SetHandler sets the connection handler. Must be called before Run.
func (s *Server) SetHandler(handler ConnectionHandler) {
	s.handler = handler
}

// Run listens and serves until the context is cancelled. Each accepted
// connection gets its own goroutine; Run waits for all of them before
// returning.
func (s *Server) Run(ctx context.Context) error {
	if s.handler == nil {
		return errors.New("no connection handler configured")
	}

	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("server listening",
		slog.String("address", s.cfg.Listen),
		slog.Int("max_connections", s.cfg.Limits.MaxConnections),
	)

	// Close the listener on cancellation to unblock Accept.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	var wg sync.WaitGroup
	for {
		netConn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", slog.String("error", err.Error()))
			continue
		}

		if !s.limiter.Acquire() {
			s.metrics.ConnectionRejected()
			s.logger.Warn("connection limit reached, rejecting",
				slog.String("remote", netConn.RemoteAddr().String()),
				slog.Int64("rejected_total", s.limiter.Rejected()),
			)
			_ = netConn.Close()
			continue
		}

		wg.Add(1)
		go func(nc net.Conn) {
			defer wg.Done()
			defer s.limiter.Release()
			s.serve(ctx, nc)
		}(netConn)
	}

	s.logger.Info("server shutting down")
	wg.Wait()
	s.logger.Info("server stopped")

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrServerClosed
}

func (s *Server) serve(ctx context.Context, netConn net.Conn) {
	conn := NewConn(netConn, s.cfg.Timeouts.ReadTimeout())

	logger := s.logger.With(slog.String("remote", conn.RemoteAddr()))
	ctx = logging.WithContext(ctx, logger)

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()
	defer conn.Close()

	logger.Debug("connection accepted")
	s.handler(ctx, conn)
	logger.Debug("connection finished")
}

// Shutdown closes the listener; in-flight connections drain through
// Run's wait group.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// ActiveConnections returns the current connection count.
func (s *Server) ActiveConnections() int64 {
	return s.limiter.Active()
}
