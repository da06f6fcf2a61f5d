package session

import (
	"context"
	"log/slog"
	"time"
)

// Supervisor periodically sweeps idle sessions out of a registry and
// closes their connections.
type Supervisor struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	// onEvict, when set, runs for each evicted peer before it is
	// closed; the dispatcher uses it to clear presence state.
	onEvict func(p Peer)
}

// NewSupervisor creates a sweep loop over the registry. interval is
// how often to sweep; timeout is the inactivity threshold.
func NewSupervisor(registry *Registry, interval, timeout time.Duration, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// OnEvict installs the eviction callback. Must be called before Run.
func (s *Supervisor) OnEvict(fn func(p Peer)) {
	s.onEvict = fn
}

// Run sweeps until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("session supervisor started",
		"interval", s.interval.String(),
		"timeout", s.timeout.String(),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session supervisor stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Supervisor) sweep() {
	idle := s.registry.SweepIdle(s.timeout)
	for _, p := range idle {
		if s.onEvict != nil {
			s.onEvict(p)
		}
		if err := p.Close(); err != nil {
			s.logger.Debug("closing idle connection", "error", err.Error())
		}
	}
	if len(idle) > 0 {
		s.logger.Info("idle sweep complete", "evicted", len(idle))
	}
}
