package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/infodancer/chatd/internal/archive"
	"github.com/infodancer/chatd/internal/chat"
	"github.com/infodancer/chatd/internal/config"
	"github.com/infodancer/chatd/internal/dispatch"
	"github.com/infodancer/chatd/internal/email"
	"github.com/infodancer/chatd/internal/kv"
	"github.com/infodancer/chatd/internal/logging"
	"github.com/infodancer/chatd/internal/metrics"
	"github.com/infodancer/chatd/internal/pgstore"
	"github.com/infodancer/chatd/internal/server"
	"github.com/infodancer/chatd/internal/session"
	"github.com/infodancer/chatd/internal/verify"
)

// runServe wires the stores, core, dispatcher, and server together and
// runs until a termination signal.
func runServe(cfg config.Config) error {
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	// Metrics are optional; without them everything records to a noop
	// collector.
	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewPrometheusServer(cfg.Metrics.Address, cfg.Metrics.Path)
		collector = metrics.NewPrometheusCollector(metricsServer.Registry())
		go func() {
			if err := metricsServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("metrics server error", "error", err.Error())
			}
		}()
		logger.Info("metrics enabled", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
	}

	hot, err := kv.NewRedis(ctx, kv.RedisOptions{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer hot.Close()

	cold, err := pgstore.Open(ctx, cfg.Postgres.URL, logger)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer cold.Close()

	if err := cold.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	var mail email.Gateway = email.NewNoopGateway(logger)
	if cfg.Email.Enabled {
		mail = email.NewSMTPGateway(email.SMTPOptions{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		}, logger)
	}

	core := chat.NewCore(hot, cold, logger)
	registry := session.NewRegistry(logger)
	codes := verify.NewService(logger)

	// Best-effort sweep of expired verification codes.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				codes.CleanupExpired()
			}
		}
	}()

	dispatcher := dispatch.New(dispatch.Config{
		Core:     core,
		Registry: registry,
		Users:    cold,
		Codes:    codes,
		Mail:     mail,
		Metrics:  collector,
		Logger:   logger,
	})

	// The supervisor and archive worker hold store handles; join them
	// before the deferred closes run.
	var background sync.WaitGroup
	defer func() {
		cancel()
		background.Wait()
	}()

	supervisor := session.NewSupervisor(registry,
		cfg.Timeouts.SweepInterval(),
		cfg.Timeouts.IdleThreshold(),
		logger)
	supervisor.OnEvict(dispatcher.EvictIdle(ctx))
	background.Add(1)
	go func() {
		defer background.Done()
		supervisor.Run(ctx)
	}()

	if !cfg.Archive.Disabled {
		worker := archive.NewWorker(hot, cold, cfg.Archive.ArchiveInterval(), collector, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			worker.Run(ctx)
		}()
	} else {
		logger.Warn("archive worker disabled")
	}

	srv, err := server.New(server.Config{
		Cfg:     &cfg,
		Logger:  logger,
		Metrics: collector,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.SetHandler(func(ctx context.Context, conn *server.Conn) {
		dispatcher.HandleConnection(ctx, conn)
	})

	logger.Info("starting chatd",
		"hostname", cfg.Hostname,
		"listen", cfg.Listen,
	)

	if err := srv.Run(ctx); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, server.ErrServerClosed) {
		return err
	}

	logger.Info("chat server stopped")
	return nil
}
