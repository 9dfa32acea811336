// Command webhookd runs the thin HTTP ingress that turns a signed GitHub
// issue webhook into a GeneratePlan job (SPEC_FULL 4.13). Its JobQueue is
// in-process, so jobs enqueued here are dequeued only by this process; the
// JobStatusStore and DeduplicationIndex are shared with cmd/worker when
// both point at the same database.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rezkam/agentforge/internal/config"
	"github.com/rezkam/agentforge/internal/dedup"
	"github.com/rezkam/agentforge/internal/dispatch"
	"github.com/rezkam/agentforge/internal/infrastructure/http"
	"github.com/rezkam/agentforge/internal/jobqueue"
	"github.com/rezkam/agentforge/internal/jobstatus"
	"github.com/rezkam/agentforge/internal/jobstatus/sqlstore"
	"github.com/rezkam/agentforge/internal/observability"
	"github.com/rezkam/agentforge/internal/webhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWebhookConfig()
	if err != nil {
		log.Fatalf("load webhook config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid webhook config: %v", err)
	}

	providers, err := observability.Setup(ctx, "agentforge-webhookd", cfg.Observability)
	if err != nil {
		log.Fatalf("setup observability: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.IdleTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Error("observability shutdown failed", "error", err)
		}
	}()

	logger := providers.Logger
	slog.SetDefault(logger)

	statusStore, dedupIndex, err := newDurableBackends(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("setup durable backends: %v", err)
	}

	const defaultQueueSize = 1000
	queue := jobqueue.New(jobqueue.FIFO, defaultQueueSize)
	dispatcher := dispatch.New(queue, statusStore, dedupIndex)

	handler := webhook.New(dispatcher, webhook.Config{
		Secret:          cfg.Secret,
		SignatureHeader: cfg.SignatureHeader,
	})

	server := http.New(handler, http.ServerConfig{
		Host:         cfg.HTTPHost,
		Port:         cfg.HTTPPort,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.InfoContext(ctx, "webhookd started", "host", cfg.HTTPHost, "port", cfg.HTTPPort)

	select {
	case <-ctx.Done():
		logger.InfoContext(ctx, "shutting down webhookd")
	case err := <-errCh:
		if err != nil {
			logger.ErrorContext(ctx, "webhook server exited with error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(ctx, "webhookd shutdown failed", "error", err)
		os.Exit(1)
	}
}

// newDurableBackends mirrors cmd/worker's backend selection so both
// binaries share the status store and dedup index when pointed at the
// same DSN.
func newDurableBackends(ctx context.Context, dbCfg config.DatabaseConfig) (jobstatus.Store, dispatch.Dedup, error) {
	if dbCfg.DSN == "" {
		return jobstatus.NewMemoryStore(), dedup.New(), nil
	}

	driver := sqlstore.DriverSQLite
	if dbCfg.Driver == "postgres" {
		driver = sqlstore.DriverPostgres
	}

	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:          driver,
		DSN:             dbCfg.DSN,
		MaxOpenConns:    dbCfg.MaxOpenConns,
		MaxIdleConns:    dbCfg.MaxIdleConns,
		ConnMaxLifetime: dbCfg.ConnMaxLifetime,
		ConnMaxIdleTime: dbCfg.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}

	return sqlstore.NewStore(db, driver), sqlstore.NewDedup(db, driver), nil
}
