package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pitchlabs/pitchscore/internal/bootstrap"
	"github.com/pitchlabs/pitchscore/internal/config"
	"github.com/pitchlabs/pitchscore/internal/core/domain"
	"github.com/pitchlabs/pitchscore/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New("pitchscore-worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "pitchscore-worker", cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: app.ScoringMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	// Each completed-session event scores independently; the semaphore keeps
	// at most WorkerConcurrency model calls in flight.
	sem := make(chan struct{}, cfg.WorkerConcurrency)
	var wg sync.WaitGroup
	jobTimeout := time.Duration(cfg.TierTimeoutSecs*3+30) * time.Second

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "concurrency", cfg.WorkerConcurrency)
	err = app.Queue.SubscribeSessionCompleted(ctx, func(handlerCtx context.Context, tenantID, sessionID string) error {
		select {
		case sem <- struct{}{}:
		case <-handlerCtx.Done():
			return handlerCtx.Err()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			scoreOne(handlerCtx, app, tenantID, sessionID, jobTimeout)
		}()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}

	wg.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

func scoreOne(ctx context.Context, app *bootstrap.App, tenantID, sessionID string, timeout time.Duration) {
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	record, err := app.Scorer.ScoreSession(jobCtx, tenantID, sessionID, "auto")
	switch {
	case domain.IsKind(err, domain.ErrAlreadyScoring):
		// Another judge or a replayed event got here first.
		slog.Info("scoring_skipped", "tenant_id", tenantID, "session_id", sessionID)
	case err != nil:
		slog.Error("scoring_failed", "tenant_id", tenantID, "session_id", sessionID, "error", err)
	default:
		slog.Info("session_scored",
			"tenant_id", tenantID,
			"session_id", sessionID,
			"method", record.MethodUsed,
			"total", record.TotalScore,
		)
	}
}
