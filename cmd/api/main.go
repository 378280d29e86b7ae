package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/pitchlabs/pitchscore/internal/adapters/http"
	"github.com/pitchlabs/pitchscore/internal/bootstrap"
	"github.com/pitchlabs/pitchscore/internal/config"
	"github.com/pitchlabs/pitchscore/internal/observability/logging"
	"github.com/pitchlabs/pitchscore/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.New("pitchscore-api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "pitchscore-api", cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics("pitchscore-api")
	httpMetrics.AddGatherer(app.ScoringMetrics.Gatherer())
	router := httpadapter.NewRouter(
		"pitchscore-api",
		app.Sessions,
		app.Scorer,
		app.Ranker,
		app.Indexer,
		app.Blob,
		httpMetrics,
		time.Duration(cfg.BlobSignedURLTTLMinutes)*time.Minute,
	)
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
