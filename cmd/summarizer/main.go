// Package main provides the summarizer worker entry point: pop bounded
// article payloads, call the model with bounded retry, and emit validated
// output envelopes.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/story-enricher/internal/adapter/ai"
	"github.com/fairyhunter13/story-enricher/internal/adapter/observability"
	"github.com/fairyhunter13/story-enricher/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/story-enricher/internal/app"
	"github.com/fairyhunter13/story-enricher/internal/config"
	"github.com/fairyhunter13/story-enricher/internal/domain"
	"github.com/fairyhunter13/story-enricher/internal/usecase/summarize"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg, "summarizer")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	rq, err := redisq.New(cfg.RedisURL)
	if err != nil {
		slog.Error("redis client init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rq.Close() }()
	if err := rq.Ping(ctx); err != nil {
		slog.Error("redis ping failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("redis connected", slog.String("url", observability.MaskURL(cfg.RedisURL)))

	var client domain.AIClient
	switch {
	case cfg.LLMAPIKey != "":
		client = ai.New(cfg)
	case cfg.IsDev():
		slog.Warn("LLM_API_KEY unset, using deterministic stub")
		client = ai.NewMock()
	default:
		slog.Error("LLM_API_KEY is required outside dev")
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Serve(gctx, cfg.MetricsAddr, app.NewRouter(rq))
	})
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		engine := summarize.New(cfg, rq, rq, client)
		g.Go(func() error { return engine.Run(gctx) })
	}

	slog.Info("summarizer running",
		slog.Int("concurrency", cfg.WorkerConcurrency),
		slog.String("model", cfg.LLMModel))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("summarizer stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("summarizer stopped")
}
