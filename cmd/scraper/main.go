// Package main provides the scraper worker entry point: pop ingest jobs,
// fetch and extract pages, persist articles, and feed the summarizer queue.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/story-enricher/internal/adapter/extract"
	"github.com/fairyhunter13/story-enricher/internal/adapter/fetch"
	"github.com/fairyhunter13/story-enricher/internal/adapter/observability"
	"github.com/fairyhunter13/story-enricher/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/story-enricher/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/story-enricher/internal/app"
	"github.com/fairyhunter13/story-enricher/internal/config"
	"github.com/fairyhunter13/story-enricher/internal/usecase/scrape"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg, "scraper")
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

	pool, err := postgres.NewPool(ctx, cfg.DSN())
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer postgres.ClosePool(pool, 10*time.Second)

	fetcher := fetch.New(cfg)
	articles := postgres.NewArticleRepo(pool)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Serve(gctx, cfg.MetricsAddr, app.NewRouter(rq))
	})
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		worker := scrape.New(cfg, rq, rq, fetcher, articles, extract.Content)
		g.Go(func() error { return worker.Run(gctx) })
	}

	slog.Info("scraper running", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scraper stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("scraper stopped")
}
