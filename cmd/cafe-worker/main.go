package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"cafe/internal/config"
	"cafe/internal/customers"
	"cafe/internal/db"
	"cafe/internal/game"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: 1})
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := game.NewService(db.NewStore(pool, logger), logger, game.Options{})
	gen := customers.NewGenerator(svc, logger, customers.Options{
		MaxLines:   cfg.MaxLines,
		MaxPending: cfg.MaxPending,
	})

	round := func() {
		res, err := gen.RunRound(ctx)
		if err != nil {
			logger.Error("customer round failed", "err", err)
			return
		}
		logger.Info("customer round complete",
			"players", res.Players,
			"orders", res.Orders,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}

	if cfg.RunOnce {
		round()
		logger.Info("worker run-once completed")
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, round); err != nil {
		logger.Error("invalid schedule", "schedule", cfg.Schedule, "err", err)
		os.Exit(1)
	}
	c.Start()
	logger.Info("worker started", "schedule", cfg.Schedule)

	<-ctx.Done()
	// Wait for a round in flight before the pool closes.
	<-c.Stop().Done()
	logger.Info("worker shutdown")
}
