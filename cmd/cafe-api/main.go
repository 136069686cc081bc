package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cafe/internal/api"
	"cafe/internal/auth"
	"cafe/internal/config"
	"cafe/internal/db"
	"cafe/internal/game"
	"cafe/internal/metrics"
	"cafe/internal/notify"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))
	if cfg.MigrateOnStart {
		if err := migrate(ctx, cfg.DatabaseURL, logger); err != nil {
			logger.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	collector := metrics.NewCollector()
	discord, closeDiscord, err := notify.Events(cfg.DiscordWebhookURL, logger)
	if err != nil {
		logger.Error("discord notifier init failed", "err", err)
		os.Exit(1)
	}
	defer closeDiscord()

	gameSvc := game.NewService(db.NewStore(pool, logger), logger, game.Options{
		Events:          game.MultiEvents{collector, discord},
		StartingBalance: cfg.Balance,
		AdminUsernames:  cfg.AdminUsernames,
	})
	if cfg.SeedMenu {
		added, err := gameSvc.SeedMenu(ctx)
		if err != nil {
			logger.Error("seed menu failed", "err", err)
			os.Exit(1)
		}
		if added > 0 {
			logger.Info("menu seeded", "items", added)
		}
	}

	deps := api.Deps{Game: gameSvc, Metrics: collector}
	switch cfg.AuthMode {
	case config.AuthSupabase:
		client := auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		deps.Auth = client
		deps.Accounts = api.SupabaseAccounts{Game: gameSvc, Client: client}
	default:
		issuer := auth.NewLocalIssuer(cfg.JWTSecret, cfg.JWTTTL)
		deps.Auth = issuer
		deps.Accounts = api.LocalAccounts{Game: gameSvc, Issuer: issuer}
	}

	server := api.New(cfg, logger, deps)
	go server.SweepLimiter(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("cafe api listening", "addr", cfg.Addr, "auth_mode", cfg.AuthMode)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func migrate(ctx context.Context, databaseURL string, logger *slog.Logger) error {
	sqlDB, err := db.OpenSQL(databaseURL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	applied, err := db.Migrate(ctx, sqlDB)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", "count", applied)
	return nil
}
