package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oakbridge-games/homestead/internal/broadcast"
	"github.com/oakbridge-games/homestead/internal/config"
	"github.com/oakbridge-games/homestead/internal/event"
	"github.com/oakbridge-games/homestead/internal/logger"
	"github.com/oakbridge-games/homestead/internal/pricing"
	"github.com/oakbridge-games/homestead/internal/scheduler"
	"github.com/oakbridge-games/homestead/internal/server"
	"github.com/oakbridge-games/homestead/internal/session"
	"github.com/oakbridge-games/homestead/internal/store"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		// Log config failures with the default handler; ours is not up yet.
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))
	slog.Info("Starting Homestead game server",
		slog.String("version", version),
		slog.String("commit", commit))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions, history, closeStore, err := buildStores(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", slog.Any("error", err))
		os.Exit(-1)
	}
	defer closeStore()

	hub := broadcast.NewHub()
	calc := pricing.NewCalculator(cfg.Economy.Pricing, nil)
	engine := event.NewEngine(cfg.Economy.Events, nil)
	mgr := session.NewManager(sessions, history, calc, engine, hub, cfg.Economy)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	scheduler.NewTaxLoop(mgr, cfg.Economy, cfg.Scheduler).Start(ctx)
	scheduler.NewPriceLoop(mgr, cfg.Scheduler).Start(ctx)
	scheduler.NewScenarioLoop(mgr, cfg.Scheduler, rng).Start(ctx)
	logger.LogSystem("Schedulers started",
		slog.Duration("tax_interval", cfg.Scheduler.TaxInterval),
		slog.Duration("price_interval", cfg.Scheduler.PriceInterval),
		slog.Duration("scenario_interval", cfg.Scheduler.ScenarioInterval))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(mgr, hub).Handler(),
	}
	go func() {
		slog.Info("HTTP server listening", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", slog.Any("error", err))
			cancel()
		}
	}()

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-s:
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", slog.Any("error", err))
	}
}

func buildStores(ctx context.Context, cfg *config.Config) (store.SessionStore, store.PriceHistory, func(), error) {
	switch cfg.Store.Backend {
	case "", "memory":
		slog.Info("Using in-memory storage")
		return store.NewMemoryStore(), store.NewMemoryHistory(cfg.Store.HistorySize), func() {}, nil
	case "postgres":
		start := time.Now()
		db, err := store.NewDB(ctx, cfg.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		sessions, err := store.NewPostgresStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		history, err := store.NewPostgresHistory(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		slog.Info("Database connected successfully",
			slog.String("database", cfg.DB.Database),
			slog.Duration("took", time.Since(start)))
		return sessions, history, func() { db.Close() }, nil
	default:
		return nil, nil, nil, errors.New("unknown store backend: " + cfg.Store.Backend)
	}
}
