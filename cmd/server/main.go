package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"yellowcore-go/internal/api"
	"yellowcore-go/internal/auth"
	"yellowcore-go/internal/config"
	"yellowcore-go/internal/database"
	"yellowcore-go/internal/ledger"
	"yellowcore-go/internal/logger"
	"yellowcore-go/internal/pricefeed"
	"yellowcore-go/internal/trader"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Trade journal
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to open trade journal", zap.Error(err))
	}
	journal := database.NewJournal(db, log)
	log.Info("Trade journal ready", zap.String("dsn", cfg.Database.DSN))

	feedOpts, err := cfg.Feed.PriceFeedOptions()
	if err != nil {
		log.Fatal("Invalid feed configuration", zap.Error(err))
	}
	feed, err := pricefeed.New(log, feedOpts)
	if err != nil {
		log.Fatal("Failed to create price feed", zap.Error(err))
	}
	feed.Start()

	l := ledger.New(log)
	engine := trader.NewEngine(log, l, feed, journal)

	server := api.NewAPIServer(cfg.Server, api.Services{
		Auth:    auth.NewService(log, cfg.Auth.BcryptCost),
		Ledger:  l,
		Feed:    feed,
		Engine:  engine,
		Journal: journal,
	}, log)
	server.Start()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}
	feed.Stop()

	if err := l.Audit(); err != nil {
		log.Error("Ledger audit failed at shutdown", zap.Error(err))
	}
	log.Info("Server has been shut down.")
}
