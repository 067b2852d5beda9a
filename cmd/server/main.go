package main

import (
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	_ "github.com/lib/pq"

	"github.com/rentedmail/wallet-ledger-service/internal/config"
	"github.com/rentedmail/wallet-ledger-service/internal/events/kafka"
	"github.com/rentedmail/wallet-ledger-service/internal/interfaces"
	"github.com/rentedmail/wallet-ledger-service/internal/ledger"
	"github.com/rentedmail/wallet-ledger-service/internal/server"
	"github.com/rentedmail/wallet-ledger-service/internal/storage/memory"
	"github.com/rentedmail/wallet-ledger-service/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var (
		accounts interfaces.AccountStore
		txlog    interfaces.TransactionLog
		idem     interfaces.IdempotencyTracker
	)

	switch cfg.StoreBackend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		if err := db.Ping(); err != nil {
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store := postgres.NewStore(db)
		accounts, txlog, idem = store, store, store
		logger.Info("using postgres store")
	default:
		store := memory.NewStore()
		accounts, txlog, idem = store, store, store
		logger.Info("using in-memory store")
	}

	opts := []ledger.Option{
		ledger.WithRetryBudget(cfg.RetryBudget),
		ledger.WithBackoffBase(cfg.RetryBackoff),
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers)
		defer publisher.Close()
		opts = append(opts, ledger.WithEventPublisher(publisher))
		logger.Info("event publishing enabled", "brokers", cfg.KafkaBrokers)
	}

	engine := ledger.NewEngine(accounts, txlog, idem, logger, opts...)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	server.New(engine, logger).Register(app)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", "env", cfg.Env, "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server stopped", "error", err)
		}
	}()

	<-stop
	logger.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("server exited")
}
