package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/revelly2/smart-store-front/internal/client"
	"github.com/revelly2/smart-store-front/internal/config"
	"github.com/revelly2/smart-store-front/internal/console"
	"github.com/revelly2/smart-store-front/internal/logging"
	"github.com/revelly2/smart-store-front/internal/storage"
)

func main() {
	_ = godotenv.Load()

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	logger, err := logging.New(level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load(logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("local state", zap.Error(err))
	}
	defer st.Close()

	api := client.New(cfg.APIBaseURL,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(logger.Named("client")))
	c := console.New(api, st,
		console.WithLogger(logger.Named("console")),
		console.WithTimeout(cfg.RequestTimeout),
		console.WithOutboxInterval(cfg.OutboxInterval))
	if err := c.Start(ctx); err != nil {
		logger.Fatal("start console", zap.Error(err))
	}
	defer c.Close()

	if err := newShell(c, os.Stdout, cfg.StoreName).Run(ctx, os.Stdin); err != nil {
		logger.Fatal("terminal", zap.Error(err))
	}
}
