package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/revelly2/smart-store-front/internal/api"
	"github.com/revelly2/smart-store-front/internal/config"
	"github.com/revelly2/smart-store-front/internal/database"
	"github.com/revelly2/smart-store-front/internal/logging"
	"github.com/revelly2/smart-store-front/internal/metrics"
	"github.com/revelly2/smart-store-front/internal/migrations"
	"github.com/revelly2/smart-store-front/internal/seed"
)

func main() {
	_ = godotenv.Load()

	logger, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logger, err = logging.New("info")
		if err != nil {
			log.Fatalf("logger: %v", err)
		}
	}
	defer logger.Sync()

	cfg := config.Load(logger)
	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}
	if _, err := seed.LoadProducts(db, cfg.ProductsCSV, logger); err != nil {
		logger.Warn("product catalog not seeded", zap.Error(err))
	}
	if err := seed.EnsureUsers(db, seed.DefaultAccounts(cfg.AdminPassword, cfg.CashierPassword), logger); err != nil {
		logger.Fatal("seed users", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	handler := api.New(db, cfg.Secret,
		api.WithLogger(logger.Named("api")),
		api.WithMetrics(metrics.New(reg)),
		api.WithStoreName(cfg.StoreName))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Smart Store POS server starting", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
