package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	gateway "github.com/radieske/sports-wager-engine/internal/api-gateway"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
)

func main() {
	cfg := config.LoadFor("api-gateway")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// targets
	h, err := gateway.Router(gateway.Upstreams{WalletURL: cfg.WalletURL, WagerURL: cfg.WagerURL}, log)
	if err != nil {
		log.Fatal("gateway routes", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, nil)
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("api-gateway listening",
			zap.String("addr", srv.Addr),
			zap.String("wallet", cfg.WalletURL),
			zap.String("wager", cfg.WagerURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("gateway failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
