package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/db"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	whttp "github.com/radieske/sports-wager-engine/internal/wallet-service/http"
	wrepo "github.com/radieske/sports-wager-engine/internal/wallet-service/repo"
)

func main() {
	cfg := config.LoadFor("wallet-service")

	// Inicializa logger estruturado
	log, err := logger.New("wallet-service", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", "wallet-service"), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Conexão com Postgres para o ledger
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	applied, err := db.Migrate(ctx, pg)
	if err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	log.Info("migrations applied", zap.Strings("versions", applied))

	api := whttp.NewServer(log, wrepo.NewPostgres(pg))

	// Servidor de métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, pg.PingContext)
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8082
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("api srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
