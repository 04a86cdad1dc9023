package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/settlement/engine"
	sproducer "github.com/radieske/sports-wager-engine/internal/settlement/producer"
	sharedcache "github.com/radieske/sports-wager-engine/internal/shared/cache"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/db"
	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	walletclient "github.com/radieske/sports-wager-engine/internal/wallet-service/client"
	"github.com/radieske/sports-wager-engine/internal/wager-service/catalog"
	wagerhttp "github.com/radieske/sports-wager-engine/internal/wager-service/http"
	"github.com/radieske/sports-wager-engine/internal/wager-service/oracle"
	"github.com/radieske/sports-wager-engine/internal/wager-service/placement"
	"github.com/radieske/sports-wager-engine/internal/wager-service/producer"
	"github.com/radieske/sports-wager-engine/internal/wager-service/ws"
	"github.com/radieske/sports-wager-engine/internal/wager/repo"
)

func main() {
	cfg := config.LoadFor("wager-service")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	if applied, err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("migrate", zap.Error(err))
	} else {
		log.Info("migrations applied", zap.Strings("versions", applied))
	}

	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka: wager_placed, wager_settled e a fila de retry de crédito
	placedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerPlaced)
	defer placedWriter.Close()
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettled)
	defer settledWriter.Close()
	retryWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCreditRetry)
	defer retryWriter.Close()

	store := repo.NewPostgres(pg)
	wallet := walletclient.New(cfg.WalletURL, cfg.CallTimeout)
	cat := catalog.NewCached(catalog.NewPostgres(pg), rdb, cfg.CatalogCacheTTL, log)

	coord := placement.New(cat, oracle.NewRedis(rdb), wallet, store, producer.NewKafkaPublisher(placedWriter), log, placement.Config{
		CallTimeout:     cfg.CallTimeout,
		PublishTimeout:  cfg.PublishTimeout,
		ReserveAttempts: cfg.ReserveAttempts,
	})
	settlePub := sproducer.NewKafkaPublisher(settledWriter, retryWriter)
	eng := engine.New(store, wallet, settlePub, settlePub, log, cfg.CallTimeout)

	// Hub WebSocket alimentado pelo canal Redis do price-processor
	hub := ws.NewHub(func(*http.Request) bool { return true }, log)
	ws.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log)

	api := wagerhttp.NewServer(log, coord, store, eng, hub.HandleWS)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.All(
		pg.PingContext,
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	))
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8083
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
