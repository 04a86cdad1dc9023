package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/price-processor/cache"
	"github.com/radieske/sports-wager-engine/internal/price-processor/consumer"
	"github.com/radieske/sports-wager-engine/internal/price-processor/pubsub"
	sharedcache "github.com/radieske/sports-wager-engine/internal/shared/cache"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
)

func main() {
	cfg := config.LoadFor("price-processor-worker")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Configura o consumer Kafka (consumer group price-processor)
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicPriceUpdates, "price-processor")
	defer reader.Close()

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Cache:       cache.NewRedisCache(redisClient, cfg.OddsCacheTTL),
		Broadcaster: pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel),
	}

	// Servidor HTTP para métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("price-processor started", zap.String("consume", cfg.TopicPriceUpdates), zap.String("channel", cfg.RedisPubSubChannel))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("price-processor stopped")
}
