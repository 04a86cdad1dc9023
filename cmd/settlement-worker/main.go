package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/settlement/consumer"
	"github.com/radieske/sports-wager-engine/internal/settlement/engine"
	"github.com/radieske/sports-wager-engine/internal/settlement/producer"
	"github.com/radieske/sports-wager-engine/internal/settlement/retry"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/db"
	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	walletclient "github.com/radieske/sports-wager-engine/internal/wallet-service/client"
	"github.com/radieske/sports-wager-engine/internal/wager/repo"
)

func main() {
	cfg := config.LoadFor("settlement-worker")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Kafka consumers: selection_resolved e wager_credit_retry
	resolvedReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicSelectionResolved, "settlement")
	defer resolvedReader.Close()
	retryReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicCreditRetry, "settlement-credit-retry")
	defer retryReader.Close()

	// Kafka producers: resultados, retry e DLQs
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettled)
	defer settledWriter.Close()
	retryWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCreditRetry)
	defer retryWriter.Close()
	resolvedDLQ := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicSelectionResolvedDLQ)
	defer resolvedDLQ.Close()
	retryDLQ := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicCreditRetryDLQ)
	defer retryDLQ.Close()

	wallet := walletclient.New(cfg.WalletURL, cfg.CallTimeout)
	pub := producer.NewKafkaPublisher(settledWriter, retryWriter)
	eng := engine.New(repo.NewPostgres(pg), wallet, pub, pub, log, cfg.CallTimeout)

	proc := &consumer.Processor{
		Log:     log.Named("resolved"),
		Reader:  resolvedReader,
		Engine:  eng,
		DLQ:     resolvedDLQ,
		Retries: 3,
		Backoff: 300 * time.Millisecond,
	}
	worker := &retry.Worker{
		Log:         log.Named("credit-retry"),
		Reader:      retryReader,
		Ledger:      wallet,
		Queue:       pub,
		DLQ:         retryDLQ,
		MaxAttempts: cfg.RetryMaxAttempts,
		Backoff:     time.Second,
		CallTimeout: cfg.CallTimeout,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, pg.PingContext)
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	log.Info("settlement-worker started",
		zap.String("consume", cfg.TopicSelectionResolved),
		zap.String("retry", cfg.TopicCreditRetry),
		zap.String("publish", cfg.TopicWagerSettled),
	)

	var wg sync.WaitGroup
	for name, run := range map[string]func(context.Context) error{
		"resolved":     proc.Run,
		"credit-retry": worker.Run,
	} {
		wg.Add(1)
		go func(name string, run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("loop stopped with error", zap.String("loop", name), zap.Error(err))
				stop()
			}
		}(name, run)
	}
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("settlement-worker stopped")
}
