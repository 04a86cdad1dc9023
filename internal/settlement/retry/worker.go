// Package retry reprocessa créditos de liquidação que falharam. Cada
// tentativa reenvia Credit/Refund com a mesma referência de aposta, então o
// ledger descarta repetições de algo que já entrou.
package retry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type DLQ interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Ledger interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, wagerRef string) (decimal.Decimal, error)
	Refund(ctx context.Context, userID, wagerRef string) (decimal.Decimal, error)
}

// Queue devolve a tentativa ao tópico de retry
type Queue interface {
	EnqueueCreditRetry(ctx context.Context, r events.CreditRetry) error
}

type Worker struct {
	Log         *zap.Logger
	Reader      Reader
	Ledger      Ledger
	Queue       Queue
	DLQ         DLQ
	MaxAttempts int
	Backoff     time.Duration // base da espera exponencial
	CallTimeout time.Duration
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		m, err := w.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Log.Warn("kafka fetch failed", zap.Error(err))
			wait(ctx, 500*time.Millisecond)
			continue
		}
		w.Handle(ctx, m)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.Reader.CommitMessages(ctx, m); err != nil {
			w.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// Handle aplica uma tentativa. Falha antes do limite reenfileira com
// Attempt+1; no limite, ou com erro não transitório, a mensagem vai para a
// DLQ e precisa de reconciliação.
func (w *Worker) Handle(ctx context.Context, m kafka.Message) {
	var r events.CreditRetry
	if err := json.Unmarshal(m.Value, &r); err != nil || r.WagerID == "" || r.UserID == "" {
		w.Log.Warn("invalid credit retry", zap.ByteString("value", m.Value), zap.Error(err))
		w.deadLetter(ctx, m.Key, m.Value)
		return
	}
	if r.Attempt < 1 {
		r.Attempt = 1
	}

	wait(ctx, w.delay(r.Attempt))
	if ctx.Err() != nil {
		return
	}

	err := w.apply(ctx, r)
	if err == nil {
		metrics.CreditRetries.WithLabelValues("ok").Inc()
		w.Log.Info("credit retry applied",
			zap.String("wager_id", r.WagerID),
			zap.String("op", r.Op),
			zap.Int("attempt", r.Attempt),
		)
		return
	}

	log := w.Log.With(
		zap.String("wager_id", r.WagerID),
		zap.String("user_id", r.UserID),
		zap.String("amount", r.Amount.String()),
		zap.String("op", r.Op),
		zap.Int("attempt", r.Attempt),
		zap.Error(err),
	)
	if r.Attempt >= w.maxAttempts() || !errs.IsRetryable(err) {
		metrics.CreditRetries.WithLabelValues("dlq").Inc()
		log.Error("credit retry exhausted", zap.Bool("alert", true))
		r.Reason = err.Error()
		b, _ := json.Marshal(r)
		w.deadLetter(ctx, m.Key, b)
		return
	}

	next := r
	next.Attempt++
	next.Reason = err.Error()
	if qerr := w.Queue.EnqueueCreditRetry(ctx, next); qerr != nil {
		log.Error("requeue credit retry failed", zap.Bool("alert", true), zap.NamedError("queue_error", qerr))
		b, _ := json.Marshal(next)
		w.deadLetter(ctx, m.Key, b)
		return
	}
	metrics.CreditRetries.WithLabelValues("retry").Inc()
	log.Warn("credit retry failed, requeued")
}

func (w *Worker) maxAttempts() int {
	if w.MaxAttempts <= 0 {
		return 5
	}
	return w.MaxAttempts
}

func (w *Worker) apply(ctx context.Context, r events.CreditRetry) error {
	timeout := w.CallTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	if r.Op == events.CreditOpRefund {
		_, err = w.Ledger.Refund(cctx, r.UserID, r.WagerID)
	} else {
		_, err = w.Ledger.Credit(cctx, r.UserID, r.Amount, r.WagerID)
	}
	return err
}

// delay dobra a espera a cada tentativa: base, 2*base, 4*base...
func (w *Worker) delay(attempt int) time.Duration {
	if w.Backoff <= 0 || attempt <= 1 {
		return w.Backoff
	}
	d := w.Backoff << (attempt - 1)
	if ceiling := 30 * time.Second; d > ceiling || d <= 0 {
		return ceiling
	}
	return d
}

func (w *Worker) deadLetter(ctx context.Context, key, value []byte) {
	if w.DLQ == nil {
		return
	}
	if err := w.DLQ.WriteMessages(ctx, kafka.Message{Key: key, Value: value, Time: time.Now()}); err != nil {
		w.Log.Error("dlq write failed", zap.ByteString("key", key), zap.Error(err))
	}
}

func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
