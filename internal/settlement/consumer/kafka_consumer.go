package consumer

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/settlement/engine"
	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// Reader é o subconjunto de *kafka.Reader usado pelo loop
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// DLQ recebe mensagens que esgotaram as tentativas
type DLQ interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Resolver interface {
	Resolve(ctx context.Context, ev events.SelectionResolved) (engine.Report, error)
}

// Processor consome selection_resolved e aciona a liquidação. O offset só
// é confirmado depois do processamento (ou do envio à DLQ).
type Processor struct {
	Log     *zap.Logger
	Reader  Reader
	Engine  Resolver
	DLQ     DLQ // opcional
	Retries int
	Backoff time.Duration

	OnError func(stage string) // métricas por fase
}

// Run inicia o loop principal até ctx ser cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.fail("read")
			sleep(ctx, 500*time.Millisecond)
			continue
		}

		p.Handle(ctx, m)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			p.fail("commit")
		}
	}
}

// Handle processa uma mensagem: payload inválido vai direto à DLQ; erro de
// liquidação é repetido com espera linear e, esgotado, também vai à DLQ.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	var ev events.SelectionResolved
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.SelectionID == "" {
		p.Log.Warn("invalid selection_resolved", zap.ByteString("value", m.Value), zap.Error(err))
		p.fail("decode")
		p.deadLetter(ctx, m)
		return
	}

	var err error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 {
			sleep(ctx, time.Duration(attempt)*p.Backoff)
		}
		if _, err = p.Engine.Resolve(ctx, ev); err == nil {
			return
		}
		p.Log.Warn("resolve failed",
			zap.String("selection_id", ev.SelectionID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return // sem commit útil; a mensagem volta na próxima sessão
		}
	}
	p.fail("resolve")
	p.deadLetter(ctx, m)
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message) {
	if p.DLQ == nil {
		return
	}
	if err := p.DLQ.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: m.Value, Time: time.Now()}); err != nil {
		p.Log.Error("dlq write failed", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func sleep(ctx context.Context, d time.Duration) {
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
