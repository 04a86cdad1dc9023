package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Cache interface {
	SetCurrent(ctx context.Context, e events.PriceChanged) (applied bool, err error)
}

type Broadcaster interface {
	Publish(ctx context.Context, e events.PriceChanged) error
}

// Processor consome price_updates, atualiza o cache do oráculo e avisa o
// hub WebSocket. Atualização fora de ordem não é retransmitida.
type Processor struct {
	Log         *zap.Logger
	Reader      Reader
	Cache       Cache
	Broadcaster Broadcaster
	Timeout     time.Duration // limite de cada chamada ao Redis
}

var minOdds = decimal.NewFromInt(1)

// Run inicia o loop principal de consumo
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			metrics.PriceUpdates.WithLabelValues("error_read").Inc()
			time.Sleep(500 * time.Millisecond)
			continue
		}
		p.Handle(ctx, m)
		if err := p.Reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			p.Log.Warn("kafka commit failed", zap.Error(err))
		}
	}
}

// Handle processa uma atualização. Falha no cache não impede o broadcast;
// o cache tem TTL e o próximo preço corrige.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	metrics.PriceUpdates.WithLabelValues("consumed").Inc()

	var ev events.PriceChanged
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.SelectionID == "" || ev.Odds.LessThanOrEqual(minOdds) {
		p.Log.Warn("invalid price update", zap.ByteString("value", m.Value), zap.Error(err))
		metrics.PriceUpdates.WithLabelValues("error_decode").Inc()
		return
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout())
	applied, err := p.Cache.SetCurrent(cctx, ev)
	cancel()
	switch {
	case err != nil:
		p.Log.Warn("redis set failed", zap.String("selection_id", ev.SelectionID), zap.Error(err))
		metrics.PriceUpdates.WithLabelValues("error_cache").Inc()
	case !applied:
		p.Log.Debug("stale price update", zap.String("selection_id", ev.SelectionID), zap.Int("version", ev.Version))
		metrics.PriceUpdates.WithLabelValues("stale").Inc()
		return
	default:
		metrics.PriceUpdates.WithLabelValues("cached").Inc()
	}

	if ev.EventID == "" || p.Broadcaster == nil {
		return
	}
	bctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()
	if err := p.Broadcaster.Publish(bctx, ev); err != nil {
		p.Log.Warn("ws broadcast publish failed", zap.Error(err))
		metrics.PriceUpdates.WithLabelValues("error_broadcast").Inc()
		return
	}
	metrics.PriceUpdates.WithLabelValues("broadcast").Inc()
}

func (p *Processor) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return p.Timeout
}
