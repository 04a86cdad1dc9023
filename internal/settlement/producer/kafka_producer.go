package producer

import (
	"context"

	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// KafkaPublisher publica resultados de liquidação e créditos a repetir.
// Mensagens de retry usam o id da aposta como chave para manter a ordem
// das tentativas na mesma partição.
type KafkaPublisher struct {
	Settled *kafka.Writer
	Retry   *kafka.Writer
}

func NewKafkaPublisher(settled, retry *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{Settled: settled, Retry: retry}
}

func (p *KafkaPublisher) PublishWagerSettled(ctx context.Context, e events.WagerSettled) error {
	return kafka.WriteEvent(ctx, p.Settled, e.UserID, e)
}

func (p *KafkaPublisher) EnqueueCreditRetry(ctx context.Context, r events.CreditRetry) error {
	return kafka.WriteEvent(ctx, p.Retry, r.WagerID, r)
}
