package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evento publicado no tópico "price_updates" pela fonte de odds
type PriceChanged struct {
	SelectionID string          `json:"selection_id"`
	EventID     string          `json:"event_id"`
	Odds        decimal.Decimal `json:"odds"`
	Version     int             `json:"version"` // incrementado a cada atualização
	Ts          time.Time       `json:"ts"`
}
