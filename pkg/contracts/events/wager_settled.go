package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evento emitido pelo settlement-worker quando uma aposta chega a status terminal
type WagerSettled struct {
	WagerID string          `json:"wager_id"`
	Kind    string          `json:"kind"`
	UserID  string          `json:"user_id"`
	Status  string          `json:"status"`
	Payout  decimal.Decimal `json:"payout"`
	Ts      time.Time       `json:"ts"`
}
