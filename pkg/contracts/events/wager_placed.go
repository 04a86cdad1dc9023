package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de aposta carregados nos eventos
const (
	KindSingle = "single"
	KindParlay = "parlay"
)

// WagerPlaced é emitido pelo wager-service após a aposta ser registrada.
// SelectionID vem preenchido em apostas simples; LegSelectionIDs em múltiplas.
type WagerPlaced struct {
	WagerID         string          `json:"wager_id"`
	Kind            string          `json:"kind"`
	UserID          string          `json:"user_id"`
	SelectionID     string          `json:"selection_id,omitempty"`
	LegSelectionIDs []string        `json:"leg_selection_ids,omitempty"`
	Stake           decimal.Decimal `json:"stake"`
	Odds            decimal.Decimal `json:"odds"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
	Ts              time.Time       `json:"ts"`
}
