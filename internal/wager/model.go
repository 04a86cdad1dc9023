// Package wager contém o modelo de apostas simples e múltiplas e as funções
// de transição de status. Nenhum outro código altera status diretamente.
package wager

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/shared/money"
)

// Status de uma aposta simples
type Status string

const (
	StatusPending   Status = "pending"
	StatusWon       Status = "won"
	StatusLost      Status = "lost"
	StatusVoid      Status = "void"
	StatusCashedOut Status = "cashed-out"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusWon, StatusLost, StatusVoid, StatusCashedOut:
		return true
	}
	return false
}

func (s Status) Valid() bool { return s == StatusPending || s.Terminal() }

// Transition valida pending -> {won, lost, void, cashed-out}
func (s Status) Transition(to Status) (Status, error) {
	if s != StatusPending || !to.Terminal() {
		return s, errs.ErrInvalidTransition.With("wager %s -> %s not allowed", s, to)
	}
	return to, nil
}

// LegStatus de uma perna de múltipla
type LegStatus string

const (
	LegPending LegStatus = "pending"
	LegWon     LegStatus = "won"
	LegLost    LegStatus = "lost"
	LegVoid    LegStatus = "void"
)

func (s LegStatus) Terminal() bool { return s == LegWon || s == LegLost || s == LegVoid }

func (s LegStatus) Valid() bool { return s == LegPending || s.Terminal() }

// Transition valida pending -> {won, lost, void}; cash-out não existe para pernas
func (s LegStatus) Transition(to LegStatus) (LegStatus, error) {
	if s != LegPending || !to.Terminal() {
		return s, errs.ErrInvalidTransition.With("leg %s -> %s not allowed", s, to)
	}
	return to, nil
}

// ParlayStatus é derivado do conjunto de pernas por Evaluate
type ParlayStatus string

const (
	ParlayPending       ParlayStatus = "pending"
	ParlayWon           ParlayStatus = "won"
	ParlayLost          ParlayStatus = "lost"
	ParlayPartiallyVoid ParlayStatus = "partially-void"
	ParlayVoid          ParlayStatus = "void"
)

func (s ParlayStatus) Terminal() bool { return s != ParlayPending && s.Valid() }

func (s ParlayStatus) Valid() bool {
	switch s {
	case ParlayPending, ParlayWon, ParlayLost, ParlayPartiallyVoid, ParlayVoid:
		return true
	}
	return false
}

// Wager é a aposta simples persistida
type Wager struct {
	ID              string
	UserID          string
	SelectionID     string
	Stake           decimal.Decimal
	Odds            decimal.Decimal // odd no momento da aposta, nunca recalculada
	PotentialPayout decimal.Decimal
	Status          Status
	Payout          decimal.Decimal // valor efetivamente creditado após liquidação
	CreatedAt       time.Time
	SettledAt       *time.Time
}

// Parlay é a aposta múltipla persistida com suas pernas
type Parlay struct {
	ID              string
	UserID          string
	Stake           decimal.Decimal
	PlacedOdds      decimal.Decimal // produto original, preservado para auditoria
	CombinedOdds    decimal.Decimal // sobrescrito na liquidação parcialmente anulada
	PotentialPayout decimal.Decimal
	Status          ParlayStatus
	CreatedAt       time.Time
	SettledAt       *time.Time
	Legs            []Leg
}

type Leg struct {
	ID          string
	ParlayID    string
	SelectionID string
	EventID     string
	Odds        decimal.Decimal
	Status      LegStatus
	LegNumber   int
}

// LegInput é o que o coordenador informa para cada perna na criação
type LegInput struct {
	SelectionID string
	EventID     string
	Odds        decimal.Decimal
}

// ValidateSingle aplica as regras de criação de aposta simples
func ValidateSingle(stake, odds decimal.Decimal) error {
	if !money.Valid(stake) {
		return errs.ErrInvalidStake
	}
	if odds.LessThanOrEqual(decimal.NewFromInt(1)) {
		return errs.ErrInvalidOdds
	}
	return nil
}

// ValidateParlay exige stake positiva, ao menos 2 pernas com odds > 1 e
// eventos distintos entre as pernas.
func ValidateParlay(stake decimal.Decimal, legs []LegInput) error {
	if !money.Valid(stake) {
		return errs.ErrInvalidStake
	}
	if len(legs) < 2 {
		return errs.ErrTooFewLegs
	}
	seen := make(map[string]string, len(legs))
	for _, l := range legs {
		if l.Odds.LessThanOrEqual(decimal.NewFromInt(1)) {
			return errs.ErrInvalidOdds.With("odds for selection %s must be greater than 1.0", l.SelectionID)
		}
		if prev, ok := seen[l.EventID]; ok {
			return errs.ErrCorrelatedSelections.With("selections %s and %s share event %s", prev, l.SelectionID, l.EventID)
		}
		seen[l.EventID] = l.SelectionID
	}
	return nil
}
