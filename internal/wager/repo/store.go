// Package repo persiste apostas simples, múltiplas e suas pernas.
package repo

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/wager"
)

// Store é o contrato comum às implementações Postgres e em memória.
// Erros seguem a taxonomia de internal/shared/errs.
type Store interface {
	// CreateSingle grava a aposta em pending. Repetir com o mesmo ID e o
	// mesmo usuário devolve o registro existente. Simples e múltiplas
	// dividem o espaço de IDs: um ID já usado pelo outro tipo falha com
	// ErrIdempotencyKeyReused.
	CreateSingle(ctx context.Context, w wager.Wager) (wager.Wager, error)
	// CreateParlay grava a múltipla e as pernas numeradas a partir de 1.
	CreateParlay(ctx context.Context, p wager.Parlay, legs []wager.LegInput) (wager.Parlay, error)

	GetSingle(ctx context.Context, id string) (wager.Wager, error)
	GetParlay(ctx context.Context, id string) (wager.Parlay, error)
	ListSinglesByUser(ctx context.Context, userID string, f ListFilter) ([]wager.Wager, error)
	ListParlaysByUser(ctx context.Context, userID string, f ListFilter) ([]wager.Parlay, error)

	FindPendingSinglesBySelection(ctx context.Context, selectionID string) ([]wager.Wager, error)
	FindPendingLegsBySelection(ctx context.Context, selectionID string) ([]wager.Leg, error)
	// FindPendingParlayIDsBySelection lista múltiplas ainda pending com alguma
	// perna na seleção, qualquer que seja o status da perna. Permite refazer a
	// recomputação quando uma liquidação anterior parou no meio.
	FindPendingParlayIDsBySelection(ctx context.Context, selectionID string) ([]string, error)

	// TransitionSingle só altera registros ainda em pending (compare-and-swap)
	// e grava o valor devido ao usuário (zero em lost).
	TransitionSingle(ctx context.Context, id string, to wager.Status, payout decimal.Decimal) (wager.Wager, error)
	TransitionLeg(ctx context.Context, legID string, to wager.LegStatus) (wager.Leg, error)
	// RecomputeParlay relê todas as pernas sob lock da múltipla e aplica
	// wager.Evaluate. changed só é true para a chamada que tirou a múltipla
	// de pending.
	RecomputeParlay(ctx context.Context, parlayID string) (p wager.Parlay, changed bool, err error)
}

// ListFilter filtra listagens por status com paginação
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// idTaken é o erro para um ID já gravado como outro tipo de aposta. De outro
// usuário vira ErrInvalidRequest, como na colisão dentro do mesmo tipo.
func idTaken(id, userID, owner, kind string) error {
	if owner != userID {
		return errs.ErrInvalidRequest.With("wager id %s already used", id)
	}
	return errs.ErrIdempotencyKeyReused.With("wager id %s already used by a %s", id, kind)
}
