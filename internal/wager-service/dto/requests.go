package dto

import "github.com/shopspring/decimal"

// PlaceWagerRequest cria uma aposta simples; o usuário vem do header X-User-ID
type PlaceWagerRequest struct {
	SelectionID string          `json:"selection_id" validate:"required"`
	Stake       decimal.Decimal `json:"stake"`
}

// PlaceParlayRequest cria uma múltipla; a quantidade mínima de seleções é
// regra de domínio e é validada pelo coordenador.
type PlaceParlayRequest struct {
	SelectionIDs []string        `json:"selection_ids" validate:"dive,required"`
	Stake        decimal.Decimal `json:"stake"`
}

type CashOutRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ResolveRequest alimenta a liquidação síncrona (rota interna)
type ResolveRequest struct {
	Won  bool `json:"won"`
	Void bool `json:"void"`
}
