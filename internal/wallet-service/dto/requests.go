package dto

import "github.com/shopspring/decimal"

type DepositRequest struct {
	UserID   string          `json:"user_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Ref      string          `json:"ref,omitempty"` // opcional p/ idempotência
	Currency string          `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type WithdrawRequest struct {
	UserID string          `json:"user_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
	Ref    string          `json:"ref,omitempty"`
}

// ReserveRequest debita o stake de uma aposta (wager_ref = id da aposta)
type ReserveRequest struct {
	UserID   string          `json:"user_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	WagerRef string          `json:"wager_ref" validate:"required"`
}

type CreditRequest struct {
	UserID   string          `json:"user_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	WagerRef string          `json:"wager_ref" validate:"required"`
}

type RefundRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	WagerRef string `json:"wager_ref" validate:"required"`
}
