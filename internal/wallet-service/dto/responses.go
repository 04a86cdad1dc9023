package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountResponse struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}

// BalanceResponse é devolvido por toda operação que movimenta saldo
type BalanceResponse struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

type TransactionResponse struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	WagerRef  string          `json:"wager_ref"`
	CreatedAt time.Time       `json:"created_at"`
}
