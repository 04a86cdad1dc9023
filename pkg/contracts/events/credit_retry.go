package events

import "github.com/shopspring/decimal"

const (
	CreditOpCredit = "credit"
	CreditOpRefund = "refund"
)

// CreditRetry registra um crédito de liquidação que falhou e deve ser
// repetido fora da linha com a mesma referência de aposta.
type CreditRetry struct {
	WagerID string          `json:"wager_id"`
	UserID  string          `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
	Op      string          `json:"op"` // "credit" | "refund"
	Attempt int             `json:"attempt"`
	Reason  string          `json:"reason,omitempty"`
}
