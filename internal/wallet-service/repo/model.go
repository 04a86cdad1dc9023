// Package repo guarda contas, lançamentos e reservas de stake.
package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind é o tipo de um lançamento no ledger
type Kind string

const (
	KindStakeDebit  Kind = "stake-debit"
	KindWinCredit   Kind = "win-credit"
	KindDeposit     Kind = "deposit"
	KindWithdrawal  Kind = "withdrawal"
	KindStakeRefund Kind = "stake-refund"
)

const DefaultCurrency = "USD"

type Account struct {
	UserID    string
	Balance   decimal.Decimal
	Currency  string
	CreatedAt time.Time
}

// Transaction é imutável; Amount tem sinal (débitos negativos)
type Transaction struct {
	ID        string
	UserID    string
	Kind      Kind
	Amount    decimal.Decimal
	WagerRef  string
	CreatedAt time.Time
}

const (
	ReservationReserved = "RESERVED"
	ReservationRefunded = "REFUNDED"
)

type Reservation struct {
	UserID   string
	WagerRef string
	Amount   decimal.Decimal
	Status   string
}

// Ledger é o contrato implementado por Postgres e Memory. O saldo de uma
// conta é sempre a soma dos seus lançamentos e nunca fica negativo.
type Ledger interface {
	OpenAccount(ctx context.Context, userID, currency string) (Account, error)
	Balance(ctx context.Context, userID string) (Account, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error)

	// Reserve debita o stake; repetir com o mesmo wagerRef não cobra de novo.
	// Se o wagerRef já foi estornado, falha com ErrReservationCancelled.
	Reserve(ctx context.Context, userID string, amount decimal.Decimal, wagerRef string) (decimal.Decimal, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, wagerRef string) (decimal.Decimal, error)
	// Refund devolve o stake reservado; sem reserva, grava um tombstone.
	Refund(ctx context.Context, userID, wagerRef string) (decimal.Decimal, error)

	Transactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error)
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
