package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/shared/money"
)

type txKey struct {
	userID, ref string
	kind        Kind
}

type resKey struct{ userID, ref string }

// Memory implementa Ledger em memória com um único mutex
type Memory struct {
	mu           sync.Mutex
	accounts     map[string]*Account
	txs          []Transaction
	txIndex      map[txKey]struct{}
	reservations map[resKey]*Reservation
}

func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[string]*Account),
		txIndex:      make(map[txKey]struct{}),
		reservations: make(map[resKey]*Reservation),
	}
}

func (m *Memory) OpenAccount(_ context.Context, userID, currency string) (Account, error) {
	if userID == "" {
		return Account{}, errs.ErrInvalidRequest.With("user id required")
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[userID]; ok {
		return *a, nil
	}
	a := &Account{UserID: userID, Balance: decimal.Zero, Currency: currency, CreatedAt: time.Now().UTC()}
	m.accounts[userID] = a
	return *a, nil
}

func (m *Memory) Balance(_ context.Context, userID string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return Account{}, errs.ErrAccountNotFound.With("account %s not found", userID)
	}
	return *a, nil
}

func (m *Memory) Deposit(_ context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if !money.Valid(amount) {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.account(userID)
	if err != nil {
		return decimal.Zero, err
	}
	m.apply(a, KindDeposit, amount, orRef(ref))
	return a.Balance, nil
}

func (m *Memory) Withdraw(_ context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if !money.Valid(amount) {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.account(userID)
	if err != nil {
		return decimal.Zero, err
	}
	ref = orRef(ref)
	if m.seen(userID, ref, KindWithdrawal) {
		return a.Balance, nil
	}
	if a.Balance.LessThan(amount) {
		return a.Balance, errs.ErrInsufficientFunds
	}
	m.apply(a, KindWithdrawal, amount.Neg(), ref)
	return a.Balance, nil
}

func (m *Memory) Reserve(_ context.Context, userID string, amount decimal.Decimal, wagerRef string) (decimal.Decimal, error) {
	if !money.Valid(amount) {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	if wagerRef == "" {
		return decimal.Zero, errs.ErrInvalidRequest.With("wager ref required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.account(userID)
	if err != nil {
		return decimal.Zero, err
	}
	k := resKey{userID, wagerRef}
	if r, ok := m.reservations[k]; ok {
		if r.Status == ReservationRefunded {
			return a.Balance, errs.ErrReservationCancelled.With("wager %s already refunded", wagerRef)
		}
		if !r.Amount.Equal(amount) {
			return a.Balance, errs.ErrIdempotencyKeyReused.With("wager %s already reserved for %s", wagerRef, r.Amount)
		}
		return a.Balance, nil
	}
	if a.Balance.LessThan(amount) {
		return a.Balance, errs.ErrInsufficientFunds
	}
	m.apply(a, KindStakeDebit, amount.Neg(), wagerRef)
	m.reservations[k] = &Reservation{UserID: userID, WagerRef: wagerRef, Amount: amount, Status: ReservationReserved}
	return a.Balance, nil
}

func (m *Memory) Credit(_ context.Context, userID string, amount decimal.Decimal, wagerRef string) (decimal.Decimal, error) {
	if !money.Valid(amount) {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.account(userID)
	if err != nil {
		return decimal.Zero, err
	}
	m.apply(a, KindWinCredit, amount, wagerRef)
	return a.Balance, nil
}

func (m *Memory) Refund(_ context.Context, userID, wagerRef string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.account(userID)
	if err != nil {
		return decimal.Zero, err
	}
	k := resKey{userID, wagerRef}
	r, ok := m.reservations[k]
	if !ok {
		// tombstone: cancela um Reserve atrasado com o mesmo ref
		m.reservations[k] = &Reservation{UserID: userID, WagerRef: wagerRef, Amount: decimal.Zero, Status: ReservationRefunded}
		return a.Balance, nil
	}
	if r.Status == ReservationRefunded {
		return a.Balance, nil
	}
	m.apply(a, KindStakeRefund, r.Amount, wagerRef)
	r.Status = ReservationRefunded
	return a.Balance, nil
}

func (m *Memory) Transactions(_ context.Context, userID string, limit, offset int) ([]Transaction, error) {
	limit, offset = pageBounds(limit, offset)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.account(userID); err != nil {
		return nil, err
	}
	var out []Transaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		if m.txs[i].UserID == userID {
			out = append(out, m.txs[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []Transaction{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *Memory) account(userID string) (*Account, error) {
	a, ok := m.accounts[userID]
	if !ok {
		return nil, errs.ErrAccountNotFound.With("account %s not found", userID)
	}
	return a, nil
}

func (m *Memory) seen(userID, ref string, kind Kind) bool {
	_, ok := m.txIndex[txKey{userID, ref, kind}]
	return ok
}

// apply grava o lançamento e move o saldo; repetição de (user, ref, kind) é ignorada
func (m *Memory) apply(a *Account, kind Kind, amount decimal.Decimal, ref string) {
	k := txKey{a.UserID, ref, kind}
	if _, ok := m.txIndex[k]; ok {
		return
	}
	m.txIndex[k] = struct{}{}
	m.txs = append(m.txs, Transaction{
		ID: uuid.NewString(), UserID: a.UserID, Kind: kind, Amount: amount, WagerRef: ref, CreatedAt: time.Now().UTC(),
	})
	a.Balance = a.Balance.Add(amount)
}

func orRef(ref string) string {
	if ref == "" {
		return uuid.NewString()
	}
	return ref
}
