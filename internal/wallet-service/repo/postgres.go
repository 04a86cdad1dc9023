package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/shared/money"
)

// Postgres implementa operações de ledger em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// OpenAccount retorna a conta do usuário, criando se não existir
func (p *Postgres) OpenAccount(ctx context.Context, userID, currency string) (Account, error) {
	if userID == "" {
		return Account{}, errs.ErrInvalidRequest.With("user id required")
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO accounts(user_id, balance, currency) VALUES($1,0,$2) ON CONFLICT (user_id) DO NOTHING`,
		userID, currency); err != nil {
		return Account{}, classify(err, "open account")
	}
	return p.Balance(ctx, userID)
}

func (p *Postgres) Balance(ctx context.Context, userID string) (Account, error) {
	var a Account
	err := p.db.QueryRowContext(ctx,
		`SELECT user_id, balance, currency, created_at FROM accounts WHERE user_id=$1`, userID).
		Scan(&a.UserID, &a.Balance, &a.Currency, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return Account{}, errs.ErrAccountNotFound.With("account %s not found", userID)
	}
	if err != nil {
		return Account{}, classify(err, "balance")
	}
	return a, nil
}

func (p *Postgres) Deposit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if !money.Valid(amount) {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	return p.inTx(ctx, userID, func(tx *sql.Tx, balance decimal.Decimal) (decimal.Decimal, error) {
		return post(ctx, tx, userID, KindDeposit, amount, orRef(ref), balance)
	})
}

// Withdraw rejeita saque acima do saldo; repetição do mesmo ref é no-op
func (p *Postgres) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if !money.Valid(amount) {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	ref = orRef(ref)
	return p.inTx(ctx, userID, func(tx *sql.Tx, balance decimal.Decimal) (decimal.Decimal, error) {
		dup, err := exists(ctx, tx, userID, ref, KindWithdrawal)
		if err != nil || dup {
			return balance, err
		}
		if balance.LessThan(amount) {
			return balance, errs.ErrInsufficientFunds
		}
		return post(ctx, tx, userID, KindWithdrawal, amount.Neg(), ref, balance)
	})
}

// Reserve debita o stake e cria a reserva RESERVED sob lock da conta
func (p *Postgres) Reserve(ctx context.Context, userID string, amount decimal.Decimal, wagerRef string) (decimal.Decimal, error) {
	if !money.Valid(amount) {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	if wagerRef == "" {
		return decimal.Zero, errs.ErrInvalidRequest.With("wager ref required")
	}
	return p.inTx(ctx, userID, func(tx *sql.Tx, balance decimal.Decimal) (decimal.Decimal, error) {
		var status string
		var reserved decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT status, amount FROM reservations WHERE user_id=$1 AND wager_ref=$2`, userID, wagerRef).
			Scan(&status, &reserved)
		switch {
		case err == nil && status == ReservationRefunded:
			return balance, errs.ErrReservationCancelled.With("wager %s already refunded", wagerRef)
		case err == nil && !reserved.Equal(amount):
			return balance, errs.ErrIdempotencyKeyReused.With("wager %s already reserved for %s", wagerRef, reserved)
		case err == nil:
			return balance, nil // já reservado
		case err != sql.ErrNoRows:
			return balance, classify(err, "read reservation")
		}

		if balance.LessThan(amount) {
			return balance, errs.ErrInsufficientFunds
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reservations(user_id, wager_ref, amount, status) VALUES($1,$2,$3,'RESERVED')`,
			userID, wagerRef, amount); err != nil {
			return balance, classify(err, "insert reservation")
		}
		return post(ctx, tx, userID, KindStakeDebit, amount.Neg(), wagerRef, balance)
	})
}

func (p *Postgres) Credit(ctx context.Context, userID string, amount decimal.Decimal, wagerRef string) (decimal.Decimal, error) {
	if !money.Valid(amount) {
		return decimal.Zero, errs.ErrInvalidAmount
	}
	return p.inTx(ctx, userID, func(tx *sql.Tx, balance decimal.Decimal) (decimal.Decimal, error) {
		return post(ctx, tx, userID, KindWinCredit, amount, wagerRef, balance)
	})
}

// Refund devolve uma reserva RESERVED. Sem reserva, grava tombstone REFUNDED
// de valor zero para que um Reserve atrasado seja recusado.
func (p *Postgres) Refund(ctx context.Context, userID, wagerRef string) (decimal.Decimal, error) {
	return p.inTx(ctx, userID, func(tx *sql.Tx, balance decimal.Decimal) (decimal.Decimal, error) {
		var status string
		var amount decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT status, amount FROM reservations WHERE user_id=$1 AND wager_ref=$2`, userID, wagerRef).
			Scan(&status, &amount)
		if err == sql.ErrNoRows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO reservations(user_id, wager_ref, amount, status) VALUES($1,$2,0,'REFUNDED')`,
				userID, wagerRef); err != nil {
				return balance, classify(err, "insert tombstone")
			}
			return balance, nil
		}
		if err != nil {
			return balance, classify(err, "read reservation")
		}
		if status == ReservationRefunded {
			return balance, nil
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE reservations SET status='REFUNDED', updated_at=NOW() WHERE user_id=$1 AND wager_ref=$2`,
			userID, wagerRef); err != nil {
			return balance, classify(err, "update reservation")
		}
		return post(ctx, tx, userID, KindStakeRefund, amount, wagerRef, balance)
	})
}

func (p *Postgres) Transactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	if _, err := p.Balance(ctx, userID); err != nil {
		return nil, err
	}
	limit, offset = pageBounds(limit, offset)
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, kind, amount, wager_ref, created_at
		FROM ledger_transactions WHERE user_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, classify(err, "list transactions")
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		var t Transaction
		var kind string
		if err := rows.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &t.WagerRef, &t.CreatedAt); err != nil {
			return nil, classify(err, "scan transaction")
		}
		t.Kind = Kind(kind)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list transactions")
	}
	return out, nil
}

// inTx abre transação, trava a linha da conta (lock pessimista) e entrega o
// saldo atual para fn. Erro de fn faz rollback.
func (p *Postgres) inTx(ctx context.Context, userID string, fn func(tx *sql.Tx, balance decimal.Decimal) (decimal.Decimal, error)) (decimal.Decimal, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, classify(err, "begin")
	}
	defer tx.Rollback()

	var balance decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id=$1 FOR UPDATE`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, errs.ErrAccountNotFound.With("account %s not found", userID)
	}
	if err != nil {
		return decimal.Zero, classify(err, "lock account")
	}

	newBalance, err := fn(tx, balance)
	if err != nil {
		return newBalance, err
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, classify(err, "commit")
	}
	return newBalance, nil
}

// post grava o lançamento e ajusta o saldo. A unicidade de
// (user_id, wager_ref, kind) torna a repetição um no-op.
func post(ctx context.Context, tx *sql.Tx, userID string, kind Kind, amount decimal.Decimal, ref string, balance decimal.Decimal) (decimal.Decimal, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_transactions(id, user_id, kind, amount, wager_ref)
		VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, wager_ref, kind) DO NOTHING`,
		uuid.NewString(), userID, string(kind), amount, ref)
	if err != nil {
		return balance, classify(err, "insert transaction")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return balance, nil
	}

	var newBalance decimal.Decimal
	if err := tx.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $2, version = version + 1 WHERE user_id=$1 RETURNING balance`,
		userID, amount).Scan(&newBalance); err != nil {
		return balance, classify(err, "update balance")
	}
	return newBalance, nil
}

func exists(ctx context.Context, tx *sql.Tx, userID, ref string, kind Kind) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM ledger_transactions WHERE user_id=$1 AND wager_ref=$2 AND kind=$3`,
		userID, ref, string(kind)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, classify(err, "read transaction")
	}
	return true, nil
}

func classify(err error, op string) error {
	return errs.Transient(errors.Wrap(err, op), "ledger: "+op)
}
