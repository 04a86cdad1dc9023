package repo_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/wallet-service/repo"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func funded(t *testing.T, amount float64) *repo.Memory {
	t.Helper()
	ctx := context.Background()
	l := repo.NewMemory()
	if _, err := l.OpenAccount(ctx, "u1", ""); err != nil {
		t.Fatal(err)
	}
	if amount > 0 {
		if _, err := l.Deposit(ctx, "u1", d(amount), "seed"); err != nil {
			t.Fatal(err)
		}
	}
	return l
}

func sum(t *testing.T, l *repo.Memory) decimal.Decimal {
	t.Helper()
	txs, err := l.Transactions(context.Background(), "u1", 200, 0)
	if err != nil {
		t.Fatal(err)
	}
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}

func TestReserveDebitsOnce(t *testing.T) {
	ctx := context.Background()
	l := funded(t, 100)

	bal, err := l.Reserve(ctx, "u1", d(10), "w1")
	if err != nil || !bal.Equal(d(90)) {
		t.Fatalf("first reserve: %s %v", bal, err)
	}
	bal, err = l.Reserve(ctx, "u1", d(10), "w1")
	if err != nil || !bal.Equal(d(90)) {
		t.Fatalf("duplicate reserve must be a no-op: %s %v", bal, err)
	}
	txs, _ := l.Transactions(ctx, "u1", 0, 0)
	if len(txs) != 2 {
		t.Fatalf("transactions = %d, want deposit + one debit", len(txs))
	}
}

func TestReserveSameRefOtherAmountIsRejected(t *testing.T) {
	ctx := context.Background()
	l := funded(t, 100)
	if _, err := l.Reserve(ctx, "u1", d(10), "w1"); err != nil {
		t.Fatal(err)
	}
	_, err := l.Reserve(ctx, "u1", d(90), "w1")
	if !errors.Is(err, errs.ErrIdempotencyKeyReused) {
		t.Fatalf("got %v, want idempotency_key_reused", err)
	}
	if a, _ := l.Balance(ctx, "u1"); !a.Balance.Equal(d(90)) {
		t.Fatalf("balance = %s, want 90", a.Balance)
	}
}

func TestSubCentAmountsAreRejected(t *testing.T) {
	ctx := context.Background()
	amount := decimal.RequireFromString("10.005")
	ops := map[string]func(l *repo.Memory) error{
		"deposit": func(l *repo.Memory) error {
			_, err := l.Deposit(ctx, "u1", amount, "")
			return err
		},
		"withdraw": func(l *repo.Memory) error {
			_, err := l.Withdraw(ctx, "u1", amount, "")
			return err
		},
		"credit": func(l *repo.Memory) error {
			_, err := l.Credit(ctx, "u1", amount, "w1")
			return err
		},
		"reserve": func(l *repo.Memory) error {
			_, err := l.Reserve(ctx, "u1", amount, "w1")
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			l := funded(t, 100)
			if err := op(l); !errors.Is(err, errs.ErrInvalidAmount) {
				t.Fatalf("got %v, want invalid_amount", err)
			}
			a, _ := l.Balance(ctx, "u1")
			if !a.Balance.Equal(d(100)) || !a.Balance.Equal(sumAll(t, l)) {
				t.Fatalf("balance = %s, sum = %s", a.Balance, sumAll(t, l))
			}
		})
	}
	t.Run("trailing zeros are cents", func(t *testing.T) {
		l := funded(t, 100)
		bal, err := l.Reserve(ctx, "u1", decimal.RequireFromString("10.500"), "w2")
		if err != nil || !bal.Equal(d(89.5)) {
			t.Fatalf("reserve 10.500: %s %v", bal, err)
		}
	})
}

func TestReserveErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		user   string
		amount decimal.Decimal
		want   error
	}{
		{"zero amount", "u1", d(0), errs.ErrInvalidAmount},
		{"negative amount", "u1", d(-5), errs.ErrInvalidAmount},
		{"sub-cent amount", "u1", decimal.RequireFromString("10.005"), errs.ErrInvalidAmount},
		{"overdraft", "u1", d(1000), errs.ErrInsufficientFunds},
		{"no account", "ghost", d(1), errs.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := funded(t, 100)
			bal, err := l.Reserve(ctx, tt.user, tt.amount, "w1")
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if a, _ := l.Balance(ctx, "u1"); !a.Balance.Equal(d(100)) {
				t.Fatalf("balance changed to %s (returned %s)", a.Balance, bal)
			}
		})
	}
}

func TestRefundReturnsStake(t *testing.T) {
	ctx := context.Background()
	l := funded(t, 100)
	_, _ = l.Reserve(ctx, "u1", d(10), "w1")

	bal, err := l.Refund(ctx, "u1", "w1")
	if err != nil || !bal.Equal(d(100)) {
		t.Fatalf("refund: %s %v", bal, err)
	}
	bal, _ = l.Refund(ctx, "u1", "w1")
	if !bal.Equal(d(100)) {
		t.Fatalf("second refund must be a no-op, balance %s", bal)
	}
}

func TestRefundBeforeReserveCancelsIt(t *testing.T) {
	ctx := context.Background()
	l := funded(t, 100)

	if _, err := l.Refund(ctx, "u1", "late"); err != nil {
		t.Fatal(err)
	}
	_, err := l.Reserve(ctx, "u1", d(10), "late")
	if !errors.Is(err, errs.ErrReservationCancelled) {
		t.Fatalf("late reserve: got %v", err)
	}
	a, _ := l.Balance(ctx, "u1")
	if !a.Balance.Equal(d(100)) {
		t.Fatalf("balance = %s, late reserve must not charge", a.Balance)
	}
	txs, _ := l.Transactions(ctx, "u1", 0, 0)
	if len(txs) != 1 {
		t.Fatalf("tombstone must not create transactions, got %d", len(txs))
	}
}

func TestCreditIsIdempotentPerWager(t *testing.T) {
	ctx := context.Background()
	l := funded(t, 100)
	_, _ = l.Reserve(ctx, "u1", d(10), "w1")

	_, _ = l.Credit(ctx, "u1", d(20), "w1")
	bal, err := l.Credit(ctx, "u1", d(20), "w1")
	if err != nil || !bal.Equal(d(110)) {
		t.Fatalf("balance %s err %v, want 110", bal, err)
	}
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	l := funded(t, 50)

	if _, err := l.Withdraw(ctx, "u1", d(60), "x1"); !errors.Is(err, errs.ErrInsufficientFunds) {
		t.Fatalf("overdraft: %v", err)
	}
	bal, err := l.Withdraw(ctx, "u1", d(20), "x1")
	if err != nil || !bal.Equal(d(30)) {
		t.Fatalf("withdraw: %s %v", bal, err)
	}
	bal, _ = l.Withdraw(ctx, "u1", d(20), "x1")
	if !bal.Equal(d(30)) {
		t.Fatalf("repeated ref must not withdraw twice, balance %s", bal)
	}
}

// Sequências aleatórias de operações mantêm saldo == soma dos lançamentos
// e saldo >= 0.
func TestBalanceEqualsSumOfTransactions(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	l := funded(t, 100)

	refs := []string{"a", "b", "c", "d", "e", "f"}
	for i := 0; i < 500; i++ {
		ref := refs[rng.Intn(len(refs))]
		amount := decimal.NewFromInt(int64(rng.Intn(40) + 1))
		switch rng.Intn(5) {
		case 0:
			_, _ = l.Reserve(ctx, "u1", amount, ref)
		case 1:
			_, _ = l.Credit(ctx, "u1", amount, ref)
		case 2:
			_, _ = l.Refund(ctx, "u1", ref)
		case 3:
			_, _ = l.Deposit(ctx, "u1", amount, "")
		case 4:
			_, _ = l.Withdraw(ctx, "u1", amount, "")
		}

		a, _ := l.Balance(ctx, "u1")
		if a.Balance.IsNegative() {
			t.Fatalf("step %d: negative balance %s", i, a.Balance)
		}
	}

	a, _ := l.Balance(ctx, "u1")
	if got := sumAll(t, l); !a.Balance.Equal(got) {
		t.Fatalf("balance %s != sum of transactions %s", a.Balance, got)
	}
}

// sumAll pagina por todos os lançamentos
func sumAll(t *testing.T, l *repo.Memory) decimal.Decimal {
	t.Helper()
	total := decimal.Zero
	for offset := 0; ; offset += 200 {
		txs, err := l.Transactions(context.Background(), "u1", 200, offset)
		if err != nil {
			t.Fatal(err)
		}
		for _, tx := range txs {
			total = total.Add(tx.Amount)
		}
		if len(txs) < 200 {
			return total
		}
	}
}

func TestSmallLedgerSum(t *testing.T) {
	ctx := context.Background()
	l := funded(t, 100)
	_, _ = l.Reserve(ctx, "u1", d(10), "w1")
	_, _ = l.Credit(ctx, "u1", d(20), "w1")
	if got := sum(t, l); !got.Equal(d(110)) {
		t.Fatalf("sum = %s, want 110", got)
	}
}
