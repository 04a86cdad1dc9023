package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/wallet-service/client"
	whttp "github.com/radieske/sports-wager-engine/internal/wallet-service/http"
	"github.com/radieske/sports-wager-engine/internal/wallet-service/repo"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func newEnv(t *testing.T) (*client.Client, *repo.Memory) {
	t.Helper()
	ledger := repo.NewMemory()
	ctx := context.Background()
	_, _ = ledger.OpenAccount(ctx, "u1", "")
	_, _ = ledger.Deposit(ctx, "u1", d(100), "seed")

	srv := httptest.NewServer(whttp.NewServer(zap.NewNop(), ledger).Router())
	t.Cleanup(srv.Close)
	return client.New(srv.URL, time.Second), ledger
}

func TestReserveCreditRefundRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newEnv(t)

	bal, err := c.Reserve(ctx, "u1", d(10), "w1")
	if err != nil || !bal.Equal(d(90)) {
		t.Fatalf("reserve: %s %v", bal, err)
	}
	bal, err = c.Credit(ctx, "u1", d(25), "w1")
	if err != nil || !bal.Equal(d(115)) {
		t.Fatalf("credit: %s %v", bal, err)
	}
	bal, err = c.Refund(ctx, "u1", "w1")
	if err != nil || !bal.Equal(d(125)) {
		t.Fatalf("refund: %s %v", bal, err)
	}
}

func TestErrorsKeepTheirKind(t *testing.T) {
	ctx := context.Background()
	c, _ := newEnv(t)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"insufficient", func() error { _, err := c.Reserve(ctx, "u1", d(500), "w1"); return err }, errs.ErrInsufficientFunds},
		{"no account", func() error { _, err := c.Reserve(ctx, "ghost", d(1), "w1"); return err }, errs.ErrAccountNotFound},
		{"bad amount", func() error { _, err := c.Credit(ctx, "u1", d(0), "w1"); return err }, errs.ErrInvalidAmount},
		{"missing ref", func() error { _, err := c.Refund(ctx, "u1", ""); return err }, errs.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := client.New(srv.URL, time.Second).Reserve(context.Background(), "u1", d(1), "w1")
	if !errs.IsRetryable(err) {
		t.Fatalf("502 should be retryable, got %v", err)
	}
}

func TestUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := client.New(url, 200*time.Millisecond).Refund(context.Background(), "u1", "w1")
	if !errs.IsRetryable(err) {
		t.Fatalf("connection refused should be retryable, got %v", err)
	}
}
