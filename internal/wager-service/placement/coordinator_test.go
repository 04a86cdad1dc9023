package placement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	wrepo "github.com/radieske/sports-wager-engine/internal/wallet-service/repo"
	"github.com/radieske/sports-wager-engine/internal/wager"
	"github.com/radieske/sports-wager-engine/internal/wager-service/catalog"
	"github.com/radieske/sports-wager-engine/internal/wager-service/placement"
	"github.com/radieske/sports-wager-engine/internal/wager/repo"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// --- fakes ---

type fakeCatalog map[string]catalog.Selection

func (f fakeCatalog) GetSelection(_ context.Context, id string) (catalog.Selection, error) {
	s, ok := f[id]
	if !ok {
		return catalog.Selection{}, errs.ErrSelectionNotFound
	}
	return s, nil
}

type fakeOracle map[string]decimal.Decimal

func (f fakeOracle) CurrentOdds(_ context.Context, id string) (decimal.Decimal, error) {
	o, ok := f[id]
	if !ok {
		return decimal.Zero, errs.ErrOracleUnavailable
	}
	return o, nil
}

// spyLedger envolve o ledger em memória contando chamadas e injetando falhas
type spyLedger struct {
	*wrepo.Memory
	mu           sync.Mutex
	reserveFails int // falhas transitórias antes de delegar; -1 falha sempre
	refundErr    error
	reserveRefs  []string
	refundRefs   []string
}

func (s *spyLedger) Reserve(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	s.mu.Lock()
	s.reserveRefs = append(s.reserveRefs, ref)
	fail := s.reserveFails != 0
	if s.reserveFails > 0 {
		s.reserveFails--
	}
	s.mu.Unlock()
	if fail {
		return decimal.Zero, errs.Transient(errors.New("connection reset"), "wallet /wallet/reserve")
	}
	return s.Memory.Reserve(ctx, userID, amount, ref)
}

func (s *spyLedger) Refund(ctx context.Context, userID, ref string) (decimal.Decimal, error) {
	s.mu.Lock()
	s.refundRefs = append(s.refundRefs, ref)
	err := s.refundErr
	s.mu.Unlock()
	if err != nil {
		return decimal.Zero, err
	}
	return s.Memory.Refund(ctx, userID, ref)
}

func (s *spyLedger) reserves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reserveRefs)
}

// brokenStore falha toda criação
type brokenStore struct{ *repo.Memory }

func (brokenStore) CreateSingle(context.Context, wager.Wager) (wager.Wager, error) {
	return wager.Wager{}, errs.Transient(errors.New("db down"), "wager store: insert wager")
}

func (brokenStore) CreateParlay(context.Context, wager.Parlay, []wager.LegInput) (wager.Parlay, error) {
	return wager.Parlay{}, errs.Transient(errors.New("db down"), "wager store: insert parlay")
}

type chanPublisher chan events.WagerPlaced

func (c chanPublisher) PublishWagerPlaced(_ context.Context, e events.WagerPlaced) error {
	c <- e
	return nil
}

type env struct {
	coord  *placement.Coordinator
	ledger *spyLedger
	store  repo.Store
	pub    chanPublisher
	logs   *observer.ObservedLogs
}

func newEnv(t *testing.T, store repo.Store) *env {
	t.Helper()
	ctx := context.Background()
	mem := wrepo.NewMemory()
	_, _ = mem.OpenAccount(ctx, "u1", "")
	_, _ = mem.Deposit(ctx, "u1", d(100), "seed")
	ledger := &spyLedger{Memory: mem}

	cat := fakeCatalog{
		"sel-home":   {SelectionID: "sel-home", EventID: "ev1", MarketID: "m1", MarketStatus: catalog.MarketOpen, ReferenceOdds: d(1.8)},
		"sel-draw":   {SelectionID: "sel-draw", EventID: "ev1", MarketID: "m1", MarketStatus: catalog.MarketOpen, ReferenceOdds: d(3.2)},
		"sel-away2":  {SelectionID: "sel-away2", EventID: "ev2", MarketID: "m2", MarketStatus: catalog.MarketOpen, ReferenceOdds: d(1.5)},
		"sel-closed": {SelectionID: "sel-closed", EventID: "ev3", MarketID: "m3", MarketStatus: "suspended", ReferenceOdds: d(2)},
		"sel-stale":  {SelectionID: "sel-stale", EventID: "ev4", MarketID: "m4", MarketStatus: catalog.MarketOpen, ReferenceOdds: d(2.5)},
	}
	oracle := fakeOracle{"sel-home": d(2.0), "sel-away2": d(1.5), "sel-stale": d(1)}

	if store == nil {
		store = repo.NewMemory()
	}
	core, logs := observer.New(zapcore.DebugLevel)
	pub := make(chanPublisher, 8)
	coord := placement.New(cat, oracle, ledger, store, pub, zap.New(core), placement.Config{
		CallTimeout:     time.Second,
		PublishTimeout:  time.Second,
		ReserveAttempts: 3,
		ReserveBackoff:  time.Millisecond,
	})
	return &env{coord: coord, ledger: ledger, store: store, pub: pub, logs: logs}
}

func (e *env) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	a, err := e.ledger.Balance(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	return a.Balance
}

func (e *env) txCount(t *testing.T) int {
	t.Helper()
	txs, err := e.ledger.Transactions(context.Background(), "u1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	return len(txs)
}

// --- tests ---

func TestPlaceSingleReservesAndRecords(t *testing.T) {
	e := newEnv(t, nil)
	w, err := e.coord.PlaceSingle(context.Background(), placement.SingleRequest{UserID: "u1", SelectionID: "sel-home", Stake: d(10)})
	if err != nil {
		t.Fatal(err)
	}
	if w.Status != wager.StatusPending || !w.Odds.Equal(d(2)) || !w.PotentialPayout.Equal(d(20)) {
		t.Fatalf("wager = %+v", w)
	}
	if got := e.balance(t); !got.Equal(d(90)) {
		t.Fatalf("balance = %s, want 90", got)
	}
	if e.ledger.reserveRefs[0] != w.ID {
		t.Fatalf("reserve ref %s != wager id %s", e.ledger.reserveRefs[0], w.ID)
	}

	select {
	case ev := <-e.pub:
		if ev.WagerID != w.ID || ev.Kind != events.KindSingle || ev.SelectionID != "sel-home" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("wager placed event not published")
	}
}

func TestPlaceSingleFallsBackToReferenceOdds(t *testing.T) {
	e := newEnv(t, nil)
	w, err := e.coord.PlaceSingle(context.Background(), placement.SingleRequest{UserID: "u1", SelectionID: "sel-draw", Stake: d(10)})
	if err != nil {
		t.Fatal(err)
	}
	if !w.Odds.Equal(d(3.2)) || !w.PotentialPayout.Equal(d(32)) {
		t.Fatalf("odds %s payout %s", w.Odds, w.PotentialPayout)
	}
}

func TestUnusableOracleOddsFallBackToReference(t *testing.T) {
	e := newEnv(t, nil)
	w, err := e.coord.PlaceSingle(context.Background(), placement.SingleRequest{UserID: "u1", SelectionID: "sel-stale", Stake: d(10)})
	if err != nil {
		t.Fatal(err)
	}
	if !w.Odds.Equal(d(2.5)) || !w.PotentialPayout.Equal(d(25)) {
		t.Fatalf("odds %s payout %s, want reference 2.5", w.Odds, w.PotentialPayout)
	}
}

func TestPlaceSingleRejectsWithoutSideEffects(t *testing.T) {
	tests := []struct {
		name string
		req  placement.SingleRequest
		want error
	}{
		{"zero stake", placement.SingleRequest{UserID: "u1", SelectionID: "sel-home", Stake: d(0)}, errs.ErrInvalidStake},
		{"negative stake", placement.SingleRequest{UserID: "u1", SelectionID: "sel-home", Stake: d(-5)}, errs.ErrInvalidStake},
		{"sub-cent stake", placement.SingleRequest{UserID: "u1", SelectionID: "sel-home", Stake: decimal.RequireFromString("10.005")}, errs.ErrInvalidStake},
		{"unknown selection", placement.SingleRequest{UserID: "u1", SelectionID: "nope", Stake: d(10)}, errs.ErrSelectionNotFound},
		{"market closed", placement.SingleRequest{UserID: "u1", SelectionID: "sel-closed", Stake: d(10)}, errs.ErrMarketNotOpen},
		{"insufficient funds", placement.SingleRequest{UserID: "u1", SelectionID: "sel-home", Stake: d(500)}, errs.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			_, err := e.coord.PlaceSingle(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if n := e.txCount(t); n != 1 {
				t.Fatalf("transactions = %d, want only the seed deposit", n)
			}
			ws, _ := e.store.ListSinglesByUser(context.Background(), "u1", repo.ListFilter{})
			if len(ws) != 0 {
				t.Fatalf("wager rows = %d, want 0", len(ws))
			}
		})
	}
}

func TestPlaceParlay(t *testing.T) {
	e := newEnv(t, nil)
	p, err := e.coord.PlaceParlay(context.Background(), placement.ParlayRequest{
		UserID: "u1", SelectionIDs: []string{"sel-home", "sel-away2"}, Stake: d(10),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !p.CombinedOdds.Equal(d(3)) || !p.PotentialPayout.Equal(d(30)) || len(p.Legs) != 2 {
		t.Fatalf("parlay = %+v", p)
	}
	if e.ledger.reserves() != 1 {
		t.Fatalf("one reservation per parlay, got %d", e.ledger.reserves())
	}
	if got := e.balance(t); !got.Equal(d(90)) {
		t.Fatalf("balance = %s", got)
	}
}

func TestPlaceParlayRejectsBeforeReserve(t *testing.T) {
	tests := []struct {
		name string
		sels []string
		want error
	}{
		{"same event", []string{"sel-home", "sel-draw"}, errs.ErrCorrelatedSelections},
		{"same selection twice", []string{"sel-away2", "sel-away2"}, errs.ErrCorrelatedSelections},
		{"one leg", []string{"sel-home"}, errs.ErrTooFewLegs},
		{"closed leg", []string{"sel-home", "sel-closed"}, errs.ErrMarketNotOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			_, err := e.coord.PlaceParlay(context.Background(), placement.ParlayRequest{UserID: "u1", SelectionIDs: tt.sels, Stake: d(10)})
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if e.ledger.reserves() != 0 || e.txCount(t) != 1 {
				t.Fatalf("no reservation expected (reserves=%d)", e.ledger.reserves())
			}
		})
	}
}

func TestStoreFailureRefundsStake(t *testing.T) {
	e := newEnv(t, brokenStore{repo.NewMemory()})
	_, err := e.coord.PlaceSingle(context.Background(), placement.SingleRequest{UserID: "u1", SelectionID: "sel-home", Stake: d(10)})
	if !errs.IsRetryable(err) {
		t.Fatalf("store failure should surface as transient, got %v", err)
	}
	if got := e.balance(t); !got.Equal(d(100)) {
		t.Fatalf("balance = %s, stake must be refunded", got)
	}
	if len(e.ledger.refundRefs) != 1 || e.ledger.refundRefs[0] != e.ledger.reserveRefs[0] {
		t.Fatalf("refund must use the reservation ref: %v vs %v", e.ledger.refundRefs, e.ledger.reserveRefs)
	}
}

func TestCompensationFailureIsLoggedWithContext(t *testing.T) {
	e := newEnv(t, brokenStore{repo.NewMemory()})
	e.ledger.refundErr = errs.ErrAccountNotFound

	_, err := e.coord.PlaceParlay(context.Background(), placement.ParlayRequest{
		UserID: "u1", SelectionIDs: []string{"sel-home", "sel-away2"}, Stake: d(10),
	})
	if errs.KindOf(err) != errs.KindCompensation {
		t.Fatalf("kind = %s, want compensation_failure (%v)", errs.KindOf(err), err)
	}

	entries := e.logs.FilterMessage("compensating refund failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one alert log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["user_id"] != "u1" || fields["amount"] != "10" || fields["alert"] != true || fields["wager_id"] == "" {
		t.Fatalf("alert fields = %v", fields)
	}
}

func TestReserveRetriesWithSameRef(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.reserveFails = 2

	w, err := e.coord.PlaceSingle(context.Background(), placement.SingleRequest{UserID: "u1", SelectionID: "sel-home", Stake: d(10)})
	if err != nil {
		t.Fatal(err)
	}
	if len(e.ledger.reserveRefs) != 3 {
		t.Fatalf("attempts = %d, want 3", len(e.ledger.reserveRefs))
	}
	for _, ref := range e.ledger.reserveRefs {
		if ref != w.ID {
			t.Fatalf("retry used ref %s, want %s", ref, w.ID)
		}
	}
	if got := e.balance(t); !got.Equal(d(90)) {
		t.Fatalf("balance = %s, want one debit", got)
	}
}

func TestReserveExhaustedCancelsLateReservation(t *testing.T) {
	e := newEnv(t, nil)
	e.ledger.reserveFails = -1

	_, err := e.coord.PlaceSingle(context.Background(), placement.SingleRequest{UserID: "u1", SelectionID: "sel-home", Stake: d(10)})
	if !errs.IsRetryable(err) {
		t.Fatalf("got %v, want transient", err)
	}
	ref := e.ledger.reserveRefs[0]
	if len(e.ledger.refundRefs) != 1 || e.ledger.refundRefs[0] != ref {
		t.Fatalf("expected cancelling refund for %s, got %v", ref, e.ledger.refundRefs)
	}

	// a reserva que chegasse atrasada ao ledger é recusada
	if _, err := e.ledger.Memory.Reserve(context.Background(), "u1", d(10), ref); !errors.Is(err, errs.ErrReservationCancelled) {
		t.Fatalf("late reserve: %v", err)
	}
	if got := e.balance(t); !got.Equal(d(100)) {
		t.Fatalf("balance = %s", got)
	}
}

func TestIdempotencyKeyReusesWager(t *testing.T) {
	e := newEnv(t, nil)
	req := placement.SingleRequest{
		IdempotencyKey: "7b0e5c1e-6a8c-4a53-9d0e-0c0f3f6b2a11",
		UserID:         "u1", SelectionID: "sel-home", Stake: d(10),
	}
	first, err := e.coord.PlaceSingle(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.coord.PlaceSingle(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != req.IdempotencyKey || second.ID != first.ID {
		t.Fatalf("ids %s / %s", first.ID, second.ID)
	}
	if got := e.balance(t); !got.Equal(d(90)) {
		t.Fatalf("balance = %s, retry must not charge twice", got)
	}
}

func TestIdempotencyKeyIsSharedAcrossKinds(t *testing.T) {
	const key = "0d6f3c52-1b7e-4f0a-9a57-3c1f2e8b9d40"
	parlay := func(stake float64) placement.ParlayRequest {
		return placement.ParlayRequest{
			IdempotencyKey: key, UserID: "u1", SelectionIDs: []string{"sel-home", "sel-away2"}, Stake: d(stake),
		}
	}
	single := func(stake float64) placement.SingleRequest {
		return placement.SingleRequest{IdempotencyKey: key, UserID: "u1", SelectionID: "sel-home", Stake: d(stake)}
	}

	t.Run("parlay after single, other stake", func(t *testing.T) {
		e := newEnv(t, nil)
		if _, err := e.coord.PlaceSingle(context.Background(), single(10)); err != nil {
			t.Fatal(err)
		}
		_, err := e.coord.PlaceParlay(context.Background(), parlay(90))
		if !errors.Is(err, errs.ErrIdempotencyKeyReused) {
			t.Fatalf("got %v, want idempotency_key_reused", err)
		}
		if _, err := e.store.GetParlay(context.Background(), key); !errors.Is(err, errs.ErrWagerNotFound) {
			t.Fatalf("parlay must not exist: %v", err)
		}
		if got := e.balance(t); !got.Equal(d(90)) {
			t.Fatalf("balance = %s, want 90", got)
		}
	})

	t.Run("parlay after single, same stake", func(t *testing.T) {
		e := newEnv(t, nil)
		if _, err := e.coord.PlaceSingle(context.Background(), single(10)); err != nil {
			t.Fatal(err)
		}
		_, err := e.coord.PlaceParlay(context.Background(), parlay(10))
		if !errors.Is(err, errs.ErrIdempotencyKeyReused) {
			t.Fatalf("got %v, want idempotency_key_reused", err)
		}
		if len(e.ledger.refundRefs) != 0 {
			t.Fatalf("reservation backs the single, refunds = %v", e.ledger.refundRefs)
		}
		w, err := e.store.GetSingle(context.Background(), key)
		if err != nil || w.Status != wager.StatusPending {
			t.Fatalf("single = %+v, %v", w, err)
		}
		if got := e.balance(t); !got.Equal(d(90)) {
			t.Fatalf("balance = %s, want 90", got)
		}
	})

	t.Run("single after parlay", func(t *testing.T) {
		e := newEnv(t, nil)
		if _, err := e.coord.PlaceParlay(context.Background(), parlay(10)); err != nil {
			t.Fatal(err)
		}
		_, err := e.coord.PlaceSingle(context.Background(), single(10))
		if !errors.Is(err, errs.ErrIdempotencyKeyReused) {
			t.Fatalf("got %v, want idempotency_key_reused", err)
		}
		if _, err := e.store.GetSingle(context.Background(), key); !errors.Is(err, errs.ErrWagerNotFound) {
			t.Fatalf("single must not exist: %v", err)
		}
		if got := e.balance(t); !got.Equal(d(90)) {
			t.Fatalf("balance = %s, want 90", got)
		}
	})
}
