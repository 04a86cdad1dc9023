// Package engine liquida apostas a partir de seleções resolvidas.
//
// Só registros ainda pending são tocados, então reentrega de uma mesma
// resolução é no-op. A transição de status é a fonte da verdade: falha de
// crédito nunca a desfaz, vai para a fila de retry.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	"github.com/radieske/sports-wager-engine/internal/shared/money"
	"github.com/radieske/sports-wager-engine/internal/wager"
	"github.com/radieske/sports-wager-engine/internal/wager/repo"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

type Ledger interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, wagerRef string) (decimal.Decimal, error)
	Refund(ctx context.Context, userID, wagerRef string) (decimal.Decimal, error)
}

type Publisher interface {
	PublishWagerSettled(ctx context.Context, e events.WagerSettled) error
}

type RetryQueue interface {
	EnqueueCreditRetry(ctx context.Context, r events.CreditRetry) error
}

// Report resume uma chamada de Resolve
type Report struct {
	SettledSingles  int
	SettledLegs     int
	AffectedParlays int
	SettledParlays  int
	CreditFailures  int
}

type Engine struct {
	store       repo.Store
	ledger      Ledger
	pub         Publisher
	retry       RetryQueue
	log         *zap.Logger
	callTimeout time.Duration
	now         func() time.Time
}

func New(st repo.Store, l Ledger, pub Publisher, rq RetryQueue, log *zap.Logger, callTimeout time.Duration) *Engine {
	if callTimeout <= 0 {
		callTimeout = 2 * time.Second
	}
	return &Engine{
		store:       st,
		ledger:      l,
		pub:         pub,
		retry:       rq,
		log:         log,
		callTimeout: callTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func outcome(ev events.SelectionResolved) (wager.Status, wager.LegStatus) {
	switch {
	case ev.Void:
		return wager.StatusVoid, wager.LegVoid
	case ev.Won:
		return wager.StatusWon, wager.LegWon
	default:
		return wager.StatusLost, wager.LegLost
	}
}

// Resolve aplica a resolução às simples e pernas pending da seleção e
// recomputa cada múltipla afetada uma única vez. Erros de armazenamento de
// registros individuais não interrompem o lote; são devolvidos juntos para
// o consumidor decidir repetir.
func (e *Engine) Resolve(ctx context.Context, ev events.SelectionResolved) (Report, error) {
	var rep Report
	if ev.SelectionID == "" {
		return rep, errs.ErrInvalidRequest.With("selection id required")
	}
	status, legStatus := outcome(ev)
	log := e.log.With(zap.String("selection_id", ev.SelectionID), zap.String("outcome", string(status)))

	singles, err := e.store.FindPendingSinglesBySelection(ctx, ev.SelectionID)
	if err != nil {
		return rep, err
	}
	legs, err := e.store.FindPendingLegsBySelection(ctx, ev.SelectionID)
	if err != nil {
		return rep, err
	}

	var failures []error
	for _, w := range singles {
		payout := decimal.Zero
		switch status {
		case wager.StatusWon:
			payout = w.PotentialPayout
		case wager.StatusVoid:
			payout = w.Stake
		}
		settled, err := e.store.TransitionSingle(ctx, w.ID, status, payout)
		if errors.Is(err, errs.ErrInvalidTransition) {
			continue // outra entrega chegou antes
		}
		if err != nil {
			log.Warn("transition single", zap.String("wager_id", w.ID), zap.Error(err))
			failures = append(failures, err)
			continue
		}
		rep.SettledSingles++
		metrics.Settlements.WithLabelValues(events.KindSingle, string(settled.Status)).Inc()

		switch settled.Status {
		case wager.StatusWon:
			rep.CreditFailures += e.pay(ctx, settled.UserID, settled.ID, payout, events.CreditOpCredit)
		case wager.StatusVoid:
			rep.CreditFailures += e.pay(ctx, settled.UserID, settled.ID, settled.Stake, events.CreditOpRefund)
		}
		e.publish(ctx, events.WagerSettled{
			WagerID: settled.ID, Kind: events.KindSingle, UserID: settled.UserID,
			Status: string(settled.Status), Payout: payout, Ts: e.now(),
		})
	}

	for _, l := range legs {
		if _, err := e.store.TransitionLeg(ctx, l.ID, legStatus); err != nil && !errors.Is(err, errs.ErrInvalidTransition) {
			log.Warn("transition leg", zap.String("leg_id", l.ID), zap.Error(err))
			failures = append(failures, err)
			continue
		} else if err == nil {
			rep.SettledLegs++
		}
	}

	// relê as múltiplas pending da seleção: cobre pernas já transicionadas
	// por uma entrega anterior que não chegou a recomputar
	parlayIDs, err := e.store.FindPendingParlayIDsBySelection(ctx, ev.SelectionID)
	if err != nil {
		failures = append(failures, err)
	}
	rep.AffectedParlays = len(parlayIDs)
	for _, id := range parlayIDs {
		p, changed, err := e.store.RecomputeParlay(ctx, id)
		if err != nil {
			log.Warn("recompute parlay", zap.String("parlay_id", id), zap.Error(err))
			failures = append(failures, err)
			continue
		}
		if !changed {
			continue
		}
		rep.SettledParlays++
		metrics.Settlements.WithLabelValues(events.KindParlay, string(p.Status)).Inc()

		payout := decimal.Zero
		switch p.Status {
		case wager.ParlayWon, wager.ParlayPartiallyVoid:
			payout = p.PotentialPayout
			rep.CreditFailures += e.pay(ctx, p.UserID, p.ID, payout, events.CreditOpCredit)
		case wager.ParlayVoid:
			payout = p.Stake
			rep.CreditFailures += e.pay(ctx, p.UserID, p.ID, payout, events.CreditOpRefund)
		}
		log.Info("parlay settled",
			zap.String("parlay_id", p.ID),
			zap.String("status", string(p.Status)),
			zap.String("combined_odds", p.CombinedOdds.String()),
			zap.String("payout", payout.String()),
		)
		e.publish(ctx, events.WagerSettled{
			WagerID: p.ID, Kind: events.KindParlay, UserID: p.UserID,
			Status: string(p.Status), Payout: payout, Ts: e.now(),
		})
	}

	log.Info("selection settled",
		zap.Int("singles", rep.SettledSingles),
		zap.Int("legs", rep.SettledLegs),
		zap.Int("parlays", rep.AffectedParlays),
		zap.Int("credit_failures", rep.CreditFailures),
	)
	return rep, errors.Join(failures...)
}

// CashOut encerra uma simples pending creditando o valor ofertado, que deve
// ficar entre zero e o retorno potencial.
func (e *Engine) CashOut(ctx context.Context, wagerID, userID string, amount decimal.Decimal) (wager.Wager, error) {
	w, err := e.store.GetSingle(ctx, wagerID)
	if err != nil {
		return wager.Wager{}, err
	}
	if w.UserID != userID {
		return wager.Wager{}, errs.ErrWagerNotFound.With("wager %s not found", wagerID)
	}
	if !money.Valid(amount) || !amount.LessThan(w.PotentialPayout) {
		return wager.Wager{}, errs.ErrInvalidAmount.With("cash-out amount must be between 0 and %s in cents", w.PotentialPayout)
	}

	w, err = e.store.TransitionSingle(ctx, wagerID, wager.StatusCashedOut, amount)
	if err != nil {
		return w, err
	}
	metrics.Settlements.WithLabelValues(events.KindSingle, string(w.Status)).Inc()
	e.pay(ctx, w.UserID, w.ID, amount, events.CreditOpCredit)
	e.publish(ctx, events.WagerSettled{
		WagerID: w.ID, Kind: events.KindSingle, UserID: w.UserID,
		Status: string(w.Status), Payout: amount, Ts: e.now(),
	})
	e.log.Info("wager cashed out", zap.String("wager_id", w.ID), zap.String("amount", amount.String()))
	return w, nil
}

// pay credita ou estorna; em falha enfileira o retry e devolve 1
func (e *Engine) pay(ctx context.Context, userID, wagerID string, amount decimal.Decimal, op string) int {
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	var err error
	if op == events.CreditOpRefund {
		_, err = e.ledger.Refund(cctx, userID, wagerID)
	} else {
		_, err = e.ledger.Credit(cctx, userID, amount, wagerID)
	}
	if err == nil {
		return 0
	}

	metrics.CreditFailures.WithLabelValues(op).Inc()
	e.log.Warn("settlement credit failed, enqueueing retry",
		zap.String("wager_id", wagerID),
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("op", op),
		zap.Error(err),
	)
	if e.retry == nil {
		return 1
	}
	rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
	defer rcancel()
	if qerr := e.retry.EnqueueCreditRetry(rctx, events.CreditRetry{
		WagerID: wagerID, UserID: userID, Amount: amount, Op: op, Attempt: 1, Reason: err.Error(),
	}); qerr != nil {
		e.log.Error("enqueue credit retry failed",
			zap.String("wager_id", wagerID),
			zap.String("user_id", userID),
			zap.String("amount", amount.String()),
			zap.Bool("alert", true),
			zap.Error(qerr),
		)
	}
	return 1
}

func (e *Engine) publish(ctx context.Context, ev events.WagerSettled) {
	if e.pub == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
	defer cancel()
	if err := e.pub.PublishWagerSettled(pctx, ev); err != nil {
		e.log.Warn("publish wager settled", zap.String("wager_id", ev.WagerID), zap.Error(err))
	}
}
