// Package placement coordena a criação de apostas entre catálogo, oráculo
// de preços, ledger e wager store.
//
// Protocolo: reserva o stake no ledger com o id da aposta, grava a aposta
// com o mesmo id e, se a gravação falhar, estorna a reserva. O id é gerado
// uma vez por tentativa lógica (ou vem do Idempotency-Key do cliente), então
// repetições não cobram nem gravam em dobro.
package placement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	"github.com/radieske/sports-wager-engine/internal/shared/money"
	"github.com/radieske/sports-wager-engine/internal/wager"
	"github.com/radieske/sports-wager-engine/internal/wager-service/catalog"
	"github.com/radieske/sports-wager-engine/internal/wager/repo"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

type Catalog interface {
	GetSelection(ctx context.Context, id string) (catalog.Selection, error)
}

type Oracle interface {
	CurrentOdds(ctx context.Context, selectionID string) (decimal.Decimal, error)
}

// Ledger é o subconjunto do wallet-service usado na colocação
type Ledger interface {
	Reserve(ctx context.Context, userID string, amount decimal.Decimal, wagerRef string) (decimal.Decimal, error)
	Refund(ctx context.Context, userID, wagerRef string) (decimal.Decimal, error)
}

type Publisher interface {
	PublishWagerPlaced(ctx context.Context, e events.WagerPlaced) error
}

type Config struct {
	CallTimeout     time.Duration // limite de cada chamada a colaborador
	PublishTimeout  time.Duration
	ReserveAttempts int
	ReserveBackoff  time.Duration // espera linear entre tentativas: n * backoff
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 2 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 500 * time.Millisecond
	}
	if c.ReserveAttempts <= 0 {
		c.ReserveAttempts = 3
	}
	if c.ReserveBackoff <= 0 {
		c.ReserveBackoff = 50 * time.Millisecond
	}
	return c
}

type Coordinator struct {
	catalog Catalog
	oracle  Oracle
	ledger  Ledger
	store   repo.Store
	pub     Publisher
	log     *zap.Logger
	cfg     Config

	newID func() string
	now   func() time.Time
}

func New(cat Catalog, or Oracle, l Ledger, st repo.Store, pub Publisher, log *zap.Logger, cfg Config) *Coordinator {
	return &Coordinator{
		catalog: cat,
		oracle:  or,
		ledger:  l,
		store:   st,
		pub:     pub,
		log:     log,
		cfg:     cfg.withDefaults(),
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type SingleRequest struct {
	IdempotencyKey string
	UserID         string
	SelectionID    string
	Stake          decimal.Decimal
}

type ParlayRequest struct {
	IdempotencyKey string
	UserID         string
	SelectionIDs   []string
	Stake          decimal.Decimal
}

func (c *Coordinator) PlaceSingle(ctx context.Context, req SingleRequest) (w wager.Wager, err error) {
	started := time.Now()
	defer func() { metrics.ObservePlacement(events.KindSingle, result(err), started) }()

	if req.UserID == "" || req.SelectionID == "" {
		return wager.Wager{}, errs.ErrInvalidRequest.With("user and selection are required")
	}
	if !money.Valid(req.Stake) {
		return wager.Wager{}, errs.ErrInvalidStake
	}

	sel, err := c.openSelection(ctx, req.SelectionID)
	if err != nil {
		return wager.Wager{}, err
	}
	odds := c.price(ctx, sel)
	if err := wager.ValidateSingle(req.Stake, odds); err != nil {
		return wager.Wager{}, err
	}

	id := c.wagerID(req.IdempotencyKey)
	if err := c.reserve(ctx, req.UserID, req.Stake, id); err != nil {
		return wager.Wager{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	w, err = c.store.CreateSingle(cctx, wager.Wager{
		ID: id, UserID: req.UserID, SelectionID: sel.SelectionID, Stake: req.Stake, Odds: odds,
	})
	cancel()
	if errors.Is(err, errs.ErrIdempotencyKeyReused) {
		return wager.Wager{}, c.keyReused(req.UserID, id, err)
	}
	if err != nil {
		return wager.Wager{}, c.compensate(ctx, req.UserID, req.Stake, id, err)
	}

	c.log.Info("wager placed",
		zap.String("wager_id", w.ID),
		zap.String("user_id", w.UserID),
		zap.String("selection_id", w.SelectionID),
		zap.String("stake", w.Stake.String()),
		zap.String("odds", w.Odds.String()),
	)
	c.publish(ctx, events.WagerPlaced{
		WagerID:         w.ID,
		Kind:            events.KindSingle,
		UserID:          w.UserID,
		SelectionID:     w.SelectionID,
		Stake:           w.Stake,
		Odds:            w.Odds,
		PotentialPayout: w.PotentialPayout,
		Ts:              c.now(),
	})
	return w, nil
}

func (c *Coordinator) PlaceParlay(ctx context.Context, req ParlayRequest) (p wager.Parlay, err error) {
	started := time.Now()
	defer func() { metrics.ObservePlacement(events.KindParlay, result(err), started) }()

	if req.UserID == "" {
		return wager.Parlay{}, errs.ErrInvalidRequest.With("user is required")
	}
	if !money.Valid(req.Stake) {
		return wager.Parlay{}, errs.ErrInvalidStake
	}
	if len(req.SelectionIDs) < 2 {
		return wager.Parlay{}, errs.ErrTooFewLegs
	}

	// resolve tudo antes de qualquer efeito colateral
	sels := make([]catalog.Selection, len(req.SelectionIDs))
	for i, id := range req.SelectionIDs {
		if sels[i], err = c.openSelection(ctx, id); err != nil {
			return wager.Parlay{}, err
		}
	}
	seen := make(map[string]string, len(sels))
	for _, s := range sels {
		if other, ok := seen[s.EventID]; ok {
			return wager.Parlay{}, errs.ErrCorrelatedSelections.With(
				"selections %s and %s belong to event %s", other, s.SelectionID, s.EventID)
		}
		seen[s.EventID] = s.SelectionID
	}

	legs := make([]wager.LegInput, len(sels))
	for i, s := range sels {
		legs[i] = wager.LegInput{SelectionID: s.SelectionID, EventID: s.EventID, Odds: c.price(ctx, s)}
	}
	if err := wager.ValidateParlay(req.Stake, legs); err != nil {
		return wager.Parlay{}, err
	}

	id := c.wagerID(req.IdempotencyKey)
	if err := c.reserve(ctx, req.UserID, req.Stake, id); err != nil {
		return wager.Parlay{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	p, err = c.store.CreateParlay(cctx, wager.Parlay{ID: id, UserID: req.UserID, Stake: req.Stake}, legs)
	cancel()
	if errors.Is(err, errs.ErrIdempotencyKeyReused) {
		return wager.Parlay{}, c.keyReused(req.UserID, id, err)
	}
	if err != nil {
		return wager.Parlay{}, c.compensate(ctx, req.UserID, req.Stake, id, err)
	}

	legIDs := make([]string, len(p.Legs))
	for i, l := range p.Legs {
		legIDs[i] = l.SelectionID
	}
	c.log.Info("parlay placed",
		zap.String("wager_id", p.ID),
		zap.String("user_id", p.UserID),
		zap.Int("legs", len(p.Legs)),
		zap.String("stake", p.Stake.String()),
		zap.String("combined_odds", p.CombinedOdds.String()),
	)
	c.publish(ctx, events.WagerPlaced{
		WagerID:         p.ID,
		Kind:            events.KindParlay,
		UserID:          p.UserID,
		LegSelectionIDs: legIDs,
		Stake:           p.Stake,
		Odds:            p.CombinedOdds,
		PotentialPayout: p.PotentialPayout,
		Ts:              c.now(),
	})
	return p, nil
}

// openSelection lê a seleção no catálogo e exige mercado aberto
func (c *Coordinator) openSelection(ctx context.Context, id string) (catalog.Selection, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	s, err := c.catalog.GetSelection(cctx, id)
	if err != nil {
		if errs.KindOf(err) == errs.KindInternal && errors.Is(err, context.DeadlineExceeded) {
			return catalog.Selection{}, errs.Transient(err, "catalog timeout")
		}
		return catalog.Selection{}, err
	}
	if s.MarketStatus != catalog.MarketOpen {
		return catalog.Selection{}, errs.ErrMarketNotOpen.With("market %s is %s", s.MarketID, s.MarketStatus)
	}
	return s, nil
}

// price consulta o oráculo; indisponível ou timeout cai na odd do catálogo
func (c *Coordinator) price(ctx context.Context, s catalog.Selection) decimal.Decimal {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	odds, err := c.oracle.CurrentOdds(cctx, s.SelectionID)
	if err != nil {
		c.log.Debug("oracle fallback to reference odds",
			zap.String("selection_id", s.SelectionID), zap.Error(err))
		return s.ReferenceOdds
	}
	if odds.LessThanOrEqual(decimal.NewFromInt(1)) {
		c.log.Warn("oracle returned unusable odds, using reference odds",
			zap.String("selection_id", s.SelectionID), zap.String("odds", odds.String()))
		return s.ReferenceOdds
	}
	return odds
}

// reserve repete em erro transitório com o mesmo wagerRef. Esgotadas as
// tentativas, estorna pelo wagerRef: o tombstone cancela uma reserva que
// ainda esteja em voo.
func (c *Coordinator) reserve(ctx context.Context, userID string, stake decimal.Decimal, wagerRef string) error {
	var err error
retry:
	for attempt := 1; attempt <= c.cfg.ReserveAttempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		_, err = c.ledger.Reserve(cctx, userID, stake, wagerRef)
		cancel()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		c.log.Warn("reserve failed, retrying",
			zap.String("wager_id", wagerRef), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < c.cfg.ReserveAttempts {
			select {
			case <-ctx.Done():
				break retry
			case <-time.After(time.Duration(attempt) * c.cfg.ReserveBackoff):
			}
		}
	}

	if cerr := c.refund(ctx, userID, wagerRef); cerr != nil {
		c.log.Error("cancel in-flight reservation failed",
			zap.String("user_id", userID),
			zap.String("amount", stake.String()),
			zap.String("wager_id", wagerRef),
			zap.Bool("alert", true),
			zap.Error(cerr),
		)
		metrics.Compensations.WithLabelValues("failed").Inc()
		return errs.Compensation(cerr, wagerRef)
	}
	metrics.Compensations.WithLabelValues("ok").Inc()
	if errs.KindOf(err) == errs.KindInternal {
		err = errs.Transient(err, "ledger reserve")
	}
	return err
}

// compensate estorna o stake após falha na gravação da aposta. Devolve a
// falha original ou, se o estorno também falhar, um CompensationFailure.
func (c *Coordinator) compensate(ctx context.Context, userID string, stake decimal.Decimal, wagerID string, cause error) error {
	c.log.Warn("wager create failed, refunding stake",
		zap.String("wager_id", wagerID), zap.String("user_id", userID), zap.Error(cause))

	if err := c.refund(ctx, userID, wagerID); err != nil {
		c.log.Error("compensating refund failed",
			zap.String("user_id", userID),
			zap.String("amount", stake.String()),
			zap.String("wager_id", wagerID),
			zap.Bool("alert", true),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		metrics.Compensations.WithLabelValues("failed").Inc()
		return errs.Compensation(err, wagerID)
	}
	metrics.Compensations.WithLabelValues("ok").Inc()
	if errs.KindOf(cause) == errs.KindInternal {
		return errs.Transient(cause, "wager store")
	}
	return cause
}

// keyReused trata o id já gravado como outro tipo de aposta. A reserva sob
// esse ref pertence à aposta existente (o ledger recusa ref repetido com
// valor diferente), então não há estorno.
func (c *Coordinator) keyReused(userID, id string, err error) error {
	c.log.Warn("idempotency key reused across wager kinds",
		zap.String("wager_id", id), zap.String("user_id", userID), zap.Error(err))
	return err
}

// refund roda fora do cancelamento do request: o estorno precisa acontecer
// mesmo com o cliente desconectado.
func (c *Coordinator) refund(ctx context.Context, userID, wagerRef string) error {
	var err error
	for attempt := 1; attempt <= c.cfg.ReserveAttempts; attempt++ {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CallTimeout)
		_, err = c.ledger.Refund(cctx, userID, wagerRef)
		cancel()
		if err == nil || !retryable(err) {
			return err
		}
		time.Sleep(time.Duration(attempt) * c.cfg.ReserveBackoff)
	}
	return err
}

// publish é best-effort e não bloqueia a resposta
func (c *Coordinator) publish(ctx context.Context, e events.WagerPlaced) {
	if c.pub == nil {
		return
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.PublishTimeout)
		defer cancel()
		if err := c.pub.PublishWagerPlaced(pctx, e); err != nil {
			c.log.Warn("publish wager placed", zap.String("wager_id", e.WagerID), zap.Error(err))
		}
	}()
}

func (c *Coordinator) wagerID(key string) string {
	if key != "" {
		return key
	}
	return c.newID()
}

// retryable trata timeout de contexto como falha transitória
func retryable(err error) bool {
	return errs.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded)
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return errs.CodeOf(err)
}
