package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/wager"
)

// Memory implementa Store com mapas em memória. Usado em testes e
// desenvolvimento local; recomputação da múltipla roda sob o lock de escrita,
// então leitura das pernas e gravação do status são atômicas.
type Memory struct {
	mu      sync.RWMutex
	singles map[string]*wager.Wager
	parlays map[string]*wager.Parlay
	legs    map[string]*wager.Leg // legID -> perna
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		singles: make(map[string]*wager.Wager),
		parlays: make(map[string]*wager.Parlay),
		legs:    make(map[string]*wager.Leg),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) CreateSingle(_ context.Context, w wager.Wager) (wager.Wager, error) {
	if err := wager.ValidateSingle(w.Stake, w.Odds); err != nil {
		return wager.Wager{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if other, ok := m.parlays[w.ID]; ok {
		return wager.Wager{}, idTaken(w.ID, w.UserID, other.UserID, "parlay")
	}
	if existing, ok := m.singles[w.ID]; ok {
		if existing.UserID != w.UserID {
			return wager.Wager{}, errs.ErrInvalidRequest.With("wager id %s already used", w.ID)
		}
		return *existing, nil
	}

	w.Status = wager.StatusPending
	w.PotentialPayout = wager.Payout(w.Stake, w.Odds)
	w.Payout = decimal.Zero
	w.CreatedAt = m.now()
	w.SettledAt = nil
	cp := w
	m.singles[w.ID] = &cp
	return w, nil
}

func (m *Memory) CreateParlay(_ context.Context, p wager.Parlay, in []wager.LegInput) (wager.Parlay, error) {
	if err := wager.ValidateParlay(p.Stake, in); err != nil {
		return wager.Parlay{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if other, ok := m.singles[p.ID]; ok {
		return wager.Parlay{}, idTaken(p.ID, p.UserID, other.UserID, "single")
	}
	if existing, ok := m.parlays[p.ID]; ok {
		if existing.UserID != p.UserID {
			return wager.Parlay{}, errs.ErrInvalidRequest.With("parlay id %s already used", p.ID)
		}
		return copyParlay(existing, m.legsOf(p.ID)...), nil
	}

	odds := make([]decimal.Decimal, len(in))
	for i, l := range in {
		odds[i] = l.Odds
	}
	p.PlacedOdds = wager.CombinedOdds(odds)
	p.CombinedOdds = p.PlacedOdds
	p.PotentialPayout = wager.Payout(p.Stake, p.CombinedOdds)
	p.Status = wager.ParlayPending
	p.CreatedAt = m.now()
	p.SettledAt = nil
	p.Legs = make([]wager.Leg, len(in))
	for i, l := range in {
		leg := wager.Leg{
			ID:          uuid.NewString(),
			ParlayID:    p.ID,
			SelectionID: l.SelectionID,
			EventID:     l.EventID,
			Odds:        l.Odds,
			Status:      wager.LegPending,
			LegNumber:   i + 1,
		}
		p.Legs[i] = leg
		lc := leg
		m.legs[leg.ID] = &lc
	}
	stored := p
	stored.Legs = nil // fonte da verdade das pernas é m.legs
	m.parlays[p.ID] = &stored
	return copyParlay(&stored, m.legsOf(p.ID)...), nil
}

func (m *Memory) GetSingle(_ context.Context, id string) (wager.Wager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.singles[id]
	if !ok {
		return wager.Wager{}, errs.ErrWagerNotFound.With("wager %s not found", id)
	}
	return *w, nil
}

func (m *Memory) GetParlay(_ context.Context, id string) (wager.Parlay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parlays[id]
	if !ok {
		return wager.Parlay{}, errs.ErrWagerNotFound.With("parlay %s not found", id)
	}
	return copyParlay(p, m.legsOf(id)...), nil
}

func (m *Memory) ListSinglesByUser(_ context.Context, userID string, f ListFilter) ([]wager.Wager, error) {
	f = f.normalized()
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []wager.Wager
	for _, w := range m.singles {
		if w.UserID == userID && (f.Status == "" || string(w.Status) == f.Status) {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f), nil
}

func (m *Memory) ListParlaysByUser(_ context.Context, userID string, f ListFilter) ([]wager.Parlay, error) {
	f = f.normalized()
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []wager.Parlay
	for id, p := range m.parlays {
		if p.UserID == userID && (f.Status == "" || string(p.Status) == f.Status) {
			out = append(out, copyParlay(p, m.legsOf(id)...))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f), nil
}

func (m *Memory) FindPendingSinglesBySelection(_ context.Context, selectionID string) ([]wager.Wager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []wager.Wager
	for _, w := range m.singles {
		if w.SelectionID == selectionID && w.Status == wager.StatusPending {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *Memory) FindPendingLegsBySelection(_ context.Context, selectionID string) ([]wager.Leg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []wager.Leg
	for _, l := range m.legs {
		if l.SelectionID == selectionID && l.Status == wager.LegPending {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *Memory) FindPendingParlayIDsBySelection(_ context.Context, selectionID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, l := range m.legs {
		if l.SelectionID != selectionID {
			continue
		}
		if _, ok := seen[l.ParlayID]; ok {
			continue
		}
		if p, ok := m.parlays[l.ParlayID]; ok && p.Status == wager.ParlayPending {
			seen[l.ParlayID] = struct{}{}
			out = append(out, l.ParlayID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) TransitionSingle(_ context.Context, id string, to wager.Status, payout decimal.Decimal) (wager.Wager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.singles[id]
	if !ok {
		return wager.Wager{}, errs.ErrWagerNotFound.With("wager %s not found", id)
	}
	next, err := w.Status.Transition(to)
	if err != nil {
		return *w, err
	}
	now := m.now()
	w.Status = next
	w.Payout = payout
	w.SettledAt = &now
	return *w, nil
}

func (m *Memory) TransitionLeg(_ context.Context, legID string, to wager.LegStatus) (wager.Leg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.legs[legID]
	if !ok {
		return wager.Leg{}, errs.ErrWagerNotFound.With("leg %s not found", legID)
	}
	next, err := l.Status.Transition(to)
	if err != nil {
		return *l, err
	}
	l.Status = next
	return *l, nil
}

func (m *Memory) RecomputeParlay(_ context.Context, parlayID string) (wager.Parlay, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parlays[parlayID]
	if !ok {
		return wager.Parlay{}, false, errs.ErrWagerNotFound.With("parlay %s not found", parlayID)
	}
	legs := m.legsOf(parlayID)
	if p.Status.Terminal() {
		return copyParlay(p, legs...), false, nil
	}

	cur := copyParlay(p, legs...)
	out := wager.Evaluate(cur)
	if out.Status == wager.ParlayPending {
		return cur, false, nil
	}

	now := m.now()
	p.Status = out.Status
	p.CombinedOdds = out.CombinedOdds
	if out.Status == wager.ParlayPartiallyVoid || out.Status == wager.ParlayVoid {
		p.PotentialPayout = out.Payout
	}
	p.SettledAt = &now
	return copyParlay(p, legs...), true, nil
}

// legsOf devolve as pernas ordenadas por número; chamar com lock adquirido
func (m *Memory) legsOf(parlayID string) []wager.Leg {
	var out []wager.Leg
	for _, l := range m.legs {
		if l.ParlayID == parlayID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LegNumber < out[j].LegNumber })
	return out
}

func copyParlay(p *wager.Parlay, legs ...wager.Leg) wager.Parlay {
	cp := *p
	if legs != nil {
		cp.Legs = append([]wager.Leg(nil), legs...)
	} else {
		cp.Legs = append([]wager.Leg(nil), p.Legs...)
	}
	if p.SettledAt != nil {
		t := *p.SettledAt
		cp.SettledAt = &t
	}
	return cp
}

func page[T any](in []T, f ListFilter) []T {
	if f.Offset >= len(in) {
		return []T{}
	}
	end := f.Offset + f.Limit
	if end > len(in) {
		end = len(in)
	}
	return in[f.Offset:end]
}
