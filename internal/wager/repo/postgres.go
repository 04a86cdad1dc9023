package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/wager"
)

// Postgres implementa Store sobre database/sql + lib/pq
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const singleCols = `id, user_id, selection_id, stake, odds, potential_payout, status, payout, created_at, settled_at`
const parlayCols = `id, user_id, stake, placed_odds, combined_odds, potential_payout, status, created_at, settled_at`
const legCols = `id, parlay_id, selection_id, event_id, odds, status, leg_number`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateSingle insere em pending; ON CONFLICT garante idempotência pelo id
func (p *Postgres) CreateSingle(ctx context.Context, w wager.Wager) (wager.Wager, error) {
	if err := wager.ValidateSingle(w.Stake, w.Odds); err != nil {
		return wager.Wager{}, err
	}
	payout := wager.Payout(w.Stake, w.Odds)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return wager.Wager{}, classify(err, "begin")
	}
	defer tx.Rollback()

	if err := claimID(ctx, tx, w.ID, w.UserID, kindSingle); err != nil {
		return wager.Wager{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wagers (id, user_id, selection_id, stake, odds, potential_payout, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')
		ON CONFLICT (id) DO NOTHING`,
		w.ID, w.UserID, w.SelectionID, w.Stake, w.Odds, payout,
	); err != nil {
		return wager.Wager{}, classify(err, "insert wager")
	}
	if err := tx.Commit(); err != nil {
		return wager.Wager{}, classify(err, "commit")
	}

	got, err := p.GetSingle(ctx, w.ID)
	if err != nil {
		return wager.Wager{}, err
	}
	if got.UserID != w.UserID {
		return wager.Wager{}, errs.ErrInvalidRequest.With("wager id %s already used", w.ID)
	}
	return got, nil
}

// CreateParlay grava múltipla e pernas na mesma transação
func (p *Postgres) CreateParlay(ctx context.Context, pl wager.Parlay, in []wager.LegInput) (wager.Parlay, error) {
	if err := wager.ValidateParlay(pl.Stake, in); err != nil {
		return wager.Parlay{}, err
	}
	odds := make([]decimal.Decimal, len(in))
	for i, l := range in {
		odds[i] = l.Odds
	}
	combined := wager.CombinedOdds(odds)
	payout := wager.Payout(pl.Stake, combined)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return wager.Parlay{}, classify(err, "begin")
	}
	defer tx.Rollback()

	if err := claimID(ctx, tx, pl.ID, pl.UserID, kindParlay); err != nil {
		return wager.Parlay{}, err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO parlays (id, user_id, stake, placed_odds, combined_odds, potential_payout, status)
		VALUES ($1,$2,$3,$4,$4,$5,'pending')
		ON CONFLICT (id) DO NOTHING`,
		pl.ID, pl.UserID, pl.Stake, combined, payout,
	)
	if err != nil {
		return wager.Parlay{}, classify(err, "insert parlay")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		for i, l := range in {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO parlay_legs (id, parlay_id, selection_id, event_id, odds, status, leg_number)
				VALUES ($1,$2,$3,$4,$5,'pending',$6)`,
				uuid.NewString(), pl.ID, l.SelectionID, l.EventID, l.Odds, i+1,
			); err != nil {
				return wager.Parlay{}, classify(err, "insert leg")
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return wager.Parlay{}, classify(err, "commit")
	}

	got, err := p.GetParlay(ctx, pl.ID)
	if err != nil {
		return wager.Parlay{}, err
	}
	if got.UserID != pl.UserID {
		return wager.Parlay{}, errs.ErrInvalidRequest.With("parlay id %s already used", pl.ID)
	}
	return got, nil
}

const (
	kindSingle = "single"
	kindParlay = "parlay"
)

// claimID registra o ID em wager_ids, comum a simples e múltiplas. Um INSERT
// concorrente com o mesmo ID espera o commit do outro antes da leitura.
func claimID(ctx context.Context, tx *sql.Tx, id, userID, kind string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wager_ids (id, kind, user_id) VALUES ($1,$2,$3) ON CONFLICT (id) DO NOTHING`,
		id, kind, userID); err != nil {
		return classify(err, "claim wager id")
	}
	var gotKind, owner string
	if err := tx.QueryRowContext(ctx,
		`SELECT kind, user_id FROM wager_ids WHERE id=$1`, id).Scan(&gotKind, &owner); err != nil {
		return classify(err, "read wager id")
	}
	if gotKind != kind || owner != userID {
		return idTaken(id, userID, owner, gotKind)
	}
	return nil
}

func (p *Postgres) GetSingle(ctx context.Context, id string) (wager.Wager, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+singleCols+` FROM wagers WHERE id=$1`, id)
	w, err := scanSingle(row)
	if err == sql.ErrNoRows {
		return wager.Wager{}, errs.ErrWagerNotFound.With("wager %s not found", id)
	}
	if err != nil {
		return wager.Wager{}, classify(err, "get wager")
	}
	return w, nil
}

func (p *Postgres) GetParlay(ctx context.Context, id string) (wager.Parlay, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+parlayCols+` FROM parlays WHERE id=$1`, id)
	pl, err := scanParlay(row)
	if err == sql.ErrNoRows {
		return wager.Parlay{}, errs.ErrWagerNotFound.With("parlay %s not found", id)
	}
	if err != nil {
		return wager.Parlay{}, classify(err, "get parlay")
	}
	if pl.Legs, err = queryLegs(ctx, p.db, `SELECT `+legCols+` FROM parlay_legs WHERE parlay_id=$1 ORDER BY leg_number`, id); err != nil {
		return wager.Parlay{}, err
	}
	return pl, nil
}

func (p *Postgres) ListSinglesByUser(ctx context.Context, userID string, f ListFilter) ([]wager.Wager, error) {
	f = f.normalized()
	q, args := listQuery(`SELECT `+singleCols+` FROM wagers WHERE user_id=$1`, userID, f)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err, "list wagers")
	}
	defer rows.Close()

	out := []wager.Wager{}
	for rows.Next() {
		w, err := scanSingle(rows)
		if err != nil {
			return nil, classify(err, "scan wager")
		}
		out = append(out, w)
	}
	return out, classify(rows.Err(), "list wagers")
}

func (p *Postgres) ListParlaysByUser(ctx context.Context, userID string, f ListFilter) ([]wager.Parlay, error) {
	f = f.normalized()
	q, args := listQuery(`SELECT `+parlayCols+` FROM parlays WHERE user_id=$1`, userID, f)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err, "list parlays")
	}
	out := []wager.Parlay{}
	for rows.Next() {
		pl, err := scanParlay(rows)
		if err != nil {
			rows.Close()
			return nil, classify(err, "scan parlay")
		}
		out = append(out, pl)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list parlays")
	}

	for i := range out {
		if out[i].Legs, err = queryLegs(ctx, p.db, `SELECT `+legCols+` FROM parlay_legs WHERE parlay_id=$1 ORDER BY leg_number`, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Postgres) FindPendingSinglesBySelection(ctx context.Context, selectionID string) ([]wager.Wager, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+singleCols+` FROM wagers WHERE selection_id=$1 AND status='pending'`, selectionID)
	if err != nil {
		return nil, classify(err, "find pending wagers")
	}
	defer rows.Close()

	var out []wager.Wager
	for rows.Next() {
		w, err := scanSingle(rows)
		if err != nil {
			return nil, classify(err, "scan wager")
		}
		out = append(out, w)
	}
	return out, classify(rows.Err(), "find pending wagers")
}

func (p *Postgres) FindPendingLegsBySelection(ctx context.Context, selectionID string) ([]wager.Leg, error) {
	return queryLegs(ctx, p.db,
		`SELECT `+legCols+` FROM parlay_legs WHERE selection_id=$1 AND status='pending'`, selectionID)
}

func (p *Postgres) FindPendingParlayIDsBySelection(ctx context.Context, selectionID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT p.id
		FROM parlays p
		JOIN parlay_legs l ON l.parlay_id = p.id
		WHERE l.selection_id=$1 AND p.status='pending'
		ORDER BY p.id`, selectionID)
	if err != nil {
		return nil, classify(err, "find pending parlays")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify(err, "scan parlay id")
		}
		out = append(out, id)
	}
	return out, classify(rows.Err(), "find pending parlays")
}

// TransitionSingle faz compare-and-swap em pending: se nenhuma linha mudou,
// ou a aposta não existe ou já está terminal.
func (p *Postgres) TransitionSingle(ctx context.Context, id string, to wager.Status, payout decimal.Decimal) (wager.Wager, error) {
	if _, err := wager.StatusPending.Transition(to); err != nil {
		return wager.Wager{}, err
	}
	row := p.db.QueryRowContext(ctx, `
		UPDATE wagers SET status=$2, payout=$3, settled_at=NOW()
		WHERE id=$1 AND status='pending'
		RETURNING `+singleCols, id, string(to), payout)
	w, err := scanSingle(row)
	if err == nil {
		return w, nil
	}
	if err != sql.ErrNoRows {
		return wager.Wager{}, classify(err, "transition wager")
	}

	cur, gerr := p.GetSingle(ctx, id)
	if gerr != nil {
		return wager.Wager{}, gerr
	}
	return cur, errs.ErrInvalidTransition.With("wager %s -> %s not allowed", cur.Status, to)
}

func (p *Postgres) TransitionLeg(ctx context.Context, legID string, to wager.LegStatus) (wager.Leg, error) {
	if _, err := wager.LegPending.Transition(to); err != nil {
		return wager.Leg{}, err
	}
	legs, err := queryLegs(ctx, p.db, `
		UPDATE parlay_legs SET status=$2
		WHERE id=$1 AND status='pending'
		RETURNING `+legCols, legID, string(to))
	if err != nil {
		return wager.Leg{}, err
	}
	if len(legs) == 1 {
		return legs[0], nil
	}

	cur, err := queryLegs(ctx, p.db, `SELECT `+legCols+` FROM parlay_legs WHERE id=$1`, legID)
	if err != nil {
		return wager.Leg{}, err
	}
	if len(cur) == 0 {
		return wager.Leg{}, errs.ErrWagerNotFound.With("leg %s not found", legID)
	}
	return cur[0], errs.ErrInvalidTransition.With("leg %s -> %s not allowed", cur[0].Status, to)
}

// RecomputeParlay trava a linha da múltipla (FOR UPDATE) antes de ler as
// pernas, serializando recomputações concorrentes da mesma múltipla.
func (p *Postgres) RecomputeParlay(ctx context.Context, parlayID string) (wager.Parlay, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return wager.Parlay{}, false, classify(err, "begin")
	}
	defer tx.Rollback()

	pl, err := scanParlay(tx.QueryRowContext(ctx, `SELECT `+parlayCols+` FROM parlays WHERE id=$1 FOR UPDATE`, parlayID))
	if err == sql.ErrNoRows {
		return wager.Parlay{}, false, errs.ErrWagerNotFound.With("parlay %s not found", parlayID)
	}
	if err != nil {
		return wager.Parlay{}, false, classify(err, "lock parlay")
	}
	if pl.Legs, err = queryLegs(ctx, tx, `SELECT `+legCols+` FROM parlay_legs WHERE parlay_id=$1 ORDER BY leg_number`, parlayID); err != nil {
		return wager.Parlay{}, false, err
	}
	if pl.Status.Terminal() {
		return pl, false, nil
	}

	out := wager.Evaluate(pl)
	if out.Status == wager.ParlayPending {
		return pl, false, nil
	}

	payout := pl.PotentialPayout
	if out.Status == wager.ParlayPartiallyVoid || out.Status == wager.ParlayVoid {
		payout = out.Payout
	}
	var settledAt time.Time
	if err := tx.QueryRowContext(ctx, `
		UPDATE parlays SET status=$2, combined_odds=$3, potential_payout=$4, settled_at=NOW()
		WHERE id=$1
		RETURNING settled_at`,
		parlayID, string(out.Status), out.CombinedOdds, payout,
	).Scan(&settledAt); err != nil {
		return wager.Parlay{}, false, classify(err, "update parlay")
	}
	if err := tx.Commit(); err != nil {
		return wager.Parlay{}, false, classify(err, "commit")
	}

	pl.Status = out.Status
	pl.CombinedOdds = out.CombinedOdds
	pl.PotentialPayout = payout
	pl.SettledAt = &settledAt
	return pl, true, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryLegs(ctx context.Context, q querier, query string, args ...any) ([]wager.Leg, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "query legs")
	}
	defer rows.Close()

	var out []wager.Leg
	for rows.Next() {
		var l wager.Leg
		var status string
		if err := rows.Scan(&l.ID, &l.ParlayID, &l.SelectionID, &l.EventID, &l.Odds, &status, &l.LegNumber); err != nil {
			return nil, classify(err, "scan leg")
		}
		l.Status = wager.LegStatus(status)
		out = append(out, l)
	}
	return out, classify(rows.Err(), "query legs")
}

func scanSingle(r rowScanner) (wager.Wager, error) {
	var w wager.Wager
	var status string
	var payout decimal.NullDecimal
	var settled sql.NullTime
	if err := r.Scan(&w.ID, &w.UserID, &w.SelectionID, &w.Stake, &w.Odds, &w.PotentialPayout,
		&status, &payout, &w.CreatedAt, &settled); err != nil {
		return wager.Wager{}, err
	}
	w.Status = wager.Status(status)
	w.Payout = decimal.Zero
	if payout.Valid {
		w.Payout = payout.Decimal
	}
	if settled.Valid {
		t := settled.Time
		w.SettledAt = &t
	}
	return w, nil
}

func scanParlay(r rowScanner) (wager.Parlay, error) {
	var p wager.Parlay
	var status string
	var settled sql.NullTime
	if err := r.Scan(&p.ID, &p.UserID, &p.Stake, &p.PlacedOdds, &p.CombinedOdds, &p.PotentialPayout,
		&status, &p.CreatedAt, &settled); err != nil {
		return wager.Parlay{}, err
	}
	p.Status = wager.ParlayStatus(status)
	if settled.Valid {
		t := settled.Time
		p.SettledAt = &t
	}
	return p, nil
}

func listQuery(base, userID string, f ListFilter) (string, []any) {
	args := []any{userID}
	q := base
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return q, args
}

// classify converte falhas do driver em TransientError, preservando o
// contexto com pkg/errors.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	return errs.Transient(errors.Wrap(err, op), "wager store: "+op)
}
