// Package catalog resolve seleções para o fluxo de aposta: Postgres como
// fonte, Redis como cache de leitura.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
)

const MarketOpen = "open"

type Selection struct {
	SelectionID   string          `json:"selection_id"`
	EventID       string          `json:"event_id"`
	MarketID      string          `json:"market_id"`
	MarketStatus  string          `json:"market_status"`
	ReferenceOdds decimal.Decimal `json:"reference_odds"`
}

type Source interface {
	GetSelection(ctx context.Context, id string) (Selection, error)
}

// Postgres lê selections JOIN markets
type Postgres struct{ DB *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{DB: db} }

func (p *Postgres) GetSelection(ctx context.Context, id string) (Selection, error) {
	const q = `
		SELECT s.id, m.event_id, m.id, m.status, s.odds
		FROM selections s
		JOIN markets m ON m.id = s.market_id
		WHERE s.id = $1`
	var s Selection
	err := p.DB.QueryRowContext(ctx, q, id).Scan(&s.SelectionID, &s.EventID, &s.MarketID, &s.MarketStatus, &s.ReferenceOdds)
	if err == sql.ErrNoRows {
		return Selection{}, errs.ErrSelectionNotFound.With("selection %s not found", id)
	}
	if err != nil {
		return Selection{}, errs.Transient(errors.Wrap(err, "catalog query"), "catalog unavailable")
	}
	return s, nil
}

// Cached envolve uma Source com cache Redis de TTL curto. Falha do Redis
// não derruba a leitura: cai direto na fonte.
type Cached struct {
	next Source
	rdb  *redis.Client
	ttl  time.Duration
	log  *zap.Logger
}

func NewCached(next Source, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Cached {
	return &Cached{next: next, rdb: rdb, ttl: ttl, log: log}
}

func keySelection(id string) string { return "catalog:selection:" + id }

func (c *Cached) GetSelection(ctx context.Context, id string) (Selection, error) {
	b, err := c.rdb.Get(ctx, keySelection(id)).Bytes()
	if err == nil {
		var s Selection
		if jerr := json.Unmarshal(b, &s); jerr == nil {
			return s, nil
		}
	} else if err != redis.Nil {
		c.log.Warn("catalog cache get", zap.String("selection_id", id), zap.Error(err))
	}

	s, err := c.next.GetSelection(ctx, id)
	if err != nil {
		return Selection{}, err
	}
	if b, err := json.Marshal(s); err == nil {
		if err := c.rdb.Set(ctx, keySelection(id), b, c.ttl).Err(); err != nil {
			c.log.Warn("catalog cache set", zap.String("selection_id", id), zap.Error(err))
		}
	}
	return s, nil
}
