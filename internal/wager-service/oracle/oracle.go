package oracle

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
)

// Key é a chave escrita pelo price-processor: "odds:selection:{id}" => "1.85"
func Key(selectionID string) string { return "odds:selection:" + selectionID }

// Redis lê a odd atual publicada pelo price-processor
type Redis struct {
	Rdb *redis.Client
}

func NewRedis(r *redis.Client) *Redis { return &Redis{Rdb: r} }

// CurrentOdds devolve ErrOracleUnavailable em miss, erro ou valor inválido;
// o chamador decide o fallback.
func (o *Redis) CurrentOdds(ctx context.Context, selectionID string) (decimal.Decimal, error) {
	val, err := o.Rdb.Get(ctx, Key(selectionID)).Result()
	if err == redis.Nil {
		return decimal.Zero, errs.ErrOracleUnavailable.With("no price for %s", selectionID)
	}
	if err != nil {
		return decimal.Zero, &errs.Error{Kind: errs.KindTransient, Code: errs.ErrOracleUnavailable.Code, Msg: "price oracle unavailable", Err: err}
	}
	odds, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, errs.ErrOracleUnavailable.With("bad price %q for %s", val, selectionID)
	}
	return odds, nil
}
