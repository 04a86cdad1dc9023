package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/sports-wager-engine/internal/wager-service/oracle"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// RedisCache grava a odd corrente de cada seleção no formato lido pelo
// oráculo do wager-service.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(c *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl}
}

func versionKey(selectionID string) string { return oracle.Key(selectionID) + ":version" }

// setIfNewer só grava quando a versão é maior que a última aplicada.
// KEYS: odd, versão. ARGV: odd, versão, ttl em ms.
var setIfNewer = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[2]) or "-1")
local v = tonumber(ARGV[2])
if v <= cur then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// SetCurrent devolve false quando a atualização é mais velha que a gravada.
// Versão zero é tratada como "sem versão" e sempre sobrescreve.
func (r *RedisCache) SetCurrent(ctx context.Context, e events.PriceChanged) (bool, error) {
	if e.Version <= 0 {
		return true, r.Client.Set(ctx, oracle.Key(e.SelectionID), e.Odds.String(), r.TTL).Err()
	}
	n, err := setIfNewer.Run(ctx, r.Client,
		[]string{oracle.Key(e.SelectionID), versionKey(e.SelectionID)},
		e.Odds.String(), strconv.Itoa(e.Version), strconv.FormatInt(r.TTL.Milliseconds(), 10),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
