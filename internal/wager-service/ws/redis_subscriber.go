package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// StartRedisSubscriber escuta o canal de broadcast do price-processor e
// repassa cada PriceChanged ao hub até ctx terminar.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p events.PriceChanged
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					log.Warn("ws subscriber unmarshal", zap.Error(err))
					continue
				}
				hub.Broadcast(p)
			}
		}
	}()
}
