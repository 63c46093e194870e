package hub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the redis pub/sub channel shared by hub instances.
const DefaultChannel = "loanvoice:events"

// AttachRedis bridges this hub to its siblings over redis pub/sub: local
// broadcasts are published to channel, and frames published by other
// instances are delivered to local clients. Frames carrying this hub's own
// origin id are skipped to avoid echo loops. The subscriber runs until ctx
// is done.
func (h *Hub) AttachRedis(ctx context.Context, rdb *redis.Client, channel string) {
	if channel == "" {
		channel = DefaultChannel
	}

	h.publish = func(f Frame) {
		payload, err := json.Marshal(f)
		if err != nil {
			return
		}
		if err := rdb.Publish(ctx, channel, payload).Err(); err != nil {
			h.log.Warn("redis publish failed", "channel", channel, "err", err)
		}
	}

	sub := rdb.Subscribe(ctx, channel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var f Frame
				if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
					h.log.Debug("dropping malformed bridged frame")
					continue
				}
				if f.Origin == h.id {
					continue
				}
				h.deliverLocal(f)
			}
		}
	}()
}
