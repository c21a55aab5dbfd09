package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"

	"volsignal/internal/model"
)

// Subscribe subscribes to a Redis channel carrying JSON cycle reports and
// waits for the server to confirm, so reports published after it returns
// are not missed.
func (h *Hub) Subscribe(ctx context.Context, rdb *goredis.Client, channel string) (*goredis.PubSub, error) {
	pubsub := rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	h.log.Info("following cycle channel", slog.String("channel", channel))
	return pubsub, nil
}

// Follow rebroadcasts every report received on pubsub. It closes pubsub and
// returns when ctx is cancelled.
func (h *Hub) Follow(ctx context.Context, pubsub *goredis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var report model.CycleReport
			if err := json.Unmarshal([]byte(msg.Payload), &report); err != nil {
				h.log.Warn("bad cycle payload", slog.String("error", err.Error()))
				continue
			}
			h.PublishCycle(report)
		}
	}
}
