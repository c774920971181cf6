package gateway

import (
	"context"
	"log/slog"
)

// PubSubRouter owns the Redis subscription and hands each message to the
// hub's broadcaster.
type PubSubRouter struct {
	hub *Hub
}

// NewPubSubRouter creates a PubSubRouter backed by hub.
func NewPubSubRouter(hub *Hub) *PubSubRouter {
	return &PubSubRouter{hub: hub}
}

// RunPattern subscribes to patterns and routes messages until ctx is
// cancelled. go-redis re-subscribes after reconnects.
func (r *PubSubRouter) RunPattern(ctx context.Context, patterns ...string) {
	pubsub := r.hub.Rdb.PSubscribe(ctx, patterns...)
	defer pubsub.Close()

	r.hub.log.Info("subscribed", slog.Any("patterns", patterns))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.hub.Broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}
