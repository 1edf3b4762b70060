package ws

import (
	"context"
	"log/slog"

	"support_chat/internal/broker"
	"support_chat/internal/notify"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Emitter raises local change notifications.
type Emitter interface {
	Emit(topics ...string)
}

// RelayRoomEvents turns room events from the broker into notifications on
// this node, so subscriptions served here see writes made on any node.
// It returns when ctx is done or deliveries is closed.
func RelayRoomEvents(ctx context.Context, deliveries <-chan amqp.Delivery, emitter Emitter, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				logger.Warn("room event stream closed")
				return
			}
			topics := topicsFor(d.RoutingKey)
			if topics == nil {
				logger.Debug("ignoring delivery", "routing_key", d.RoutingKey)
				continue
			}
			emitter.Emit(topics...)
		}
	}
}

func topicsFor(routingKey string) []string {
	roomID, kind, ok := broker.RoomFromKey(routingKey)
	if !ok {
		return nil
	}
	switch kind {
	case "message":
		return []string{notify.MessagesTopic(roomID)}
	case "created", "updated":
		return []string{notify.TopicRooms, notify.RoomTopic(roomID)}
	default:
		return nil
	}
}
