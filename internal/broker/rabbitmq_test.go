package broker

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestRoomKeyRoundTrip(t *testing.T) {
	key := RoomKey("chat_1700000000000_abc", "message")
	assert.Equal(t, "room.chat_1700000000000_abc.message", key)

	id, kind, ok := RoomFromKey(key)
	assert.True(t, ok)
	assert.Equal(t, "chat_1700000000000_abc", id)
	assert.Equal(t, "message", kind)
}

func TestRoomFromKey_Invalid(t *testing.T) {
	for _, key := range []string{"user.1", "room.", "room.abc", "room.abc."} {
		_, _, ok := RoomFromKey(key)
		assert.False(t, ok, key)
	}
}

func TestOriginalRoutingKey(t *testing.T) {
	direct := amqp.Delivery{RoutingKey: "user.42"}
	assert.Equal(t, "user.42", OriginalRoutingKey(direct))

	dead := amqp.Delivery{
		RoutingKey: "",
		Headers: amqp.Table{
			"x-death": []any{amqp.Table{"routing-keys": []any{"user.7"}}},
		},
	}
	assert.Equal(t, "user.7", OriginalRoutingKey(dead))

	assert.Equal(t, "other", OriginalRoutingKey(amqp.Delivery{RoutingKey: "other"}))
}

func TestTopicExchangeArgs_FallBackToPush(t *testing.T) {
	assert.Equal(t, amqp.Table{"alternate-exchange": ExchangePush}, topicExchangeArgs())
}
