package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeTopic = "support.topic"
	ExchangePush  = "support.push"

	pushQueue = "support_push_notifications"

	// userQueueTTL is how long an event waits for a connected customer
	// before it is dead-lettered to the push exchange.
	userQueueTTL = 5000
	// userQueueExpiry removes a customer's queue after they have been gone
	// for a minute.
	userQueueExpiry = 60000
)

// Envelope is the body of every message on the topic exchange.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RoomKey is the routing key for changes to a room.
func RoomKey(roomID, kind string) string {
	return "room." + roomID + "." + kind
}

// RoomFromKey extracts the room id and change kind from a room routing key.
func RoomFromKey(key string) (roomID, kind string, ok bool) {
	rest, found := strings.CutPrefix(key, "room.")
	if !found {
		return "", "", false
	}
	i := strings.LastIndexByte(rest, '.')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// UserKey routes to a single customer's queue.
func UserKey(userID string) string {
	return "user." + userID
}

// topicExchangeArgs sends unroutable messages to the push exchange, so a
// customer who never connected, or whose queue expired, still gets a
// notification for user.<id> events.
func topicExchangeArgs() amqp.Table {
	return amqp.Table{"alternate-exchange": ExchangePush}
}

type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQClient(url string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Dead-letter target for user queues, and the alternate exchange for
	// user events nobody is bound to receive.
	err = ch.ExchangeDeclare(
		ExchangePush, // name
		"fanout",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare push exchange: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeTopic,       // name
		"topic",             // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		topicExchangeArgs(), // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare topic exchange: %w", err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: ch,
	}, nil
}

func (c *RabbitMQClient) Publish(ctx context.Context, routingKey string, body any) error {
	return c.PublishToExchange(ctx, ExchangeTopic, routingKey, body)
}

func (c *RabbitMQClient) PublishToExchange(ctx context.Context, exchange, routingKey string, body any) error {
	bytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	err = c.channel.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        bytes,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", routingKey, err)
	}
	return nil
}

func (c *RabbitMQClient) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// ConsumeUserQueue declares the customer's queue and consumes it on a
// dedicated channel. Events not consumed within the TTL go to the push
// exchange. The returned cancel closes the channel; the queue then
// outlives the connection long enough to dead-letter pending events.
func (c *RabbitMQClient) ConsumeUserQueue(userID string) (<-chan amqp.Delivery, func(), error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	args := amqp.Table{
		"x-message-ttl":          int32(userQueueTTL),
		"x-dead-letter-exchange": ExchangePush,
		"x-expires":              int32(userQueueExpiry),
	}
	q, err := ch.QueueDeclare(
		UserKey(userID), // name
		false,           // durable
		false,           // delete when unused
		false,           // exclusive: a customer may have several tabs
		false,           // no-wait
		args,            // arguments
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to declare user queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, UserKey(userID), ExchangeTopic, false, nil); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to bind user queue: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name, // queue
		"",     // consumer tag
		true,   // auto-ack: forwarded straight to the socket
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	return msgs, func() { ch.Close() }, nil
}

// ConsumePushQueue consumes events dead-lettered from user queues and
// user events the topic exchange could not route.
func (c *RabbitMQClient) ConsumePushQueue() (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		pushQueue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare push queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "#", ExchangePush, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind push queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume push queue: %w", err)
	}
	return msgs, nil
}

// ConsumeBroadcast binds a private auto-delete queue to routingKey so that
// every node sees every matching event.
func (c *RabbitMQClient) ConsumeBroadcast(routingKey string) (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // name: server-generated
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare broadcast queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeTopic, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind broadcast queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume broadcast queue: %w", err)
	}
	return msgs, nil
}

// OriginalRoutingKey returns the key a dead-lettered delivery was first
// published with.
func OriginalRoutingKey(d amqp.Delivery) string {
	if strings.HasPrefix(d.RoutingKey, "user.") {
		return d.RoutingKey
	}
	deaths, ok := d.Headers["x-death"].([]any)
	if !ok || len(deaths) == 0 {
		return d.RoutingKey
	}
	death, ok := deaths[0].(amqp.Table)
	if !ok {
		return d.RoutingKey
	}
	keys, ok := death["routing-keys"].([]any)
	if !ok || len(keys) == 0 {
		return d.RoutingKey
	}
	if s, ok := keys[0].(string); ok {
		return s
	}
	return d.RoutingKey
}
