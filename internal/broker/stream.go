package broker

import (
	"encoding/json"
	"errors"
	"fmt"

	"support_chat/internal/domain"

	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/amqp"
	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/stream"
)

const DefaultJournalStream = "support-chat-events"

// Journal appends every published outbox event to a RabbitMQ stream so
// the full history of room changes can be replayed by other consumers.
type Journal struct {
	env      *stream.Environment
	producer *stream.Producer
}

func NewJournal(uri, streamName string) (*Journal, error) {
	env, err := stream.NewEnvironment(stream.NewEnvironmentOptions().SetUri(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}

	err = env.DeclareStream(streamName, &stream.StreamOptions{
		MaxLengthBytes: stream.ByteCapacity{}.GB(2),
	})
	if err != nil && !errors.Is(err, stream.StreamAlreadyExists) {
		env.Close()
		return nil, fmt.Errorf("failed to declare stream: %w", err)
	}

	producer, err := env.NewProducer(streamName, stream.NewProducerOptions())
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to create stream producer: %w", err)
	}

	return &Journal{env: env, producer: producer}, nil
}

func (j *Journal) Append(event *domain.OutboxEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := j.producer.Send(amqp.NewMessage(data)); err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}
	return nil
}

func (j *Journal) Close() error {
	if err := j.producer.Close(); err != nil {
		return err
	}
	return j.env.Close()
}
