package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"support_chat/internal/broker"
	"support_chat/internal/domain"
	"support_chat/internal/metrics"
	"support_chat/internal/repository"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

var errSkip = errors.New("push: not a customer notification")

type Source interface {
	ConsumePushQueue() (<-chan amqp.Delivery, error)
}

// Worker turns events that expired unread in a customer's queue into
// stored notifications.
type Worker struct {
	source  Source
	store   repository.NotificationRepository
	metrics *metrics.Metrics
	logger  *slog.Logger

	Now func() time.Time
}

func NewWorker(source Source, store repository.NotificationRepository, m *metrics.Metrics, logger *slog.Logger) *Worker {
	return &Worker{
		source:  source,
		store:   store,
		metrics: m,
		logger:  logger,
		Now:     time.Now,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	msgs, err := w.source.ConsumePushQueue()
	if err != nil {
		return fmt.Errorf("failed to start push consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("push queue closed")
			}
			w.deliver(ctx, d)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, d amqp.Delivery) {
	err := w.Handle(ctx, broker.OriginalRoutingKey(d), d.Body)
	switch {
	case err == nil, errors.Is(err, errSkip):
		d.Ack(false)
	default:
		w.logger.Error("failed to store notification", "routing_key", d.RoutingKey, "err", err)
		d.Nack(false, true)
	}
}

// Handle stores a notification for the customer named by routingKey.
func (w *Worker) Handle(ctx context.Context, routingKey string, body []byte) error {
	userID, ok := strings.CutPrefix(routingKey, "user.")
	if !ok {
		// Room events land here when no node is bound to them.
		return errSkip
	}
	if userID == "" {
		w.logger.Warn("skipping push: invalid routing key", "routing_key", routingKey)
		return errSkip
	}

	var env broker.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		w.logger.Warn("skipping push: bad envelope", "err", err)
		return errSkip
	}
	if env.Type != domain.EventTypeMessageCreated {
		return errSkip
	}
	var ev domain.RoomEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		w.logger.Warn("skipping push: bad payload", "err", err)
		return errSkip
	}

	n := &domain.Notification{
		ID:        notificationID(ev.MessageID, userID),
		UserID:    userID,
		RoomID:    ev.RoomID,
		Body:      ev.Preview,
		CreatedAt: w.Now(),
	}
	if err := w.store.SaveNotification(ctx, n); err != nil {
		return err
	}
	w.metrics.NotificationStored()
	w.logger.Info("notification stored", "user_id", userID, "room_id", ev.RoomID)
	return nil
}

// notificationID is derived from the message so a redelivered event does
// not create a second notification.
func notificationID(messageID, userID string) uuid.UUID {
	if messageID == "" {
		return uuid.New()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("notification:"+userID+":"+messageID))
}
