package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"support_chat/internal/broker"
	"support_chat/internal/domain"
	"support_chat/internal/metrics"
	"support_chat/internal/repository"

	"github.com/google/uuid"
)

const defaultBatch = 100

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
}

// Journal receives a copy of every published event.
type Journal interface {
	Append(event *domain.OutboxEvent) error
}

// Worker relays committed outbox rows to the topic exchange.
type Worker struct {
	repo      repository.OutboxRepository
	publisher Publisher
	journal   Journal
	metrics   *metrics.Metrics
	logger    *slog.Logger
	batch     int
}

// NewWorker creates a relay. journal may be nil.
func NewWorker(repo repository.OutboxRepository, publisher Publisher, journal Journal, m *metrics.Metrics, logger *slog.Logger) *Worker {
	return &Worker{
		repo:      repo,
		publisher: publisher,
		journal:   journal,
		metrics:   m,
		logger:    logger,
		batch:     defaultBatch,
	}
}

// Start polls for pending events every interval until ctx is done.
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				n, err := w.ProcessBatch(ctx)
				if err != nil {
					if ctx.Err() == nil {
						w.logger.Error("failed to process outbox batch", "err", err)
					}
					break
				}
				if n < w.batch {
					break
				}
			}
		}
	}
}

// ProcessBatch publishes one batch of pending events and marks them
// processed in the same transaction that locked them.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	tx, err := w.repo.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	events, err := w.repo.FetchPending(ctx, tx, w.batch)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	ids, err := w.dispatch(ctx, events)
	if err != nil {
		return 0, err
	}

	if err := w.repo.MarkProcessed(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit outbox batch: %w", err)
	}
	w.metrics.Published(len(ids))
	return len(ids), nil
}

// dispatch publishes events in order and stops at the first failure so
// nothing after it is marked processed.
func (w *Worker) dispatch(ctx context.Context, events []*domain.OutboxEvent) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(events))
	for _, ev := range events {
		keys, err := Routes(ev)
		if err != nil {
			// Unroutable rows would block the queue forever.
			w.logger.Warn("dropping malformed outbox event", "event_id", ev.ID, "err", err)
			ids = append(ids, ev.ID)
			continue
		}

		env := broker.Envelope{Type: ev.EventType, Payload: ev.Payload}
		for _, key := range keys {
			if err := w.publisher.Publish(ctx, key, env); err != nil {
				return nil, err
			}
		}

		if w.journal != nil {
			if err := w.journal.Append(ev); err != nil {
				w.logger.Warn("failed to journal event", "event_id", ev.ID, "err", err)
			}
		}
		ids = append(ids, ev.ID)
	}
	return ids, nil
}

// Routes returns the routing keys an event is published under. Agent
// messages are also sent to the customer's own queue.
func Routes(ev *domain.OutboxEvent) ([]string, error) {
	var payload domain.RoomEvent
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.RoomID == "" {
		return nil, fmt.Errorf("event %s has no room id", ev.ID)
	}

	switch ev.EventType {
	case domain.EventTypeRoomCreated:
		return []string{broker.RoomKey(payload.RoomID, "created")}, nil
	case domain.EventTypeRoomUpdated:
		return []string{broker.RoomKey(payload.RoomID, "updated")}, nil
	case domain.EventTypeMessageCreated:
		keys := []string{broker.RoomKey(payload.RoomID, "message")}
		if payload.SenderType == domain.SenderAgent && payload.ClientID != "" {
			keys = append(keys, broker.UserKey(payload.ClientID))
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.EventType)
	}
}
