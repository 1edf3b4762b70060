package chat

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"support_chat/internal/domain"
	"support_chat/internal/metrics"
	"support_chat/internal/notify"
	"support_chat/internal/repository"

	"github.com/google/uuid"
)

// MessageLog is the append-only, time-ordered stream of messages in a room.
type MessageLog struct {
	store   repository.MessageStore
	watcher Watcher
	metrics *metrics.Metrics
	logger  *slog.Logger

	Now func() time.Time
}

func NewMessageLog(store repository.MessageStore, watcher Watcher, m *metrics.Metrics, logger *slog.Logger) *MessageLog {
	return &MessageLog{
		store:   store,
		watcher: watcher,
		metrics: m,
		logger:  logger,
		Now:     time.Now,
	}
}

// Append stores msg in roomID. The ID and createdAt are assigned when
// unset. Content is never inspected.
func (l *MessageLog) Append(ctx context.Context, roomID string, msg domain.Message) (*domain.Message, error) {
	msg.RoomID = roomID
	if msg.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate message id: %w", err)
		}
		msg.ID = id.String()
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = domain.NowMillis(l.Now())
	}
	if err := l.store.AppendMessage(ctx, &msg); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	l.metrics.MessageAppended(string(msg.SenderType))
	return &msg, nil
}

// List returns the room's messages sorted by createdAt.
func (l *MessageLog) List(ctx context.Context, roomID string) ([]domain.Message, error) {
	msgs, err := l.store.ListMessages(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	SortMessages(msgs)
	return msgs, nil
}

// Subscribe delivers the full sorted message list now and after every
// change to the room's log, until ctx is done or the returned function is
// called. fn runs on a single goroutine per subscription.
func (l *MessageLog) Subscribe(ctx context.Context, roomID string, fn func([]domain.Message)) (func(), error) {
	return watch(ctx, l.watcher, []string{notify.MessagesTopic(roomID)},
		func(ctx context.Context) ([]domain.Message, error) { return l.List(ctx, roomID) },
		fn,
		func(err error) {
			l.logger.Warn("failed to reload messages", "room_id", roomID, "err", err)
		})
}

// SortMessages orders msgs by createdAt ascending. Ties keep the order the
// store returned them in.
func SortMessages(msgs []domain.Message) {
	slices.SortStableFunc(msgs, func(a, b domain.Message) int {
		return cmp.Compare(a.CreatedAt, b.CreatedAt)
	})
}
