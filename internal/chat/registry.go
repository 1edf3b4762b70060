package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"support_chat/internal/domain"
	"support_chat/internal/metrics"
	"support_chat/internal/notify"
	"support_chat/internal/repository"

	"github.com/google/uuid"
)

// Registry creates and looks up rooms.
type Registry struct {
	rooms   repository.RoomStore
	watcher Watcher
	metrics *metrics.Metrics
	logger  *slog.Logger

	Now func() time.Time
}

func NewRegistry(rooms repository.RoomStore, watcher Watcher, m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{
		rooms:   rooms,
		watcher: watcher,
		metrics: m,
		logger:  logger,
		Now:     time.Now,
	}
}

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidRoomID reports whether id is safe to use as a room id. Room ids
// end up in broker routing keys, which are limited to 255 bytes.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// NewRoomID returns an identifier of the form chat_<millis>_<random>.
func NewRoomID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("chat_%d_%s", now.UnixMilli(), suffix)
}

// EnsureRoom returns the room named by existingID when it exists and
// belongs to the session user, in whatever state it is in. Otherwise it
// creates a fresh open room owned by the session user. existingID is
// reused for the new room only when no room has that id.
func (r *Registry) EnsureRoom(ctx context.Context, s domain.Session, existingID string) (*domain.Room, error) {
	if s.UserID == "" {
		return nil, ErrInvalidSession
	}

	now := r.Now()
	id := existingID
	if existingID != "" {
		if !ValidRoomID(existingID) {
			return nil, ErrInvalidRoomID
		}
		room, err := r.rooms.GetRoom(ctx, existingID)
		switch {
		case err == nil && room.ClientID == s.UserID:
			return room, nil
		case err == nil:
			// Someone else's room: start a new one rather than reveal it.
			id = ""
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("failed to load room: %w", err)
		}
	}
	if id == "" {
		id = NewRoomID(now)
	}
	room := &domain.Room{
		ID:         id,
		ClientID:   s.UserID,
		ClientName: s.UserName,
		ClientLang: s.Locale,
		Status:     domain.RoomOpen,
		CreatedAt:  domain.NowMillis(now),
	}

	created, err := r.rooms.CreateRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	if !created {
		// Lost a race with a concurrent create of the same id.
		existing, err := r.rooms.GetRoom(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load room: %w", err)
		}
		if existing.ClientID != s.UserID {
			return nil, ErrNotRoomClient
		}
		return existing, nil
	}

	r.metrics.RoomCreated()
	r.logger.Info("room created", "room_id", id, "client_id", s.UserID)
	return room, nil
}

func (r *Registry) Room(ctx context.Context, id string) (*domain.Room, error) {
	room, err := r.rooms.GetRoom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// Watch delivers the room document now and after every change to it.
func (r *Registry) Watch(ctx context.Context, id string, fn func(domain.Room)) (func(), error) {
	return watch(ctx, r.watcher, []string{notify.RoomTopic(id)},
		func(ctx context.Context) (domain.Room, error) {
			room, err := r.Room(ctx, id)
			if err != nil {
				return domain.Room{}, err
			}
			return *room, nil
		},
		fn,
		func(err error) {
			r.logger.Warn("failed to reload room", "room_id", id, "err", err)
		})
}
