package repository

import (
	"context"
	"errors"

	"support_chat/internal/domain"
)

var ErrNotFound = errors.New("not found")

// RoomStore holds chats/{roomId} documents. The boolean returned by the
// conditional writes reports whether the predicate held and the write
// was applied.
type RoomStore interface {
	// CreateRoom inserts room unless a room with the same ID exists.
	CreateRoom(ctx context.Context, room *domain.Room) (bool, error)
	GetRoom(ctx context.Context, id string) (*domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	// MarkWaiting sets waitingForAgent on an open, unclaimed, not yet waiting room.
	MarkWaiting(ctx context.Context, id string) (bool, error)
	// ClaimRoom assigns the agent only if no agent is assigned and the room is open.
	ClaimRoom(ctx context.Context, id string, claim domain.AgentClaim) (bool, error)
	// CloseRoom moves an open room to a terminal status.
	CloseRoom(ctx context.Context, id string, status domain.RoomStatus, closedAt int64) (bool, error)
}

// MessageStore holds chats/{roomId}/messages. Listing returns messages in
// the store's physical order, which need not match createdAt order.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *domain.Message) error
	ListMessages(ctx context.Context, roomID string) ([]domain.Message, error)
}

type Store interface {
	RoomStore
	MessageStore
}
