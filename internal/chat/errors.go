package chat

import (
	"errors"

	"support_chat/internal/domain"
	"support_chat/internal/repository"
)

var (
	ErrRoomClosed       = errors.New("chat: room is closed")
	ErrAlreadyClaimed   = errors.New("chat: room already accepted by another agent")
	ErrNotWaiting       = errors.New("chat: room is not waiting for an agent")
	ErrNotAssignedAgent = errors.New("chat: caller is not the agent assigned to this room")
	ErrNotRoomClient    = errors.New("chat: caller is not the customer of this room")
	ErrInvalidSession   = errors.New("chat: session has no user id")
	ErrInvalidCloser    = errors.New("chat: rooms are closed by the client or the agent")
	ErrForbidden        = errors.New("chat: operation not allowed for this role")
	ErrInvalidRoomID    = errors.New("chat: room id must be 1-128 letters, digits, '_' or '-'")
	ErrOwnRoom          = errors.New("chat: agents cannot accept their own room")
)

// Error codes shared by the HTTP and websocket surfaces.
const (
	CodeNotFound       = "not_found"
	CodeRoomClosed     = "room_closed"
	CodeAlreadyClaimed = "already_claimed"
	CodeNotWaiting     = "not_waiting"
	CodeForbidden      = "forbidden"
	CodeUnauthorized   = "unauthorized"
	CodeInvalid        = "invalid"
	CodeInternal       = "internal"
)

// Code classifies err for clients.
func Code(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrRoomClosed):
		return CodeRoomClosed
	case errors.Is(err, ErrAlreadyClaimed):
		return CodeAlreadyClaimed
	case errors.Is(err, ErrNotWaiting):
		return CodeNotWaiting
	case errors.Is(err, ErrNotAssignedAgent), errors.Is(err, ErrNotRoomClient),
		errors.Is(err, ErrForbidden), errors.Is(err, ErrOwnRoom):
		return CodeForbidden
	case errors.Is(err, ErrInvalidSession):
		return CodeUnauthorized
	case errors.Is(err, ErrInvalidCloser),
		errors.Is(err, ErrInvalidRoomID),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrUnknownMessageType):
		return CodeInvalid
	default:
		return CodeInternal
	}
}
