package chat

import (
	"support_chat/internal/domain"
)

// CanView checks whether s, acting as role, may read room. Customers read
// their own rooms. Agents read rooms waiting in the queue and rooms
// assigned to them.
func CanView(room domain.Room, s domain.Session, role domain.SenderType) error {
	if s.UserID == "" {
		return ErrInvalidSession
	}
	switch role {
	case domain.SenderClient:
		if room.ClientID != s.UserID {
			return ErrNotRoomClient
		}
	case domain.SenderAgent:
		if room.AgentID != s.UserID && !IsQueued(room) {
			return ErrNotAssignedAgent
		}
	default:
		return ErrForbidden
	}
	return nil
}
