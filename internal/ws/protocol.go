package ws

import (
	"support_chat/internal/chat"
	"support_chat/internal/domain"
)

// Inbound operations.
const (
	OpEnsureRoom      = "ensure_room"
	OpSubscribeRoom   = "subscribe_room"
	OpUnsubscribeRoom = "unsubscribe_room"
	OpSend            = "send"
	OpQuick           = "quick"
	OpRequestAgent    = "request_agent"
	OpSubscribeQueue  = "subscribe_queue"
	OpAccept          = "accept"
	OpClose           = "close"
)

// Outbound frame types.
const (
	TypeRoom           = "room"
	TypeView           = "view"
	TypeQueue          = "queue"
	TypeSent           = "sent"
	TypeAcceptRejected = "accept_rejected"
	TypeNotification   = "notification"
	TypeError          = "error"
)

type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
)

func (r Role) senderType() domain.SenderType {
	if r == RoleAgent {
		return domain.SenderAgent
	}
	return domain.SenderClient
}

// Request is a frame sent by a browser.
type Request struct {
	Op          string             `json:"op"`
	RoomID      string             `json:"roomId,omitempty"`
	Kind        domain.MessageType `json:"kind,omitempty"`
	Text        string             `json:"text,omitempty"`
	ImageBase64 string             `json:"imageBase64,omitempty"`
	AudioBase64 string             `json:"audioBase64,omitempty"`
}

// Frame is a message pushed to a browser.
type Frame struct {
	Type    string           `json:"type"`
	Op      string           `json:"op,omitempty"`
	RoomID  string           `json:"roomId,omitempty"`
	Room    *domain.Room     `json:"room,omitempty"`
	View    *chat.View       `json:"view,omitempty"`
	Rooms   []domain.Room    `json:"rooms,omitempty"`
	Message *domain.Message  `json:"message,omitempty"`
	Result  *chat.SendResult `json:"result,omitempty"`
	Preview string           `json:"preview,omitempty"`
	Code    string           `json:"code,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func errorFrame(op, roomID, code string, err error) Frame {
	return Frame{Type: TypeError, Op: op, RoomID: roomID, Code: code, Error: err.Error()}
}
