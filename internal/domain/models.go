package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session identifies the caller of a chat operation. It is passed
// explicitly instead of being read from ambient request state.
type Session struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Locale   string `json:"locale"`
}

type RoomStatus string

const (
	RoomOpen           RoomStatus = "open"
	RoomClosedByClient RoomStatus = "closed_by_client"
	RoomClosedByAgent  RoomStatus = "closed_by_agent"
)

// Closed reports whether the status is one of the terminal states.
func (s RoomStatus) Closed() bool {
	return s == RoomClosedByClient || s == RoomClosedByAgent
}

type Room struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"clientId"`
	ClientName      string     `json:"clientName"`
	ClientLang      string     `json:"clientLang"`
	Status          RoomStatus `json:"status"`
	WaitingForAgent bool       `json:"waitingForAgent"`
	AgentAccepted   bool       `json:"agentAccepted"`
	AgentID         string     `json:"agentId,omitempty"`
	AgentName       string     `json:"agentName,omitempty"`
	AgentLang       string     `json:"agentLang,omitempty"`
	CreatedAt       int64      `json:"createdAt"`
	AcceptedAt      int64      `json:"acceptedAt,omitempty"`
	ClosedAt        int64      `json:"closedAt,omitempty"`
}

// AgentClaim is the set of fields written when an agent takes a room.
type AgentClaim struct {
	AgentID    string
	AgentName  string
	AgentLang  string
	AcceptedAt int64
}

type SenderType string

const (
	SenderClient SenderType = "client"
	SenderAgent  SenderType = "agent"
	SenderBot    SenderType = "bot"
	SenderSystem SenderType = "system"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageAudio  MessageType = "audio"
	MessageBot    MessageType = "bot"
	MessageSystem MessageType = "system"
)

// Message is an immutable entry in a room's log.
type Message struct {
	ID             string      `json:"id"`
	RoomID         string      `json:"roomId,omitempty"`
	SenderID       string      `json:"senderId"`
	SenderName     string      `json:"senderName"`
	SenderType     SenderType  `json:"senderType"`
	Type           MessageType `json:"type"`
	Text           string      `json:"text,omitempty"`
	ImageBase64    string      `json:"imageBase64,omitempty"`
	AudioBase64    string      `json:"audioBase64,omitempty"`
	TranslatedText string      `json:"translatedText,omitempty"`
	AgentLang      string      `json:"agentLang,omitempty"`
	ClientLang     string      `json:"clientLang,omitempty"`
	CreatedAt      int64       `json:"createdAt"`

	// Seq is the store's physical insertion order. It is not part of the
	// document and is never used for display ordering.
	Seq int64 `json:"-"`
}

// UserPresence mirrors the presence fields of users/{userId}.
type UserPresence struct {
	UserID     string             `json:"userId"`
	Status     string             `json:"status"`
	LastSeen   int64              `json:"lastSeen"`
	Attendance []AttendanceRecord `json:"attendance"`
}

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// AttendanceRecord holds one employee's first check-in and first
// detected check-out for a calendar day, both formatted HH:MM.
type AttendanceRecord struct {
	Date string `json:"date"`
	In   string `json:"in"`
	Out  string `json:"out"`
}

type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"userId"`
	RoomID    string    `json:"roomId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type OutboxEvent struct {
	ID          uuid.UUID       `json:"id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

const (
	EventTypeRoomCreated    = "ROOM_CREATED"
	EventTypeRoomUpdated    = "ROOM_UPDATED"
	EventTypeMessageCreated = "MESSAGE_CREATED"
)

// RoomEvent is the outbox payload for every chat change. ClientID is
// carried so agent messages can be routed to the customer's queue.
type RoomEvent struct {
	RoomID     string     `json:"roomId"`
	ClientID   string     `json:"clientId,omitempty"`
	MessageID  string     `json:"messageId,omitempty"`
	SenderType SenderType `json:"senderType,omitempty"`
	Preview    string     `json:"preview,omitempty"`
}

// NowMillis returns t as epoch milliseconds.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
