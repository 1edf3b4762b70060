package chat

import (
	"errors"

	"support_chat/internal/domain"
)

// RenderedMessage is a message prepared for one viewer.
type RenderedMessage struct {
	ID                string             `json:"id"`
	SenderID          string             `json:"senderId"`
	SenderName        string             `json:"senderName"`
	SenderType        domain.SenderType  `json:"senderType"`
	Kind              domain.MessageType `json:"kind"`
	Text              string             `json:"text,omitempty"`
	ImageBase64       string             `json:"imageBase64,omitempty"`
	AudioBase64       string             `json:"audioBase64,omitempty"`
	MachineTranslated bool               `json:"machineTranslated,omitempty"`
	Mine              bool               `json:"mine"`
	Unsupported       bool               `json:"unsupported,omitempty"`
	CreatedAt         int64              `json:"createdAt"`
}

// Render prepares m for viewer acting as role. Customers see the
// translation of agent text when one exists; agents always see the
// original.
func Render(m domain.Message, viewer domain.Session, role domain.SenderType) (RenderedMessage, error) {
	c, err := m.Content()
	if err != nil {
		return RenderedMessage{}, err
	}
	out := RenderedMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		SenderType: m.SenderType,
		Kind:       c.Kind(),
		Mine:       m.SenderID == viewer.UserID && m.SenderType == role,
		CreatedAt:  m.CreatedAt,
	}
	switch v := c.(type) {
	case domain.Text:
		out.Text = v.Body
		if role == domain.SenderClient && m.SenderType == domain.SenderAgent && m.TranslatedText != "" {
			out.Text = m.TranslatedText
			out.MachineTranslated = true
		}
	case domain.Image:
		out.ImageBase64 = v.Base64
	case domain.Audio:
		out.AudioBase64 = v.Base64
	case domain.BotReply:
		out.Text = v.Body
	case domain.SystemNotice:
		out.Text = v.Body
	}
	return out, nil
}

// View is everything a client needs to draw a room.
type View struct {
	Room            domain.Room       `json:"room"`
	Messages        []RenderedMessage `json:"messages"`
	ChatClosed      bool              `json:"chatClosed"`
	CanSend         bool              `json:"canSend"`
	CanRequestAgent bool              `json:"canRequestAgent"`
	QuickQuestions  []string          `json:"quickQuestions,omitempty"`
}

// BuildView renders msgs, which must already be sorted, for viewer. A
// message with an unknown type is rendered as an unsupported placeholder.
func BuildView(room domain.Room, msgs []domain.Message, viewer domain.Session, role domain.SenderType, state BotState, quick []string) View {
	v := View{
		Room:       room,
		Messages:   make([]RenderedMessage, 0, len(msgs)),
		ChatClosed: room.Status.Closed(),
	}
	for _, m := range msgs {
		r, err := Render(m, viewer, role)
		if errors.Is(err, domain.ErrUnknownMessageType) {
			r = RenderedMessage{
				ID:          m.ID,
				SenderID:    m.SenderID,
				SenderName:  m.SenderName,
				SenderType:  m.SenderType,
				Kind:        domain.MessageSystem,
				Unsupported: true,
				CreatedAt:   m.CreatedAt,
			}
		}
		v.Messages = append(v.Messages, r)
	}

	switch role {
	case domain.SenderClient:
		v.CanSend = !v.ChatClosed && room.ClientID == viewer.UserID
		v.CanRequestAgent = state.CanRequestAgent(room)
		if len(msgs) == 0 && !v.ChatClosed && !room.WaitingForAgent && !room.AgentAccepted {
			v.QuickQuestions = quick
		}
	case domain.SenderAgent:
		v.CanSend = !v.ChatClosed && room.AgentAccepted && room.AgentID == viewer.UserID
	}
	return v
}
