package chat

import (
	"context"

	"support_chat/internal/domain"
)

// Widget is the customer side of a room.
type Widget struct {
	registry *Registry
	log      *MessageLog
	bot      *Responder
}

func NewWidget(registry *Registry, log *MessageLog, bot *Responder) *Widget {
	return &Widget{registry: registry, log: log, bot: bot}
}

// SendResult is what a customer send produced.
type SendResult struct {
	Message         *domain.Message `json:"message"`
	BotReply        *domain.Message `json:"botReply,omitempty"`
	State           BotState        `json:"state"`
	CanRequestAgent bool            `json:"canRequestAgent"`
}

// Send appends the customer's content. While no agent is involved, text
// is answered by the bot and state is advanced.
func (w *Widget) Send(ctx context.Context, s domain.Session, roomID string, content domain.Content, state BotState) (*SendResult, error) {
	if err := domain.ValidateUserContent(content); err != nil {
		return nil, err
	}
	room, err := w.registry.Room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.ClientID != s.UserID {
		return nil, ErrNotRoomClient
	}
	if room.Status.Closed() {
		return nil, ErrRoomClosed
	}

	msg := domain.Message{
		SenderID:   s.UserID,
		SenderName: s.UserName,
		SenderType: domain.SenderClient,
	}.WithContent(content)
	stored, err := w.log.Append(ctx, roomID, msg)
	if err != nil {
		return nil, err
	}

	res := &SendResult{Message: stored, State: state}
	if text, ok := content.(domain.Text); ok {
		reply, err := w.bot.Respond(ctx, *room, &res.State, text.Body)
		if err != nil {
			return nil, err
		}
		res.BotReply = reply
	}
	res.CanRequestAgent = res.State.CanRequestAgent(*room)
	return res, nil
}

// AskQuick sends one of the quick questions as if the customer typed it.
func (w *Widget) AskQuick(ctx context.Context, s domain.Session, roomID, question string, state BotState) (*SendResult, error) {
	return w.Send(ctx, s, roomID, domain.Text{Body: question}, state)
}
