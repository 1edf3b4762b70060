package chat

import (
	"context"
	"log/slog"
	"strings"

	"support_chat/internal/domain"
	"support_chat/internal/metrics"
)

// EscalationThreshold is the number of unanswered questions after which
// the customer is offered a human agent.
const EscalationThreshold = 2

const botSenderID = "bot"

// BotState is the per-session bot bookkeeping. It is held by whoever
// drives the conversation and is not persisted with the room.
type BotState struct {
	NoHelpCount int `json:"noBotHelpCount"`
}

// CanRequestAgent reports whether the hand-off affordance should be shown.
func (s BotState) CanRequestAgent(room domain.Room) bool {
	return s.NoHelpCount >= EscalationThreshold &&
		room.Status == domain.RoomOpen &&
		!room.WaitingForAgent &&
		!room.AgentAccepted
}

// Responder answers customer text from the FAQ while no agent is involved.
type Responder struct {
	faq     *FAQ
	log     *MessageLog
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewResponder(faq *FAQ, log *MessageLog, m *metrics.Metrics, logger *slog.Logger) *Responder {
	return &Responder{faq: faq, log: log, metrics: m, logger: logger}
}

// Active reports whether the bot should answer in room.
func (r *Responder) Active(room domain.Room) bool {
	return room.Status == domain.RoomOpen && !room.WaitingForAgent && !room.AgentAccepted
}

// Reply composes the bot's answer to text without appending it. matched is
// false when the fallback apology was chosen.
func (r *Responder) Reply(text, lang string) (answer string, matched bool) {
	if entry, ok := r.faq.Match(text); ok {
		return entry.Answer, true
	}
	return fallbackReply(lang), false
}

// Respond appends the bot's answer to text in room and updates state. It
// returns nil when the bot is not active in the room.
func (r *Responder) Respond(ctx context.Context, room domain.Room, state *BotState, text string) (*domain.Message, error) {
	if !r.Active(room) {
		return nil, nil
	}
	answer, matched := r.Reply(text, room.ClientLang)
	if matched {
		state.NoHelpCount = 0
	} else {
		state.NoHelpCount++
	}
	r.metrics.BotReply(matched)

	msg := domain.Message{
		SenderID:   botSenderID,
		SenderName: botName(room.ClientLang),
		SenderType: domain.SenderBot,
	}.WithContent(domain.BotReply{Body: answer})

	stored, err := r.log.Append(ctx, room.ID, msg)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("bot replied", "room_id", room.ID, "matched", matched, "no_help", state.NoHelpCount)
	return stored, nil
}

func (r *Responder) QuickQuestions() []string {
	return r.faq.QuickQuestions()
}

func isEnglish(lang string) bool {
	return strings.HasPrefix(strings.ToLower(lang), "en")
}

func fallbackReply(lang string) string {
	if isEnglish(lang) {
		return "Sorry, I couldn't find an answer to that. You can rephrase your question or ask to talk to an agent."
	}
	return "عذراً، لم أجد إجابة لسؤالك. يمكنك إعادة صياغته أو طلب التحدث مع موظف خدمة العملاء."
}

func botName(lang string) string {
	if isEnglish(lang) {
		return "Assistant"
	}
	return "المساعد الآلي"
}
