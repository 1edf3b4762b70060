package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"support_chat/internal/domain"
	"support_chat/internal/metrics"
	"support_chat/internal/notify"
	"support_chat/internal/repository"
	"support_chat/internal/translate"
)

// Desk is the agent side of a room: the waiting queue, accepting a room,
// agent messages and closing.
type Desk struct {
	rooms      repository.RoomStore
	log        *MessageLog
	watcher    Watcher
	translator translate.Translator
	metrics    *metrics.Metrics
	logger     *slog.Logger

	Now func() time.Time
}

func NewDesk(rooms repository.RoomStore, log *MessageLog, watcher Watcher, tr translate.Translator, m *metrics.Metrics, logger *slog.Logger) *Desk {
	if tr == nil {
		tr = translate.Noop{}
	}
	return &Desk{
		rooms:      rooms,
		log:        log,
		watcher:    watcher,
		translator: tr,
		metrics:    m,
		logger:     logger,
		Now:        time.Now,
	}
}

// IsQueued reports whether room belongs in the agents' waiting queue.
func IsQueued(room domain.Room) bool {
	return room.Status == domain.RoomOpen && room.WaitingForAgent && !room.AgentAccepted
}

// RequestAgent puts the customer's room into the waiting queue. Asking
// again while waiting or after an agent has accepted changes nothing.
func (d *Desk) RequestAgent(ctx context.Context, s domain.Session, roomID string) (*domain.Room, error) {
	room, err := d.room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.ClientID != s.UserID {
		return nil, ErrNotRoomClient
	}
	if room.Status.Closed() {
		return nil, ErrRoomClosed
	}

	applied, err := d.rooms.MarkWaiting(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark room waiting: %w", err)
	}
	if !applied {
		return d.room(ctx, roomID)
	}
	d.metrics.HandoffRequested()
	d.logger.Info("agent requested", "room_id", roomID, "client_id", s.UserID)
	return d.room(ctx, roomID)
}

// Waiting returns the rooms currently queued for an agent, oldest first.
func (d *Desk) Waiting(ctx context.Context) ([]domain.Room, error) {
	rooms, err := d.rooms.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	queued := rooms[:0]
	for _, r := range rooms {
		if IsQueued(r) {
			queued = append(queued, r)
		}
	}
	d.metrics.SetWaiting(len(queued))
	return queued, nil
}

// SubscribeQueue delivers the waiting queue now and after any room change.
func (d *Desk) SubscribeQueue(ctx context.Context, fn func([]domain.Room)) (func(), error) {
	return watch(ctx, d.watcher, []string{notify.TopicRooms}, d.Waiting, fn,
		func(err error) {
			d.logger.Warn("failed to reload queue", "err", err)
		})
}

// Accept assigns the agent to the room. Only one agent can win; everyone
// else gets ErrAlreadyClaimed. Accepting a room the caller already holds
// returns it unchanged.
func (d *Desk) Accept(ctx context.Context, agent domain.Session, roomID string) (*domain.Room, error) {
	if agent.UserID == "" {
		return nil, ErrInvalidSession
	}
	room, err := d.room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.ClientID == agent.UserID {
		return nil, ErrOwnRoom
	}
	if room.Status.Closed() {
		return nil, ErrRoomClosed
	}
	if room.AgentID == agent.UserID {
		return room, nil
	}
	if room.AgentID != "" {
		d.metrics.Accept(false)
		return nil, ErrAlreadyClaimed
	}
	if !room.WaitingForAgent {
		return nil, ErrNotWaiting
	}

	applied, err := d.rooms.ClaimRoom(ctx, roomID, domain.AgentClaim{
		AgentID:    agent.UserID,
		AgentName:  agent.UserName,
		AgentLang:  agent.Locale,
		AcceptedAt: domain.NowMillis(d.Now()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim room: %w", err)
	}
	if !applied {
		current, err := d.room(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if current.AgentID == agent.UserID {
			return current, nil
		}
		d.metrics.Accept(false)
		if current.Status.Closed() {
			return nil, ErrRoomClosed
		}
		return nil, ErrAlreadyClaimed
	}

	d.metrics.Accept(true)
	d.logger.Info("room accepted", "room_id", roomID, "agent_id", agent.UserID)
	return d.room(ctx, roomID)
}

// SendAgentMessage appends content from the assigned agent. Text is
// translated into the customer's language when the two languages differ;
// if translation fails the message is stored untranslated.
func (d *Desk) SendAgentMessage(ctx context.Context, agent domain.Session, roomID string, content domain.Content) (*domain.Message, error) {
	if err := domain.ValidateUserContent(content); err != nil {
		return nil, err
	}
	room, err := d.room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status.Closed() {
		return nil, ErrRoomClosed
	}
	if !room.AgentAccepted || room.AgentID != agent.UserID {
		return nil, ErrNotAssignedAgent
	}

	msg := domain.Message{
		SenderID:   agent.UserID,
		SenderName: agent.UserName,
		SenderType: domain.SenderAgent,
	}.WithContent(content)

	if text, ok := content.(domain.Text); ok && needsTranslation(room.AgentLang, room.ClientLang) {
		msg.AgentLang = room.AgentLang
		msg.ClientLang = room.ClientLang
		translated, err := d.translator.Translate(ctx, text.Body, room.ClientLang)
		switch {
		case err != nil:
			d.metrics.TranslationFallback()
			d.logger.Warn("translation failed, sending original", "room_id", roomID, "err", err)
		default:
			msg.TranslatedText = translated
		}
	}

	return d.log.Append(ctx, roomID, msg)
}

// Close ends the room on behalf of the customer or the assigned agent and
// appends a closing notice. Closing twice returns ErrRoomClosed.
func (d *Desk) Close(ctx context.Context, s domain.Session, roomID string, by domain.SenderType) (*domain.Room, error) {
	room, err := d.room(ctx, roomID)
	if err != nil {
		return nil, err
	}

	var status domain.RoomStatus
	switch by {
	case domain.SenderClient:
		if room.ClientID != s.UserID {
			return nil, ErrNotRoomClient
		}
		status = domain.RoomClosedByClient
	case domain.SenderAgent:
		if room.AgentID == "" || room.AgentID != s.UserID {
			return nil, ErrNotAssignedAgent
		}
		status = domain.RoomClosedByAgent
	default:
		return nil, ErrInvalidCloser
	}

	applied, err := d.rooms.CloseRoom(ctx, roomID, status, domain.NowMillis(d.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to close room: %w", err)
	}
	if !applied {
		return nil, ErrRoomClosed
	}
	d.metrics.RoomClosed(string(by))

	notice := domain.Message{
		SenderID:   string(domain.SenderSystem),
		SenderName: string(domain.SenderSystem),
		SenderType: domain.SenderSystem,
	}.WithContent(domain.SystemNotice{Body: closingNotice(by, s.UserName, room.ClientLang)})
	if _, err := d.log.Append(ctx, roomID, notice); err != nil {
		d.logger.Error("failed to append closing notice", "room_id", roomID, "err", err)
	}

	d.logger.Info("room closed", "room_id", roomID, "by", by)
	return d.room(ctx, roomID)
}

func (d *Desk) room(ctx context.Context, id string) (*domain.Room, error) {
	room, err := d.rooms.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func needsTranslation(agentLang, clientLang string) bool {
	return agentLang != "" && clientLang != "" && !strings.EqualFold(agentLang, clientLang)
}

func closingNotice(by domain.SenderType, name, lang string) string {
	if isEnglish(lang) {
		if by == domain.SenderAgent {
			return fmt.Sprintf("The conversation was closed by %s.", name)
		}
		return "The customer closed the conversation."
	}
	if by == domain.SenderAgent {
		return fmt.Sprintf("تم إغلاق المحادثة بواسطة %s.", name)
	}
	return "تم إغلاق المحادثة من قبل العميل."
}
