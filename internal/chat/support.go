package chat

import (
	"context"
	"log/slog"
	"sync"

	"support_chat/internal/domain"
	"support_chat/internal/metrics"
	"support_chat/internal/repository"
	"support_chat/internal/translate"
)

// Service bundles the chat components that share one store.
type Service struct {
	Registry *Registry
	Log      *MessageLog
	Bot      *Responder
	Desk     *Desk
	Widget   *Widget
}

func NewService(store repository.Store, watcher Watcher, faq *FAQ, tr translate.Translator, m *metrics.Metrics, logger *slog.Logger) *Service {
	if faq == nil {
		faq = NewFAQ(DefaultFAQ)
	}
	registry := NewRegistry(store, watcher, m, logger)
	log := NewMessageLog(store, watcher, m, logger)
	bot := NewResponder(faq, log, m, logger)
	return &Service{
		Registry: registry,
		Log:      log,
		Bot:      bot,
		Desk:     NewDesk(store, log, watcher, tr, m, logger),
		Widget:   NewWidget(registry, log, bot),
	}
}

// View loads and renders the room for viewer. Viewers that may not read
// the room get an error from CanView.
func (s *Service) View(ctx context.Context, roomID string, viewer domain.Session, role domain.SenderType, state BotState) (*View, error) {
	room, err := s.Registry.Room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := CanView(*room, viewer, role); err != nil {
		return nil, err
	}
	msgs, err := s.Log.List(ctx, roomID)
	if err != nil {
		return nil, err
	}
	v := BuildView(*room, msgs, viewer, role, state, s.Bot.QuickQuestions())
	return &v, nil
}

// WatchRoom follows both the room document and its messages and calls fn
// with the latest pair whenever either changes. fn is never called
// concurrently with itself.
func (s *Service) WatchRoom(ctx context.Context, roomID string, fn func(domain.Room, []domain.Message)) (func(), error) {
	var (
		mu       sync.Mutex
		room     *domain.Room
		msgs     []domain.Message
		haveMsgs bool
	)
	deliver := func() {
		if room != nil && haveMsgs {
			fn(*room, msgs)
		}
	}

	stopRoom, err := s.Registry.Watch(ctx, roomID, func(r domain.Room) {
		mu.Lock()
		defer mu.Unlock()
		room = &r
		deliver()
	})
	if err != nil {
		return nil, err
	}
	stopMsgs, err := s.Log.Subscribe(ctx, roomID, func(m []domain.Message) {
		mu.Lock()
		defer mu.Unlock()
		msgs, haveMsgs = m, true
		deliver()
	})
	if err != nil {
		stopRoom()
		return nil, err
	}
	return func() {
		stopRoom()
		stopMsgs()
	}, nil
}
