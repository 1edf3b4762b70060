package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"support_chat/internal/domain"
	"support_chat/internal/notify"
)

// MemoryStore is a single-node Store that raises change notifications
// directly on the emitter after each applied write.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]*domain.Room
	messages map[string][]domain.Message
	seq      int64
	emitter  *notify.Emitter
}

func NewMemoryStore(emitter *notify.Emitter) *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*domain.Room),
		messages: make(map[string][]domain.Message),
		emitter:  emitter,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateRoom(ctx context.Context, room *domain.Room) (bool, error) {
	s.mu.Lock()
	if _, ok := s.rooms[room.ID]; ok {
		s.mu.Unlock()
		return false, nil
	}
	r := *room
	s.rooms[room.ID] = &r
	s.mu.Unlock()

	s.emit(notify.TopicRooms, notify.RoomTopic(room.ID))
	return true, nil
}

func (s *MemoryStore) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	out := *r
	return &out, nil
}

func (s *MemoryStore) ListRooms(ctx context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	rooms := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, *r)
	}
	s.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt != rooms[j].CreatedAt {
			return rooms[i].CreatedAt < rooms[j].CreatedAt
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

func (s *MemoryStore) MarkWaiting(ctx context.Context, id string) (bool, error) {
	return s.update(id, func(r *domain.Room) bool {
		if r.Status != domain.RoomOpen || r.WaitingForAgent || r.AgentID != "" {
			return false
		}
		r.WaitingForAgent = true
		return true
	})
}

func (s *MemoryStore) ClaimRoom(ctx context.Context, id string, claim domain.AgentClaim) (bool, error) {
	return s.update(id, func(r *domain.Room) bool {
		if r.Status != domain.RoomOpen || r.AgentID != "" {
			return false
		}
		r.WaitingForAgent = false
		r.AgentAccepted = true
		r.AgentID = claim.AgentID
		r.AgentName = claim.AgentName
		r.AgentLang = claim.AgentLang
		r.AcceptedAt = claim.AcceptedAt
		return true
	})
}

func (s *MemoryStore) CloseRoom(ctx context.Context, id string, status domain.RoomStatus, closedAt int64) (bool, error) {
	return s.update(id, func(r *domain.Room) bool {
		if r.Status != domain.RoomOpen {
			return false
		}
		r.Status = status
		r.WaitingForAgent = false
		r.ClosedAt = closedAt
		return true
	})
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("room %s: %w", msg.RoomID, ErrNotFound)
	}
	s.seq++
	msg.Seq = s.seq
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], *msg)
	s.mu.Unlock()

	s.emit(notify.MessagesTopic(msg.RoomID))
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[roomID]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) update(id string, apply func(*domain.Room) bool) (bool, error) {
	s.mu.Lock()
	r, ok := s.rooms[id]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	applied := apply(r)
	s.mu.Unlock()

	if applied {
		s.emit(notify.TopicRooms, notify.RoomTopic(id))
	}
	return applied, nil
}

func (s *MemoryStore) emit(topics ...string) {
	if s.emitter != nil {
		s.emitter.Emit(topics...)
	}
}
