package presence

import (
	"context"
	"slices"
	"strings"
	"sync"

	"support_chat/internal/domain"
)

type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]*domain.UserPresence
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*domain.UserPresence)}
}

func (r *MemoryRepository) user(userID string) *domain.UserPresence {
	p, ok := r.users[userID]
	if !ok {
		p = &domain.UserPresence{UserID: userID}
		r.users[userID] = p
	}
	return p
}

func (r *MemoryRepository) SetStatus(ctx context.Context, userID, status string, lastSeen int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.user(userID)
	p.Status = status
	p.LastSeen = lastSeen
	return nil
}

func (r *MemoryRepository) CheckIn(ctx context.Context, userID, date, at string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.user(userID)
	if slices.ContainsFunc(p.Attendance, func(a domain.AttendanceRecord) bool { return a.Date == date }) {
		return nil
	}
	p.Attendance = append(p.Attendance, domain.AttendanceRecord{Date: date, In: at})
	slices.SortFunc(p.Attendance, func(a, b domain.AttendanceRecord) int {
		return strings.Compare(a.Date, b.Date)
	})
	return nil
}

func (r *MemoryRepository) CheckOut(ctx context.Context, userID, date, at string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.users[userID]
	if !ok {
		return false, nil
	}
	for i := range p.Attendance {
		if p.Attendance[i].Date == date && p.Attendance[i].Out == "" {
			p.Attendance[i].Out = at
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) Get(ctx context.Context, userID string) (*domain.UserPresence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.users[userID]
	if !ok || p.Status == "" {
		return nil, ErrNotFound
	}
	out := *p
	out.Attendance = slices.Clone(p.Attendance)
	return &out, nil
}
