package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"support_chat/internal/domain"
	"support_chat/internal/metrics"
)

const (
	DefaultHeartbeat = 60 * time.Second

	dateLayout  = "2006-01-02"
	clockLayout = "15:04"

	flushTimeout = 5 * time.Second
)

// Service applies online and offline transitions for employees.
type Service struct {
	repo    Repository
	metrics *metrics.Metrics
	logger  *slog.Logger

	Now      func() time.Time
	Location *time.Location
}

func NewService(repo Repository, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		metrics:  m,
		logger:   logger,
		Now:      time.Now,
		Location: time.Local,
	}
}

// Online marks the user online and records the day's check-in once.
func (s *Service) Online(ctx context.Context, userID string) error {
	now := s.Now().In(s.Location)
	if err := s.repo.SetStatus(ctx, userID, domain.PresenceOnline, domain.NowMillis(now)); err != nil {
		return err
	}
	s.metrics.PresenceWrite(domain.PresenceOnline)
	if err := s.repo.CheckIn(ctx, userID, now.Format(dateLayout), now.Format(clockLayout)); err != nil {
		return err
	}
	return nil
}

// Offline marks the user offline and closes the day's attendance entry if
// it is still open.
func (s *Service) Offline(ctx context.Context, userID string) error {
	now := s.Now().In(s.Location)
	if err := s.repo.SetStatus(ctx, userID, domain.PresenceOffline, domain.NowMillis(now)); err != nil {
		return err
	}
	s.metrics.PresenceWrite(domain.PresenceOffline)
	applied, err := s.repo.CheckOut(ctx, userID, now.Format(dateLayout), now.Format(clockLayout))
	if err != nil {
		return err
	}
	if applied {
		s.logger.Info("attendance checked out", "user_id", userID)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, userID string) (*domain.UserPresence, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load presence for %s: %w", userID, err)
	}
	return p, nil
}

// Tracker keeps one employee's presence fresh for the lifetime of a session.
type Tracker struct {
	svc      *Service
	userID   string
	interval time.Duration
	logger   *slog.Logger
}

func NewTracker(svc *Service, userID string, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultHeartbeat
	}
	return &Tracker{
		svc:      svc,
		userID:   userID,
		interval: interval,
		logger:   svc.logger.With("user_id", userID),
	}
}

// Run writes an online heartbeat immediately and then every interval
// until ctx is done, then makes one best-effort offline write. The offline
// write is lost if the process dies without cancelling ctx.
func (t *Tracker) Run(ctx context.Context) {
	t.heartbeat(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.flush(ctx)
			return
		case <-ticker.C:
			t.heartbeat(ctx)
		}
	}
}

func (t *Tracker) heartbeat(ctx context.Context) {
	if err := t.svc.Online(ctx, t.userID); err != nil && ctx.Err() == nil {
		t.logger.Warn("failed to write presence heartbeat", "err", err)
	}
}

func (t *Tracker) flush(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), flushTimeout)
	defer cancel()
	if err := t.svc.Offline(ctx, t.userID); err != nil {
		t.logger.Warn("failed to write offline presence", "err", err)
	}
}
