package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"support_chat/internal/domain"
	"support_chat/internal/notify"
	"support_chat/internal/repository"

	"github.com/stretchr/testify/require"
)

var (
	customer = domain.Session{UserID: "cust-1", UserName: "Sara", Locale: "en"}
	agentA   = domain.Session{UserID: "agent-a", UserName: "Omar", Locale: "ar"}
	agentB   = domain.Session{UserID: "agent-b", UserName: "Lina", Locale: "ar"}
)

type fakeTranslator struct {
	out string
	err error

	calls int
}

func (f *fakeTranslator) Translate(_ context.Context, text, targetLang string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

type fixture struct {
	store   *repository.MemoryStore
	emitter *notify.Emitter
	svc     *Service
	tr      *fakeTranslator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	emitter := notify.NewEmitter()
	store := repository.NewMemoryStore(emitter)
	tr := &fakeTranslator{out: "translated"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		store:   store,
		emitter: emitter,
		svc:     NewService(store, emitter, nil, tr, nil, logger),
		tr:      tr,
	}
}

func (f *fixture) openRoom(t *testing.T, s domain.Session) *domain.Room {
	t.Helper()
	room, err := f.svc.Registry.EnsureRoom(context.Background(), s, "")
	require.NoError(t, err)
	return room
}

// assignedRoom returns a room that agentA has accepted.
func (f *fixture) assignedRoom(t *testing.T) *domain.Room {
	t.Helper()
	ctx := context.Background()
	room := f.openRoom(t, customer)
	_, err := f.svc.Desk.RequestAgent(ctx, customer, room.ID)
	require.NoError(t, err)
	room, err = f.svc.Desk.Accept(ctx, agentA, room.ID)
	require.NoError(t, err)
	return room
}

var errTranslate = errors.New("translate: boom")

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		var zero T
		return zero
	}
}
