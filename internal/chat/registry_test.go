package chat

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"support_chat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoomID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewRoomID(now)
	assert.Regexp(t, regexp.MustCompile(`^chat_1700000000123_[0-9a-f]{9}$`), id)
	assert.NotEqual(t, id, NewRoomID(now))
}

func TestRegistry_EnsureRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("new room is open and idle", func(t *testing.T) {
		f := newFixture(t)
		room := f.openRoom(t, customer)
		assert.Equal(t, domain.RoomOpen, room.Status)
		assert.False(t, room.WaitingForAgent)
		assert.False(t, room.AgentAccepted)
		assert.Equal(t, customer.UserID, room.ClientID)
		assert.Equal(t, "en", room.ClientLang)
	})

	t.Run("same id twice yields one room", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.svc.Registry.EnsureRoom(ctx, customer, "chat_saved")
		require.NoError(t, err)
		second, err := f.svc.Registry.EnsureRoom(ctx, customer, "chat_saved")
		require.NoError(t, err)
		assert.Equal(t, first, second)

		rooms, err := f.store.ListRooms(ctx)
		require.NoError(t, err)
		assert.Len(t, rooms, 1)
	})

	t.Run("no id twice yields two rooms", func(t *testing.T) {
		f := newFixture(t)
		a := f.openRoom(t, customer)
		b := f.openRoom(t, customer)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("existing hand-off state is not reset", func(t *testing.T) {
		f := newFixture(t)
		room := f.assignedRoom(t)
		again, err := f.svc.Registry.EnsureRoom(ctx, customer, room.ID)
		require.NoError(t, err)
		assert.True(t, again.AgentAccepted)
		assert.Equal(t, agentA.UserID, again.AgentID)
	})

	t.Run("closed room is returned unchanged", func(t *testing.T) {
		f := newFixture(t)
		room := f.openRoom(t, customer)
		_, err := f.svc.Desk.Close(ctx, customer, room.ID, domain.SenderClient)
		require.NoError(t, err)
		again, err := f.svc.Registry.EnsureRoom(ctx, customer, room.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RoomClosedByClient, again.Status)
	})

	t.Run("another customer's id starts a new room", func(t *testing.T) {
		f := newFixture(t)
		theirs := f.openRoom(t, customer)
		stranger := domain.Session{UserID: "cust-2", UserName: "Huda", Locale: "ar"}

		mine, err := f.svc.Registry.EnsureRoom(ctx, stranger, theirs.ID)
		require.NoError(t, err)
		assert.NotEqual(t, theirs.ID, mine.ID)
		assert.Equal(t, "cust-2", mine.ClientID)

		again, err := f.svc.Registry.Room(ctx, theirs.ID)
		require.NoError(t, err)
		assert.Equal(t, customer.UserID, again.ClientID)
	})

	t.Run("malformed ids are rejected", func(t *testing.T) {
		f := newFixture(t)
		for _, id := range []string{strings.Repeat("a", 300), "room.with.dots", "a b", "#"} {
			_, err := f.svc.Registry.EnsureRoom(ctx, customer, id)
			assert.ErrorIs(t, err, ErrInvalidRoomID, id)
		}
		rooms, err := f.store.ListRooms(ctx)
		require.NoError(t, err)
		assert.Empty(t, rooms)
	})

	t.Run("missing session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Registry.EnsureRoom(ctx, domain.Session{}, "")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
}

func TestRegistry_Watch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	room := f.openRoom(t, customer)

	updates := make(chan domain.Room, 8)
	stop, err := f.svc.Registry.Watch(ctx, room.ID, func(r domain.Room) { updates <- r })
	require.NoError(t, err)
	defer stop()

	assert.False(t, receive(t, updates).WaitingForAgent)

	_, err = f.svc.Desk.RequestAgent(ctx, customer, room.ID)
	require.NoError(t, err)
	assert.True(t, receive(t, updates).WaitingForAgent)
}
