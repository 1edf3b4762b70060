package chat

import (
	"context"
	"sync"
	"testing"

	"support_chat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDesk_RequestAgentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.openRoom(t, customer)

	first, err := f.svc.Desk.RequestAgent(ctx, customer, room.ID)
	require.NoError(t, err)
	assert.True(t, first.WaitingForAgent)

	second, err := f.svc.Desk.RequestAgent(ctx, customer, room.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	accepted, err := f.svc.Desk.Accept(ctx, agentA, room.ID)
	require.NoError(t, err)
	third, err := f.svc.Desk.RequestAgent(ctx, customer, room.ID)
	require.NoError(t, err)
	assert.Equal(t, accepted, third)
	assert.False(t, third.WaitingForAgent)
}

func TestDesk_RequestAgentRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.openRoom(t, customer)

	_, err := f.svc.Desk.RequestAgent(ctx, domain.Session{UserID: "someone"}, room.ID)
	assert.ErrorIs(t, err, ErrNotRoomClient)

	_, err = f.svc.Desk.Close(ctx, customer, room.ID, domain.SenderClient)
	require.NoError(t, err)
	_, err = f.svc.Desk.RequestAgent(ctx, customer, room.ID)
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestDesk_Waiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	idle := f.openRoom(t, customer)
	waiting := f.openRoom(t, customer)
	_, err := f.svc.Desk.RequestAgent(ctx, customer, waiting.ID)
	require.NoError(t, err)
	taken := f.assignedRoom(t)

	queue, err := f.svc.Desk.Waiting(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, waiting.ID, queue[0].ID)
	assert.NotEqual(t, idle.ID, queue[0].ID)
	assert.NotEqual(t, taken.ID, queue[0].ID)
}

func TestDesk_AcceptOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.openRoom(t, customer)
	_, err := f.svc.Desk.RequestAgent(ctx, customer, room.ID)
	require.NoError(t, err)

	agents := make([]domain.Session, 8)
	for i := range agents {
		agents[i] = domain.Session{UserID: string(rune('a' + i)), UserName: "agent"}
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   []string
		losses int
	)
	for _, a := range agents {
		wg.Add(1)
		go func(a domain.Session) {
			defer wg.Done()
			_, err := f.svc.Desk.Accept(ctx, a, room.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins = append(wins, a.UserID)
				return
			}
			assert.ErrorIs(t, err, ErrAlreadyClaimed)
			losses++
		}(a)
	}
	wg.Wait()

	require.Len(t, wins, 1)
	assert.Equal(t, len(agents)-1, losses)

	final, err := f.svc.Registry.Room(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, wins[0], final.AgentID)
	assert.True(t, final.AgentAccepted)
	assert.False(t, final.WaitingForAgent)
}

func TestDesk_AcceptRules(t *testing.T) {
	ctx := context.Background()

	t.Run("same agent twice", func(t *testing.T) {
		f := newFixture(t)
		room := f.assignedRoom(t)
		again, err := f.svc.Desk.Accept(ctx, agentA, room.ID)
		require.NoError(t, err)
		assert.Equal(t, room, again)
	})

	t.Run("not waiting", func(t *testing.T) {
		f := newFixture(t)
		room := f.openRoom(t, customer)
		_, err := f.svc.Desk.Accept(ctx, agentA, room.ID)
		assert.ErrorIs(t, err, ErrNotWaiting)
	})

	t.Run("closed", func(t *testing.T) {
		f := newFixture(t)
		room := f.openRoom(t, customer)
		_, err := f.svc.Desk.RequestAgent(ctx, customer, room.ID)
		require.NoError(t, err)
		_, err = f.svc.Desk.Close(ctx, customer, room.ID, domain.SenderClient)
		require.NoError(t, err)
		_, err = f.svc.Desk.Accept(ctx, agentA, room.ID)
		assert.ErrorIs(t, err, ErrRoomClosed)
	})

	t.Run("customer cannot take own room", func(t *testing.T) {
		f := newFixture(t)
		room := f.openRoom(t, customer)
		_, err := f.svc.Desk.RequestAgent(ctx, customer, room.ID)
		require.NoError(t, err)
		_, err = f.svc.Desk.Accept(ctx, customer, room.ID)
		assert.ErrorIs(t, err, ErrOwnRoom)

		again, err := f.svc.Registry.Room(ctx, room.ID)
		require.NoError(t, err)
		assert.Empty(t, again.AgentID)
		assert.True(t, again.WaitingForAgent)
	})
}

func TestDesk_SendAgentMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("translated when languages differ", func(t *testing.T) {
		f := newFixture(t)
		room := f.assignedRoom(t)
		msg, err := f.svc.Desk.SendAgentMessage(ctx, agentA, room.ID, domain.Text{Body: "أهلاً"})
		require.NoError(t, err)
		assert.Equal(t, "أهلاً", msg.Text)
		assert.Equal(t, "translated", msg.TranslatedText)
		assert.Equal(t, "ar", msg.AgentLang)
		assert.Equal(t, "en", msg.ClientLang)
	})

	t.Run("untranslated on failure", func(t *testing.T) {
		f := newFixture(t)
		f.tr.err = errTranslate
		room := f.assignedRoom(t)
		msg, err := f.svc.Desk.SendAgentMessage(ctx, agentA, room.ID, domain.Text{Body: "أهلاً"})
		require.NoError(t, err)
		assert.Equal(t, "أهلاً", msg.Text)
		assert.Empty(t, msg.TranslatedText)
	})

	t.Run("same language skips translation", func(t *testing.T) {
		f := newFixture(t)
		ar := domain.Session{UserID: "cust-ar", UserName: "Huda", Locale: "ar"}
		room := f.openRoom(t, ar)
		_, err := f.svc.Desk.RequestAgent(ctx, ar, room.ID)
		require.NoError(t, err)
		_, err = f.svc.Desk.Accept(ctx, agentA, room.ID)
		require.NoError(t, err)

		msg, err := f.svc.Desk.SendAgentMessage(ctx, agentA, room.ID, domain.Text{Body: "أهلاً"})
		require.NoError(t, err)
		assert.Empty(t, msg.TranslatedText)
		assert.Empty(t, msg.AgentLang)
		assert.Zero(t, f.tr.calls)
	})

	t.Run("media is not translated", func(t *testing.T) {
		f := newFixture(t)
		room := f.assignedRoom(t)
		msg, err := f.svc.Desk.SendAgentMessage(ctx, agentA, room.ID, domain.Audio{Base64: "AAAA"})
		require.NoError(t, err)
		assert.Equal(t, domain.MessageAudio, msg.Type)
		assert.Zero(t, f.tr.calls)
	})

	t.Run("other agent", func(t *testing.T) {
		f := newFixture(t)
		room := f.assignedRoom(t)
		_, err := f.svc.Desk.SendAgentMessage(ctx, agentB, room.ID, domain.Text{Body: "hi"})
		assert.ErrorIs(t, err, ErrNotAssignedAgent)
	})
}

func TestDesk_Close(t *testing.T) {
	ctx := context.Background()

	t.Run("by agent appends notice", func(t *testing.T) {
		f := newFixture(t)
		room := f.assignedRoom(t)
		closed, err := f.svc.Desk.Close(ctx, agentA, room.ID, domain.SenderAgent)
		require.NoError(t, err)
		assert.Equal(t, domain.RoomClosedByAgent, closed.Status)
		assert.NotZero(t, closed.ClosedAt)

		msgs, err := f.svc.Log.List(ctx, room.ID)
		require.NoError(t, err)
		require.NotEmpty(t, msgs)
		last := msgs[len(msgs)-1]
		assert.Equal(t, domain.SenderSystem, last.SenderType)
		assert.Contains(t, last.Text, agentA.UserName)
	})

	t.Run("twice", func(t *testing.T) {
		f := newFixture(t)
		room := f.openRoom(t, customer)
		_, err := f.svc.Desk.Close(ctx, customer, room.ID, domain.SenderClient)
		require.NoError(t, err)
		_, err = f.svc.Desk.Close(ctx, customer, room.ID, domain.SenderClient)
		assert.ErrorIs(t, err, ErrRoomClosed)

		msgs, err := f.svc.Log.List(ctx, room.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
	})

	t.Run("unassigned agent", func(t *testing.T) {
		f := newFixture(t)
		room := f.assignedRoom(t)
		_, err := f.svc.Desk.Close(ctx, agentB, room.ID, domain.SenderAgent)
		assert.ErrorIs(t, err, ErrNotAssignedAgent)
	})

	t.Run("bot cannot close", func(t *testing.T) {
		f := newFixture(t)
		room := f.openRoom(t, customer)
		_, err := f.svc.Desk.Close(ctx, customer, room.ID, domain.SenderBot)
		assert.ErrorIs(t, err, ErrInvalidCloser)
	})
}

func TestDesk_SubscribeQueue(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queues := make(chan []domain.Room, 16)
	stop, err := f.svc.Desk.SubscribeQueue(ctx, func(r []domain.Room) { queues <- r })
	require.NoError(t, err)
	defer stop()
	assert.Empty(t, receive(t, queues))

	room := f.openRoom(t, customer)
	_, err = f.svc.Desk.RequestAgent(ctx, customer, room.ID)
	require.NoError(t, err)

	var q []domain.Room
	for len(q) == 0 {
		q = receive(t, queues)
	}
	assert.Equal(t, room.ID, q[0].ID)

	_, err = f.svc.Desk.Accept(ctx, agentA, room.ID)
	require.NoError(t, err)
	for len(q) != 0 {
		q = receive(t, queues)
	}
}
