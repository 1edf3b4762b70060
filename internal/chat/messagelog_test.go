package chat

import (
	"context"
	"testing"
	"time"

	"support_chat/internal/domain"
	"support_chat/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textMessage(body string, createdAt int64) domain.Message {
	return domain.Message{
		SenderID:   customer.UserID,
		SenderName: customer.UserName,
		SenderType: domain.SenderClient,
		CreatedAt:  createdAt,
	}.WithContent(domain.Text{Body: body})
}

func bodies(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestMessageLog_AppendAssignsIDAndTime(t *testing.T) {
	f := newFixture(t)
	room := f.openRoom(t, customer)

	msg, err := f.svc.Log.Append(context.Background(), room.ID, textMessage("hi", 0))
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.NotZero(t, msg.CreatedAt)
	assert.Equal(t, room.ID, msg.RoomID)
}

func TestMessageLog_AppendUnknownRoom(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Log.Append(context.Background(), "chat_missing", textMessage("hi", 1))
	assert.Error(t, err)
}

func TestMessageLog_ListSortsByCreatedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.openRoom(t, customer)

	for _, m := range []domain.Message{
		textMessage("third", 300),
		textMessage("first", 100),
		textMessage("second-a", 200),
		textMessage("second-b", 200),
	} {
		_, err := f.svc.Log.Append(ctx, room.ID, m)
		require.NoError(t, err)
	}

	msgs, err := f.svc.Log.List(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second-a", "second-b", "third"}, bodies(msgs))
}

func TestMessageLog_SubscribeDeliversSortedSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	room := f.openRoom(t, customer)

	snapshots := make(chan []domain.Message, 16)
	stop, err := f.svc.Log.Subscribe(ctx, room.ID, func(m []domain.Message) { snapshots <- m })
	require.NoError(t, err)
	defer stop()

	assert.Empty(t, receive(t, snapshots))

	_, err = f.svc.Log.Append(ctx, room.ID, textMessage("late", 500))
	require.NoError(t, err)
	_, err = f.svc.Log.Append(ctx, room.ID, textMessage("early", 100))
	require.NoError(t, err)

	var last []domain.Message
	for len(last) < 2 {
		last = receive(t, snapshots)
		for i := 1; i < len(last); i++ {
			assert.LessOrEqual(t, last[i-1].CreatedAt, last[i].CreatedAt)
		}
	}
	assert.Equal(t, []string{"early", "late"}, bodies(last))
}

func TestMessageLog_SubscribeStops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.openRoom(t, customer)

	snapshots := make(chan []domain.Message, 16)
	stop, err := f.svc.Log.Subscribe(ctx, room.ID, func(m []domain.Message) { snapshots <- m })
	require.NoError(t, err)
	receive(t, snapshots)
	stop()

	assert.Eventually(t, func() bool {
		return f.emitter.Count(notify.MessagesTopic(room.ID)) == 0
	}, time.Second, 10*time.Millisecond)
}
