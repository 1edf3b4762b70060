package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordsLabels(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Accept(true)
	m.Accept(false)
	m.Accept(false)
	m.BotReply(true)
	m.RoomClosed("agent")
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()
	m.SetWaiting(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AcceptAttempts.WithLabelValues("won")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AcceptAttempts.WithLabelValues("lost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BotReplies.WithLabelValues("match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoomsClosed.WithLabelValues("agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectedClients))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WaitingRooms))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RoomCreated()
		m.Accept(true)
		m.Published(3)
		m.PresenceWrite("online")
	})
}
