package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the support-chat collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	RoomsCreated      prometheus.Counter
	MessagesAppended  *prometheus.CounterVec
	BotReplies        *prometheus.CounterVec
	HandoffRequests   prometheus.Counter
	AcceptAttempts    *prometheus.CounterVec
	RoomsClosed       *prometheus.CounterVec
	TranslationFalls  prometheus.Counter
	PresenceWrites    *prometheus.CounterVec
	ConnectedClients  prometheus.Gauge
	WaitingRooms      prometheus.Gauge
	OutboxPublished   prometheus.Counter
	NotificationsSent prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "support_chat_rooms_created_total",
			Help: "Rooms created by ensure-room calls.",
		}),
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_chat_messages_appended_total",
			Help: "Messages appended to room logs by sender type.",
		}, []string{"sender_type"}),
		BotReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_chat_bot_replies_total",
			Help: "FAQ responder replies by outcome.",
		}, []string{"outcome"}),
		HandoffRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "support_chat_handoff_requests_total",
			Help: "Rooms that entered the waiting-for-agent state.",
		}),
		AcceptAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_chat_accept_attempts_total",
			Help: "Agent accept attempts by result.",
		}, []string{"result"}),
		RoomsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_chat_rooms_closed_total",
			Help: "Rooms closed by closer.",
		}, []string{"closed_by"}),
		TranslationFalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "support_chat_translation_fallbacks_total",
			Help: "Agent messages stored untranslated after a translation failure.",
		}),
		PresenceWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_chat_presence_writes_total",
			Help: "Presence status writes by status.",
		}, []string{"status"}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "support_chat_ws_clients",
			Help: "Currently connected websocket clients.",
		}),
		WaitingRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "support_chat_waiting_rooms",
			Help: "Rooms waiting for an agent as of the last queue read.",
		}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "support_chat_outbox_published_total",
			Help: "Outbox events published to the broker.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "support_chat_notifications_total",
			Help: "Offline notifications stored for customers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.RoomsCreated, m.MessagesAppended, m.BotReplies, m.HandoffRequests,
			m.AcceptAttempts, m.RoomsClosed, m.TranslationFalls, m.PresenceWrites,
			m.ConnectedClients, m.WaitingRooms, m.OutboxPublished, m.NotificationsSent,
		)
	}
	return m
}

func (m *Metrics) RoomCreated() {
	if m != nil {
		m.RoomsCreated.Inc()
	}
}

func (m *Metrics) MessageAppended(senderType string) {
	if m != nil {
		m.MessagesAppended.WithLabelValues(senderType).Inc()
	}
}

func (m *Metrics) BotReply(matched bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if matched {
		outcome = "match"
	}
	m.BotReplies.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HandoffRequested() {
	if m != nil {
		m.HandoffRequests.Inc()
	}
}

func (m *Metrics) Accept(won bool) {
	if m == nil {
		return
	}
	result := "lost"
	if won {
		result = "won"
	}
	m.AcceptAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) RoomClosed(by string) {
	if m != nil {
		m.RoomsClosed.WithLabelValues(by).Inc()
	}
}

func (m *Metrics) TranslationFallback() {
	if m != nil {
		m.TranslationFalls.Inc()
	}
}

func (m *Metrics) PresenceWrite(status string) {
	if m != nil {
		m.PresenceWrites.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.ConnectedClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.ConnectedClients.Dec()
	}
}

func (m *Metrics) SetWaiting(n int) {
	if m != nil {
		m.WaitingRooms.Set(float64(n))
	}
}

func (m *Metrics) Published(n int) {
	if m != nil {
		m.OutboxPublished.Add(float64(n))
	}
}

func (m *Metrics) NotificationStored() {
	if m != nil {
		m.NotificationsSent.Inc()
	}
}
