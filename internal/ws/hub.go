package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"support_chat/internal/broker"
	"support_chat/internal/chat"
	"support_chat/internal/domain"
	"support_chat/internal/metrics"
	"support_chat/internal/presence"

	"github.com/gorilla/websocket"
	amqp "github.com/rabbitmq/amqp091-go"
)

// UserQueues hands out a customer's personal event queue.
type UserQueues interface {
	ConsumeUserQueue(userID string) (<-chan amqp.Delivery, func(), error)
}

type Options struct {
	Presence  *presence.Service
	Heartbeat time.Duration
	Queues    UserQueues
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Hub struct {
	// Registered clients: UserID -> ClientID -> Client
	clients map[string]map[string]*Client
	// Open connections per user and role. Role-specific background work
	// starts with a role's first connection and stops with its last.
	roles map[string]map[Role]int

	Register   chan *Client
	Unregister chan *Client

	svc       *chat.Service
	presence  *presence.Service
	heartbeat time.Duration
	queues    UserQueues
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// Per-user background work: presence trackers for agents, queue
	// consumers for customers.
	trackers  map[string]context.CancelFunc
	consumers map[string]func()
	wg        sync.WaitGroup

	done chan struct{}
	mu   sync.RWMutex
}

func NewHub(svc *chat.Service, opts Options) *Hub {
	return &Hub{
		clients:    make(map[string]map[string]*Client),
		roles:      make(map[string]map[Role]int),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		svc:        svc,
		presence:   opts.Presence,
		heartbeat:  opts.Heartbeat,
		queues:     opts.Queues,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		trackers:   make(map[string]context.CancelFunc),
		consumers:  make(map[string]func()),
		done:       make(chan struct{}),
	}
}

// Run serves registrations until ctx is done. On return every client is
// closed and every presence tracker has made its offline write.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.add(ctx, client)

		case client := <-h.Unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) add(ctx context.Context, client *Client) {
	userID := client.Session.UserID

	h.mu.Lock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[string]*Client)
		h.roles[userID] = make(map[Role]int)
	}
	h.clients[userID][client.ID] = client
	h.roles[userID][client.Role]++
	first := h.roles[userID][client.Role] == 1
	h.mu.Unlock()

	h.metrics.ClientConnected()

	if first {
		switch client.Role {
		case RoleAgent:
			h.startTracker(ctx, userID)
		case RoleClient:
			h.startUserQueue(userID)
		}
	}

	h.logger.Info("client registered", "user_id", userID, "client_id", client.ID, "role", client.Role)
}

func (h *Hub) remove(client *Client) {
	userID := client.Session.UserID

	h.mu.Lock()
	userClients, ok := h.clients[userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := userClients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(userClients, client.ID)
	h.roles[userID][client.Role]--
	last := h.roles[userID][client.Role] == 0
	if len(userClients) == 0 {
		delete(h.clients, userID)
		delete(h.roles, userID)
	}
	h.mu.Unlock()

	h.metrics.ClientDisconnected()

	if last {
		switch client.Role {
		case RoleAgent:
			if cancel, ok := h.trackers[userID]; ok {
				cancel()
				delete(h.trackers, userID)
			}
		case RoleClient:
			if cancel, ok := h.consumers[userID]; ok {
				cancel()
				delete(h.consumers, userID)
			}
		}
	}

	h.logger.Info("client unregistered", "user_id", userID, "client_id", client.ID)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	var all []*Client
	for _, userClients := range h.clients {
		for _, c := range userClients {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[string]*Client)
	h.roles = make(map[string]map[Role]int)
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for userID, cancel := range h.trackers {
		cancel()
		delete(h.trackers, userID)
	}
	for userID, cancel := range h.consumers {
		cancel()
		delete(h.consumers, userID)
	}
	h.wg.Wait()
}

func (h *Hub) startTracker(ctx context.Context, userID string) {
	if h.presence == nil {
		return
	}
	tctx, cancel := context.WithCancel(ctx)
	h.trackers[userID] = cancel
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		presence.NewTracker(h.presence, userID, h.heartbeat).Run(tctx)
	}()
}

// startUserQueue drains the customer's queue while they are connected so
// that only events for absent customers reach the push worker.
func (h *Hub) startUserQueue(userID string) {
	if h.queues == nil {
		return
	}
	msgs, cancel, err := h.queues.ConsumeUserQueue(userID)
	if err != nil {
		h.logger.Error("failed to consume user queue", "user_id", userID, "err", err)
		return
	}
	h.consumers[userID] = cancel
	go h.handleUserMessages(userID, msgs)
}

func (h *Hub) handleUserMessages(userID string, msgs <-chan amqp.Delivery) {
	for d := range msgs {
		var env broker.Envelope
		if err := json.Unmarshal(d.Body, &env); err != nil {
			h.logger.Warn("failed to unmarshal user event", "user_id", userID, "err", err)
			continue
		}
		if env.Type != domain.EventTypeMessageCreated {
			continue
		}
		var ev domain.RoomEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			h.logger.Warn("failed to unmarshal user event payload", "user_id", userID, "err", err)
			continue
		}
		h.BroadcastToUser(userID, Frame{Type: TypeNotification, RoomID: ev.RoomID, Preview: ev.Preview})
	}
}

func (h *Hub) BroadcastToUser(userID string, f Frame) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for _, c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Send(f)
	}
}

// Online reports whether the user has at least one open connection here.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request. The caller identifies itself with the
// userId, userName, lang and role query parameters.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	session := domain.Session{
		UserID:   q.Get("userId"),
		UserName: q.Get("userName"),
		Locale:   q.Get("lang"),
	}
	if session.UserID == "" {
		http.Error(w, "userId is required", http.StatusUnauthorized)
		return
	}
	role := Role(q.Get("role"))
	switch role {
	case "":
		role = RoleClient
	case RoleClient, RoleAgent:
	default:
		http.Error(w, "role must be client or agent", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("failed to upgrade websocket", "err", err)
		return
	}

	client := newClient(hub, conn, session, role)
	if !hub.register(client) {
		client.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
