package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"support_chat/internal/chat"
	"support_chat/internal/domain"
	"support_chat/internal/notify"
	"support_chat/internal/presence"
	"support_chat/internal/repository"
	"support_chat/internal/translate"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv      *httptest.Server
	presence *presence.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	emitter := notify.NewEmitter()
	store := repository.NewMemoryStore(emitter)
	svc := chat.NewService(store, emitter, nil, translate.Noop{}, nil, logger)

	repo := presence.NewMemoryRepository()
	hub := NewHub(svc, Options{
		Presence:  presence.NewService(repo, nil, logger),
		Heartbeat: time.Minute,
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hubDone
	})
	return &testServer{srv: srv, presence: repo}
}

func (s *testServer) dial(t *testing.T, sess domain.Session, role Role) *websocket.Conn {
	t.Helper()
	q := url.Values{}
	q.Set("userId", sess.UserID)
	q.Set("userName", sess.UserName)
	q.Set("lang", sess.Locale)
	q.Set("role", string(role))
	u := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/?" + q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// expect reads frames until one matches typ and pred.
func expect(t *testing.T, conn *websocket.Conn, typ string, pred func(Frame) bool) Frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f Frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", typ)
		if f.Type == typ && (pred == nil || pred(f)) {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, req Request) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(req))
}

var (
	customer = domain.Session{UserID: "cust-1", UserName: "Sara", Locale: "en"}
	agentA   = domain.Session{UserID: "agent-a", UserName: "Omar", Locale: "ar"}
	agentB   = domain.Session{UserID: "agent-b", UserName: "Lina", Locale: "ar"}
)

func TestHub_HandoffOverWebsocket(t *testing.T) {
	s := newTestServer(t)

	cust := s.dial(t, customer, RoleClient)
	send(t, cust, Request{Op: OpEnsureRoom})
	room := expect(t, cust, TypeRoom, nil).Room
	require.NotNil(t, room)
	roomID := room.ID

	send(t, cust, Request{Op: OpSubscribeRoom, RoomID: roomID})
	view := expect(t, cust, TypeView, nil).View
	assert.NotEmpty(t, view.QuickQuestions)
	assert.True(t, view.CanSend)

	send(t, cust, Request{Op: OpSend, RoomID: roomID, Kind: domain.MessageText, Text: "What are your working hours?"})
	sent := expect(t, cust, TypeSent, nil)
	assert.Equal(t, 1, sent.Result.State.NoHelpCount)

	send(t, cust, Request{Op: OpSend, RoomID: roomID, Text: "Is anyone there?"})
	sent = expect(t, cust, TypeSent, nil)
	assert.True(t, sent.Result.CanRequestAgent)
	expect(t, cust, TypeView, func(f Frame) bool { return f.View.CanRequestAgent })

	send(t, cust, Request{Op: OpRequestAgent, RoomID: roomID})
	assert.True(t, expect(t, cust, TypeRoom, nil).Room.WaitingForAgent)

	a := s.dial(t, agentA, RoleAgent)
	b := s.dial(t, agentB, RoleAgent)
	for _, conn := range []*websocket.Conn{a, b} {
		send(t, conn, Request{Op: OpSubscribeQueue})
		q := expect(t, conn, TypeQueue, func(f Frame) bool { return len(f.Rooms) == 1 })
		assert.Equal(t, roomID, q.Rooms[0].ID)
	}

	send(t, a, Request{Op: OpAccept, RoomID: roomID})
	assert.Equal(t, agentA.UserID, expect(t, a, TypeRoom, nil).Room.AgentID)

	send(t, b, Request{Op: OpAccept, RoomID: roomID})
	rejected := expect(t, b, TypeAcceptRejected, nil)
	assert.Equal(t, chat.CodeAlreadyClaimed, rejected.Code)

	require.Eventually(t, func() bool {
		p, err := s.presence.Get(context.Background(), agentA.UserID)
		return err == nil && p.Status == domain.PresenceOnline
	}, 2*time.Second, 10*time.Millisecond)

	send(t, a, Request{Op: OpSend, RoomID: roomID, Text: "مرحبا"})
	expect(t, a, TypeSent, nil)
	expect(t, cust, TypeView, func(f Frame) bool {
		n := len(f.View.Messages)
		return n > 0 && f.View.Messages[n-1].MachineTranslated
	})

	send(t, a, Request{Op: OpClose, RoomID: roomID})
	assert.Equal(t, domain.RoomClosedByAgent, expect(t, a, TypeRoom, nil).Room.Status)
	closed := expect(t, cust, TypeView, func(f Frame) bool { return f.View.ChatClosed })
	assert.False(t, closed.View.CanSend)

	send(t, cust, Request{Op: OpSend, RoomID: roomID, Text: "hello?"})
	assert.Equal(t, chat.CodeRoomClosed, expect(t, cust, TypeError, nil).Code)
}

func TestHub_RoleChecks(t *testing.T) {
	s := newTestServer(t)
	cust := s.dial(t, customer, RoleClient)

	send(t, cust, Request{Op: OpSubscribeQueue})
	assert.Equal(t, chat.CodeForbidden, expect(t, cust, TypeError, nil).Code)

	send(t, cust, Request{Op: "dance"})
	assert.Equal(t, chat.CodeInvalid, expect(t, cust, TypeError, nil).Code)

	send(t, cust, Request{Op: OpSubscribeRoom, RoomID: "chat_missing"})
	assert.Equal(t, chat.CodeNotFound, expect(t, cust, TypeError, nil).Code)
}

func TestHub_AgentDisconnectGoesOffline(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t, agentA, RoleAgent)

	require.Eventually(t, func() bool {
		p, err := s.presence.Get(context.Background(), agentA.UserID)
		return err == nil && p.Status == domain.PresenceOnline
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Close())

	require.Eventually(t, func() bool {
		p, err := s.presence.Get(context.Background(), agentA.UserID)
		return err == nil && p.Status == domain.PresenceOffline && len(p.Attendance) == 1 && p.Attendance[0].Out != ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeWs_RequiresUser(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.srv.URL + "/?role=client")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_PresenceFollowsAgentConnectionsOnly(t *testing.T) {
	s := newTestServer(t)
	both := domain.Session{UserID: "staff-1", UserName: "Noor", Locale: "ar"}

	asClient := s.dial(t, both, RoleClient)
	send(t, asClient, Request{Op: OpEnsureRoom})
	expect(t, asClient, TypeRoom, nil)
	_, err := s.presence.Get(context.Background(), both.UserID)
	assert.Error(t, err, "customer connections do not mark presence")

	asAgent := s.dial(t, both, RoleAgent)
	require.Eventually(t, func() bool {
		p, err := s.presence.Get(context.Background(), both.UserID)
		return err == nil && p.Status == domain.PresenceOnline
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, asAgent.Close())
	require.Eventually(t, func() bool {
		p, err := s.presence.Get(context.Background(), both.UserID)
		return err == nil && p.Status == domain.PresenceOffline
	}, 2*time.Second, 10*time.Millisecond)

	send(t, asClient, Request{Op: OpEnsureRoom})
	expect(t, asClient, TypeRoom, nil)
}
