package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"support_chat/internal/chat"
	"support_chat/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 2 << 20 // inline base64 media
	sendBuffer     = 64
)

var errUnknownOp = errors.New("ws: unknown operation")

// Client is one browser connection. A user may hold several.
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	ID      string
	Session domain.Session
	Role    Role

	send chan []byte
	done chan struct{}
	once sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]func()
	bots map[string]chat.BotState
}

func newClient(hub *Hub, conn *websocket.Conn, s domain.Session, role Role) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		Hub:     hub,
		Conn:    conn,
		ID:      uuid.NewString(),
		Session: s,
		Role:    role,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[string]func()),
		bots:    make(map[string]chat.BotState),
	}
}

// Send queues f for the write pump. A client that cannot keep up is
// disconnected.
func (c *Client) Send(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.Hub.logger.Error("failed to marshal frame", "type", f.Type, "err", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.Hub.logger.Warn("client send buffer full, closing", "user_id", c.Session.UserID)
		c.Close()
	}
}

// Close stops subscriptions and the pumps. It is safe to call repeatedly.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.cancel()
		c.mu.Lock()
		for key, stop := range c.subs {
			stop()
			delete(c.subs, key)
		}
		c.mu.Unlock()
		c.Conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := c.Conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.logger.Warn("websocket read failed", "user_id", c.Session.UserID, "err", err)
			}
			return
		}
		c.handle(req)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(req Request) {
	if err := c.dispatch(req); err != nil {
		if errors.Is(err, chat.ErrAlreadyClaimed) {
			c.Send(Frame{Type: TypeAcceptRejected, Op: req.Op, RoomID: req.RoomID, Code: chat.CodeAlreadyClaimed, Error: err.Error()})
			return
		}
		code := chat.Code(err)
		if errors.Is(err, errUnknownOp) {
			code = chat.CodeInvalid
		}
		if code == chat.CodeInternal {
			c.Hub.logger.Error("websocket operation failed", "op", req.Op, "room_id", req.RoomID, "err", err)
		}
		c.Send(errorFrame(req.Op, req.RoomID, code, err))
	}
}

func (c *Client) dispatch(req Request) error {
	ctx := c.ctx
	svc := c.Hub.svc

	switch req.Op {
	case OpEnsureRoom:
		if c.Role != RoleClient {
			return chat.ErrForbidden
		}
		room, err := svc.Registry.EnsureRoom(ctx, c.Session, req.RoomID)
		if err != nil {
			return err
		}
		c.Send(Frame{Type: TypeRoom, RoomID: room.ID, Room: room})

	case OpSubscribeRoom:
		return c.subscribeRoom(req.RoomID)

	case OpUnsubscribeRoom:
		c.unsubscribe("room:" + req.RoomID)

	case OpSend, OpQuick:
		content, err := domain.ParseContent(req.Kind, req.Text, req.ImageBase64, req.AudioBase64)
		if err != nil {
			return err
		}
		if c.Role == RoleAgent {
			if req.Op == OpQuick {
				return chat.ErrForbidden
			}
			msg, err := svc.Desk.SendAgentMessage(ctx, c.Session, req.RoomID, content)
			if err != nil {
				return err
			}
			c.Send(Frame{Type: TypeSent, RoomID: req.RoomID, Message: msg})
			return nil
		}
		res, err := svc.Widget.Send(ctx, c.Session, req.RoomID, content, c.botState(req.RoomID))
		if err != nil {
			return err
		}
		c.setBotState(req.RoomID, res.State)
		c.Send(Frame{Type: TypeSent, RoomID: req.RoomID, Result: res})
		if c.subscribed("room:" + req.RoomID) {
			// Views built while the reply was being appended saw the old count.
			return c.pushView(req.RoomID)
		}

	case OpRequestAgent:
		if c.Role != RoleClient {
			return chat.ErrForbidden
		}
		room, err := svc.Desk.RequestAgent(ctx, c.Session, req.RoomID)
		if err != nil {
			return err
		}
		c.Send(Frame{Type: TypeRoom, RoomID: room.ID, Room: room})

	case OpSubscribeQueue:
		if c.Role != RoleAgent {
			return chat.ErrForbidden
		}
		stop, err := svc.Desk.SubscribeQueue(ctx, func(rooms []domain.Room) {
			c.Send(Frame{Type: TypeQueue, Rooms: rooms})
		})
		if err != nil {
			return err
		}
		c.subscribe("queue", stop)

	case OpAccept:
		if c.Role != RoleAgent {
			return chat.ErrForbidden
		}
		room, err := svc.Desk.Accept(ctx, c.Session, req.RoomID)
		if err != nil {
			return err
		}
		c.Send(Frame{Type: TypeRoom, RoomID: room.ID, Room: room})

	case OpClose:
		room, err := svc.Desk.Close(ctx, c.Session, req.RoomID, c.Role.senderType())
		if err != nil {
			return err
		}
		c.Send(Frame{Type: TypeRoom, RoomID: room.ID, Room: room})

	default:
		return fmt.Errorf("%w: %q", errUnknownOp, req.Op)
	}
	return nil
}

func (c *Client) subscribeRoom(roomID string) error {
	svc := c.Hub.svc
	room, err := svc.Registry.Room(c.ctx, roomID)
	if err != nil {
		return err
	}
	if err := chat.CanView(*room, c.Session, c.Role.senderType()); err != nil {
		return err
	}

	quick := svc.Bot.QuickQuestions()
	stop, err := svc.WatchRoom(c.ctx, roomID, func(room domain.Room, msgs []domain.Message) {
		view := chat.BuildView(room, msgs, c.Session, c.Role.senderType(), c.botState(roomID), quick)
		c.Send(Frame{Type: TypeView, RoomID: roomID, View: &view})
	})
	if err != nil {
		return err
	}
	c.subscribe("room:"+roomID, stop)
	return nil
}

func (c *Client) pushView(roomID string) error {
	view, err := c.Hub.svc.View(c.ctx, roomID, c.Session, c.Role.senderType(), c.botState(roomID))
	if err != nil {
		return err
	}
	c.Send(Frame{Type: TypeView, RoomID: roomID, View: view})
	return nil
}

func (c *Client) subscribed(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[key]
	return ok
}

func (c *Client) subscribe(key string, stop func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.subs[key]; ok {
		prev()
	}
	c.subs[key] = stop
}

func (c *Client) unsubscribe(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stop, ok := c.subs[key]; ok {
		stop()
		delete(c.subs, key)
	}
}

func (c *Client) botState(roomID string) chat.BotState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bots[roomID]
}

func (c *Client) setBotState(roomID string, s chat.BotState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bots[roomID] = s
}
