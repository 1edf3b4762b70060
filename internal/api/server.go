package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"support_chat/internal/chat"
	"support_chat/internal/domain"
	"support_chat/internal/presence"
	"support_chat/internal/repository"
	"support_chat/internal/ws"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const notificationsLimit = 50

type Server struct {
	chat          *chat.Service
	presence      *presence.Service
	notifications repository.NotificationRepository
	hub           *ws.Hub
	gatherer      prometheus.Gatherer
	logger        *slog.Logger
}

type Deps struct {
	Chat          *chat.Service
	Presence      *presence.Service
	Notifications repository.NotificationRepository
	Hub           *ws.Hub
	Gatherer      prometheus.Gatherer
	Logger        *slog.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		chat:          d.Chat,
		presence:      d.Presence,
		notifications: d.Notifications,
		hub:           d.Hub,
		gatherer:      d.Gatherer,
		logger:        d.Logger,
	}
}

// Router builds the HTTP surface. Optional dependencies that are nil
// leave their routes out.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests, enableCORS)

	// Preflight requests must match a route for middleware to run.
	r.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if s.hub != nil {
		r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			ws.ServeWs(s.hub, w, r)
		})
	}

	api := r.PathPrefix("/api").Subrouter()
	s.registerRooms(api)
	if s.presence != nil {
		s.registerPresence(api)
	}
	if s.notifications != nil {
		api.HandleFunc("/notifications", s.listNotifications).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionFrom reads the caller's identity. The upstream auth provider
// sets the X-User-* headers; query parameters are accepted for browsers
// that cannot set headers. The role is client unless agent is named.
func sessionFrom(r *http.Request) (domain.Session, domain.SenderType) {
	q := r.URL.Query()
	pick := func(header, param string) string {
		if v := r.Header.Get(header); v != "" {
			return v
		}
		return q.Get(param)
	}
	s := domain.Session{
		UserID:   pick("X-User-Id", "userId"),
		UserName: pick("X-User-Name", "userName"),
		Locale:   pick("X-User-Lang", "lang"),
	}
	switch pick("X-User-Role", "role") {
	case "", string(domain.SenderClient):
		return s, domain.SenderClient
	case string(domain.SenderAgent):
		return s, domain.SenderAgent
	default:
		return s, ""
	}
}

// requireSession rejects anonymous callers and unknown roles.
func requireSession(w http.ResponseWriter, r *http.Request) (domain.Session, domain.SenderType, bool) {
	s, role := sessionFrom(r)
	if s.UserID == "" {
		jsonError(w, http.StatusUnauthorized, chat.CodeUnauthorized, "missing user identity")
		return s, role, false
	}
	if role == "" {
		jsonError(w, http.StatusBadRequest, chat.CodeInvalid, "role must be client or agent")
		return s, role, false
	}
	return s, role, true
}

// requireRole is requireSession restricted to one role.
func requireRole(w http.ResponseWriter, r *http.Request, want domain.SenderType) (domain.Session, bool) {
	s, role, ok := requireSession(w, r)
	if !ok {
		return s, false
	}
	if role != want {
		jsonError(w, http.StatusForbidden, chat.CodeForbidden, string(want)+" role required")
		return s, false
	}
	return s, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"code": code, "error": msg})
}

func statusFor(code string) int {
	switch code {
	case chat.CodeNotFound:
		return http.StatusNotFound
	case chat.CodeRoomClosed:
		return http.StatusGone
	case chat.CodeAlreadyClaimed, chat.CodeNotWaiting:
		return http.StatusConflict
	case chat.CodeForbidden:
		return http.StatusForbidden
	case chat.CodeUnauthorized:
		return http.StatusUnauthorized
	case chat.CodeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := chat.Code(err)
	if errors.Is(err, presence.ErrNotFound) {
		code = chat.CodeNotFound
	}
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		jsonError(w, status, code, "internal error")
		return
	}
	jsonError(w, status, code, err.Error())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, X-User-Id, X-User-Name, X-User-Lang, X-User-Role")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
