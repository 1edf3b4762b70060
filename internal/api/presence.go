package api

import (
	"net/http"

	"support_chat/internal/domain"

	"github.com/gorilla/mux"
)

func (s *Server) registerPresence(r *mux.Router) {
	r.HandleFunc("/presence/online", s.online).Methods(http.MethodPost)
	r.HandleFunc("/presence/offline", s.offline).Methods(http.MethodPost)
	r.HandleFunc("/presence/{userId}", s.getPresence).Methods(http.MethodGet)
}

func (s *Server) online(w http.ResponseWriter, r *http.Request) {
	session, ok := requireRole(w, r, domain.SenderAgent)
	if !ok {
		return
	}
	if err := s.presence.Online(r.Context(), session.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) offline(w http.ResponseWriter, r *http.Request) {
	session, ok := requireRole(w, r, domain.SenderAgent)
	if !ok {
		return
	}
	if err := s.presence.Offline(r.Context(), session.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getPresence(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := requireSession(w, r); !ok {
		return
	}
	p, err := s.presence.Get(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	session, _, ok := requireSession(w, r)
	if !ok {
		return
	}
	list, err := s.notifications.ListNotifications(r.Context(), session.UserID, notificationsLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}
