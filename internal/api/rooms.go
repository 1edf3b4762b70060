package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"support_chat/internal/chat"
	"support_chat/internal/domain"

	"github.com/gorilla/mux"
)

var errBadBody = errors.New("invalid request body")

func (s *Server) registerRooms(r *mux.Router) {
	r.HandleFunc("/rooms/ensure", s.ensureRoom).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}", s.getRoom).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/view", s.getView).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/messages", s.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/messages", s.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/quick", s.askQuick).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/request-agent", s.requestAgent).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/accept", s.accept).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/agent-messages", s.sendAgentMessage).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/close", s.closeRoom).Methods(http.MethodPost)
	r.HandleFunc("/queue", s.queue).Methods(http.MethodGet)
}

type ensureRoomRequest struct {
	RoomID string `json:"roomId"`
}

type contentRequest struct {
	Kind           domain.MessageType `json:"kind"`
	Text           string             `json:"text"`
	ImageBase64    string             `json:"imageBase64"`
	AudioBase64    string             `json:"audioBase64"`
	NoBotHelpCount int                `json:"noBotHelpCount"`
}

type quickRequest struct {
	Question       string `json:"question"`
	NoBotHelpCount int    `json:"noBotHelpCount"`
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

func botStateParam(r *http.Request) chat.BotState {
	n, _ := strconv.Atoi(r.URL.Query().Get("noBotHelpCount"))
	return chat.BotState{NoHelpCount: max(n, 0)}
}

func (s *Server) ensureRoom(w http.ResponseWriter, r *http.Request) {
	session, ok := requireRole(w, r, domain.SenderClient)
	if !ok {
		return
	}
	var req ensureRoomRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, chat.CodeInvalid, err.Error())
		return
	}
	room, err := s.chat.Registry.EnsureRoom(r.Context(), session, req.RoomID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// readableRoom loads the room in the path and checks the caller may read it.
func (s *Server) readableRoom(w http.ResponseWriter, r *http.Request) (*domain.Room, bool) {
	session, role, ok := requireSession(w, r)
	if !ok {
		return nil, false
	}
	room, err := s.chat.Registry.Room(r.Context(), mux.Vars(r)["id"])
	if err == nil {
		err = chat.CanView(*room, session, role)
	}
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return room, true
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.readableRoom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) getView(w http.ResponseWriter, r *http.Request) {
	session, role, ok := requireSession(w, r)
	if !ok {
		return
	}
	view, err := s.chat.View(r.Context(), mux.Vars(r)["id"], session, role, botStateParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	room, ok := s.readableRoom(w, r)
	if !ok {
		return
	}
	msgs, err := s.chat.Log.List(r.Context(), room.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := requireRole(w, r, domain.SenderClient)
	if !ok {
		return
	}
	var req contentRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, chat.CodeInvalid, err.Error())
		return
	}
	content, err := domain.ParseContent(req.Kind, req.Text, req.ImageBase64, req.AudioBase64)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.chat.Widget.Send(r.Context(), session, mux.Vars(r)["id"], content, chat.BotState{NoHelpCount: req.NoBotHelpCount})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) askQuick(w http.ResponseWriter, r *http.Request) {
	session, ok := requireRole(w, r, domain.SenderClient)
	if !ok {
		return
	}
	var req quickRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, chat.CodeInvalid, err.Error())
		return
	}
	res, err := s.chat.Widget.AskQuick(r.Context(), session, mux.Vars(r)["id"], req.Question, chat.BotState{NoHelpCount: req.NoBotHelpCount})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) requestAgent(w http.ResponseWriter, r *http.Request) {
	session, ok := requireRole(w, r, domain.SenderClient)
	if !ok {
		return
	}
	room, err := s.chat.Desk.RequestAgent(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request) {
	session, ok := requireRole(w, r, domain.SenderAgent)
	if !ok {
		return
	}
	room, err := s.chat.Desk.Accept(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) sendAgentMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := requireRole(w, r, domain.SenderAgent)
	if !ok {
		return
	}
	var req contentRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, chat.CodeInvalid, err.Error())
		return
	}
	content, err := domain.ParseContent(req.Kind, req.Text, req.ImageBase64, req.AudioBase64)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := s.chat.Desk.SendAgentMessage(r.Context(), session, mux.Vars(r)["id"], content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) closeRoom(w http.ResponseWriter, r *http.Request) {
	session, role, ok := requireSession(w, r)
	if !ok {
		return
	}
	room, err := s.chat.Desk.Close(r.Context(), session, mux.Vars(r)["id"], role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) queue(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, domain.SenderAgent); !ok {
		return
	}
	rooms, err := s.chat.Desk.Waiting(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	writeJSON(w, http.StatusOK, rooms)
}
