// Package httpapi is the request/response surface of the relay:
// account registration, login and conversation history, plus the
// WebSocket upgrade endpoint.
package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"dm-relay/auth"
	"dm-relay/contract"
	"dm-relay/domain"
	"dm-relay/errors"
	"dm-relay/gateway"
	"dm-relay/services"

	"github.com/samber/lo"
)

type Server struct {
	log     *slog.Logger
	auth    services.IAuthService
	relay   contract.IRelay
	gateway *gateway.Gateway
}

func NewServer(log *slog.Logger, authService services.IAuthService,
	relay contract.IRelay, gw *gateway.Gateway) *Server {
	return &Server{log: log, auth: authService, relay: relay, gateway: gw}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/messages/{user1}/{user2}", auth.RequireToken(s.handleMessages))
	mux.HandleFunc("GET /ws", s.gateway.HandleWS)
	return mux
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	UserID string `json:"userId"`
}

type loginResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

type messageDTO struct {
	MessageID   string    `json:"messageId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Delivered   bool      `json:"delivered"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	userID, err := s.auth.Register(body.Username, body.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("User account created", "username", body.Username)
	s.writeJSON(w, http.StatusCreated, registerResponse{UserID: userID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	session, err := s.auth.Login(body.Username, body.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loginResponse{
		UserID:   session.UserID,
		Username: session.Username,
		Token:    session.Token,
	})
}

// handleMessages returns the full conversation between two users,
// oldest first. Only a participant may read it.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	user1 := r.PathValue("user1")
	user2 := r.PathValue("user2")

	caller, _ := r.Context().Value(auth.UserIDKey).(string)
	if caller != user1 && caller != user2 {
		http.Error(w, "not a participant of this conversation", http.StatusForbidden)
		return
	}

	records, err := s.relay.History(user1, user2)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, lo.Map(records, func(m domain.Message, _ int) messageDTO {
		return messageDTO{
			MessageID:   m.ID.String(),
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			Content:     m.Content,
			Timestamp:   m.CreatedAt,
			Delivered:   m.Delivered,
		}
	}))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Response encoding failed", "error", err)
	}
}

// writeError maps domain sentinels to HTTP statuses. Anything unmapped
// is a 500 with no detail leaked to the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, errors.ErrInvalidPassword):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case stderrors.Is(err, errors.ErrInvalidCredentials):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	case stderrors.Is(err, errors.ErrUserNotFound):
		http.Error(w, "user not found", http.StatusNotFound)
	case stderrors.Is(err, errors.ErrUserAlreadyExists):
		http.Error(w, "username already taken", http.StatusConflict)
	case stderrors.Is(err, errors.ErrPersistence):
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		s.log.Error("Unhandled error on HTTP surface", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
