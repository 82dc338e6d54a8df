package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dm-relay/auth"
	"dm-relay/domain/event"
	"dm-relay/gateway"
	"dm-relay/observability"
	"dm-relay/repositories"
	"dm-relay/runtime"
	"dm-relay/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (http.Handler, *services.RelayService) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	users := repositories.NewUserRepository(db)
	messages := repositories.NewMessageRepository(db, log, nil)
	directory := runtime.NewDirectory()
	stats := observability.NewStats()
	relay := services.NewRelayService(log, messages, directory, stats)
	authService := services.NewAuthService(users, time.Hour)
	gw := gateway.NewGateway(log, users, relay, directory, stats,
		make(chan event.Event, 8), gateway.Options{
			ConnBufferSize: 8,
			WriteTimeout:   time.Second,
			PingInterval:   time.Minute,
		})

	return NewServer(log, authService, relay, gw).Routes(), relay
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, r)
	return rec
}

func Test_Register_Endpoint(t *testing.T) {
	req := require.New(t)
	handler, _ := newTestServer(t)

	rec := postJSON(t, handler, "/api/register", `{"username":"alice42","password":"ComplexPass123!"}`)
	req.Equal(http.StatusCreated, rec.Code)

	var created struct {
		UserID string `json:"userId"`
	}
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &created))
	req.NotEmpty(created.UserID)

	// Same username again
	rec = postJSON(t, handler, "/api/register", `{"username":"alice42","password":"ComplexPass123!"}`)
	req.Equal(http.StatusConflict, rec.Code)

	// Weak password
	rec = postJSON(t, handler, "/api/register", `{"username":"bobby42","password":"weak"}`)
	req.Equal(http.StatusBadRequest, rec.Code)
}

func Test_Login_Endpoint(t *testing.T) {
	req := require.New(t)
	handler, _ := newTestServer(t)

	rec := postJSON(t, handler, "/api/register", `{"username":"alice42","password":"ComplexPass123!"}`)
	req.Equal(http.StatusCreated, rec.Code)

	rec = postJSON(t, handler, "/api/login", `{"username":"alice42","password":"ComplexPass123!"}`)
	req.Equal(http.StatusOK, rec.Code)

	var session struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
		Token    string `json:"token"`
	}
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &session))
	req.Equal("alice42", session.Username)
	req.NotEmpty(session.Token)

	rec = postJSON(t, handler, "/api/login", `{"username":"alice42","password":"NotHerPassword1!"}`)
	req.Equal(http.StatusUnauthorized, rec.Code)
}

func Test_Messages_Endpoint(t *testing.T) {
	req := require.New(t)
	handler, relay := newTestServer(t)

	_, err := relay.Send(context.Background(), "alice", "bob", "ping")
	req.NoError(err)
	_, err = relay.Send(context.Background(), "bob", "alice", "pong")
	req.NoError(err)

	// No token
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages/alice/bob", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)

	// A participant reads the conversation, oldest first
	token, err := auth.GenerateToken("alice", "alice", time.Hour)
	req.NoError(err)
	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/messages/alice/bob", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)

	var records []struct {
		SenderID string `json:"senderId"`
		Content  string `json:"content"`
	}
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &records))
	req.Len(records, 2)
	req.Equal("ping", records[0].Content)
	req.Equal("pong", records[1].Content)

	// A stranger does not
	token, err = auth.GenerateToken("mallory", "mallory", time.Hour)
	req.NoError(err)
	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/api/messages/alice/bob", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, r)
	req.Equal(http.StatusForbidden, rec.Code)
}
