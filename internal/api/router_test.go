package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/community-messaging/config"
	"github.com/d60-Lab/community-messaging/internal/api/handler"
	"github.com/d60-Lab/community-messaging/internal/api/middleware"
	"github.com/d60-Lab/community-messaging/internal/filter"
	"github.com/d60-Lab/community-messaging/internal/media"
	"github.com/d60-Lab/community-messaging/internal/realtime"
	"github.com/d60-Lab/community-messaging/internal/repository"
	"github.com/d60-Lab/community-messaging/internal/service"
	"github.com/d60-Lab/community-messaging/internal/testutil"
	"github.com/d60-Lab/community-messaging/pkg/database"
)

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	users := repository.NewUserRepository(db)
	messages := repository.NewMessageRepository(db)
	blocks := repository.NewBlockRepository(db)
	notifs := repository.NewNotificationRepository(db)
	normalizer := media.NewNormalizer("/api/files/", "/images/default-avatar.jpg")

	hub := realtime.NewHub(nil)
	t.Cleanup(hub.Close)
	dispatcher := service.NewNotificationDispatcher(notifs, messages, hub, 100)
	stop := dispatcher.Start(1)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = stop(ctx)
	})

	tokens := middleware.NewTokenIssuer("test-secret", time.Hour)
	h := handler.NewHandler(handler.Deps{
		Users:         service.NewUserService(users, normalizer),
		Messages:      service.NewMessageService(database.NewTransactor(db), users, messages, blocks, filter.NewWordFilter([]string{"idiota"}), dispatcher, nil),
		Conversations: service.NewConversationService(users, messages, blocks, normalizer, nil),
		Blocks:        service.NewBlockService(users, blocks, normalizer, nil),
		Notifications: service.NewNotificationService(users, notifs),
		Tokens:        tokens,
		Hub:           hub,
	})
	cfg := &config.Config{Server: config.ServerConfig{Mode: gin.TestMode}}
	return &testServer{t: t, engine: NewRouter(cfg, h, tokens, middleware.NewUserRateLimiter(1000, 1000))}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, apiResponse) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w.Code, resp
}

type account struct {
	token string
	id    string
}

func (s *testServer) register(name string) account {
	s.t.Helper()
	code, resp := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name": name, "email": name + "@example.com", "password": "password1",
	})
	require.Equal(s.t, http.StatusCreated, code, resp.Message)
	var data struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(resp.Data, &data))
	return account{token: data.Token, id: data.User.ID}
}

func decode(t *testing.T, raw json.RawMessage, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, dst))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	s.register("ana")

	code, _ := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"name": "ana", "email": "ana@example.com", "password": "password1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ana@example.com", "password": "password1"})
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), "token")

	code, _ = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ana@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/api/v1/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMessagingFlow(t *testing.T) {
	s := newTestServer(t)
	a, b := s.register("a"), s.register("b")

	code, resp := s.do(http.MethodPost, "/api/v1/messages", a.token, gin.H{"recipient_id": b.id, "content": "hello"})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var msg service.MessageDTO
	decode(t, resp.Data, &msg)
	assert.Equal(t, a.id, msg.SenderID)
	assert.False(t, msg.Read)

	code, resp = s.do(http.MethodGet, "/api/v1/messages/unread-count", b.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"count":1}`, string(resp.Data))

	code, resp = s.do(http.MethodGet, "/api/v1/conversations", b.token, nil)
	require.Equal(t, http.StatusOK, code)
	var convs []service.ConversationSummary
	decode(t, resp.Data, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, a.id, convs[0].PeerID)
	assert.Equal(t, "hello", convs[0].LastMessage)

	code, resp = s.do(http.MethodPost, "/api/v1/messages/with/"+a.id+"/read", b.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"marked":1}`, string(resp.Data))
	_, resp = s.do(http.MethodGet, "/api/v1/messages/unread-count", b.token, nil)
	assert.JSONEq(t, `{"count":0}`, string(resp.Data))

	code, _ = s.do(http.MethodPut, "/api/v1/messages/"+msg.ID, b.token, gin.H{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodPut, "/api/v1/messages/"+msg.ID, a.token, gin.H{"content": "hello!"})
	assert.Equal(t, http.StatusOK, code)

	code, resp = s.do(http.MethodGet, "/api/v1/notifications", b.token, nil)
	require.Equal(t, http.StatusOK, code)
	var notifs []service.NotificationDTO
	decode(t, resp.Data, &notifs)
	require.Len(t, notifs, 1)
	assert.Equal(t, "PRIVATE_MESSAGE", notifs[0].Category)

	s.do(http.MethodPost, "/api/v1/messages", b.token, gin.H{"recipient_id": a.id, "content": "hi back"})
	code, resp = s.do(http.MethodDelete, "/api/v1/messages/with/"+b.id, a.token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"deleted":2}`, string(resp.Data))

	_, resp = s.do(http.MethodGet, "/api/v1/messages/with/"+b.id, a.token, nil)
	assert.JSONEq(t, `[]`, string(resp.Data))
}

func TestMessagingErrors(t *testing.T) {
	s := newTestServer(t)
	a, b := s.register("a"), s.register("b")

	code, _ := s.do(http.MethodPost, "/api/v1/messages", a.token, gin.H{"recipient_id": b.id, "content": "   "})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(http.MethodPost, "/api/v1/messages", a.token, gin.H{"recipient_id": b.id, "content": "idiota"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(http.MethodPost, "/api/v1/messages", a.token, gin.H{"recipient_id": "missing", "content": "hi"})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(http.MethodDelete, "/api/v1/messages/missing", a.token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBlockFlow(t *testing.T) {
	s := newTestServer(t)
	a, b := s.register("a"), s.register("b")

	code, _ := s.do(http.MethodPost, "/api/v1/blocks/"+a.id, a.token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/v1/blocks/"+b.id, a.token, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodPost, "/api/v1/messages", b.token, gin.H{"recipient_id": a.id, "content": "hi"})
	assert.Equal(t, http.StatusForbidden, code)

	_, resp := s.do(http.MethodGet, "/api/v1/blocks/"+a.id+"/status", b.token, nil)
	assert.JSONEq(t, `{"blocked":false,"blocked_by":true}`, string(resp.Data))

	_, resp = s.do(http.MethodGet, "/api/v1/blocks", a.token, nil)
	var list []service.UserDTO
	decode(t, resp.Data, &list)
	require.Len(t, list, 1)
	assert.Equal(t, b.id, list[0].ID)

	code, _ = s.do(http.MethodDelete, "/api/v1/blocks/"+b.id, a.token, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, "/api/v1/messages", b.token, gin.H{"recipient_id": a.id, "content": "hi"})
	assert.Equal(t, http.StatusCreated, code)
}
