package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type staticSessions map[string]*model.Session

func (s staticSessions) ValidateAccess(_ context.Context, token string) (*model.Session, error) {
	if session, ok := s[token]; ok {
		return session, nil
	}
	return nil, apperrors.AuthMalformed(nil)
}

func newServer(t *testing.T, registry *Registry, sessions SessionValidator) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", NewHandler(registry, sessions, zerolog.Nop()).Connect)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func TestConnectRegistersAndReceivesPush(t *testing.T) {
	registry := NewRegistry(nil)
	session := &model.Session{PrincipalID: uuid.New(), Role: model.RolePatient}
	srv := newServer(t, registry, staticSessions{"good": session})

	ws, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL(srv, "?token=good"), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(registry.Lookup(session.PrincipalID)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, registry.Push(session.PrincipalID, []byte(`{"type":"notification"}`)))

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notification"}`, string(msg))

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return registry.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestConnectWithHeaderToken(t *testing.T) {
	registry := NewRegistry(nil)
	session := &model.Session{PrincipalID: uuid.New(), Role: model.RoleDoctor}
	srv := newServer(t, registry, staticSessions{"good": session})

	header := http.Header{"Authorization": []string{"Bearer good"}}
	ws, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return registry.Count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestConnectRejectsBadToken(t *testing.T) {
	registry := NewRegistry(nil)
	srv := newServer(t, registry, staticSessions{})

	for _, query := range []string{"", "?token=bad"} {
		_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL(srv, query), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Zero(t, registry.Count())
}

func TestConnectClosesWhenTokenExpires(t *testing.T) {
	registry := NewRegistry(nil)
	session := &model.Session{
		PrincipalID: uuid.New(),
		Role:        model.RolePatient,
		ExpiresAt:   time.Now().Add(300 * time.Millisecond),
	}
	srv := newServer(t, registry, staticSessions{"short": session})

	ws, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL(srv, "?token=short"), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return registry.Count() == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return registry.Count() == 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, registry.Push(session.PrincipalID, []byte(`{"type":"notification"}`)))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	assert.Error(t, err)
}
