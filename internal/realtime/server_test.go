package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("realtime-test-secret")

func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    userID.String(),
		"app_id": "test-app",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func startServer(t *testing.T, hub *Hub, active ActiveCheck) string {
	t.Helper()
	srv := httptest.NewServer(NewServer(hub, JWTAuthenticator(testSecret, active), func(*http.Request) bool { return true }))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestServer_BlockedUserReceivesEventThenClose(t *testing.T) {
	hub := NewHub()
	url := startServer(t, hub, nil)
	user := uuid.New()

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+signToken(t, user), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count(user) == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Push(ctx, user, Event{RecipientID: user, EventType: EventAccountBlocked, Reason: "harassment"}))
	require.NoError(t, hub.Disconnect(ctx, user, "account blocked"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventAccountBlocked, ev.EventType)
	assert.Equal(t, "harassment", ev.Reason)

	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
	assert.Equal(t, 0, hub.Count(user))
}

func TestServer_RejectsMissingOrInvalidToken(t *testing.T) {
	url := startServer(t, NewHub(), nil)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_RejectsInactiveUser(t *testing.T) {
	hub := NewHub()
	var gotApp string
	url := startServer(t, hub, func(_ context.Context, appID string, _ uuid.UUID) error {
		gotApp = appID
		return errors.New("blocked")
	})

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token="+signToken(t, uuid.New()), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "test-app", gotApp)
	assert.Equal(t, 0, hub.Count(uuid.Nil))
}
