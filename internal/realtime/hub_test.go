package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishReachesOnlyOwner(t *testing.T) {
	hub, srv := startHub(t)

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	require.Eventually(t, func() bool {
		return hub.Count("alice") == 1 && hub.Count("bob") == 1
	}, time.Second, 10*time.Millisecond)

	n := &models.Notification{ID: "n1", UserID: "alice", Type: models.NotificationCustodyRequest}
	hub.Publish("alice", NotificationEvent(EventNotificationCreated, n))

	var got Event
	alice.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, EventNotificationCreated, got.Event)
	assert.Equal(t, "n1", got.ID)
	require.NotNil(t, got.Notification)
	assert.Equal(t, models.NotificationCustodyRequest, got.Notification.Type)

	bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err)
}

func TestClosedConnectionIsRemoved(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv, "carol")
	require.Eventually(t, func() bool { return hub.Count("carol") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count("carol") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHeartbeatStopsWithContext(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Heartbeat(ctx, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not stop")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	assert.NotPanics(t, func() {
		hub.Publish("nobody", Event{Event: EventNotificationUpdated, ID: "x"})
	})
}
