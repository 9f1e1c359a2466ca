package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/messaging"
	logsvc "github.com/trezcool/shule/services/logger"
)

func TestHub_Push(t *testing.T) {
	hub := NewHub(logsvc.NewDiscardLogger(), []string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=u1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connected("u1") == 1 }, time.Second, 10*time.Millisecond)

	hub.Push("u2", messaging.Event{Type: messaging.EventNotification, Data: "not for u1"})
	hub.Push("u1", messaging.Event{Type: messaging.EventNotification, Data: map[string]string{"title": "Hello"}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, messaging.EventNotification, evt.Type)
	assert.Equal(t, "Hello", evt.Data["title"])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Connected("u1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	check := checkOrigin([]string{"https://school.example"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(req), "no origin")

	req.Header.Set("Origin", "https://school.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
