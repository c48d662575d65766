package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytebuddy/internal/events"
)

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	if token != "" {
		url += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestUsageStreamDeliversOwnEvents(t *testing.T) {
	e := newTestEnv(t, nil)
	srv := httptest.NewServer(e.server.Router())
	t.Cleanup(srv.Close)

	token := e.register(t, "alice")
	conn, _, err := dial(t, srv, token)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := readEvent(t, conn)
	assert.Equal(t, "CONNECTED", welcome["type"])
	data := welcome["data"].(map[string]interface{})
	assert.NotNil(t, data["usage"])

	other := e.register(t, "bob")
	w, _ := e.do(t, http.MethodPost, "/api/learning/practice", other, map[string]string{"content": "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodPost, "/api/learning/practice", token, map[string]string{"content": "hi"})
	require.Equal(t, http.StatusOK, w.Code)

	ev := readEvent(t, conn)
	assert.Equal(t, string(events.EventUsageConsumed), ev["type"])
	payload := ev["data"].(map[string]interface{})
	assert.Equal(t, "languagePractice", payload["feature"])
	assert.Equal(t, float64(1), payload["used"])
	assert.NotContains(t, ev, "AccountID")
}

func TestUsageStreamRequiresToken(t *testing.T) {
	e := newTestEnv(t, nil)
	srv := httptest.NewServer(e.server.Router())
	t.Cleanup(srv.Close)

	_, resp, err := dial(t, srv, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dial(t, srv, "garbage")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHubScopesBroadcasts(t *testing.T) {
	hub := NewUsageHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	mine := &UsageClient{send: make(chan []byte, 4), hub: hub, accountID: "a", closeChan: make(chan struct{})}
	theirs := &UsageClient{send: make(chan []byte, 4), hub: hub, accountID: "b", closeChan: make(chan struct{})}
	hub.register <- mine
	hub.register <- theirs

	hub.BroadcastToAccount("a", events.Event{Type: events.EventQuotaExceeded, AccountID: "a"})

	select {
	case msg := <-mine.send:
		assert.Contains(t, string(msg), string(events.EventQuotaExceeded))
	case <-time.After(time.Second):
		t.Fatal("no message for owner")
	}
	select {
	case <-theirs.send:
		t.Fatal("message leaked to another account")
	case <-time.After(20 * time.Millisecond):
	}

	hub.unregister <- mine
	require.Eventually(t, func() bool { return hub.ClientCount("a") == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount("b"))
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewUsageHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	slow := &UsageClient{send: make(chan []byte), hub: hub, accountID: "a", closeChan: make(chan struct{})}
	hub.register <- slow
	hub.BroadcastToAccount("a", events.Event{Type: events.EventUsageRollover})

	require.Eventually(t, func() bool { return hub.ClientCount("a") == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-slow.send
	assert.False(t, open)
}
