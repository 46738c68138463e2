package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server, origin string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestHub_InitialSnapshotAndBroadcast(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, map[string]int{"remainingSlots": 4})
	}))
	defer server.Close()

	a := dial(t, server, "")
	b := dial(t, server, "")
	assert.JSONEq(t, `{"remainingSlots":4}`, readText(t, a))
	assert.JSONEq(t, `{"remainingSlots":4}`, readText(t, b))

	require.Eventually(t, func() bool { return hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(map[string]int{"remainingSlots": 3})
	assert.JSONEq(t, `{"remainingSlots":3}`, readText(t, a))
	assert.JSONEq(t, `{"remainingSlots":3}`, readText(t, b))

	// Disconnected clients are unregistered.
	a.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.Len())
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub([]string{"https://coffee.example"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "hello")
	}))
	defer server.Close()

	ok := dial(t, server, "https://coffee.example")
	assert.Equal(t, `"hello"`, readText(t, ok))

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_StalledClientDoesNotBlockBroadcast(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "hello")
	}))
	defer server.Close()

	// Connected but never reads, so its socket buffers fill up.
	dial(t, server, "")
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	big := strings.Repeat("x", 1<<20)
	var worst time.Duration
	for i := 0; i < 64; i++ {
		start := time.Now()
		hub.Broadcast(big)
		worst = max(worst, time.Since(start))
	}
	assert.Less(t, worst, 500*time.Millisecond)

	// The stalled client overflowed its queue and was dropped.
	assert.Zero(t, hub.Len())

	// Registration still works afterwards.
	c := dial(t, server, "")
	assert.Equal(t, `"hello"`, readText(t, c))
}
