package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panasonic_bd/internal/websocket"
)

// healthClients reads the websocket client count, -1 when /healthz misbehaves
func healthClients(t *testing.T) float64 {
	rec := do(t, http.MethodGet, "/healthz", "")
	var body map[string]interface{}
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &body) != nil {
		return -1
	}
	n, ok := body["websocket_clients"].(float64)
	if !ok {
		return -1
	}
	return n
}

func TestHealthCountsWebSocketClients(t *testing.T) {
	withPlayer(t, true)
	wsHub = websocket.NewHub()
	go wsHub.Run()
	t.Cleanup(func() { wsHub = nil })

	assert.Equal(t, 0.0, healthClients(t))

	srv := httptest.NewServer(newRouter())
	defer srv.Close()
	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return healthClients(t) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHealthWithoutHub(t *testing.T) {
	rec := do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"websocket_clients":0`)
	assert.Contains(t, rec.Body.String(), `"mqtt":false`)
}
