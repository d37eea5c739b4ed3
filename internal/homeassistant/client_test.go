package homeassistant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateCall struct {
	path string
	auth string
	body map[string]interface{}
}

func fakeHA(t *testing.T, status int) (*httptest.Server, func() []stateCall) {
	var mu sync.Mutex
	var calls []stateCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		calls = append(calls, stateCall{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []stateCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]stateCall(nil), calls...)
	}
}

func TestSetState(t *testing.T) {
	srv, calls := fakeHA(t, http.StatusCreated)
	c := NewClient(srv.URL+"/", "token123")

	require.NoError(t, c.SetState("media_player.den", "idle", map[string]interface{}{"player_type": "bd"}))

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, "/api/states/media_player.den", got[0].path)
	assert.Equal(t, "Bearer token123", got[0].auth)
	assert.Equal(t, "idle", got[0].body["state"])
	assert.Equal(t, map[string]interface{}{"player_type": "bd"}, got[0].body["attributes"])
}

func TestSetStateError(t *testing.T) {
	srv, _ := fakeHA(t, http.StatusUnauthorized)
	c := NewClient(srv.URL, "bad")

	assert.ErrorContains(t, c.SetState("remote.den", "on", nil), "401")
}

func TestPublishPlayer(t *testing.T) {
	srv, calls := fakeHA(t, http.StatusOK)
	c := NewClient(srv.URL, "token123")

	err := c.PublishPlayer(PlayerState{
		ID:           "living_room",
		FriendlyName: "Living Room",
		MediaState:   "",
		On:           false,
		Attributes:   map[string]interface{}{"player_status": "Unknown"},
	})
	require.NoError(t, err)

	got := calls()
	require.Len(t, got, 2)
	assert.Equal(t, "/api/states/media_player.living_room", got[0].path)
	assert.Equal(t, "unknown", got[0].body["state"])
	attrs := got[0].body["attributes"].(map[string]interface{})
	assert.Equal(t, "Living Room", attrs["friendly_name"])
	assert.Equal(t, "Unknown", attrs["player_status"])

	assert.Equal(t, "/api/states/remote.living_room", got[1].path)
	assert.Equal(t, "off", got[1].body["state"])
}

func TestPublishPlayerSkipsUnchanged(t *testing.T) {
	srv, calls := fakeHA(t, http.StatusOK)
	c := NewClient(srv.URL, "token123")

	state := PlayerState{
		ID:           "den",
		FriendlyName: "Den",
		MediaState:   "playing",
		On:           true,
		Attributes:   map[string]interface{}{"media_position": 10},
	}
	require.NoError(t, c.PublishPlayer(state))
	require.NoError(t, c.PublishPlayer(state))
	assert.Len(t, calls(), 2)

	// position moved, remote is still on
	state.Attributes = map[string]interface{}{"media_position": 20}
	require.NoError(t, c.PublishPlayer(state))

	got := calls()
	require.Len(t, got, 3)
	assert.Equal(t, "/api/states/media_player.den", got[2].path)
}

func TestPublishPlayerRetriesAfterFailure(t *testing.T) {
	srv, calls := fakeHA(t, http.StatusInternalServerError)
	c := NewClient(srv.URL, "token123")

	state := PlayerState{ID: "den", FriendlyName: "Den", MediaState: "off"}
	assert.Error(t, c.PublishPlayer(state))
	assert.Error(t, c.PublishPlayer(state))
	assert.Len(t, calls(), 2)
}
