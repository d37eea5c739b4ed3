package homeassistant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
)

// Client mirrors player states into Home Assistant over its REST API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	mu      sync.Mutex
	written map[string]entityState // last state accepted per entity
}

type entityState struct {
	state      string
	attributes map[string]interface{}
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		written: make(map[string]entityState),
	}
}

// setIfChanged writes an entity unless Home Assistant already holds the same state
func (c *Client) setIfChanged(entityID, state string, attributes map[string]interface{}) error {
	next := entityState{state: state, attributes: attributes}

	c.mu.Lock()
	prev, ok := c.written[entityID]
	c.mu.Unlock()
	if ok && prev.state == next.state && cmp.Equal(prev.attributes, next.attributes) {
		return nil
	}

	if err := c.SetState(entityID, state, attributes); err != nil {
		return err
	}
	c.mu.Lock()
	c.written[entityID] = next
	c.mu.Unlock()
	return nil
}

// SetState creates or updates an entity state
func (c *Client) SetState(entityID, state string, attributes map[string]interface{}) error {
	url := fmt.Sprintf("%s/api/states/%s", c.baseURL, entityID)

	body, err := json.Marshal(map[string]interface{}{
		"state":      state,
		"attributes": attributes,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HA set state failed %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// PlayerState is what gets mirrored for one player
type PlayerState struct {
	ID           string // slug used in entity IDs
	FriendlyName string
	MediaState   string // off, idle, playing, paused; empty is unknown
	On           bool
	Attributes   map[string]interface{}
}

// PublishPlayer mirrors a player as a media_player and a remote entity.
// Entities whose state and attributes are unchanged since the last
// successful write are skipped.
func (c *Client) PublishPlayer(p PlayerState) error {
	attrs := make(map[string]interface{}, len(p.Attributes)+1)
	for k, v := range p.Attributes {
		attrs[k] = v
	}
	attrs["friendly_name"] = p.FriendlyName

	mediaState := p.MediaState
	if mediaState == "" {
		mediaState = "unknown"
	}
	if err := c.setIfChanged("media_player."+p.ID, mediaState, attrs); err != nil {
		return err
	}

	remoteState := "off"
	if p.On {
		remoteState = "on"
	}
	return c.setIfChanged("remote."+p.ID, remoteState, map[string]interface{}{
		"friendly_name": p.FriendlyName,
	})
}
