package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    Command
	}{
		{"power", Command{Commands: []string{"POWER"}, Repeats: 1}},
		{"  STOP\n", Command{Commands: []string{"STOP"}, Repeats: 1}},
		{`{"command":"pause"}`, Command{Commands: []string{"PAUSE"}, Repeats: 1}},
		{`{"commands":["up","select"],"repeats":3}`, Command{Commands: []string{"UP", "SELECT"}, Repeats: 3}},
		{`{"command":"menu","commands":["down"],"repeats":-1}`, Command{Commands: []string{"MENU", "DOWN"}, Repeats: 1}},
	}
	for _, tt := range tests {
		got, err := ParseCommand([]byte(tt.payload))
		require.NoError(t, err, tt.payload)
		assert.Equal(t, tt.want, got, tt.payload)
	}

	for _, bad := range []string{"", "   ", `{"repeats":2}`, `{"command":`} {
		_, err := ParseCommand([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestTopics(t *testing.T) {
	c := NewClient(Config{Host: "localhost", Port: 1883, TopicPrefix: "/home/bd/"})
	assert.Equal(t, "home/bd/living_room/state", c.StateTopic("living_room"))
	assert.Equal(t, "home/bd/living_room/availability", c.AvailabilityTopic("living_room"))
	assert.Equal(t, "home/bd/bridge/availability", c.BridgeTopic())
	assert.Equal(t, "home/bd/+/command", c.commandFilter())

	c = NewClient(Config{Host: "localhost", Port: 1883})
	assert.Equal(t, "panasonic_bd/den/state", c.StateTopic("den"))
}

func TestPlayerFromTopic(t *testing.T) {
	c := NewClient(Config{Host: "localhost", Port: 1883})

	player, ok := c.playerFromTopic("panasonic_bd/living_room/command")
	assert.True(t, ok)
	assert.Equal(t, "living_room", player)

	for _, topic := range []string{
		"panasonic_bd//command",
		"panasonic_bd/a/b/command",
		"other/living_room/command",
		"panasonic_bd/living_room/state",
	} {
		_, ok := c.playerFromTopic(topic)
		assert.False(t, ok, topic)
	}
}

func TestHandleCommandMessage(t *testing.T) {
	c := NewClient(Config{Host: "localhost", Port: 1883})
	var got []Command
	c.SetCommandHandler(func(cmd Command) { got = append(got, cmd) })

	c.handleCommandMessage(nil, fakeMessage{topic: "panasonic_bd/den/command", payload: []byte("skipfwd")})
	c.handleCommandMessage(nil, fakeMessage{topic: "panasonic_bd/den/command", payload: []byte("")})
	c.handleCommandMessage(nil, fakeMessage{topic: "elsewhere/den/command", payload: []byte("POWER")})

	require.Len(t, got, 1)
	assert.Equal(t, Command{Player: "den", Commands: []string{"SKIPFWD"}, Repeats: 1}, got[0])
}

func TestPublishWhileDisconnectedIsNoop(t *testing.T) {
	c := NewClient(Config{Host: "localhost", Port: 1883})
	assert.False(t, c.IsConnected())
	assert.NoError(t, c.PublishState("den", map[string]string{"state": "off"}))
	assert.NoError(t, c.PublishAvailability("den", true))
	assert.Error(t, c.PublishState("den", make(chan int)))
}
