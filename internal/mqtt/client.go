package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	Online  = "online"
	Offline = "offline"
)

// Command is a remote button request received over MQTT
type Command struct {
	Player   string // player ID taken from the topic
	Commands []string
	Repeats  int
}

// CommandHandler is called for every valid command message
type CommandHandler func(cmd Command)

// Client bridges player state to an MQTT broker
type Client struct {
	client  paho.Client
	prefix  string
	handler CommandHandler
	mu      sync.RWMutex
	// connected mirrors the paho callbacks
	connected bool
}

// Config holds MQTT connection settings
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	ClientID    string // random when empty
	TopicPrefix string
}

// NewClient creates a new MQTT client
func NewClient(cfg Config) *Client {
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "panasonic_bd"
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "panasonic-bd-" + uuid.NewString()[:8]
	}
	c := &Client{prefix: prefix}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetWill(c.BridgeTopic(), Offline, 1, true)

	opts.SetOnConnectHandler(func(client paho.Client) {
		log.Println("MQTT connected")
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		client.Publish(c.BridgeTopic(), 1, true, Online)
		c.subscribeToCommands()
	})

	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	})

	c.client = paho.NewClient(opts)
	return c
}

// Connect starts the MQTT connection
func (c *Client) Connect() error {
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect failed: %w", err)
	}
	return nil
}

// SetCommandHandler sets the callback for command messages
func (c *Client) SetCommandHandler(handler CommandHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Client) BridgeTopic() string { return c.prefix + "/bridge/availability" }

func (c *Client) StateTopic(player string) string { return c.prefix + "/" + player + "/state" }

func (c *Client) AvailabilityTopic(player string) string {
	return c.prefix + "/" + player + "/availability"
}

func (c *Client) commandFilter() string { return c.prefix + "/+/command" }

// PublishState publishes a retained JSON snapshot for a player
func (c *Client) PublishState(player string, state interface{}) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return c.publish(c.StateTopic(player), payload)
}

// PublishAvailability publishes online or offline for a player
func (c *Client) PublishAvailability(player string, available bool) error {
	status := Offline
	if available {
		status = Online
	}
	return c.publish(c.AvailabilityTopic(player), []byte(status))
}

func (c *Client) publish(topic string, payload []byte) error {
	if !c.IsConnected() {
		return nil
	}
	token := c.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// subscribeToCommands subscribes to the per-player command topics
func (c *Client) subscribeToCommands() {
	topic := c.commandFilter()
	token := c.client.Subscribe(topic, 1, c.handleCommandMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("Failed to subscribe to %s: %v", topic, err)
	} else {
		log.Printf("Subscribed to MQTT topic: %s", topic)
	}
}

// handleCommandMessage processes incoming command messages
func (c *Client) handleCommandMessage(client paho.Client, msg paho.Message) {
	player, ok := c.playerFromTopic(msg.Topic())
	if !ok {
		return
	}
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		log.Printf("MQTT: ignoring command for %s: %v", player, err)
		return
	}
	cmd.Player = player

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler != nil {
		handler(cmd)
	}
}

// playerFromTopic extracts the player ID from <prefix>/<player>/command
func (c *Client) playerFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, c.prefix+"/")
	if !ok {
		return "", false
	}
	player, ok := strings.CutSuffix(rest, "/command")
	if !ok || player == "" || strings.Contains(player, "/") {
		return "", false
	}
	return player, true
}

var errEmptyCommand = errors.New("empty command")

// ParseCommand accepts a bare button name, or JSON
// {"command": "POWER"} / {"commands": ["UP", "SELECT"], "repeats": 2}
func ParseCommand(payload []byte) (Command, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return Command{}, errEmptyCommand
	}
	if !strings.HasPrefix(text, "{") {
		return Command{Commands: []string{strings.ToUpper(text)}, Repeats: 1}, nil
	}

	var body struct {
		Command  string   `json:"command"`
		Commands []string `json:"commands"`
		Repeats  int      `json:"repeats"`
	}
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		return Command{}, fmt.Errorf("bad command payload: %w", err)
	}
	cmd := Command{Repeats: body.Repeats}
	if body.Command != "" {
		cmd.Commands = append(cmd.Commands, body.Command)
	}
	cmd.Commands = append(cmd.Commands, body.Commands...)
	for i := range cmd.Commands {
		cmd.Commands[i] = strings.ToUpper(strings.TrimSpace(cmd.Commands[i]))
	}
	if len(cmd.Commands) == 0 {
		return Command{}, errEmptyCommand
	}
	if cmd.Repeats <= 0 {
		cmd.Repeats = 1
	}
	return cmd, nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Disconnect marks the bridge offline and closes the MQTT connection
func (c *Client) Disconnect() {
	if c.IsConnected() {
		c.client.Publish(c.BridgeTopic(), 1, true, Offline).WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
}
