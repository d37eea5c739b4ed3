package bluray

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	probeBasic    = "PST"
	probeExtended = "GET_STATUS"
)

// ErrCannotConnect is matched by every ConnectError
var ErrCannotConnect = errors.New("cannot connect to player")

// ConnectError reports an HTTP answer that means the endpoint is wrong or
// disabled (not a sleeping player). It is the only request fault that is
// returned to callers.
type ConnectError struct {
	StatusCode int
	Msg        string
}

func (e *ConnectError) Error() string {
	return e.Msg
}

func (e *ConnectError) Is(target error) bool {
	return target == ErrCannotConnect
}

// HTTPDoer is the subset of *http.Client the player client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the connection settings for one player
type Config struct {
	Host       string
	PlayerKey  string
	Port       int
	Timeout    time.Duration
	PlayerType PlayerType // optional hint, left alone by detection until proven
	Logger     *slog.Logger
	// HTTPClient overrides the lazily created session (tests)
	HTTPClient HTTPDoer
}

// Client talks to one Panasonic player over its CGI endpoint.
// All requests share one session and run one at a time.
type Client struct {
	host      string
	playerKey string
	port      int
	timeout   time.Duration
	logger    *slog.Logger
	override  HTTPDoer

	gate    chan struct{} // single slot, taken for the whole request
	session HTTPDoer

	mu         sync.RWMutex
	playerType PlayerType
}

// New creates a client. No network traffic happens until the first call.
func New(cfg Config) *Client {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	pt := cfg.PlayerType
	if pt == "" {
		pt = PlayerTypeAuto
	}
	return &Client{
		host:       cfg.Host,
		playerKey:  cfg.PlayerKey,
		port:       cfg.Port,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger.With(slog.String("player", cfg.Host)),
		override:   cfg.HTTPClient,
		gate:       make(chan struct{}, 1),
		playerType: pt,
	}
}

// Host returns the player address
func (c *Client) Host() string {
	return c.host
}

// PlayerType returns the current player type guess
func (c *Client) PlayerType() PlayerType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerType
}

// SetPlayerType overrides the guess, e.g. for a pre-configured deployment
func (c *Client) SetPlayerType(t PlayerType) {
	c.mu.Lock()
	c.playerType = t
	c.mu.Unlock()
}

// inferPlayerType sets t only while the type is still unknown
func (c *Client) inferPlayerType(t PlayerType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playerType == PlayerTypeAuto {
		c.playerType = t
	}
}

func (c *Client) url() string {
	return fmt.Sprintf("http://%s:%d%s", c.host, c.port, Endpoint)
}

// getSession returns the shared session, creating it when needed. Caller holds the gate.
func (c *Client) getSession() HTTPDoer {
	if c.session == nil {
		if c.override != nil {
			c.session = c.override
		} else {
			c.session = &http.Client{Timeout: c.timeout}
		}
	}
	return c.session
}

// Close drops the shared session; the next request opens a new one
func (c *Client) Close() {
	c.gate <- struct{}{}
	defer func() { <-c.gate }()

	if hc, ok := c.session.(*http.Client); ok {
		hc.CloseIdleConnections()
	}
	c.session = nil
}

// sendRequest posts a form body and classifies the reply. Transport and
// decode problems never surface as errors; only a ConnectError does.
func (c *Client) sendRequest(ctx context.Context, data string) (Reply, error) {
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		c.logger.Debug("Request abandoned before send", slog.Any("error", ctx.Err()))
		return Reply{Status: ReplyOff}, nil
	}
	defer func() { <-c.gate }()

	session := c.getSession()
	url := c.url()
	c.logger.Debug("Sending request", slog.String("url", url), slog.String("data", data))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(data))
	if err != nil {
		c.logger.Debug("Failed to build request", slog.Any("error", err))
		return Reply{Status: ReplyOff}, nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", UserAgent)
	if c.playerKey != "" {
		req.Header.Set(PlayerKeyHeader, c.playerKey)
	}

	resp, err := session.Do(req)
	if err != nil {
		c.logger.Debug("Connection error", slog.Any("error", err))
		return Reply{Status: ReplyOff}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Reply{}, &ConnectError{
			StatusCode: resp.StatusCode,
			Msg: "player returned 404: ensure it is on the same subnet " +
				"and Remote Device Operation is enabled",
		}
	}
	if resp.StatusCode != http.StatusOK {
		return Reply{}, &ConnectError{
			StatusCode: resp.StatusCode,
			Msg:        fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Debug("Failed to read response", slog.Any("error", err))
		return Reply{Status: ReplyOff}, nil
	}

	text, err := decodeBody(raw)
	if err != nil {
		c.logger.Debug("Failed to decode response", slog.Any("error", err))
		return Reply{Status: ReplyError}, nil
	}

	reply := ParseReply(text)
	c.logger.Debug("Response", slog.String("status", reply.Status.String()), slog.Any("fields", reply.Fields))
	return reply, nil
}

func (c *Client) probe(ctx context.Context, token string) (Reply, error) {
	return c.sendRequest(ctx, formCommand(token))
}

// TestConnection checks that the endpoint answers. An unreachable player
// still passes (it may just be asleep); an application error or a
// misconfigured endpoint does not.
func (c *Client) TestConnection(ctx context.Context) bool {
	reply, err := c.probe(ctx, probeBasic)
	if err != nil {
		c.logger.Debug("Connection test failed", slog.Any("error", err))
		return false
	}
	return reply.Status != ReplyError
}

// DetectPlayerType probes the player and records the detected type
func (c *Client) DetectPlayerType(ctx context.Context) (PlayerType, error) {
	c.logger.Debug("Detecting player type")

	reply, err := c.probe(ctx, probeExtended)
	if err != nil {
		return c.PlayerType(), err
	}
	if reply.Status == ReplyOK && len(reply.Fields) > 0 {
		c.SetPlayerType(PlayerTypeBD)
		c.logger.Debug("Detected BD player (extended status available)")
		return PlayerTypeBD, nil
	}

	// UHD firmware rejects the basic probe without a key
	reply, err = c.probe(ctx, probeBasic)
	if err != nil {
		return c.PlayerType(), err
	}
	switch reply.Status {
	case ReplyError:
		c.SetPlayerType(PlayerTypeUHD)
		c.logger.Debug("Detected UHD player (limited status, may need player key)")
	case ReplyOK:
		c.SetPlayerType(PlayerTypeBD)
		c.logger.Debug("Detected BD-compatible player")
	}
	return c.PlayerType(), nil
}

// SendCommand presses one remote button. Unknown buttons are rejected
// without touching the network.
func (c *Client) SendCommand(ctx context.Context, command string) (CommandResult, error) {
	command = strings.ToUpper(command)
	if !IsCommand(command) {
		c.logger.Warn("Unknown command requested", slog.String("command", command))
		return CommandResult{Error: "Unknown command: " + command}, nil
	}

	reply, err := c.probe(ctx, "RC_"+command)
	if err != nil {
		return CommandResult{Error: err.Error()}, err
	}

	switch reply.Status {
	case ReplyError:
		// a bare command being refused points at a key-gated UHD player
		c.inferPlayerType(PlayerTypeUHD)
		c.logger.Debug("Command failed (player returned error)", slog.String("command", command))
		return CommandResult{Error: "Command failed"}, nil
	case ReplyOff:
		c.logger.Debug("Command failed (device off or unreachable)", slog.String("command", command))
		return CommandResult{Error: "Device is off or unreachable"}, nil
	}

	c.inferPlayerType(PlayerTypeBD)
	c.logger.Debug("Command executed", slog.String("command", command))
	return CommandResult{Success: true}, nil
}
