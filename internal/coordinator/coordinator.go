// Package coordinator polls a player on a fixed cadence, caches the last
// snapshot and fans it out to listeners. Commands go through it so that a
// successful command triggers a prompt refresh.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"panasonic_bd/internal/bluray"
)

const (
	DefaultInterval             = 10 * time.Second
	DefaultMinForcedRefresh     = time.Second
	DefaultMaxConsecutiveErrors = 3
	DefaultCommandDelay         = 400 * time.Millisecond

	// StatusUnavailable is published when polling fails after a good snapshot
	StatusUnavailable = "Unavailable"
)

// ErrUpdateFailed wraps a poll failure when there is no previous snapshot to fall back on
var ErrUpdateFailed = errors.New("error communicating with device")

// PlayerAPI is the slice of the player client the coordinator drives
type PlayerAPI interface {
	Host() string
	PlayerType() bluray.PlayerType
	GetPlayStatus(ctx context.Context) (bluray.PlayStatus, error)
	SendCommand(ctx context.Context, command string) (bluray.CommandResult, error)
}

// Data is the published player state
type Data struct {
	State                  bluray.State      `json:"state"`
	PlayerStatus           string            `json:"player_status"`
	MediaPosition          int               `json:"media_position"`
	MediaPositionUpdatedAt *time.Time        `json:"media_position_updated_at,omitempty"`
	MediaDuration          int               `json:"media_duration"`
	ChapterCurrent         *int              `json:"chapter_current,omitempty"`
	ChapterTotal           *int              `json:"chapter_total,omitempty"`
	PlayerType             bluray.PlayerType `json:"player_type"`
}

// Listener is called with a copy of every new snapshot
type Listener func(name string, data Data)

// Options tunes polling; zero values take the defaults
type Options struct {
	Interval             time.Duration
	MinForcedRefresh     time.Duration
	MaxConsecutiveErrors int
	Logger               *slog.Logger
}

// Coordinator owns the polling loop for one player
type Coordinator struct {
	api  PlayerAPI
	name string
	opts Options
	log  *slog.Logger
	now  func() time.Time

	refreshMu sync.Mutex // one poll at a time

	mu                sync.RWMutex
	data              *Data
	consecutiveErrors int
	lastRefresh       time.Time
	pending           *time.Timer
	listeners         []Listener
}

// New creates a coordinator for api, identified by name
func New(api PlayerAPI, name string, opts Options) *Coordinator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MinForcedRefresh <= 0 {
		opts.MinForcedRefresh = DefaultMinForcedRefresh
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		api:  api,
		name: name,
		opts: opts,
		log:  opts.Logger.With(slog.String("device", name)),
		now:  time.Now,
	}
}

// Name returns the device name
func (c *Coordinator) Name() string {
	return c.name
}

// API returns the underlying player client
func (c *Coordinator) API() PlayerAPI {
	return c.api
}

// Data returns a copy of the last snapshot, or nil before the first successful poll
func (c *Coordinator) Data() *Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil {
		return nil
	}
	d := *c.data
	return &d
}

// OnUpdate registers a listener for new snapshots
func (c *Coordinator) OnUpdate(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Run polls until ctx is done
func (c *Coordinator) Run(ctx context.Context) {
	if _, err := c.Refresh(ctx); err != nil {
		c.log.Warn("Initial refresh failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.pending != nil {
				c.pending.Stop()
				c.pending = nil
			}
			c.mu.Unlock()
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}

// Refresh polls the player once and publishes the result
func (c *Coordinator) Refresh(ctx context.Context) (*Data, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	status, err := c.api.GetPlayStatus(ctx)
	if ctx.Err() != nil {
		// a cancelled poll reads as "off"; don't publish it
		return nil, ctx.Err()
	}
	now := c.now()

	c.mu.Lock()
	c.lastRefresh = now
	if err != nil {
		c.consecutiveErrors++
		c.logFailure(c.consecutiveErrors, err)
		if c.data == nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrUpdateFailed, err)
		}
		// keep the entity around but show it as unavailable
		c.data = &Data{
			State:        bluray.StateOff,
			PlayerStatus: StatusUnavailable,
			PlayerType:   c.api.PlayerType(),
		}
	} else {
		c.consecutiveErrors = 0
		c.data = &Data{
			State:                  status.State,
			PlayerStatus:           status.StatusString,
			MediaPosition:          status.Position,
			MediaPositionUpdatedAt: &now,
			MediaDuration:          status.Duration,
			ChapterCurrent:         status.ChapterCurrent,
			ChapterTotal:           status.ChapterTotal,
			PlayerType:             c.api.PlayerType(),
		}
	}
	data := *c.data
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(c.name, data)
	}
	return &data, nil
}

// logFailure warns for the first few consecutive failures, then goes quiet
func (c *Coordinator) logFailure(n int, err error) {
	limit := c.opts.MaxConsecutiveErrors
	switch {
	case n <= limit:
		c.log.Warn(fmt.Sprintf("Error communicating with %s (%d/%d)", c.name, n, limit), slog.Any("error", err))
	case n == limit+1:
		c.log.Error(fmt.Sprintf("Repeated errors communicating with %s, suppressing further warnings until resolved", c.name))
	}
}

// ConsecutiveErrors returns the current failure streak
func (c *Coordinator) ConsecutiveErrors() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.consecutiveErrors
}

// RequestRefresh refreshes now, or once at the end of the cool-down window
// if a refresh happened very recently.
func (c *Coordinator) RequestRefresh(ctx context.Context) {
	c.mu.Lock()
	wait := c.opts.MinForcedRefresh - c.now().Sub(c.lastRefresh)
	if wait > 0 {
		if c.pending == nil {
			// the caller's context may be a finished HTTP request
			bg := context.WithoutCancel(ctx)
			c.pending = time.AfterFunc(wait, func() {
				c.mu.Lock()
				c.pending = nil
				c.mu.Unlock()
				c.Refresh(bg)
			})
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.Refresh(ctx)
}

// SendCommand sends one command and refreshes on success
func (c *Coordinator) SendCommand(ctx context.Context, command string) bool {
	result, err := c.api.SendCommand(ctx, command)
	if err != nil {
		c.log.Warn("Command failed", slog.String("command", command), slog.Any("error", err))
		return false
	}
	if result.Success {
		c.RequestRefresh(ctx)
	}
	return result.Success
}

// SendCommands sends a button sequence repeats times with delay between
// presses. Unknown buttons are skipped; one refresh follows the sequence.
func (c *Coordinator) SendCommands(ctx context.Context, commands []string, repeats int, delay time.Duration) error {
	if repeats <= 0 {
		repeats = 1
	}
	defer c.RequestRefresh(context.WithoutCancel(ctx))

	for i := 0; i < repeats; i++ {
		for _, cmd := range commands {
			cmd = strings.ToUpper(cmd)
			if !bluray.IsCommand(cmd) {
				c.log.Warn("Unknown command, skipping", slog.String("command", cmd))
				continue
			}

			c.log.Debug("Sending command", slog.String("command", cmd))
			result, err := c.api.SendCommand(ctx, cmd)
			switch {
			case err != nil:
				c.log.Warn("Command failed", slog.String("command", cmd), slog.Any("error", err))
			case !result.Success:
				msg := result.Error
				if msg == "" {
					msg = "Unknown error"
				}
				c.log.Warn("Command failed", slog.String("command", cmd), slog.String("error", msg))
			}

			if delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
		}
	}
	return nil
}
