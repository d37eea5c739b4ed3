package coordinator

import (
	"context"

	"panasonic_bd/internal/bluray"
)

// Media player states as a home automation host expects them
const (
	MediaOff     = "off"
	MediaIdle    = "idle"
	MediaPlaying = "playing"
	MediaPaused  = "paused"
)

var mediaStates = map[bluray.State]string{
	bluray.StateOff:     MediaOff,
	bluray.StateStandby: MediaOff,
	bluray.StateStopped: MediaIdle,
	bluray.StatePlaying: MediaPlaying,
	bluray.StatePaused:  MediaPaused,
}

// MediaState maps a player state to a media player state; "" means unknown
func MediaState(d *Data) string {
	if d == nil {
		return ""
	}
	return mediaStates[d.State]
}

// IsOn is the remote entity view: anything but off, standby or unknown
func IsOn(d *Data) bool {
	if d == nil {
		return false
	}
	switch d.State {
	case bluray.StateOff, bluray.StateStandby, bluray.StateUnknown:
		return false
	}
	return true
}

// Attributes returns the extra state attributes published next to the state
func Attributes(d *Data) map[string]interface{} {
	if d == nil {
		return map[string]interface{}{}
	}
	attrs := map[string]interface{}{
		"player_status": d.PlayerStatus,
		"player_type":   string(d.PlayerType),
	}
	if d.MediaPosition > 0 {
		attrs["media_position"] = d.MediaPosition
		if d.MediaPositionUpdatedAt != nil {
			attrs["media_position_updated_at"] = *d.MediaPositionUpdatedAt
		}
	}
	if d.MediaDuration > 0 {
		attrs["media_duration"] = d.MediaDuration
	}
	if d.ChapterCurrent != nil {
		attrs["chapter_current"] = *d.ChapterCurrent
		attrs["media_track"] = *d.ChapterCurrent
	}
	if d.ChapterTotal != nil {
		attrs["chapter_total"] = *d.ChapterTotal
	}
	return attrs
}

// TurnOn wakes the player unless it is already on
func (c *Coordinator) TurnOn(ctx context.Context) bool {
	switch MediaState(c.Data()) {
	case MediaOff, "":
		return c.SendCommand(ctx, "POWER")
	}
	return true
}

// TurnOff sends the player to standby unless it is already off
func (c *Coordinator) TurnOff(ctx context.Context) bool {
	if MediaState(c.Data()) == MediaOff {
		return true
	}
	return c.SendCommand(ctx, "POWER")
}

func (c *Coordinator) Play(ctx context.Context) bool     { return c.SendCommand(ctx, "PLAYBACK") }
func (c *Coordinator) Pause(ctx context.Context) bool    { return c.SendCommand(ctx, "PAUSE") }
func (c *Coordinator) Stop(ctx context.Context) bool     { return c.SendCommand(ctx, "STOP") }
func (c *Coordinator) Next(ctx context.Context) bool     { return c.SendCommand(ctx, "SKIPFWD") }
func (c *Coordinator) Previous(ctx context.Context) bool { return c.SendCommand(ctx, "SKIPREV") }
