package bluray

import (
	"strings"
	"time"
)

const (
	// Endpoint is the CGI path every request is posted to
	Endpoint = "/WAN/dvdr/dvdr_ctrl.cgi"
	// UserAgent identifies us as the vendor's LAN remote
	UserAgent = "MEI-LAN-REMOTE-CALL"
	// PlayerKeyHeader carries the optional UHD player key
	PlayerKeyHeader = "X-Player-Key"

	DefaultPort    = 80
	DefaultTimeout = 5 * time.Second
)

// PlayerType is the best guess of the player firmware family.
// BD players answer the extended status query; UHD players are usually
// key-gated and only answer the basic one.
type PlayerType string

const (
	PlayerTypeAuto PlayerType = "auto"
	PlayerTypeBD   PlayerType = "bd"
	PlayerTypeUHD  PlayerType = "uhd"
)

// ParsePlayerType converts a config value into a PlayerType, defaulting to auto
func ParsePlayerType(s string) PlayerType {
	switch t := PlayerType(strings.ToLower(strings.TrimSpace(s))); t {
	case PlayerTypeBD, PlayerTypeUHD:
		return t
	default:
		return PlayerTypeAuto
	}
}

// State is the reconciled playback state
type State string

const (
	StateOff     State = "off"
	StateStandby State = "standby"
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateUnknown State = "unknown"
)

// Human-readable player status labels (OpenHAB compatible)
const (
	StatusPowerOff      = "Power Off"
	StatusTrayOpen      = "Tray Open"
	StatusStopped       = "Stopped"
	StatusPlayback      = "Playback"
	StatusPausePlayback = "Pause Playback"
	StatusUnknown       = "Unknown"
)

// PlayStatus is one playback snapshot built from the status queries
type PlayStatus struct {
	State          State  `json:"state"`
	StatusString   string `json:"status"`
	Position       int    `json:"position"`
	Duration       int    `json:"duration"`
	ChapterCurrent *int   `json:"chapter_current,omitempty"`
	ChapterTotal   *int   `json:"chapter_total,omitempty"`
}

// CommandResult is the outcome of a single remote command
type CommandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
