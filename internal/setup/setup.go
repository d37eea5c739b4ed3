// Package setup validates a player before it is added.
package setup

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"panasonic_bd/internal/bluray"
)

// DefaultName is used as the title when none is given
const DefaultName = "Panasonic Blu-ray"

// Input is what a user supplies to add a player
type Input struct {
	Host      string
	Name      string
	PlayerKey string
	Port      int
	Timeout   time.Duration
	Logger    *slog.Logger

	// HTTPClient is handed to the probing client (tests)
	HTTPClient bluray.HTTPDoer
}

// Info describes a validated player
type Info struct {
	Title      string            `json:"title"`
	PlayerType bluray.PlayerType `json:"player_type"`
	Warning    string            `json:"warning,omitempty"`
}

// Validate connects to the player, detects its type and returns a title for
// it. It fails with bluray.ErrCannotConnect when the endpoint does not answer
// sensibly.
func Validate(ctx context.Context, in Input) (Info, error) {
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := bluray.New(bluray.Config{
		Host:       strings.TrimSpace(in.Host),
		PlayerKey:  in.PlayerKey,
		Port:       in.Port,
		Timeout:    in.Timeout,
		Logger:     logger,
		HTTPClient: in.HTTPClient,
	})
	defer client.Close()

	if !client.TestConnection(ctx) {
		return Info{}, bluray.ErrCannotConnect
	}

	playerType, err := client.DetectPlayerType(ctx)
	if err != nil {
		return Info{}, err
	}

	info := Info{Title: strings.TrimSpace(in.Name), PlayerType: playerType}
	if info.Title == "" {
		info.Title = DefaultName
	}
	if playerType == bluray.PlayerTypeUHD && in.PlayerKey == "" {
		info.Warning = "UHD player detected without a player key; some features may not work"
		logger.Warn(info.Warning, slog.String("host", in.Host))
	}
	return info, nil
}
