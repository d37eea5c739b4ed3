package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"panasonic_bd/internal/bluray"
	"panasonic_bd/internal/config"
	"panasonic_bd/internal/coordinator"
	"panasonic_bd/internal/homeassistant"
	"panasonic_bd/internal/mqtt"
	"panasonic_bd/internal/websocket"
)

// playerEntry is one configured player and its polling coordinator
type playerEntry struct {
	ID     string
	Name   string
	Coord  *coordinator.Coordinator
	closer func()
}

// playerRegistry holds the configured players keyed by slug
var playerRegistry = struct {
	sync.RWMutex
	byID map[string]*playerEntry
}{byID: make(map[string]*playerEntry)}

func registerPlayer(p *playerEntry) {
	playerRegistry.Lock()
	defer playerRegistry.Unlock()
	playerRegistry.byID[p.ID] = p
}

func getPlayer(id string) (*playerEntry, bool) {
	playerRegistry.RLock()
	defer playerRegistry.RUnlock()
	p, ok := playerRegistry.byID[strings.ToLower(id)]
	return p, ok
}

// listPlayers returns the players sorted by ID
func listPlayers() []*playerEntry {
	playerRegistry.RLock()
	defer playerRegistry.RUnlock()
	out := make([]*playerEntry, 0, len(playerRegistry.byID))
	for _, p := range playerRegistry.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func closePlayers() {
	for _, p := range listPlayers() {
		if p.closer != nil {
			p.closer()
		}
	}
}

// startPlayer builds the client and coordinator for a configured player and
// starts polling it in the background
func startPlayer(ctx context.Context, cfg config.Config, pc config.Player) *playerEntry {
	id := config.Slug(pc.Name)

	client := bluray.New(bluray.Config{
		Host:       pc.Host,
		PlayerKey:  pc.PlayerKey,
		Port:       cfg.PlayerPort,
		Timeout:    cfg.Timeout,
		PlayerType: pc.PlayerType,
		Logger:     logger,
	})
	coord := coordinator.New(client, pc.Name, coordinator.Options{
		Interval: cfg.ScanInterval,
		Logger:   logger,
	})
	entry := &playerEntry{ID: id, Name: pc.Name, Coord: coord, closer: client.Close}
	coord.OnUpdate(func(_ string, data coordinator.Data) {
		publishUpdate(entry, data)
	})

	go func() {
		if pc.PlayerType == "" || pc.PlayerType == bluray.PlayerTypeAuto {
			detectPlayerType(ctx, client, pc)
		}
		coord.Run(ctx)
	}()

	log.Printf("Panasonic player initialized: %s (%s)", pc.Name, pc.Host)
	return entry
}

// detectPlayerType probes an auto-typed player once before polling starts.
// Key-gated UHD players refuse the basic probe, so no connection test runs first.
func detectPlayerType(ctx context.Context, client *bluray.Client, pc config.Player) bluray.PlayerType {
	playerType, err := client.DetectPlayerType(ctx)
	if err != nil {
		log.Printf("Warning: Player %s (%s) type detection failed: %v", pc.Name, pc.Host, err)
		return playerType
	}
	log.Printf("Player %s (%s) detected as %s", pc.Name, pc.Host, playerType)
	if playerType == bluray.PlayerTypeUHD && pc.PlayerKey == "" {
		log.Printf("Warning: Player %s is a UHD player without a player key; some features may not work", pc.Name)
	}
	return playerType
}

// publishUpdate fans a new snapshot out to the websocket, MQTT and Home Assistant
func publishUpdate(p *playerEntry, data coordinator.Data) {
	if wsHub != nil {
		wsHub.BroadcastStatus(p.ID, data)
	}

	if mqttClient != nil {
		if err := mqttClient.PublishState(p.ID, data); err != nil {
			log.Printf("MQTT: Failed to publish state for %s: %v", p.ID, err)
		}
		available := data.PlayerStatus != coordinator.StatusUnavailable
		if err := mqttClient.PublishAvailability(p.ID, available); err != nil {
			log.Printf("MQTT: Failed to publish availability for %s: %v", p.ID, err)
		}
	}

	if haClient != nil {
		err := haClient.PublishPlayer(homeassistant.PlayerState{
			ID:           p.ID,
			FriendlyName: p.Name,
			MediaState:   coordinator.MediaState(&data),
			On:           coordinator.IsOn(&data),
			Attributes:   coordinator.Attributes(&data),
		})
		if err != nil {
			log.Printf("Home Assistant: Failed to publish %s: %v", p.ID, err)
		}
	}
}

// runCommands presses a button sequence on a player; a single command
// reports its own result
func runCommands(ctx context.Context, playerID string, commands []string, repeats int) (bool, error) {
	p, ok := getPlayer(playerID)
	if !ok {
		return false, fmt.Errorf("unknown player %q", playerID)
	}
	if len(commands) == 1 && repeats <= 1 {
		cmd := strings.ToUpper(strings.TrimSpace(commands[0]))
		if !bluray.IsCommand(cmd) {
			return false, fmt.Errorf("unknown command %q", cmd)
		}
		return p.Coord.SendCommand(ctx, cmd), nil
	}
	if err := p.Coord.SendCommands(ctx, commands, repeats, coordinator.DefaultCommandDelay); err != nil {
		return false, err
	}
	return true, nil
}

// handleMQTTCommand runs a command received over MQTT
func handleMQTTCommand(ctx context.Context) mqtt.CommandHandler {
	return func(cmd mqtt.Command) {
		go func() {
			ctx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if _, err := runCommands(ctx, cmd.Player, cmd.Commands, cmd.Repeats); err != nil {
				log.Printf("MQTT: Command for %s failed: %v", cmd.Player, err)
			}
		}()
	}
}

// handleWSCommand runs a command received over the websocket
func handleWSCommand(ctx context.Context) websocket.CommandHandler {
	return func(req websocket.CommandRequest) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		commands := req.Commands
		if req.Command != "" {
			commands = append([]string{req.Command}, commands...)
		}
		return runCommands(ctx, req.Player, commands, req.Repeats)
	}
}

// statusSnapshot greets new websocket clients with every known player state
func statusSnapshot() []websocket.StatusPayload {
	var out []websocket.StatusPayload
	for _, p := range listPlayers() {
		if d := p.Coord.Data(); d != nil {
			out = append(out, websocket.StatusPayload{Player: p.ID, Data: *d})
		}
	}
	return out
}
