// Package config reads bridge settings from the environment, an optional
// .env file and an optional YAML player list.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"panasonic_bd/internal/bluray"
)

// Player is one configured player
type Player struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	PlayerKey  string            `yaml:"player_key"`
	PlayerType bluray.PlayerType `yaml:"player_type"`
}

// Config is the full bridge configuration
type Config struct {
	Port     string
	LogLevel slog.Level

	Players      []Player
	PlayerPort   int
	Timeout      time.Duration
	ScanInterval time.Duration

	// MQTT settings
	MQTTHost        string
	MQTTPort        int
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	// Home Assistant settings
	HomeAssistantURL   string
	HomeAssistantToken string

	// mDNS advertisement of the bridge API
	MDNSEnabled   bool
	MDNSName      string
	MDNSInterface string
}

// defaultPlayerName names the single-player shorthand entry
const defaultPlayerName = "Panasonic Blu-ray"

type playersFile struct {
	Players []Player `yaml:"players"`
}

// Load reads .env files if present, then the environment
func Load(envFiles ...string) (Config, error) {
	// Load .env file if present (for local dev)
	_ = godotenv.Load(envFiles...)

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           ParseLogLevel(getEnv("LOG_LEVEL", "info")),
		Players:            ParsePlayers(getEnv("BD_PLAYERS", "")),
		PlayerPort:         parseIntEnv("BD_PORT", bluray.DefaultPort),
		Timeout:            time.Duration(parseIntEnv("BD_TIMEOUT", 5)) * time.Second,
		ScanInterval:       time.Duration(parseIntEnv("BD_SCAN_INTERVAL", 10)) * time.Second,
		MQTTHost:           getEnv("MQTT_HOST", ""),
		MQTTPort:           parseIntEnv("MQTT_PORT", 1883),
		MQTTUsername:       getEnv("MQTT_USERNAME", ""),
		MQTTPassword:       getEnv("MQTT_PASSWORD", ""),
		MQTTTopicPrefix:    getEnv("MQTT_TOPIC_PREFIX", "panasonic_bd"),
		HomeAssistantURL:   getEnv("HA_URL", "http://homeassistant.local:8123"),
		HomeAssistantToken: getEnv("HA_TOKEN", ""),
		MDNSEnabled:        getEnv("MDNS_ENABLED", "false") == "true",
		MDNSName:           getEnv("MDNS_NAME", "Panasonic BD Bridge"),
		MDNSInterface:      getEnv("MDNS_INTERFACE", ""),
	}

	if path := getEnv("BD_PLAYERS_FILE", ""); path != "" {
		players, err := LoadPlayersFile(path)
		if err != nil {
			return cfg, err
		}
		cfg.Players = append(cfg.Players, players...)
	}

	// single-player shorthand
	if host := getEnv("PANASONIC_BD_HOST", ""); host != "" && len(cfg.Players) == 0 {
		cfg.Players = []Player{{
			Name:      defaultPlayerName,
			Host:      host,
			PlayerKey: getEnv("PANASONIC_BD_PLAYER_KEY", ""),
		}}
	}

	if err := validatePlayers(cfg.Players); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadPlayersFile reads a YAML document of the form
//
//	players:
//	  - name: Living Room
//	    host: 192.168.1.50
//	    player_key: abc
func LoadPlayersFile(path string) ([]Player, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read players file: %w", err)
	}
	var f playersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse players file %s: %w", path, err)
	}
	for i := range f.Players {
		p := &f.Players[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Host = strings.TrimSpace(p.Host)
		if p.Name == "" {
			p.Name = p.Host
		}
		if p.PlayerType != "" {
			p.PlayerType = bluray.ParsePlayerType(string(p.PlayerType))
		}
	}
	return f.Players, nil
}

// ParsePlayers parses BD_PLAYERS env var format: "name:host:key,name2:host2"
func ParsePlayers(s string) []Player {
	if s == "" {
		return nil
	}
	var players []Player
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		// entries missing a host are kept so Load reports them
		parts := strings.SplitN(entry, ":", 3)
		p := Player{Name: strings.TrimSpace(parts[0])}
		if len(parts) >= 2 {
			p.Host = strings.TrimSpace(parts[1])
		}
		if len(parts) == 3 {
			p.PlayerKey = strings.TrimSpace(parts[2])
		}
		if p.Name == "" {
			p.Name = p.Host
		}
		players = append(players, p)
	}
	return players
}

func validatePlayers(players []Player) error {
	seen := make(map[string]bool)
	for _, p := range players {
		if p.Host == "" {
			return fmt.Errorf("player %q has no host", p.Name)
		}
		id := Slug(p.Name)
		if seen[id] {
			return fmt.Errorf("duplicate player name %q", p.Name)
		}
		seen[id] = true
	}
	return nil
}

// Slug turns a display name into an identifier usable in topics and entity IDs
func Slug(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case !underscore && b.Len() > 0:
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// ParseLogLevel maps a level name to a slog level, defaulting to info
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}
