package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"panasonic_bd/internal/bluray"
	"panasonic_bd/internal/coordinator"
	"panasonic_bd/internal/setup"
)

// quietPaths are polled by dashboards and shouldn't spam logs
var quietPaths = map[string]bool{
	"/api/players": true,
	"/healthz":     true,
}

// quietPrefixes are path prefixes that shouldn't spam logs
var quietPrefixes = []string{
	"/api/players/",
}

// ConditionalLogger is a middleware that skips logging for certain paths
func ConditionalLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check exact matches
		if quietPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		// Status polls are quiet, commands are not
		if r.Method == http.MethodGet {
			for _, prefix := range quietPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
		}
		middleware.Logger(next).ServeHTTP(w, r)
	})
}

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(ConditionalLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", handleHealth)

	// Player API
	r.Get("/api/players", handleGetPlayers)
	r.Route("/api/players/{id}", func(r chi.Router) {
		r.Get("/status", handleGetPlayerStatus)
		r.Post("/refresh", handleRefreshPlayer)
		r.Post("/command", handleSendCommand)
		r.Post("/commands", handleSendCommands)
		r.Post("/power/{state}", handlePower)
		r.Post("/media/{action}", handleMediaAction)
	})

	r.Get("/api/commands", handleGetCommands)
	r.Post("/api/setup/validate", handleSetupValidate)

	// WebSocket
	r.Get("/ws", handleWebSocket)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if wsHub != nil {
		clients = wsHub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"players":           len(listPlayers()),
		"mqtt":              mqttClient != nil && mqttClient.IsConnected(),
		"websocket_clients": clients,
	})
}

func getPlayerFromRequest(w http.ResponseWriter, r *http.Request) (*playerEntry, bool) {
	p, ok := getPlayer(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "Unknown player", http.StatusNotFound)
	}
	return p, ok
}

func handleGetPlayers(w http.ResponseWriter, r *http.Request) {
	type PlayerInfo struct {
		ID         string            `json:"id"`
		Name       string            `json:"name"`
		Host       string            `json:"host"`
		PlayerType bluray.PlayerType `json:"player_type"`
		State      string            `json:"state"`
		Available  bool              `json:"available"`
	}

	players := listPlayers()
	infos := make([]PlayerInfo, len(players))
	for i, p := range players {
		data := p.Coord.Data()
		infos[i] = PlayerInfo{
			ID:         p.ID,
			Name:       p.Name,
			Host:       p.Coord.API().Host(),
			PlayerType: p.Coord.API().PlayerType(),
			State:      coordinator.MediaState(data),
			Available:  data != nil && data.PlayerStatus != coordinator.StatusUnavailable,
		}
	}
	writeJSON(w, http.StatusOK, infos)
}

func handleGetPlayerStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := getPlayerFromRequest(w, r)
	if !ok {
		return
	}
	data := p.Coord.Data()
	if data == nil {
		http.Error(w, "No status yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func handleRefreshPlayer(w http.ResponseWriter, r *http.Request) {
	p, ok := getPlayerFromRequest(w, r)
	if !ok {
		return
	}
	data, err := p.Coord.Refresh(r.Context())
	if err != nil {
		log.Printf("Error refreshing %s: %v", p.ID, err)
		http.Error(w, "Failed to refresh player: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func handleSendCommand(w http.ResponseWriter, r *http.Request) {
	p, ok := getPlayerFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cmd := strings.ToUpper(strings.TrimSpace(req.Command))
	if !bluray.IsCommand(cmd) {
		http.Error(w, "Unknown command: "+cmd, http.StatusBadRequest)
		return
	}

	success := p.Coord.SendCommand(r.Context(), cmd)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": success, "command": cmd})
}

func handleSendCommands(w http.ResponseWriter, r *http.Request) {
	p, ok := getPlayerFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Commands []string `json:"commands"`
		Repeats  int      `json:"repeats"`
		DelayMS  *int     `json:"delay_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Commands) == 0 {
		http.Error(w, "No commands given", http.StatusBadRequest)
		return
	}
	delay := coordinator.DefaultCommandDelay
	if req.DelayMS != nil && *req.DelayMS >= 0 {
		delay = time.Duration(*req.DelayMS) * time.Millisecond
	}

	if err := p.Coord.SendCommands(r.Context(), req.Commands, req.Repeats, delay); err != nil {
		http.Error(w, "Command sequence interrupted: "+err.Error(), http.StatusRequestTimeout)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func handlePower(w http.ResponseWriter, r *http.Request) {
	p, ok := getPlayerFromRequest(w, r)
	if !ok {
		return
	}

	var success bool
	switch chi.URLParam(r, "state") {
	case "on":
		success = p.Coord.TurnOn(r.Context())
	case "off":
		success = p.Coord.TurnOff(r.Context())
	default:
		http.Error(w, "Power state must be on or off", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": success})
}

func handleMediaAction(w http.ResponseWriter, r *http.Request) {
	p, ok := getPlayerFromRequest(w, r)
	if !ok {
		return
	}

	var success bool
	switch chi.URLParam(r, "action") {
	case "play":
		success = p.Coord.Play(r.Context())
	case "pause":
		success = p.Coord.Pause(r.Context())
	case "stop":
		success = p.Coord.Stop(r.Context())
	case "next":
		success = p.Coord.Next(r.Context())
	case "previous":
		success = p.Coord.Previous(r.Context())
	default:
		http.Error(w, "Unknown media action", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": success})
}

func handleGetCommands(w http.ResponseWriter, r *http.Request) {
	type CommandInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	names := bluray.Commands()
	commands := make([]CommandInfo, len(names))
	for i, name := range names {
		commands[i] = CommandInfo{Name: name, Description: bluray.Describe(name)}
	}
	writeJSON(w, http.StatusOK, commands)
}

func handleSetupValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host      string `json:"host"`
		Name      string `json:"name"`
		PlayerKey string `json:"player_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Host) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "host_required"})
		return
	}

	info, err := setup.Validate(r.Context(), setup.Input{
		Host:      req.Host,
		Name:      req.Name,
		PlayerKey: req.PlayerKey,
		Port:      appConfig.PlayerPort,
		Timeout:   appConfig.Timeout,
		Logger:    logger,
	})
	switch {
	case errors.Is(err, bluray.ErrCannotConnect):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot_connect"})
		return
	case err != nil:
		log.Printf("Unexpected error validating %s: %v", req.Host, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "unknown"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if wsHub == nil {
		http.Error(w, "WebSocket not available", http.StatusServiceUnavailable)
		return
	}
	wsHub.ServeWS(w, r)
}
