package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"panasonic_bd/internal/config"
	"panasonic_bd/internal/discovery"
	"panasonic_bd/internal/homeassistant"
	"panasonic_bd/internal/mqtt"
	"panasonic_bd/internal/websocket"
)

var haClient *homeassistant.Client
var mqttClient *mqtt.Client
var wsHub *websocket.Hub
var appConfig config.Config

// logger is handed to the player clients and coordinators
var logger = slog.Default()

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	appConfig = cfg

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize WebSocket hub
	wsHub = websocket.NewHub()
	wsHub.SetSnapshot(statusSnapshot)
	wsHub.SetCommandHandler(handleWSCommand(ctx))
	go wsHub.Run()
	log.Println("WebSocket hub started")

	// Initialize HA client
	if cfg.HomeAssistantToken != "" {
		haClient = homeassistant.NewClient(cfg.HomeAssistantURL, cfg.HomeAssistantToken)
		log.Printf("Home Assistant client initialized for %s", cfg.HomeAssistantURL)
	} else {
		log.Println("Info: HA_TOKEN not set, Home Assistant state mirroring disabled")
	}

	// Initialize MQTT bridge
	if cfg.MQTTHost != "" {
		mqttClient = mqtt.NewClient(mqtt.Config{
			Host:        cfg.MQTTHost,
			Port:        cfg.MQTTPort,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		})
		mqttClient.SetCommandHandler(handleMQTTCommand(ctx))

		go func() {
			if err := mqttClient.Connect(); err != nil {
				log.Printf("Warning: MQTT connection failed: %v", err)
			}
		}()
		log.Printf("MQTT client connecting to %s:%d", cfg.MQTTHost, cfg.MQTTPort)
	}

	// Initialize players
	if len(cfg.Players) == 0 {
		log.Println("Warning: No players configured. Set BD_PLAYERS, BD_PLAYERS_FILE or PANASONIC_BD_HOST.")
	}
	for _, pc := range cfg.Players {
		registerPlayer(startPlayer(ctx, cfg, pc))
	}

	// Advertise the API on the LAN
	var advertiser *discovery.Advertiser
	if cfg.MDNSEnabled {
		advertiser = discovery.NewAdvertiser(cfg.MDNSInterface)
		port, _ := strconv.Atoi(cfg.Port)
		var ids []string
		for _, p := range listPlayers() {
			ids = append(ids, p.ID)
		}
		if err := advertiser.Advertise(discovery.Info{Instance: cfg.MDNSName, Port: port, Players: ids}); err != nil {
			log.Printf("Warning: mDNS advertisement failed: %v", err)
		} else {
			log.Printf("Advertising %s as %q", discovery.ServiceType, cfg.MDNSName)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: HTTP shutdown: %v", err)
	}
	if advertiser != nil {
		advertiser.Stop()
	}
	closePlayers()
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
}
