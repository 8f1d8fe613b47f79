package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencanopy/living-forest/internal/service_registry"
	"github.com/opencanopy/living-forest/internal/services"
	"github.com/opencanopy/living-forest/internal/store"
	"github.com/opencanopy/living-forest/internal/utils"
	"github.com/opencanopy/living-forest/pkg/file"
	"github.com/opencanopy/living-forest/pkg/groq"
	"github.com/opencanopy/living-forest/pkg/location"
	"github.com/opencanopy/living-forest/pkg/mqtt"
)

func main() {
	// Set up structured logging with JSON output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Each running context gets its own identity so broadcasts can be told apart
	contextID := uuid.New().String()

	// Initialize the shared MQTT connection for the change-signal channel
	var mqttClient mqtt.MQTTClient
	if config.MQTT.Enabled {
		clientID := config.MQTT.ClientID + "-" + contextID
		logger.Info().Str("client_id", clientID).Msg("Connecting to MQTT broker")

		service := mqtt.NewMqttService(fileClient)
		if err := service.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		mqttClient = service
		defer service.Disconnect(250)
	}

	treeStore := store.NewTreeStore(
		config.Storage.TreesFile,
		config.Storage.SlotKey,
		config.MQTT.Topic,
		config.MQTT.QOS,
		contextID,
		fileClient,
		mqttClient,
		logger,
	)
	treeStore.Load()

	// Coordinate resolution: geocoder when a key is configured, GPS sensor
	// on field devices; both optional, both non-fatal on failure
	var geocoder location.Geocoder
	if config.Geocoder.MapsAPIKey != "" {
		g, err := location.NewGoogleGeocoder(config.Geocoder.MapsAPIKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize geocoder")
		}
		geocoder = g
	}
	var sensor location.FixReader
	if config.Geocoder.SensorBased {
		sensor = location.NewDeviceSensorProvider(config.Geocoder.GPSDevicePort, config.Geocoder.GPSDeviceBaudRate)
	}
	resolver := location.NewResolver(geocoder, sensor, logger)

	syncService := services.NewSyncService(
		config.MQTT.Topic,
		config.MQTT.QOS,
		contextID,
		config.Sync.Debounce,
		config.Sync.Workers,
		treeStore,
		fileClient,
		mqttClient,
		logger,
	)

	relayService := services.NewRelayService(
		config.Relay.Addr,
		os.Getenv("GROQ_API_KEY"),
		config.Relay.EmbedAPIKey,
		config.Relay.DefaultViewportWidth,
		config.Relay.DefaultViewportHeight,
		groq.NewClient(),
		treeStore,
		resolver,
		logger,
	)

	registry := service_registry.NewServiceRegistry(logger)
	registry.RegisterService("sync", syncService)
	registry.RegisterService("relay", relayService)

	if err := registry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := registry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Some services failed to stop cleanly")
	}
}
