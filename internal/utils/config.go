package utils

import (
	"time"

	"github.com/opencanopy/living-forest/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Storage struct {
		TreesFile string `yaml:"trees_file"` // Path of the durable slot file holding the tree collection
		SlotKey   string `yaml:"slot_key"`   // Key name the slot is known by in change signals
	} `yaml:"storage"`

	MQTT struct {
		Enabled       bool   `yaml:"enabled"`        // Enable/disable the cross-context broadcast channel
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate; empty connects without TLS
		Topic         string `yaml:"topic"`          // Topic change signals are broadcast on
		QOS           int    `yaml:"qos"`            // MQTT QoS level for change signals
	} `yaml:"mqtt"`

	Sync struct {
		Debounce time.Duration `yaml:"debounce"` // Minimum gap between slot-file-event reloads
		Workers  int           `yaml:"workers"`  // Worker pool size for signal-driven reloads
	} `yaml:"sync"`

	Geocoder struct {
		MapsAPIKey        string `yaml:"maps_api_key"`    // Google Maps API key; empty disables geocoding
		SensorBased       bool   `yaml:"sensor_based"`    // Fall back to a GPS sensor when geocoding fails
		GPSDevicePort     string `yaml:"gps_device_port"` // UNIX port where the GPS sensor is mounted
		GPSDeviceBaudRate int    `yaml:"gps_baud_rate"`   // Baud rate for the GPS sensor
	} `yaml:"geocoder"`

	Relay struct {
		Addr                  string  `yaml:"addr"`                    // HTTP listen address
		EmbedAPIKey           string  `yaml:"embed_api_key"`           // Key for the embeddable-map URL; empty uses the plain query URL
		DefaultViewportWidth  float64 `yaml:"default_viewport_width"`  // Fallback width when the caller reports zero
		DefaultViewportHeight float64 `yaml:"default_viewport_height"` // Fallback height when the caller reports zero
	} `yaml:"relay"`
}

// LoadConfig loads the YAML configuration from the specified file and fills
// in defaults for anything the file leaves out.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	if config.Storage.TreesFile == "" {
		config.Storage.TreesFile = "data/uploadedTrees.json"
	}
	if config.Storage.SlotKey == "" {
		config.Storage.SlotKey = "uploadedTrees"
	}
	if config.MQTT.Topic == "" {
		config.MQTT.Topic = "forest/treesUpdated"
	}
	if config.Sync.Debounce == 0 {
		config.Sync.Debounce = 200 * time.Millisecond
	}
	if config.Sync.Workers == 0 {
		config.Sync.Workers = 2
	}
	if config.Relay.Addr == "" {
		config.Relay.Addr = ":8787"
	}
	if config.Relay.DefaultViewportWidth == 0 {
		config.Relay.DefaultViewportWidth = 1280
	}
	if config.Relay.DefaultViewportHeight == 0 {
		config.Relay.DefaultViewportHeight = 720
	}

	return &config, nil
}
