// config.go: settings struct and loading for the featherwatch application.
package conf

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// MainSettings contains application-wide settings.
type MainSettings struct {
	Name     string // instance name, used as MQTT client id and notification title prefix
	Debug    bool   // true to enable debug logging
	LogLevel string // slog level: debug, info, warn, error
	LogFile  string // optional rotating log file, empty disables file logging
}

// ClassifierSettings controls the classification-decision filter.
type ClassifierSettings struct {
	MinConfidence    float64  // hard floor, results below are never accepted as-is
	Threshold        float64  // primary confidence threshold
	UnknownLabels    []string // labels rewritten to the unknown sentinel
	BlockedLabels    []string // labels rejected outright
	SublabelFallback bool     // rescue weak results with the upstream sublabel
}

// AudioSettings controls the audio correlation buffer.
type AudioSettings struct {
	Retention     time.Duration     // how long audio detections are kept in memory
	WindowSeconds float64           // default correlation window
	SensorMap     map[string]string // camera name -> sensor id, "*" matches any sensor
}

// VideoSettings controls the asynchronous video re-classification rendezvous.
type VideoSettings struct {
	WaitTimeout time.Duration // how long the notifier waits for a terminal video status
	StateTTL    time.Duration // eviction age for per-event video state
	MaxEntries  int           // entry-count ceiling for the state map
}

// BroadcastSettings controls the SSE fanout.
type BroadcastSettings struct {
	QueueSize         int // per-subscriber queue capacity
	OverflowThreshold int // consecutive overflows before a subscriber is evicted
}

// NotifySettings controls the push notification transport.
type NotifySettings struct {
	Enabled bool     // true to enable push notifications
	URLs    []string // shoutrrr service URLs
}

// MQTTSettings contains settings for the camera-backend event bus.
type MQTTSettings struct {
	Broker   string // MQTT broker (tcp://host:port)
	Topic    string // events topic to subscribe to
	Username string // MQTT username
	Password string // MQTT password
}

// WebServerSettings contains settings for the HTTP/SSE server.
type WebServerSettings struct {
	Enabled bool   // true to enable the web server
	Port    string // port to listen on
	Debug   bool   // true to enable HTTP request debug logging
}

// OutputSettings contains persistence settings.
type OutputSettings struct {
	SQLite struct {
		Path string // path to the SQLite database file
	}
}

// TaxonomySettings contains species-lookup enrichment settings.
type TaxonomySettings struct {
	Enabled  bool          // true to enable taxonomy enrichment
	Endpoint string        // lookup API base URL
	CacheTTL time.Duration // cache lifetime for resolved names
}

// WeatherSettings contains environmental-context enrichment settings.
type WeatherSettings struct {
	Enabled      bool          // true to enable weather enrichment
	Endpoint     string        // weather API base URL
	APIKey       string        // weather API key
	PollInterval time.Duration // minimum interval between fetches
}

// Settings is the root configuration for featherwatch.
type Settings struct {
	Main       MainSettings
	Classifier ClassifierSettings
	Audio      AudioSettings
	Video      VideoSettings
	Broadcast  BroadcastSettings
	Notify     NotifySettings
	MQTT       MQTTSettings
	WebServer  WebServerSettings
	Output     OutputSettings
	Taxonomy   TaxonomySettings
	Weather    WeatherSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings
// struct and stores it as the process-wide instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/featherwatch")
	viper.AddConfigPath("/etc/featherwatch")

	viper.SetEnvPrefix("featherwatch")
	viper.AutomaticEnv()

	// defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file is fine, defaults plus env vars apply
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// Setting returns the current settings instance
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
