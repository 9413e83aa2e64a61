// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("main.name", "Featherwatch")
	viper.SetDefault("main.debug", false)
	viper.SetDefault("main.loglevel", "info")
	viper.SetDefault("main.logfile", "")

	viper.SetDefault("classifier.minconfidence", 0.4)
	viper.SetDefault("classifier.threshold", 0.7)
	viper.SetDefault("classifier.unknownlabels", []string{"background", "unknown"})
	viper.SetDefault("classifier.blockedlabels", []string{})
	viper.SetDefault("classifier.sublabelfallback", true)

	viper.SetDefault("audio.retention", 10*time.Minute)
	viper.SetDefault("audio.windowseconds", 10.0)
	viper.SetDefault("audio.sensormap", map[string]string{})

	viper.SetDefault("video.waittimeout", 30*time.Second)
	viper.SetDefault("video.statettl", 15*time.Minute)
	viper.SetDefault("video.maxentries", 1000)

	viper.SetDefault("broadcast.queuesize", 100)
	viper.SetDefault("broadcast.overflowthreshold", 5)

	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.urls", []string{})

	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "frigate/events")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8090")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("output.sqlite.path", "featherwatch.db")

	viper.SetDefault("taxonomy.enabled", false)
	viper.SetDefault("taxonomy.endpoint", "")
	viper.SetDefault("taxonomy.cachettl", 24*time.Hour)

	viper.SetDefault("weather.enabled", false)
	viper.SetDefault("weather.endpoint", "")
	viper.SetDefault("weather.apikey", "")
	viper.SetDefault("weather.pollinterval", 10*time.Minute)
}
