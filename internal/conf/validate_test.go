package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Main.Name = "featherwatch"
	s.Classifier.MinConfidence = 0.4
	s.Classifier.Threshold = 0.7
	s.Audio.Retention = 10 * time.Minute
	s.Audio.WindowSeconds = 10
	s.Video.WaitTimeout = 30 * time.Second
	s.Video.StateTTL = 15 * time.Minute
	s.Video.MaxEntries = 1000
	s.Broadcast.QueueSize = 100
	s.Broadcast.OverflowThreshold = 5
	s.MQTT.Broker = "tcp://localhost:1883"
	s.MQTT.Topic = "frigate/events"
	s.WebServer.Enabled = true
	s.WebServer.Port = "8090"
	return s
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"threshold above one", func(s *Settings) { s.Classifier.Threshold = 1.5 }},
		{"negative minconfidence", func(s *Settings) { s.Classifier.MinConfidence = -0.1 }},
		{"zero audio retention", func(s *Settings) { s.Audio.Retention = 0 }},
		{"zero correlation window", func(s *Settings) { s.Audio.WindowSeconds = 0 }},
		{"zero video ttl", func(s *Settings) { s.Video.StateTTL = 0 }},
		{"zero waiter capacity", func(s *Settings) { s.Video.MaxEntries = 0 }},
		{"zero queue size", func(s *Settings) { s.Broadcast.QueueSize = 0 }},
		{"zero overflow threshold", func(s *Settings) { s.Broadcast.OverflowThreshold = 0 }},
		{"broker without scheme", func(s *Settings) { s.MQTT.Broker = "localhost:1883" }},
		{"broker with empty topic", func(s *Settings) { s.MQTT.Topic = "" }},
		{"enabled webserver with bad port", func(s *Settings) { s.WebServer.Port = "http" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			require.Error(t, err)

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestValidateSettingsEmptyBrokerDisablesEventSource(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.MQTT.Broker = ""
	s.MQTT.Topic = ""
	assert.NoError(t, ValidateSettings(s))
}

func TestValidateSettingsDisabledWebServerSkipsPortCheck(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.WebServer.Enabled = false
	s.WebServer.Port = "not-a-port"
	assert.NoError(t, ValidateSettings(s))
}
