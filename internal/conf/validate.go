// conf/validate.go

package conf

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateClassifierSettings(&settings.Classifier); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateAudioSettings(&settings.Audio); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateVideoSettings(&settings.Video); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateBroadcastSettings(&settings.Broadcast); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateClassifierSettings(c *ClassifierSettings) error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("classifier minconfidence must be between 0.0 and 1.0, got %f", c.MinConfidence)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("classifier threshold must be between 0.0 and 1.0, got %f", c.Threshold)
	}
	return nil
}

func validateAudioSettings(a *AudioSettings) error {
	if a.Retention <= 0 {
		return fmt.Errorf("audio retention must be positive, got %v", a.Retention)
	}
	if a.WindowSeconds <= 0 {
		return fmt.Errorf("audio windowseconds must be positive, got %f", a.WindowSeconds)
	}
	return nil
}

func validateVideoSettings(v *VideoSettings) error {
	if v.StateTTL <= 0 {
		return fmt.Errorf("video statettl must be positive, got %v", v.StateTTL)
	}
	if v.MaxEntries <= 0 {
		return fmt.Errorf("video maxentries must be positive, got %d", v.MaxEntries)
	}
	return nil
}

func validateBroadcastSettings(b *BroadcastSettings) error {
	if b.QueueSize <= 0 {
		return fmt.Errorf("broadcast queuesize must be positive, got %d", b.QueueSize)
	}
	if b.OverflowThreshold <= 0 {
		return fmt.Errorf("broadcast overflowthreshold must be positive, got %d", b.OverflowThreshold)
	}
	return nil
}

func validateWebServerSettings(w *WebServerSettings) error {
	if !w.Enabled {
		return nil
	}
	port, err := strconv.Atoi(w.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("webserver port must be a number between 1 and 65535, got %q", w.Port)
	}
	return nil
}

func validateMQTTSettings(m *MQTTSettings) error {
	if m.Broker == "" {
		// Empty broker disables the event source entirely.
		return nil
	}
	if !strings.Contains(m.Broker, "://") {
		return fmt.Errorf("mqtt broker must include a scheme (tcp://host:port), got %q", m.Broker)
	}
	if m.Topic == "" {
		return fmt.Errorf("mqtt topic must not be empty")
	}
	return nil
}
