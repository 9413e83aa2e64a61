package audiomatch

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/featherwatch/featherwatch/internal/errors"
)

// nativePayload is the preferred ingest format for audio detections.
type nativePayload struct {
	Species    string  `json:"species"`
	Confidence float64 `json:"confidence"`
	SensorID   string  `json:"sensor_id"`
	Timestamp  string  `json:"timestamp"`
}

// birdnetPayload matches the detection JSON published by BirdNET-style
// analyzers, kept for drop-in compatibility with existing audio stations.
type birdnetPayload struct {
	CommonName string  `json:"comName"`
	Score      float64 `json:"score"`
	SensorID   string  `json:"id"`
	BeginTime  string  `json:"BeginTime"`
}

// Normalize parses an audio detection payload in either supported wire format
// and returns the internal representation. Timestamps missing from the
// payload fall back to the received time.
func Normalize(payload []byte, received time.Time) (Detection, error) {
	var native nativePayload
	if err := json.Unmarshal(payload, &native); err != nil {
		return Detection{}, errors.New(err).
			Component("audiomatch").
			Category(errors.CategoryValidation).
			Context("operation", "normalize_audio").
			Build()
	}

	if native.Species != "" {
		ts, err := parseTimestamp(native.Timestamp, received)
		if err != nil {
			return Detection{}, err
		}
		return Detection{
			Timestamp:  ts,
			Species:    native.Species,
			Confidence: native.Confidence,
			Sensor:     native.SensorID,
			Raw:        payload,
		}, nil
	}

	var legacy birdnetPayload
	if err := json.Unmarshal(payload, &legacy); err != nil {
		return Detection{}, errors.New(err).
			Component("audiomatch").
			Category(errors.CategoryValidation).
			Context("operation", "normalize_audio").
			Build()
	}
	if legacy.CommonName == "" {
		return Detection{}, errors.Newf("audio payload has no species field").
			Component("audiomatch").
			Category(errors.CategoryValidation).
			Context("operation", "normalize_audio").
			Build()
	}

	ts, err := parseTimestamp(legacy.BeginTime, received)
	if err != nil {
		return Detection{}, err
	}
	return Detection{
		Timestamp:  ts,
		Species:    legacy.CommonName,
		Confidence: legacy.Score,
		Sensor:     legacy.SensorID,
		Raw:        payload,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(value string, received time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return received.UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.Newf("unparseable audio timestamp %q", value).
		Component("audiomatch").
		Category(errors.CategoryValidation).
		Context("operation", "parse_timestamp").
		Build()
}
