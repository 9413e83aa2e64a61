package pipeline

import (
	"time"

	"github.com/featherwatch/featherwatch/internal/datastore"
)

// DetectionPayload is the JSON shape broadcast to live stream subscribers.
type DetectionPayload struct {
	EventID          string     `json:"event_id"`
	Camera           string     `json:"camera"`
	FrameTime        time.Time  `json:"frame_time"`
	Label            string     `json:"label"`
	Score            float64    `json:"score"`
	AudioSpecies     string     `json:"audio_species,omitempty"`
	AudioConfidence  float64    `json:"audio_confidence,omitempty"`
	AudioConfirmed   bool       `json:"audio_confirmed"`
	VideoLabel       string     `json:"video_label,omitempty"`
	VideoScore       float64    `json:"video_score,omitempty"`
	VideoStatus      string     `json:"video_status"`
	ScientificName   string     `json:"scientific_name,omitempty"`
	CommonName       string     `json:"common_name,omitempty"`
	Temperature      *float64   `json:"temperature,omitempty"`
	WeatherCondition string     `json:"weather_condition,omitempty"`
	NotifiedAt       *time.Time `json:"notified_at,omitempty"`
}

// NewDetectionPayload maps a stored detection to its broadcast shape. The
// top-level label and score reflect the best available source.
func NewDetectionPayload(d *datastore.Detection) DetectionPayload {
	return DetectionPayload{
		EventID:          d.EventID,
		Camera:           d.CameraName,
		FrameTime:        d.FrameTime,
		Label:            d.BestLabel(),
		Score:            d.BestScore(),
		AudioSpecies:     d.AudioSpecies,
		AudioConfidence:  d.AudioConfidence,
		AudioConfirmed:   d.AudioConfirmed,
		VideoLabel:       d.VideoLabel,
		VideoScore:       d.VideoScore,
		VideoStatus:      d.VideoStatus,
		ScientificName:   d.ScientificName,
		CommonName:       d.CommonName,
		Temperature:      d.Temperature,
		WeatherCondition: d.WeatherCondition,
		NotifiedAt:       d.NotifiedAt,
	}
}
