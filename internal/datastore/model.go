// model.go defines the persisted data model for detections.
package datastore

import "time"

// Video classification status values stored on a Detection row.
const (
	VideoStatusNone       = "none"
	VideoStatusPending    = "pending"
	VideoStatusProcessing = "processing"
	VideoStatusCompleted  = "completed"
	VideoStatusFailed     = "failed"
)

// Detection is the canonical record for one physical sighting. There is at
// most one row per external event id; the stored score only ever increases
// for a given id.
type Detection struct {
	ID uint `gorm:"primaryKey"`

	// EventID is the externally-assigned idempotency key.
	EventID    string    `gorm:"uniqueIndex;not null"`
	CameraName string    `gorm:"index"`
	FrameTime  time.Time `gorm:"index"`

	// Current best classification.
	Label      string `gorm:"index"`
	Score      float64
	ClassIndex int
	Provenance string

	// Audio confirmation, populated when a buffered audio detection matched.
	AudioSpecies    string
	AudioConfidence float64
	AudioConfirmed  bool

	// Video re-classification sub-channel, authoritative for these fields.
	VideoLabel     string
	VideoScore     float64
	VideoStatus    string `gorm:"default:none"`
	VideoError     string
	VideoUpdatedAt *time.Time

	// Environmental context at capture time.
	Temperature      *float64
	WeatherCondition string

	// Taxonomy enrichment.
	ScientificName string
	CommonName     string
	TaxonomyID     string

	// NotifiedAt is null until a notification has been sent for this event.
	NotifiedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BestLabel returns the display label, preferring a completed video result.
func (d *Detection) BestLabel() string {
	if d.VideoStatus == VideoStatusCompleted && d.VideoLabel != "" {
		return d.VideoLabel
	}
	return d.Label
}

// BestScore returns the confidence that goes with BestLabel.
func (d *Detection) BestScore() float64 {
	if d.VideoStatus == VideoStatusCompleted && d.VideoLabel != "" {
		return d.VideoScore
	}
	return d.Score
}
