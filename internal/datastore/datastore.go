// Package datastore owns the canonical detection row and the race-safe
// conditional upsert that keeps it correct under duplicate and out-of-order
// events.
package datastore

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/featherwatch/featherwatch/internal/errors"
	"github.com/featherwatch/featherwatch/internal/logging"
)

// Interface is the persistence boundary used by the pipeline and the
// notification orchestrator.
type Interface interface {
	Open() error
	Close() error

	// UpsertIfHigherScore inserts the detection, or overwrites the existing
	// row for the same event id only when the new score is strictly greater
	// than the stored one. Returns true when a row was created or updated.
	UpsertIfHigherScore(ctx context.Context, d *Detection) (bool, error)

	// ApplyVideoResult overwrites the video-classification fields regardless
	// of score and re-derives the primary label/score and audio-confirmed
	// fields. Returns the updated row.
	ApplyVideoResult(ctx context.Context, eventID string, res VideoResult) (*Detection, error)

	// GetByEventID fetches the detection for an event id.
	GetByEventID(ctx context.Context, eventID string) (*Detection, error)

	// MarkNotified sets notified_at for the event if and only if it is still
	// null. Returns true exactly once per event id.
	MarkNotified(ctx context.Context, eventID string) (bool, error)

	// RecentDetections returns the most recent detections, newest first.
	RecentDetections(ctx context.Context, limit int) ([]Detection, error)
}

// VideoResult carries the outcome of a video re-classification job.
type VideoResult struct {
	Status string
	Label  string
	Score  float64
	Index  int
	Error  string
}

// DataStore implements Interface on top of GORM.
type DataStore struct {
	DB     *gorm.DB
	logger *slog.Logger
}

func newDataStore() DataStore {
	return DataStore{logger: logging.ForService("datastore")}
}

// upsertAssignments lists the columns overwritten when a higher-scoring
// classification replaces a stored one. Video fields and notified_at travel
// on their own channels and are preserved.
var upsertAssignments = []string{
	"camera_name",
	"frame_time",
	"label",
	"score",
	"class_index",
	"provenance",
	"audio_species",
	"audio_confidence",
	"audio_confirmed",
	"temperature",
	"weather_condition",
	"scientific_name",
	"common_name",
	"taxonomy_id",
	"updated_at",
}

// UpsertIfHigherScore is a single atomic statement: INSERT .. ON CONFLICT
// (event_id) DO UPDATE .. WHERE excluded.score > detections.score. Evaluating
// the predicate in the store avoids the read-then-write race where two
// concurrent classifications of the same event interleave and the lower
// score wins.
func (ds *DataStore) UpsertIfHigherScore(ctx context.Context, d *Detection) (bool, error) {
	if d.EventID == "" {
		return false, validationError("event id cannot be empty", "event_id", d.EventID)
	}

	now := time.Now()
	d.UpdatedAt = now
	if d.VideoStatus == "" {
		d.VideoStatus = VideoStatusNone
	}

	result := ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns(upsertAssignments),
		Where: clause.Where{
			Exprs: []clause.Expression{
				clause.Expr{SQL: "excluded.score > detections.score"},
			},
		},
	}).Create(d)

	if result.Error != nil {
		return false, dbError(result.Error, "upsert_detection", errors.PriorityHigh,
			"event_id", d.EventID,
			"label", d.Label,
			"score", d.Score)
	}

	changed := result.RowsAffected > 0
	ds.logger.Debug("detection upsert",
		"event_id", d.EventID,
		"label", d.Label,
		"score", d.Score,
		"changed", changed)

	return changed, nil
}

// ApplyVideoResult stores the video outcome for an event. The video fields
// are always overwritten, video results are authoritative for that
// sub-channel. On a completed result the primary label/score follow the same
// precedence as ingestion (higher score wins) and the already-stored audio
// species is re-checked against the new label, so a later video result can
// retroactively confirm an audio match the image classification missed.
func (ds *DataStore) ApplyVideoResult(ctx context.Context, eventID string, res VideoResult) (*Detection, error) {
	if eventID == "" {
		return nil, validationError("event id cannot be empty", "event_id", eventID)
	}

	var updated *Detection
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d Detection
		if err := tx.Where("event_id = ?", eventID).First(&d).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("detection", eventID)
			}
			return dbError(err, "load_detection_for_video", errors.PriorityMedium,
				"event_id", eventID)
		}

		now := time.Now()
		d.VideoLabel = res.Label
		d.VideoScore = res.Score
		d.VideoStatus = res.Status
		d.VideoError = res.Error
		d.VideoUpdatedAt = &now

		if res.Status == VideoStatusCompleted && res.Label != "" {
			if res.Score > d.Score {
				d.Label = res.Label
				d.Score = res.Score
				d.ClassIndex = res.Index
			}
			// Compare against the previously-recorded audio species, not a
			// fresh buffer scan: the relevant audio entry may have been
			// evicted since ingestion.
			if d.AudioSpecies != "" && strings.EqualFold(d.AudioSpecies, res.Label) {
				d.AudioConfirmed = true
			}
		}

		if err := tx.Save(&d).Error; err != nil {
			return dbError(err, "apply_video_result", errors.PriorityMedium,
				"event_id", eventID,
				"video_status", res.Status)
		}

		updated = &d
		return nil
	})
	if err != nil {
		return nil, err
	}

	ds.logger.Debug("video result applied",
		"event_id", eventID,
		"video_status", res.Status,
		"video_label", res.Label)

	return updated, nil
}

// GetByEventID fetches the canonical detection for an event id.
func (ds *DataStore) GetByEventID(ctx context.Context, eventID string) (*Detection, error) {
	var d Detection
	err := ds.DB.WithContext(ctx).Where("event_id = ?", eventID).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("detection", eventID)
		}
		return nil, dbError(err, "get_detection", errors.PriorityMedium,
			"event_id", eventID)
	}
	return &d, nil
}

// MarkNotified performs the at-most-once coordination write: the conditional
// predicate runs in the store, so a fast path and a slow path racing on the
// same event cannot both observe a null notified_at.
func (ds *DataStore) MarkNotified(ctx context.Context, eventID string) (bool, error) {
	result := ds.DB.WithContext(ctx).Model(&Detection{}).
		Where("event_id = ? AND notified_at IS NULL", eventID).
		Update("notified_at", time.Now())

	if result.Error != nil {
		return false, dbError(result.Error, "mark_notified", errors.PriorityHigh,
			"event_id", eventID)
	}

	return result.RowsAffected > 0, nil
}

// RecentDetections returns the most recent detections, newest first. Used by
// the streaming API's initial backfill and for diagnostics.
func (ds *DataStore) RecentDetections(ctx context.Context, limit int) ([]Detection, error) {
	var detections []Detection
	err := ds.DB.WithContext(ctx).
		Order("frame_time DESC").
		Limit(limit).
		Find(&detections).Error
	if err != nil {
		return nil, dbError(err, "recent_detections", errors.PriorityLow,
			"limit", limit)
	}
	return detections, nil
}

// performAutoMigration runs schema migration for the detection table.
func performAutoMigration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Detection{}); err != nil {
		return dbError(err, "auto_migrate", errors.PriorityCritical,
			"table", "detections")
	}
	return nil
}
