package datastore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherwatch/featherwatch/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleDetection(eventID string, score float64) *Detection {
	return &Detection{
		EventID:    eventID,
		CameraName: "backyard",
		FrameTime:  time.Now().UTC(),
		Label:      "Blue Jay",
		Score:      score,
		Provenance: "model",
	}
}

func TestUpsertInsertsNewDetection(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	changed, err := store.UpsertIfHigherScore(ctx, sampleDetection("ev1", 0.8))
	require.NoError(t, err)
	assert.True(t, changed)

	d, err := store.GetByEventID(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, "Blue Jay", d.Label)
	assert.InDelta(t, 0.8, d.Score, 1e-9)
	assert.Equal(t, VideoStatusNone, d.VideoStatus)
}

func TestUpsertKeepsHighestScore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertIfHigherScore(ctx, sampleDetection("ev1", 0.8))
	require.NoError(t, err)

	// Lower score leaves the row untouched.
	lower := sampleDetection("ev1", 0.6)
	lower.Label = "House Finch"
	changed, err := store.UpsertIfHigherScore(ctx, lower)
	require.NoError(t, err)
	assert.False(t, changed)

	d, err := store.GetByEventID(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, "Blue Jay", d.Label)
	assert.InDelta(t, 0.8, d.Score, 1e-9)

	// Equal score is not an improvement either.
	changed, err = store.UpsertIfHigherScore(ctx, sampleDetection("ev1", 0.8))
	require.NoError(t, err)
	assert.False(t, changed)

	// Strictly higher score replaces the classification fields.
	higher := sampleDetection("ev1", 0.95)
	higher.Label = "Steller's Jay"
	changed, err = store.UpsertIfHigherScore(ctx, higher)
	require.NoError(t, err)
	assert.True(t, changed)

	d, err = store.GetByEventID(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, "Steller's Jay", d.Label)
	assert.InDelta(t, 0.95, d.Score, 1e-9)
}

func TestUpsertPreservesVideoAndNotifiedFields(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertIfHigherScore(ctx, sampleDetection("ev1", 0.5))
	require.NoError(t, err)

	_, err = store.ApplyVideoResult(ctx, "ev1", VideoResult{
		Status: VideoStatusCompleted, Label: "Blue Jay", Score: 0.9,
	})
	require.NoError(t, err)

	claimed, err := store.MarkNotified(ctx, "ev1")
	require.NoError(t, err)
	require.True(t, claimed)

	// A later higher-scoring classification must not clobber the video
	// verdict or the notification claim.
	changed, err := store.UpsertIfHigherScore(ctx, sampleDetection("ev1", 0.97))
	require.NoError(t, err)
	require.True(t, changed)

	d, err := store.GetByEventID(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, VideoStatusCompleted, d.VideoStatus)
	assert.Equal(t, "Blue Jay", d.VideoLabel)
	assert.NotNil(t, d.NotifiedAt)
}

func TestUpsertRejectsEmptyEventID(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.UpsertIfHigherScore(context.Background(), sampleDetection("", 0.8))
	assert.Error(t, err)
}

func TestUpsertConcurrentHighestWins(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	scores := []float64{0.3, 0.9, 0.5, 0.7, 0.85, 0.6, 0.95, 0.4}
	var wg sync.WaitGroup
	for _, score := range scores {
		wg.Add(1)
		go func(score float64) {
			defer wg.Done()
			_, err := store.UpsertIfHigherScore(ctx, sampleDetection("ev1", score))
			assert.NoError(t, err)
		}(score)
	}
	wg.Wait()

	d, err := store.GetByEventID(ctx, "ev1")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, d.Score, 1e-9, "interleaving never loses the max score")
}

func TestApplyVideoResultOverwritesVideoFields(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertIfHigherScore(ctx, sampleDetection("ev1", 0.8))
	require.NoError(t, err)

	d, err := store.ApplyVideoResult(ctx, "ev1", VideoResult{
		Status: VideoStatusFailed, Error: "clip unavailable",
	})
	require.NoError(t, err)
	assert.Equal(t, VideoStatusFailed, d.VideoStatus)
	assert.Equal(t, "clip unavailable", d.VideoError)
	assert.NotNil(t, d.VideoUpdatedAt)

	// A retry outcome replaces the failure wholesale.
	d, err = store.ApplyVideoResult(ctx, "ev1", VideoResult{
		Status: VideoStatusCompleted, Label: "Blue Jay", Score: 0.6,
	})
	require.NoError(t, err)
	assert.Equal(t, VideoStatusCompleted, d.VideoStatus)
	assert.Empty(t, d.VideoError)
}

func TestApplyVideoResultPromotesHigherScore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertIfHigherScore(ctx, sampleDetection("ev1", 0.5))
	require.NoError(t, err)

	d, err := store.ApplyVideoResult(ctx, "ev1", VideoResult{
		Status: VideoStatusCompleted, Label: "Steller's Jay", Score: 0.9, Index: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, "Steller's Jay", d.Label, "completed video result outranks a weaker classification")
	assert.InDelta(t, 0.9, d.Score, 1e-9)

	// A weaker video score records the verdict but keeps the primary label.
	_, err = store.UpsertIfHigherScore(ctx, sampleDetection("ev2", 0.8))
	require.NoError(t, err)
	d, err = store.ApplyVideoResult(ctx, "ev2", VideoResult{
		Status: VideoStatusCompleted, Label: "House Finch", Score: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "Blue Jay", d.Label)
	assert.Equal(t, "House Finch", d.VideoLabel)
}

func TestApplyVideoResultRetroactiveAudioConfirm(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	det := sampleDetection("ev1", 0.5)
	det.AudioSpecies = "steller's jay"
	det.AudioConfidence = 0.8
	_, err := store.UpsertIfHigherScore(ctx, det)
	require.NoError(t, err)

	d, err := store.ApplyVideoResult(ctx, "ev1", VideoResult{
		Status: VideoStatusCompleted, Label: "Steller's Jay", Score: 0.9,
	})
	require.NoError(t, err)
	assert.True(t, d.AudioConfirmed, "video verdict matching the stored audio species confirms it")
}

func TestApplyVideoResultUnknownEvent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.ApplyVideoResult(context.Background(), "missing", VideoResult{
		Status: VideoStatusCompleted, Label: "Blue Jay", Score: 0.9,
	})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestMarkNotifiedExactlyOnce(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertIfHigherScore(ctx, sampleDetection("ev1", 0.8))
	require.NoError(t, err)

	claimed, err := store.MarkNotified(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.MarkNotified(ctx, "ev1")
	require.NoError(t, err)
	assert.False(t, claimed, "second claim must fail")

	claimed, err = store.MarkNotified(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestMarkNotifiedConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertIfHigherScore(ctx, sampleDetection("ev1", 0.8))
	require.NoError(t, err)

	const claimers = 8
	wins := make(chan bool, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.MarkNotified(ctx, "ev1")
			assert.NoError(t, err)
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for claimed := range wins {
		if claimed {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestRecentDetectionsNewestFirst(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"ev1", "ev2", "ev3"} {
		d := sampleDetection(id, 0.8)
		d.FrameTime = base.Add(time.Duration(i) * time.Minute)
		_, err := store.UpsertIfHigherScore(ctx, d)
		require.NoError(t, err)
	}

	detections, err := store.RecentDetections(ctx, 2)
	require.NoError(t, err)
	require.Len(t, detections, 2)
	assert.Equal(t, "ev3", detections[0].EventID)
	assert.Equal(t, "ev2", detections[1].EventID)
}

func TestBestLabelPrefersCompletedVideo(t *testing.T) {
	t.Parallel()

	d := Detection{Label: "Blue Jay", Score: 0.6}
	assert.Equal(t, "Blue Jay", d.BestLabel())

	d.VideoStatus = VideoStatusCompleted
	d.VideoLabel = "Steller's Jay"
	d.VideoScore = 0.9
	assert.Equal(t, "Steller's Jay", d.BestLabel())
	assert.InDelta(t, 0.9, d.BestScore(), 1e-9)
}
