package frigate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherwatch/featherwatch/internal/classifier"
	"github.com/featherwatch/featherwatch/internal/pipeline"
)

func TestDecodeEventBirdSighting(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"type": "update",
		"after": {
			"id": "1717243930.6-abc123",
			"label": "bird",
			"sub_label": "Blue Jay",
			"camera": "backyard",
			"top_score": 0.87,
			"start_time": 1717243930.5
		}
	}`)

	ev, ok, err := DecodeEvent(payload)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "1717243930.6-abc123", ev.EventID)
	assert.Equal(t, "bird", ev.Label)
	assert.Equal(t, "Blue Jay", ev.Sublabel)
	assert.Equal(t, "backyard", ev.Camera)
	assert.InDelta(t, 0.87, ev.Score, 1e-9)
	assert.Equal(t, time.Unix(1717243930, 0).UTC().Truncate(time.Second), ev.FrameTime.Truncate(time.Second))
}

func TestDecodeEventSubLabelArray(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"type": "update",
		"after": {
			"id": "ev1",
			"label": "bird",
			"sub_label": ["Northern Cardinal", 0.91],
			"camera": "feeder",
			"top_score": 0.8,
			"start_time": 1717243930
		}
	}`)

	ev, ok, err := DecodeEvent(payload)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Northern Cardinal", ev.Sublabel)
}

func TestDecodeEventIgnoresNonBird(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{"other object label", `{"type":"update","after":{"id":"ev1","label":"person","camera":"door"}}`},
		{"missing id", `{"type":"update","after":{"label":"bird","camera":"door"}}`},
		{"empty after", `{"type":"end"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok, err := DecodeEvent([]byte(tt.payload))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestDecodeEventInvalidJSON(t *testing.T) {
	t.Parallel()

	_, ok, err := DecodeEvent([]byte(`{after`))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestSightingClassifierPrefersSublabel(t *testing.T) {
	t.Parallel()

	cls := NewSightingClassifier()

	res, err := cls.ClassifyEvent(context.Background(), pipeline.SightingEvent{
		Label: "bird", Sublabel: "Blue Jay", Score: 0.87,
	})
	require.NoError(t, err)
	assert.Equal(t, "Blue Jay", res.Label)
	assert.InDelta(t, 0.87, res.Score, 1e-9)
	assert.Equal(t, classifier.ProvenanceModel, res.Provenance)

	res, err = cls.ClassifyEvent(context.Background(), pipeline.SightingEvent{
		Label: "bird", Score: 0.6,
	})
	require.NoError(t, err)
	assert.Equal(t, "bird", res.Label)
}
