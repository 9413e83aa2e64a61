package audiomatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNativePayload(t *testing.T) {
	t.Parallel()

	received := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"species":"Blue Jay","confidence":0.87,"sensor_id":"mic-1","timestamp":"2025-06-01T11:59:42Z"}`)

	d, err := Normalize(payload, received)
	require.NoError(t, err)

	assert.Equal(t, "Blue Jay", d.Species)
	assert.InDelta(t, 0.87, d.Confidence, 1e-9)
	assert.Equal(t, "mic-1", d.Sensor)
	assert.Equal(t, time.Date(2025, 6, 1, 11, 59, 42, 0, time.UTC), d.Timestamp)
	assert.Equal(t, payload, d.Raw)
}

func TestNormalizeLegacyPayload(t *testing.T) {
	t.Parallel()

	received := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"comName":"Northern Cardinal","score":0.91,"id":"station-3","BeginTime":"2025-06-01T11:58:00"}`)

	d, err := Normalize(payload, received)
	require.NoError(t, err)

	assert.Equal(t, "Northern Cardinal", d.Species)
	assert.InDelta(t, 0.91, d.Confidence, 1e-9)
	assert.Equal(t, "station-3", d.Sensor)
	assert.Equal(t, time.Date(2025, 6, 1, 11, 58, 0, 0, time.UTC), d.Timestamp)
}

func TestNormalizeMissingTimestampFallsBackToReceived(t *testing.T) {
	t.Parallel()

	received := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d, err := Normalize([]byte(`{"species":"House Finch","confidence":0.5}`), received)
	require.NoError(t, err)
	assert.Equal(t, received, d.Timestamp)
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	t.Parallel()

	received := time.Now()

	tests := []struct {
		name    string
		payload string
	}{
		{"invalid json", `{species`},
		{"no species in either format", `{"confidence":0.5}`},
		{"unparseable timestamp", `{"species":"Blue Jay","timestamp":"yesterday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Normalize([]byte(tt.payload), received)
			assert.Error(t, err)
		})
	}
}
