// Package audiomatch buffers recent audio species detections in memory and
// correlates them with camera sighting events by timestamp proximity.
package audiomatch

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/featherwatch/featherwatch/internal/logging"
)

// Detection is one ephemeral audio detection. Detections are buffered in
// memory only and purged by age, no persistence is involved.
type Detection struct {
	Timestamp  time.Time // UTC
	Species    string
	Confidence float64
	Sensor     string
	Raw        []byte // original payload as received
}

// WildcardSensor in the camera-to-sensor map means any sensor matches.
const WildcardSensor = "*"

// Correlator keeps a time-ordered, age-bounded buffer of audio detections.
// All methods are safe for concurrent use.
type Correlator struct {
	mu        sync.Mutex
	buffer    []Detection
	retention time.Duration
	sensorMap map[string]string // camera name -> sensor id
	logger    *slog.Logger
}

// NewCorrelator creates a Correlator keeping detections for the given
// retention window. sensorMap maps camera names to audio sensor ids and may
// be nil when no mapping is configured.
func NewCorrelator(retention time.Duration, sensorMap map[string]string) *Correlator {
	return &Correlator{
		retention: retention,
		sensorMap: sensorMap,
		logger:    logging.ForService("audiomatch"),
	}
}

// Add inserts a detection and purges entries older than the retention window.
func (c *Correlator) Add(d Detection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d.Timestamp = d.Timestamp.UTC()
	c.buffer = append(c.buffer, d)
	c.purgeLocked(time.Now().UTC())

	c.logger.Debug("audio detection buffered",
		"species", d.Species,
		"confidence", d.Confidence,
		"sensor", d.Sensor,
		"buffered", len(c.buffer))
}

// Size returns the current number of buffered detections.
func (c *Correlator) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// FindMatch returns the buffered detection whose timestamp is closest to
// target among candidates within windowSeconds. Ties are broken by insertion
// order. When a sensor mapping is configured for cameraName and resolves to a
// concrete sensor id, candidates are restricted to that sensor; the wildcard
// value matches any sensor. The second return value is false when no
// candidate lies within the window.
func (c *Correlator) FindMatch(target time.Time, windowSeconds float64, cameraName string) (Detection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeLocked(time.Now().UTC())

	sensor := c.resolveSensor(cameraName)
	target = target.UTC()

	var best Detection
	bestDelta := math.Inf(1)
	found := false

	// Linear scan, the buffer is small and age-bounded.
	for i := range c.buffer {
		d := c.buffer[i]
		if sensor != "" && sensor != WildcardSensor && d.Sensor != sensor {
			continue
		}
		delta := math.Abs(d.Timestamp.Sub(target).Seconds())
		if delta > windowSeconds {
			continue
		}
		// Strict comparison keeps the earlier-inserted entry on ties.
		if delta < bestDelta {
			best = d
			bestDelta = delta
			found = true
		}
	}

	return best, found
}

// resolveSensor maps a camera name to a sensor id. An empty result means no
// restriction applies.
func (c *Correlator) resolveSensor(cameraName string) string {
	if cameraName == "" || len(c.sensorMap) == 0 {
		return ""
	}
	if sensor, ok := c.sensorMap[cameraName]; ok {
		return sensor
	}
	return ""
}

func (c *Correlator) purgeLocked(now time.Time) {
	cutoff := now.Add(-c.retention)
	validCount := 0
	for _, d := range c.buffer {
		if d.Timestamp.After(cutoff) {
			c.buffer[validCount] = d
			validCount++
		}
	}
	c.buffer = c.buffer[:validCount]
}
