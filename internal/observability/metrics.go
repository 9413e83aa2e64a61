// Package observability provides Prometheus metrics for the featherwatch pipeline.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics contains all Prometheus metrics for the detection pipeline.
type Metrics struct {
	EventsProcessed       *prometheus.CounterVec
	EventsRejected        prometheus.Counter
	AudioDetections       prometheus.Counter
	AudioMatches          prometheus.Counter
	VideoResults          *prometheus.CounterVec
	NotificationsSent     prometheus.Counter
	NotificationsSkipped  *prometheus.CounterVec
	BroadcastMessages     prometheus.Counter
	BroadcastDrops        prometheus.Counter
	SubscriberEvictions   prometheus.Counter
	ActiveSubscribers     prometheus.Gauge
	WaiterEntries         prometheus.Gauge
	UpsertDuration        prometheus.Histogram
	registry              *prometheus.Registry
}

// NewMetrics creates a Metrics instance registered against a fresh registry
// that also carries the standard Go and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return m, nil
}

// Registry returns the underlying Prometheus registry for HTTP exposure.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) initMetrics() error {
	m.EventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "featherwatch_events_processed_total",
		Help: "Total number of sighting events processed, by outcome",
	}, []string{"outcome"})

	m.EventsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "featherwatch_events_rejected_total",
		Help: "Total number of sighting events rejected by the classification filter",
	})

	m.AudioDetections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "featherwatch_audio_detections_total",
		Help: "Total number of audio detections ingested",
	})

	m.AudioMatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "featherwatch_audio_matches_total",
		Help: "Total number of sighting events confirmed by an audio match",
	})

	m.VideoResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "featherwatch_video_results_total",
		Help: "Total number of video re-classification results, by status",
	}, []string{"status"})

	m.NotificationsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "featherwatch_notifications_sent_total",
		Help: "Total number of push notifications sent",
	})

	m.NotificationsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "featherwatch_notifications_skipped_total",
		Help: "Total number of notifications suppressed, by reason",
	}, []string{"reason"})

	m.BroadcastMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "featherwatch_broadcast_messages_total",
		Help: "Total number of messages broadcast to stream subscribers",
	})

	m.BroadcastDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "featherwatch_broadcast_drops_total",
		Help: "Total number of messages dropped due to full subscriber queues",
	})

	m.SubscriberEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "featherwatch_subscriber_evictions_total",
		Help: "Total number of stream subscribers evicted as too slow",
	})

	m.ActiveSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "featherwatch_active_subscribers",
		Help: "Current number of live stream subscribers",
	})

	m.WaiterEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "featherwatch_video_waiter_entries",
		Help: "Current number of tracked video classification states",
	})

	m.UpsertDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "featherwatch_detection_upsert_duration_seconds",
		Help:    "Duration of detection upsert operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	cs := []prometheus.Collector{
		m.EventsProcessed, m.EventsRejected, m.AudioDetections, m.AudioMatches,
		m.VideoResults, m.NotificationsSent, m.NotificationsSkipped,
		m.BroadcastMessages, m.BroadcastDrops, m.SubscriberEvictions,
		m.ActiveSubscribers, m.WaiterEntries, m.UpsertDuration,
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
