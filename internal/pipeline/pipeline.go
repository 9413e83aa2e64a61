// Package pipeline wires sighting events through classification, audio
// correlation, enrichment, persistence, broadcast, and notification.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/featherwatch/featherwatch/internal/audiomatch"
	"github.com/featherwatch/featherwatch/internal/broadcast"
	"github.com/featherwatch/featherwatch/internal/classifier"
	"github.com/featherwatch/featherwatch/internal/datastore"
	"github.com/featherwatch/featherwatch/internal/logging"
	"github.com/featherwatch/featherwatch/internal/notify"
	"github.com/featherwatch/featherwatch/internal/observability"
	"github.com/featherwatch/featherwatch/internal/taxonomy"
	"github.com/featherwatch/featherwatch/internal/videowait"
	"github.com/featherwatch/featherwatch/internal/weather"
)

// SightingEvent is one camera sighting as received from the event source.
type SightingEvent struct {
	EventID   string
	Label     string
	Sublabel  string
	Camera    string
	Score     float64
	FrameTime time.Time
}

// Classifier produces a species classification for a sighting event. The
// actual model runtime lives behind this boundary.
type Classifier interface {
	ClassifyEvent(ctx context.Context, ev SightingEvent) (classifier.Result, error)
}

// Config holds pipeline tuning parameters.
type Config struct {
	AudioWindowSeconds float64
}

// Pipeline coordinates the per-event processing flow. All handlers are safe
// for concurrent use.
type Pipeline struct {
	classifier   Classifier
	filter       *classifier.Filter
	correlator   *audiomatch.Correlator
	store        datastore.Interface
	waiter       *videowait.Waiter
	broadcaster  *broadcast.Broadcaster
	orchestrator *notify.Orchestrator
	taxonomy     taxonomy.Resolver // nil disables enrichment
	weather      weather.Provider  // nil disables enrichment
	metrics      *observability.Metrics
	cfg          Config
	logger       *slog.Logger
}

// New assembles a Pipeline from its collaborators. taxonomy and weather may
// be nil to disable the corresponding enrichment.
func New(
	cls Classifier,
	filter *classifier.Filter,
	correlator *audiomatch.Correlator,
	store datastore.Interface,
	waiter *videowait.Waiter,
	broadcaster *broadcast.Broadcaster,
	orchestrator *notify.Orchestrator,
	taxonomyResolver taxonomy.Resolver,
	weatherProvider weather.Provider,
	metrics *observability.Metrics,
	cfg Config,
) *Pipeline {
	return &Pipeline{
		classifier:   cls,
		filter:       filter,
		correlator:   correlator,
		store:        store,
		waiter:       waiter,
		broadcaster:  broadcaster,
		orchestrator: orchestrator,
		taxonomy:     taxonomyResolver,
		weather:      weatherProvider,
		metrics:      metrics,
		cfg:          cfg,
		logger:       logging.ForService("pipeline"),
	}
}

// HandleSighting processes one camera sighting end to end: classify, filter,
// correlate against buffered audio, enrich, persist with the
// keep-highest-score rule, broadcast, and kick off the notification decision.
func (p *Pipeline) HandleSighting(ctx context.Context, ev SightingEvent) {
	res, err := p.classifier.ClassifyEvent(ctx, ev)
	if err != nil {
		p.logger.Error("classification failed",
			"event_id", ev.EventID, "camera", ev.Camera, "error", err)
		p.countEvent("classify_error")
		return
	}

	accepted, decision := p.filter.Apply(res, ev.Sublabel)
	if decision == classifier.DecisionReject {
		p.logger.Debug("detection rejected",
			"event_id", ev.EventID, "label", res.Label, "score", res.Score)
		p.metrics.EventsRejected.Inc()
		p.countEvent("rejected")
		return
	}

	d := &datastore.Detection{
		EventID:    ev.EventID,
		CameraName: ev.Camera,
		FrameTime:  ev.FrameTime,
		Label:      accepted.Label,
		Score:      accepted.Score,
		ClassIndex: accepted.Index,
		Provenance: string(accepted.Provenance),
	}

	p.correlateAudio(ev, d)
	p.enrich(ctx, d)

	start := time.Now()
	changed, err := p.store.UpsertIfHigherScore(ctx, d)
	p.metrics.UpsertDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.logger.Error("failed to store detection",
			"event_id", ev.EventID, "error", err)
		p.countEvent("store_error")
		return
	}
	if !changed {
		p.logger.Debug("detection unchanged, lower score",
			"event_id", ev.EventID, "score", d.Score)
		p.countEvent("unchanged")
		return
	}
	p.countEvent("accepted")

	p.logger.Info("detection stored",
		"event_id", ev.EventID,
		"camera", ev.Camera,
		"label", d.Label,
		"score", d.Score,
		"audio_confirmed", d.AudioConfirmed)

	p.broadcastDetection(ctx, ev.EventID)

	// The notification decision may block on the video verdict, keep it
	// off the ingest path.
	go p.orchestrator.NotifyDetection(context.WithoutCancel(ctx), d)
}

// HandleAudioDetection ingests a raw audio detection payload into the
// correlation buffer.
func (p *Pipeline) HandleAudioDetection(payload []byte, received time.Time) error {
	det, err := audiomatch.Normalize(payload, received)
	if err != nil {
		return err
	}
	p.correlator.Add(det)
	p.metrics.AudioDetections.Inc()
	return nil
}

// HandleVideoResult records a video classification state for an event,
// persists it, and releases any notification decisions waiting on it.
func (p *Pipeline) HandleVideoResult(ctx context.Context, eventID string, res datastore.VideoResult) {
	p.metrics.VideoResults.WithLabelValues(res.Status).Inc()

	if _, err := p.store.ApplyVideoResult(ctx, eventID, res); err != nil {
		p.logger.Warn("failed to persist video result",
			"event_id", eventID, "status", res.Status, "error", err)
	}

	// The waiter is published regardless of persistence so blocked
	// notification decisions are never stranded.
	p.waiter.Publish(eventID, videowait.Status(res.Status), res.Label, res.Score, res.Error)

	if videowait.Status(res.Status).Terminal() {
		p.broadcastDetection(ctx, eventID)
	}
}

func (p *Pipeline) correlateAudio(ev SightingEvent, d *datastore.Detection) {
	match, ok := p.correlator.FindMatch(ev.FrameTime, p.cfg.AudioWindowSeconds, ev.Camera)
	if !ok {
		return
	}
	d.AudioSpecies = match.Species
	d.AudioConfidence = match.Confidence
	if strings.EqualFold(match.Species, d.Label) {
		d.AudioConfirmed = true
		p.metrics.AudioMatches.Inc()
		p.logger.Debug("audio confirmation",
			"event_id", ev.EventID,
			"species", match.Species,
			"audio_confidence", match.Confidence)
	}
}

func (p *Pipeline) enrich(ctx context.Context, d *datastore.Detection) {
	if p.taxonomy != nil && d.Label != classifier.UnknownBirdLabel {
		if sp, err := p.taxonomy.Resolve(ctx, d.Label); err == nil {
			d.ScientificName = sp.ScientificName
			d.CommonName = sp.CommonName
			d.TaxonomyID = sp.SpeciesCode
		} else {
			p.logger.Debug("taxonomy lookup failed", "label", d.Label, "error", err)
		}
	}
	if p.weather != nil {
		if obs, err := p.weather.Current(ctx); err == nil {
			temp := obs.TempC
			d.Temperature = &temp
			d.WeatherCondition = obs.Condition
		} else {
			p.logger.Debug("weather lookup failed", "error", err)
		}
	}
}

func (p *Pipeline) broadcastDetection(ctx context.Context, eventID string) {
	d, err := p.store.GetByEventID(ctx, eventID)
	if err != nil {
		p.logger.Debug("broadcast skipped, detection not loadable",
			"event_id", eventID, "error", err)
		return
	}
	data, err := json.Marshal(NewDetectionPayload(d))
	if err != nil {
		p.logger.Error("failed to encode detection payload",
			"event_id", eventID, "error", err)
		return
	}
	p.broadcaster.Broadcast(broadcast.NewMessage("detection", data))
	p.metrics.BroadcastMessages.Inc()
}

func (p *Pipeline) countEvent(outcome string) {
	p.metrics.EventsProcessed.WithLabelValues(outcome).Inc()
}
