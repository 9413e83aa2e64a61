package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/featherwatch/featherwatch/internal/classifier"
	"github.com/featherwatch/featherwatch/internal/datastore"
	"github.com/featherwatch/featherwatch/internal/logging"
	"github.com/featherwatch/featherwatch/internal/videowait"
)

// Skip reasons reported to the skip observer.
const (
	ReasonAlreadyNotified = "already_notified"
	ReasonVideoFailed     = "video_failed"
	ReasonVideoTimeout    = "video_timeout"
	ReasonUnusableLabel   = "unusable_label"
	ReasonSendFailed      = "send_failed"
)

// Config holds the notification decision parameters.
type Config struct {
	Threshold   float64       // scores above this are confident on their own
	WaitTimeout time.Duration // how long to wait for a video verdict
	TitlePrefix string
}

// Orchestrator turns stored detections into at most one notification per
// sighting event. Weak detections wait for the video classification verdict
// before a notification is considered.
type Orchestrator struct {
	store     datastore.Interface
	waiter    *videowait.Waiter
	transport Transport // nil disables delivery
	cfg       Config
	logger    *slog.Logger

	onSent    func()
	onSkipped func(reason string)
}

// NewOrchestrator creates an Orchestrator. transport may be nil, in which
// case decisions are still made and logged but nothing is delivered.
func NewOrchestrator(store datastore.Interface, waiter *videowait.Waiter, transport Transport, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:     store,
		waiter:    waiter,
		transport: transport,
		cfg:       cfg,
		logger:    logging.ForService("notify"),
	}
}

// SetObservers registers optional callbacks for sent and skipped
// notifications.
func (o *Orchestrator) SetObservers(onSent func(), onSkipped func(reason string)) {
	o.onSent = onSent
	o.onSkipped = onSkipped
}

// NotifyDetection evaluates a freshly stored detection and sends a
// notification when warranted. Confident or audio-confirmed detections
// notify immediately; weak ones block on the video verdict and notify only
// when the verdict supplies a usable label. The whole path is safe to run
// concurrently for the same event id, at most one notification goes out.
func (o *Orchestrator) NotifyDetection(ctx context.Context, d *datastore.Detection) {
	confident := d.Score > o.cfg.Threshold
	if confident || d.AudioConfirmed {
		o.send(ctx, d.EventID, d.BestLabel(), d.BestScore(), d.AudioConfirmed)
		return
	}

	label, score, ok := o.resolveVideoOutcome(ctx, d.EventID)
	if !ok {
		return
	}
	if !usableLabel(label) {
		o.skip(d.EventID, ReasonUnusableLabel)
		return
	}
	o.send(ctx, d.EventID, label, score, false)
}

// resolveVideoOutcome waits for the video verdict of a weak detection. It
// returns ok=false when the event should stay silent.
func (o *Orchestrator) resolveVideoOutcome(ctx context.Context, eventID string) (string, float64, bool) {
	// The verdict may already be persisted from before this process saw
	// the event.
	if stored, err := o.store.GetByEventID(ctx, eventID); err == nil {
		switch stored.VideoStatus {
		case string(videowait.StatusCompleted):
			return stored.VideoLabel, stored.VideoScore, true
		case string(videowait.StatusFailed):
			o.skip(eventID, ReasonVideoFailed)
			return "", 0, false
		}
	}

	state := o.waiter.WaitForFinalStatus(ctx, eventID, o.cfg.WaitTimeout)
	switch state.Status {
	case videowait.StatusCompleted:
		return state.Label, state.Score, true
	case videowait.StatusFailed:
		o.skip(eventID, ReasonVideoFailed)
		return "", 0, false
	default:
		o.skip(eventID, ReasonVideoTimeout)
		return "", 0, false
	}
}

// send claims the event's single notification slot and delivers. The claim
// happens before delivery: a failed send burns the slot rather than risking
// a duplicate on retry.
func (o *Orchestrator) send(ctx context.Context, eventID, label string, score float64, audioConfirmed bool) {
	claimed, err := o.store.MarkNotified(ctx, eventID)
	if err != nil {
		o.logger.Error("failed to claim notification slot",
			"event_id", eventID, "error", err)
		o.skip(eventID, ReasonSendFailed)
		return
	}
	if !claimed {
		o.skip(eventID, ReasonAlreadyNotified)
		return
	}

	title := fmt.Sprintf("%s: %s", o.cfg.TitlePrefix, label)
	message := fmt.Sprintf("%s detected (%.0f%% confidence)", label, score*100)
	if audioConfirmed {
		message += ", confirmed by audio"
	}

	if o.transport != nil {
		if err := o.transport.Send(ctx, title, message); err != nil {
			o.logger.Error("notification delivery failed",
				"event_id", eventID, "label", label, "error", err)
			o.skip(eventID, ReasonSendFailed)
			return
		}
	}

	o.logger.Info("notification sent",
		"event_id", eventID,
		"label", label,
		"score", score,
		"audio_confirmed", audioConfirmed)
	if o.onSent != nil {
		o.onSent()
	}
}

func (o *Orchestrator) skip(eventID, reason string) {
	o.logger.Debug("notification skipped", "event_id", eventID, "reason", reason)
	if o.onSkipped != nil {
		o.onSkipped(reason)
	}
}

func usableLabel(label string) bool {
	return label != "" && label != classifier.UnknownBirdLabel
}
