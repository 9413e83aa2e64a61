package frigate

import (
	"context"

	"github.com/featherwatch/featherwatch/internal/classifier"
	"github.com/featherwatch/featherwatch/internal/pipeline"
)

// SightingClassifier derives the classification result from the sighting
// event itself: Frigate runs the species model and embeds its verdict in the
// event's sub-label, so the primary result is the sub-label species when
// present and the raw object label otherwise, both carrying the event's
// tracked score.
type SightingClassifier struct{}

// NewSightingClassifier creates the event-embedded classifier.
func NewSightingClassifier() *SightingClassifier {
	return &SightingClassifier{}
}

// ClassifyEvent maps the event's embedded classification to a result.
func (*SightingClassifier) ClassifyEvent(_ context.Context, ev pipeline.SightingEvent) (classifier.Result, error) {
	label := ev.Label
	if ev.Sublabel != "" {
		label = ev.Sublabel
	}
	return classifier.Result{
		Label:      label,
		Score:      ev.Score,
		Provenance: classifier.ProvenanceModel,
	}, nil
}
