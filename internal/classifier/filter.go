// Package classifier provides the classification-decision filter that turns a
// raw model output into an accepted, rejected or relabeled result.
package classifier

import (
	"slices"
	"strings"
)

// UnknownBirdLabel is the sentinel label substituted for configured "unknown" labels.
const UnknownBirdLabel = "Unknown Bird"

// Provenance identifies where an accepted result's label came from.
type Provenance string

const (
	// ProvenanceModel marks a label taken directly from the classifier output.
	ProvenanceModel Provenance = "model"
	// ProvenanceFallback marks a label rescued from the upstream sublabel.
	ProvenanceFallback Provenance = "fallback"
)

// Result represents one classification output.
type Result struct {
	Label      string
	Score      float64
	Index      int
	Provenance Provenance
}

// Decision is the outcome of applying the filter to a result.
type Decision int

const (
	// DecisionReject discards the result, no record is created or updated.
	DecisionReject Decision = iota
	// DecisionAccept accepts the result as-is (possibly relabeled to the
	// unknown sentinel).
	DecisionAccept
	// DecisionFallback accepts a synthetic result using the upstream sublabel
	// with the original score.
	DecisionFallback
)

// String returns a human readable decision name for logging.
func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionFallback:
		return "fallback"
	default:
		return "reject"
	}
}

// Config holds the filter thresholds and label sets.
type Config struct {
	MinConfidence    float64  // hard floor, scores below are never accepted as-is
	Threshold        float64  // primary confidence threshold
	UnknownLabels    []string // labels rewritten to UnknownBirdLabel
	BlockedLabels    []string // labels rejected outright
	SublabelFallback bool     // rescue weak results with the upstream sublabel
}

// Filter applies the classification-decision rules. It is stateless and safe
// for concurrent use.
type Filter struct {
	cfg Config
}

// New creates a Filter with the given configuration.
func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

// Apply evaluates a raw classification result against the configured label
// sets and thresholds. sublabel is the optional pre-existing sublabel from the
// upstream camera backend; it is only consulted when the result is below the
// floor or threshold and sublabel fallback is enabled.
//
// The decision is deterministic: the same inputs always produce the same
// accept, reject or relabel outcome.
func (f *Filter) Apply(res Result, sublabel string) (Result, Decision) {
	label := res.Label

	if f.containsFold(f.cfg.UnknownLabels, label) {
		label = UnknownBirdLabel
	}

	if f.containsFold(f.cfg.BlockedLabels, label) {
		return Result{}, DecisionReject
	}

	belowFloor := res.Score < f.cfg.MinConfidence
	belowThreshold := res.Score <= f.cfg.Threshold

	if !belowFloor && !belowThreshold {
		res.Label = label
		res.Provenance = ProvenanceModel
		return res, DecisionAccept
	}

	if f.cfg.SublabelFallback && sublabel != "" {
		// A weak classification is rescued by the separate signal of record;
		// the original score is kept.
		return Result{
			Label:      sublabel,
			Score:      res.Score,
			Index:      res.Index,
			Provenance: ProvenanceFallback,
		}, DecisionFallback
	}

	return Result{}, DecisionReject
}

// Confident reports whether a score clears the primary threshold.
func (f *Filter) Confident(score float64) bool {
	return score > f.cfg.Threshold
}

func (f *Filter) containsFold(set []string, label string) bool {
	return slices.ContainsFunc(set, func(s string) bool {
		return strings.EqualFold(s, label)
	})
}
