// Package personality keeps a small mood/confidence/risk-appetite record
// that drifts with cycle outcomes. It only ever nudges category preference
// during gene selection; it is never a hard constraint.
package personality

import (
	"time"

	"evoloop/internal/gene"
)

// Mood is a coarse label derived from confidence.
type Mood string

const (
	MoodCautious  Mood = "cautious"
	MoodSteady    Mood = "steady"
	MoodAmbitious Mood = "ambitious"
)

// Drift parameters. Confidence and risk appetite live in [0,1] and move a
// small step per outcome so a single cycle never flips the personality.
const (
	successStep = 0.05
	failureStep = 0.10

	cautiousBelow  = 0.35
	ambitiousAbove = 0.70
)

// State is the persisted personality record.
type State struct {
	Mood         Mood      `json:"mood"`
	Confidence   float64   `json:"confidence"`
	RiskAppetite float64   `json:"risk_appetite"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Default starts a fresh personality at a steady midpoint.
func Default() State {
	return State{
		Mood:         MoodSteady,
		Confidence:   0.5,
		RiskAppetite: 0.5,
	}
}

// RecordOutcome folds one cycle outcome into the state. Failures pull harder
// than successes push, so confidence is slow to build and quick to drop.
func (s State) RecordOutcome(success bool, now time.Time) State {
	if success {
		s.Confidence = clamp01(s.Confidence + successStep)
		s.RiskAppetite = clamp01(s.RiskAppetite + successStep/2)
	} else {
		s.Confidence = clamp01(s.Confidence - failureStep)
		s.RiskAppetite = clamp01(s.RiskAppetite - failureStep/2)
	}
	s.Mood = moodFor(s.Confidence)
	s.UpdatedAt = now
	return s
}

// PreferredCategory maps the personality onto a selection preference: shaky
// confidence prefers repair, high risk appetite prefers innovation,
// everything in between prefers optimization.
func (s State) PreferredCategory() gene.Category {
	switch {
	case s.Confidence < cautiousBelow:
		return gene.CategoryRepair
	case s.RiskAppetite > ambitiousAbove:
		return gene.CategoryInnovate
	default:
		return gene.CategoryOptimize
	}
}

func moodFor(confidence float64) Mood {
	switch {
	case confidence < cautiousBelow:
		return MoodCautious
	case confidence > ambitiousAbove:
		return MoodAmbitious
	default:
		return MoodSteady
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
