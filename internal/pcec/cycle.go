// Package pcec runs the periodic stagnation-detection cycle: it tracks
// periods of output, counts consecutive non-substantive periods and forces
// divergent thinking once progress has stalled for too long.
package pcec

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OutcomeType tags what kind of progress a cycle outcome represents.
type OutcomeType string

const (
	OutcomeCapability  OutcomeType = "capability"  // New or improved capability
	OutcomeAbstraction OutcomeType = "abstraction" // A generalization over existing work
	OutcomeLeverage    OutcomeType = "leverage"    // Reuse multiplying existing value
	OutcomeOther       OutcomeType = "other"
)

// recognized reports whether the type counts toward substantiveness.
func (t OutcomeType) recognized() bool {
	switch t {
	case OutcomeCapability, OutcomeAbstraction, OutcomeLeverage:
		return true
	}
	return false
}

// CycleStatus is the terminal classification of one period.
type CycleStatus string

const (
	CycleRunning   CycleStatus = "running"
	CycleCompleted CycleStatus = "completed"
	CycleStagnant  CycleStatus = "stagnant"
)

// Outcome is one recorded result within a cycle.
type Outcome struct {
	Type        OutcomeType `json:"type"`
	Description string      `json:"description"`
}

// Cycle is one PCEC period.
type Cycle struct {
	ID        string      `json:"id"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at,omitempty"`
	Outcomes  []Outcome   `json:"outcomes,omitempty"`
	Status    CycleStatus `json:"status"`
}

// NewCycle opens a period.
func NewCycle(now time.Time) *Cycle {
	return &Cycle{
		ID:        uuid.NewString(),
		StartedAt: now,
		Status:    CycleRunning,
	}
}

// Record appends an outcome to a running cycle.
func (c *Cycle) Record(typ OutcomeType, description string) {
	c.Outcomes = append(c.Outcomes, Outcome{Type: typ, Description: description})
}

// fillerPhrases mark a description as restating rather than progressing.
var fillerPhrases = []string{
	"summary",
	"restatement",
	"no obvious change",
	"nothing new",
	"same as before",
}

// Substantive reports whether the cycle produced real progress: at least one
// outcome with a recognized type whose description is not filler.
func (c *Cycle) Substantive() bool {
	for _, o := range c.Outcomes {
		if !o.Type.recognized() {
			continue
		}
		if !isFiller(o.Description) {
			return true
		}
	}
	return false
}

func isFiller(description string) bool {
	lower := strings.ToLower(description)
	for _, phrase := range fillerPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// forceBreakthroughAfter is how many consecutive non-substantive cycles are
// tolerated before divergence is forced.
const forceBreakthroughAfter = 2

// State is the explicit stagnation counter carried between cycle
// evaluations. It is passed in and returned rather than held globally so
// callers own persistence and tests own determinism.
type State struct {
	StagnantStreak int       `json:"stagnant_streak"`
	LastEvaluated  time.Time `json:"last_evaluated,omitempty"`
}

// NeedsForceBreakthrough reports whether divergence must be forced.
func (s State) NeedsForceBreakthrough() bool {
	return s.StagnantStreak >= forceBreakthroughAfter
}

// Evaluate closes a cycle and folds it into the stagnation state: a
// substantive cycle resets the streak, anything else increments it.
func Evaluate(c *Cycle, s State, now time.Time) State {
	c.EndedAt = now
	if c.Substantive() {
		c.Status = CycleCompleted
		s.StagnantStreak = 0
	} else {
		c.Status = CycleStagnant
		s.StagnantStreak++
	}
	s.LastEvaluated = now
	return s
}
