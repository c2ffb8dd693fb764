package vfm

// Weight mutation bounds. Major rules move a weight by up to half a point
// per round, minor rules by half of that; every weight is clamped to [1,5]
// afterwards so no amount of drift can disable or dominate a component.
const (
	weightFloor = 1.0
	weightCeil  = 5.0
	majorStep   = 0.5
	minorStep   = 0.25

	highSuccessRate    = 0.8
	highFailureRate    = 0.4
	lowInnovationShare = 0.1
	minSamples         = 5
)

// OutcomeStats summarizes the recent history the mutator tunes against.
type OutcomeStats struct {
	Total         int `json:"total"`
	Successes     int `json:"successes"`
	Failures      int `json:"failures"`
	InnovateCount int `json:"innovate_count"`
	GrowthEvents  int `json:"growth_events"`
}

func (s OutcomeStats) successRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Total)
}

func (s OutcomeStats) failureRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Total)
}

func (s OutcomeStats) innovateShare() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.InnovateCount) / float64(s.Total)
}

// MutateWeights applies the four adjustment rules to the current weights and
// returns the clamped result. Rules are independent and additive: more than
// one may fire in a single round.
func MutateWeights(w Weights, stats OutcomeStats) Weights {
	// Sustained success with little innovation: stop over-weighting failure
	// reduction, start rewarding frequency of use.
	if stats.Total >= minSamples &&
		stats.successRate() > highSuccessRate &&
		stats.innovateShare() < lowInnovationShare {
		w.FailureReduction -= majorStep
		w.Frequency += majorStep
	}

	// Heavy failures: lean harder on failure reduction.
	if stats.failureRate() > highFailureRate {
		w.FailureReduction += majorStep
	}

	// Capability growth happening: user burden matters more.
	if stats.GrowthEvents > 0 {
		w.UserBurden += minorStep
	}

	// Succeeding without growing: watch the cost of standing still.
	if stats.Total >= minSamples &&
		stats.successRate() > highSuccessRate &&
		stats.GrowthEvents == 0 {
		w.SelfCost += minorStep
	}

	w.Frequency = clamp(w.Frequency, weightFloor, weightCeil)
	w.FailureReduction = clamp(w.FailureReduction, weightFloor, weightCeil)
	w.UserBurden = clamp(w.UserBurden, weightFloor, weightCeil)
	w.SelfCost = clamp(w.SelfCost, weightFloor, weightCeil)
	return w
}
