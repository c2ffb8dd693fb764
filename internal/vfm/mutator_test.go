package vfm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMutateWeights_BoundsHoldUnderExtremes(t *testing.T) {
	extremes := []Weights{
		{Frequency: 0, FailureReduction: 0, UserBurden: 0, SelfCost: 0},
		{Frequency: 100, FailureReduction: 100, UserBurden: 100, SelfCost: 100},
		{Frequency: -3, FailureReduction: 5, UserBurden: 1, SelfCost: 2.5},
	}
	statsVariants := []OutcomeStats{
		{},
		{Total: 10, Successes: 10},
		{Total: 10, Failures: 10},
		{Total: 10, Successes: 9, GrowthEvents: 3},
	}
	for _, w := range extremes {
		for _, stats := range statsVariants {
			out := MutateWeights(w, stats)
			for name, v := range map[string]float64{
				"frequency":         out.Frequency,
				"failure_reduction": out.FailureReduction,
				"user_burden":       out.UserBurden,
				"self_cost":         out.SelfCost,
			} {
				assert.GreaterOrEqualf(t, v, 1.0, "%s below floor", name)
				assert.LessOrEqualf(t, v, 5.0, "%s above ceiling", name)
			}
		}
	}
}

func TestMutateWeights_AllFailingNeverLowersFailureReduction(t *testing.T) {
	w := DefaultWeights()
	stats := OutcomeStats{Total: 10, Failures: 10}
	out := MutateWeights(w, stats)
	assert.GreaterOrEqual(t, out.FailureReduction, w.FailureReduction)
}

func TestMutateWeights_SuccessWithoutInnovation(t *testing.T) {
	w := DefaultWeights()
	stats := OutcomeStats{Total: 10, Successes: 9}
	out := MutateWeights(w, stats)

	assert.InDelta(t, w.FailureReduction-0.5, out.FailureReduction, 1e-9)
	assert.InDelta(t, w.Frequency+0.5, out.Frequency, 1e-9)
	// No growth events: self-cost nudges up too.
	assert.InDelta(t, w.SelfCost+0.25, out.SelfCost, 1e-9)
}

func TestMutateWeights_SmallSampleIgnored(t *testing.T) {
	w := DefaultWeights()
	// Three perfect outcomes are not enough evidence for the success rule.
	out := MutateWeights(w, OutcomeStats{Total: 3, Successes: 3})
	assert.Equal(t, w.Frequency, out.Frequency)
	assert.Equal(t, w.FailureReduction, out.FailureReduction)
}

func TestMutateWeights_HighFailureRate(t *testing.T) {
	w := DefaultWeights()
	out := MutateWeights(w, OutcomeStats{Total: 10, Successes: 5, Failures: 5})
	assert.InDelta(t, w.FailureReduction+0.5, out.FailureReduction, 1e-9)
}

func TestMutateWeights_GrowthNudgesUserBurden(t *testing.T) {
	w := DefaultWeights()
	out := MutateWeights(w, OutcomeStats{Total: 4, Successes: 2, GrowthEvents: 1})
	assert.InDelta(t, w.UserBurden+0.25, out.UserBurden, 1e-9)
}

func TestMutateWeights_RulesAreAdditive(t *testing.T) {
	w := DefaultWeights()
	// High success, no innovation, with growth: rules 1 and 3 both fire.
	out := MutateWeights(w, OutcomeStats{Total: 10, Successes: 9, GrowthEvents: 2})
	assert.InDelta(t, w.Frequency+0.5, out.Frequency, 1e-9)
	assert.InDelta(t, w.UserBurden+0.25, out.UserBurden, 1e-9)
	// Growth present: the stand-still rule does not fire.
	assert.Equal(t, w.SelfCost, out.SelfCost)
}
