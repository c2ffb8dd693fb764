package pcec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCycle_Substantive(t *testing.T) {
	c := NewCycle(time.Now())
	assert.False(t, c.Substantive(), "empty cycle is never substantive")

	c.Record(OutcomeOther, "poked around the codebase")
	assert.False(t, c.Substantive(), "unrecognized types do not count")

	c.Record(OutcomeCapability, "summary of existing capabilities")
	assert.False(t, c.Substantive(), "filler descriptions do not count")

	c.Record(OutcomeCapability, "added retry logic to the fetch capability")
	assert.True(t, c.Substantive())
}

func TestCycle_FillerPhrases(t *testing.T) {
	for _, desc := range []string{
		"Summary of the week",
		"a restatement of the plan",
		"no obvious change detected",
	} {
		c := NewCycle(time.Now())
		c.Record(OutcomeAbstraction, desc)
		assert.Falsef(t, c.Substantive(), "description %q should be filler", desc)
	}
}

func TestEvaluate_StreakAccounting(t *testing.T) {
	now := time.Now()
	var st State

	// Two stagnant cycles raise the streak to the breakthrough threshold.
	c := NewCycle(now)
	st = Evaluate(c, st, now)
	assert.Equal(t, CycleStagnant, c.Status)
	assert.Equal(t, 1, st.StagnantStreak)
	assert.False(t, st.NeedsForceBreakthrough())

	c = NewCycle(now)
	st = Evaluate(c, st, now)
	assert.Equal(t, 2, st.StagnantStreak)
	assert.True(t, st.NeedsForceBreakthrough())

	// A substantive cycle resets the streak.
	c = NewCycle(now)
	c.Record(OutcomeLeverage, "reused the parser across two new pipelines")
	st = Evaluate(c, st, now)
	assert.Equal(t, CycleCompleted, c.Status)
	assert.Equal(t, 0, st.StagnantStreak)
	assert.False(t, st.NeedsForceBreakthrough())
	assert.False(t, c.EndedAt.IsZero())
}

func TestEvaluate_StateIsExplicit(t *testing.T) {
	now := time.Now()
	initial := State{StagnantStreak: 1}

	c := NewCycle(now)
	next := Evaluate(c, initial, now)

	// The input state is untouched; evolution happens in the return value.
	assert.Equal(t, 1, initial.StagnantStreak)
	assert.Equal(t, 2, next.StagnantStreak)
}
