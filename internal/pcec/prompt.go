package pcec

import (
	"math/rand"
)

// Focus labels for a divergence prompt, in priority order.
const (
	FocusStagnation      = "stagnation"
	FocusFailureAnalysis = "failure-analysis"
	FocusBaseline        = "baseline-capability-building"
	FocusGeneral         = "general"
)

// Question pools. Stagnation questions join the pool only when the streak is
// nonzero, failure questions only when recent failures pile up.
var (
	baseQuestions = []string{
		"Which capability, if it existed, would have made the last week of work trivial?",
		"What is the single most repeated manual step in recent sessions?",
		"Which two existing capabilities could be composed into something new?",
		"What would you build if every current validation constraint were lifted for one cycle?",
		"Which assumption about the workload has gone longest without being re-tested?",
	}
	stagnationQuestions = []string{
		"What has every recent cycle produced that merely restates earlier output?",
		"Which approach has been tried three times without change, and what is its opposite?",
		"What problem is being avoided because no current gene matches it?",
		"If the current strategy preset were inverted, what would the next mutation be?",
	}
	failureQuestions = []string{
		"Which validation command fails most often, and what does it guard?",
		"What do the last rollbacks have in common?",
		"Which gene keeps being selected despite failing, and why does it keep matching?",
	}
)

// Sampling sizes.
const (
	sampleSize       = 3
	sampleSizeForced = 4 // once the streak passes the breakthrough threshold
	failureThreshold = 2
)

// Prompt is one generated divergence prompt.
type Prompt struct {
	Focus     string   `json:"focus"`
	Questions []string `json:"questions"`
}

// Context describes the situation the prompt generator works from.
type Context struct {
	State           State
	RecentFailures  int
	CapabilityCount int // active capability nodes, for baseline detection
}

// PromptGenerator assembles divergence prompts from the question pools. The
// random source is injected so tests can pin the sample.
type PromptGenerator struct {
	rng *rand.Rand
}

// NewPromptGenerator seeds the generator; a fixed seed gives deterministic
// question selection.
func NewPromptGenerator(seed int64) *PromptGenerator {
	return &PromptGenerator{rng: rand.New(rand.NewSource(seed))}
}

// Generate assembles the question pool for the context, samples from it and
// labels the prompt's focus.
func (g *PromptGenerator) Generate(ctx Context) Prompt {
	pool := append([]string(nil), baseQuestions...)
	if ctx.State.StagnantStreak > 0 {
		pool = append(pool, stagnationQuestions...)
	}
	if ctx.RecentFailures > failureThreshold {
		pool = append(pool, failureQuestions...)
	}

	n := sampleSize
	if ctx.State.StagnantStreak > 1 {
		n = sampleSizeForced
	}
	if n > len(pool) {
		n = len(pool)
	}

	// Partial Fisher-Yates over a copy: first n entries are the sample.
	for i := 0; i < n; i++ {
		j := i + g.rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return Prompt{
		Focus:     focusFor(ctx),
		Questions: pool[:n],
	}
}

func focusFor(ctx Context) string {
	switch {
	case ctx.State.StagnantStreak > 0:
		return FocusStagnation
	case ctx.RecentFailures > failureThreshold:
		return FocusFailureAnalysis
	case ctx.CapabilityCount < 3:
		return FocusBaseline
	default:
		return FocusGeneral
	}
}
