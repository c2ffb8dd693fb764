// Package adl implements the non-negotiable safety gate applied to every
// mutation before and after execution. The gate enforces a fixed priority
// ordering over design values and rejects any proposal or outcome violating
// one of its five invariants.
package adl

import (
	"strings"

	"evoloop/internal/gene"
	"evoloop/internal/mutation"
	"evoloop/internal/store"
)

// Priority is the enforced value ordering: anything lower on the list is
// never bought at the cost of anything higher.
var Priority = []string{"stability", "explainability", "reusability", "extensibility", "novelty"}

// Violation names one failed gate check.
type Violation string

const (
	ViolationComplexity   Violation = "complexity_increase_without_justification"
	ViolationUnverifiable Violation = "unverifiable_evolution"
	ViolationVague        Violation = "vague_concept_detected"
	ViolationStability    Violation = "stability_regression"
	ViolationNoRollback   Violation = "no_rollback_path"
)

// Gate tuning constants.
const (
	complexityFileLimit = 20 // innovate blast above this needs justification
	minEffectLength     = 10 // shortest acceptable expected-effect text

	regressionHistoryMin = 10  // capsules needed before regression is judged
	regressionWindow     = 5   // recent vs preceding window size
	regressionRatio      = 0.9 // recent rate below this fraction of preceding regresses
)

// vagueBlacklist lists phrases that mark an expected effect as hand-waving.
// Matched case-insensitively.
var vagueBlacklist = []string{
	"in some sense",
	"from a higher dimension",
	"somehow",
	"holistically",
	"transcend",
	"某种意义上",
	"更高维度",
}

// Check runs all five gate invariants and returns every violation found.
// A proposal passes only when the returned list is empty.
func Check(m *mutation.Mutation, blast mutation.BlastRadius, history []*store.Capsule) []Violation {
	var violations []Violation

	if m.Category == gene.CategoryInnovate && blast.Files > complexityFileLimit {
		violations = append(violations, ViolationComplexity)
	}
	if len(strings.TrimSpace(m.ExpectedEffect)) < minEffectLength {
		violations = append(violations, ViolationUnverifiable)
	}
	if containsVagueLanguage(m.ExpectedEffect) {
		violations = append(violations, ViolationVague)
	}
	if HasStabilityRegression(history) {
		violations = append(violations, ViolationStability)
	}
	if m.GeneID == "" {
		violations = append(violations, ViolationNoRollback)
	}
	return violations
}

func containsVagueLanguage(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range vagueBlacklist {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// HasStabilityRegression reports whether the capsule history shows the
// success rate of the most recent window dropping below 90% of the rate of
// the window before it. Histories shorter than ten capsules never regress.
func HasStabilityRegression(history []*store.Capsule) bool {
	if len(history) < regressionHistoryMin {
		return false
	}
	recent := history[len(history)-regressionWindow:]
	preceding := history[len(history)-2*regressionWindow : len(history)-regressionWindow]

	recentRate := successRate(recent)
	precedingRate := successRate(preceding)
	return recentRate < precedingRate*regressionRatio
}

func successRate(capsules []*store.Capsule) float64 {
	if len(capsules) == 0 {
		return 0
	}
	passed := 0
	for _, c := range capsules {
		if c.Metrics.ValidationPassed {
			passed++
		}
	}
	return float64(passed) / float64(len(capsules))
}
