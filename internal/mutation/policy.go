package mutation

import (
	"fmt"
	"sort"

	"evoloop/internal/gene"
)

// Weights maps each category to its target share of mutations, in integer
// percent. Shares are a target quota, not a hard cap: a category is only
// denied when its recent share overshoots the target by a wide margin, or
// when its target is exactly zero.
type Weights map[gene.Category]int

// Quota enforcement parameters.
const (
	quotaWindow    = 10 // recent mutations considered
	quotaTolerance = 20 // percentage points of allowed overshoot
)

// Built-in strategy presets.
var Presets = map[string]Weights{
	"conservative": {gene.CategoryRepair: 70, gene.CategoryOptimize: 25, gene.CategoryInnovate: 5},
	"balanced":     {gene.CategoryRepair: 50, gene.CategoryOptimize: 35, gene.CategoryInnovate: 15},
	"aggressive":   {gene.CategoryRepair: 30, gene.CategoryOptimize: 35, gene.CategoryInnovate: 35},
}

// DefaultPreset is used when no strategy is configured and auto-detection
// has nothing to go on.
const DefaultPreset = "balanced"

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the weights cover every category and sum to 100.
func (w Weights) Validate() error {
	sum := 0
	for _, cat := range gene.Categories {
		share, ok := w[cat]
		if !ok {
			return fmt.Errorf("strategy weights: missing category %s", cat)
		}
		if share < 0 {
			return fmt.Errorf("strategy weights: negative share for %s", cat)
		}
		sum += share
	}
	if sum != 100 {
		return fmt.Errorf("strategy weights: shares sum to %d, want 100", sum)
	}
	return nil
}

// Allowance is the outcome of a strategy quota check.
type Allowance struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CheckAllowance decides whether a mutation of the given category fits the
// strategy. A zero-weight category is always denied. With enough history,
// the category's actual share of the most recent window may not exceed its
// target share by more than the tolerance.
func CheckAllowance(category gene.Category, w Weights, recent []gene.Category) Allowance {
	target := w[category]
	if target == 0 {
		return Allowance{Allowed: false, Reason: fmt.Sprintf(
			"category %s has zero weight under the active strategy", category)}
	}
	if len(recent) < quotaWindow {
		return Allowance{Allowed: true}
	}

	window := recent[len(recent)-quotaWindow:]
	count := 0
	for _, c := range window {
		if c == category {
			count++
		}
	}
	actual := count * 100 / quotaWindow
	if actual > target+quotaTolerance {
		return Allowance{Allowed: false, Reason: fmt.Sprintf(
			"quota exceeded: %s at %d%% of last %d mutations, target %d%%",
			category, actual, quotaWindow, target)}
	}
	return Allowance{Allowed: true}
}

// HistoryStats summarizes recent outcome history for preset auto-detection.
type HistoryStats struct {
	Total         int
	Failures      int
	InnovateCount int
	Plateau       bool // recent history shows a stable success plateau
}

// DetectPreset picks the preset that fits recent history: failure-heavy
// history calls for conservative repair work, a stable plateau with little
// innovation invites aggression, anything else stays balanced.
func DetectPreset(stats HistoryStats) string {
	if stats.Total == 0 {
		return DefaultPreset
	}
	failureRate := float64(stats.Failures) / float64(stats.Total)
	if failureRate > 0.4 {
		return "conservative"
	}
	innovateShare := float64(stats.InnovateCount) / float64(stats.Total)
	if stats.Plateau && innovateShare < 0.1 {
		return "aggressive"
	}
	return DefaultPreset
}
