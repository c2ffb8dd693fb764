// Package vfm implements the value-scoring function over capability nodes:
// four weighted sub-scores collapsed into a 0-100 usefulness score, plus the
// bounded self-tuning of the weights themselves.
package vfm

import (
	"math"

	"evoloop/internal/captree"
	"evoloop/internal/gene"
	"evoloop/internal/store"
)

// WorthEvolvingThreshold is the fixed score at or above which a capability
// is considered worth further evolution.
const WorthEvolvingThreshold = 40

// Sub-score shaping constants.
const (
	subScoreCap        = 10.0
	skillWeight        = 2.0
	skillContribCap    = 6.0
	preconditionBudget = 4.0
	neutralSelfCost    = 5.0
)

// Weights are the four multipliers of the scoring function, each bounded to
// [1,5] by the mutator.
type Weights struct {
	Frequency        float64 `json:"frequency"`
	FailureReduction float64 `json:"failure_reduction"`
	UserBurden       float64 `json:"user_burden"`
	SelfCost         float64 `json:"self_cost"`
}

// DefaultWeights favors failure reduction and trigger frequency until the
// mutator has learned otherwise.
func DefaultWeights() Weights {
	return Weights{
		Frequency:        3.0,
		FailureReduction: 3.0,
		UserBurden:       2.0,
		SelfCost:         2.0,
	}
}

func (w Weights) sum() float64 {
	return w.Frequency + w.FailureReduction + w.UserBurden + w.SelfCost
}

// SubScores are the clamped [0,10] components of one score computation,
// kept for explainability in reports and events.
type SubScores struct {
	Frequency        float64 `json:"frequency"`
	FailureReduction float64 `json:"failure_reduction"`
	UserBurden       float64 `json:"user_burden"`
	SelfCost         float64 `json:"self_cost"`
}

// ComputeSubScores evaluates the four components for a node.
func ComputeSubScores(n *captree.Node, capsules []*store.Capsule, resolve captree.GeneResolver) SubScores {
	return SubScores{
		Frequency:        frequencyScore(n.TriggerCount),
		FailureReduction: failureReductionScore(n, capsules),
		UserBurden:       userBurdenScore(n),
		SelfCost:         selfCostScore(n, resolve),
	}
}

// ComputeVScore collapses the weighted sub-scores into an integer in
// [0,100]. Scoring is a pure function of its inputs: recomputing with the
// same node, capsules and weights always yields the same score.
func ComputeVScore(n *captree.Node, capsules []*store.Capsule, resolve captree.GeneResolver, w Weights) int {
	sub := ComputeSubScores(n, capsules, resolve)
	total := w.sum()
	if total <= 0 {
		return 0
	}
	weighted := sub.Frequency*w.Frequency +
		sub.FailureReduction*w.FailureReduction +
		sub.UserBurden*w.UserBurden +
		sub.SelfCost*w.SelfCost
	score := int(math.Round(weighted / (subScoreCap * total) * 100))
	return clampInt(score, 0, 100)
}

// IsWorthEvolving applies the fixed threshold.
func IsWorthEvolving(score int) bool {
	return score >= WorthEvolvingThreshold
}

// frequencyScore grows logarithmically with trigger count: min(log2(n+1), 10).
func frequencyScore(triggerCount int) float64 {
	if triggerCount < 0 {
		triggerCount = 0
	}
	return clamp(math.Log2(float64(triggerCount)+1), 0, subScoreCap)
}

// failureReductionScore is the validated fraction of capsules produced by
// the node's linked genes, scaled to [0,10]. No related capsules scores 0.
func failureReductionScore(n *captree.Node, capsules []*store.Capsule) float64 {
	linked := make(map[string]struct{}, len(n.GeneIDs))
	for _, id := range n.GeneIDs {
		linked[id] = struct{}{}
	}
	related, passed := 0, 0
	for _, c := range capsules {
		if _, ok := linked[c.GeneID]; !ok {
			continue
		}
		related++
		if c.Metrics.ValidationPassed {
			passed++
		}
	}
	if related == 0 {
		return 0
	}
	return clamp(subScoreCap*float64(passed)/float64(related), 0, subScoreCap)
}

// userBurdenScore rewards rich skill linkage and few preconditions.
func userBurdenScore(n *captree.Node) float64 {
	skills := math.Min(skillWeight*float64(len(n.Skills)), skillContribCap)
	preconds := math.Max(preconditionBudget-float64(len(n.Preconditions)), 0)
	return clamp(skills+preconds, 0, subScoreCap)
}

// selfCostScore estimates how cheap the node's genes are to run: fewer
// strategy steps and a tighter file budget score higher. Nodes whose genes
// cannot be resolved get a neutral score.
func selfCostScore(n *captree.Node, resolve captree.GeneResolver) float64 {
	var resolved []*gene.Gene
	if resolve != nil {
		for _, id := range n.GeneIDs {
			if g := resolve(id); g != nil {
				resolved = append(resolved, g)
			}
		}
	}
	if len(resolved) == 0 {
		return neutralSelfCost
	}
	var sum float64
	for _, g := range resolved {
		steps := math.Max(subScoreCap-float64(len(g.StrategySteps)), 0)
		files := math.Max(subScoreCap-float64(g.Constraints.MaxFiles)/2, 0)
		sum += (steps + files) / 2
	}
	return clamp(sum/float64(len(resolved)), 0, subScoreCap)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
