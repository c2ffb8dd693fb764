package captree

import (
	"strings"
	"time"
)

// Pruner thresholds.
const (
	autoPruneDays      = 60  // untriggered this long: prune regardless of score
	candidatePruneDays = 30  // untriggered this long with a weak score: candidate
	weakScoreFloor     = 40  // scores below this count as weak
	mergeSimilarity    = 0.8 // name-token Jaccard above this suggests a merge
)

// MergeSuggestion pairs two nodes whose names are near-duplicates.
type MergeSuggestion struct {
	NodeA      string  `json:"node_a"`
	NodeB      string  `json:"node_b"`
	Similarity float64 `json:"similarity"`
}

// PruneReport is the analysis output; the pruner never mutates the tree.
type PruneReport struct {
	AutoPrune        []string          `json:"auto_prune,omitempty"`
	CandidatePrune   []string          `json:"candidate_prune,omitempty"`
	MergeSuggestions []MergeSuggestion `json:"merge_suggestions,omitempty"`
}

// Analyze classifies every non-pruned node by staleness and reports
// near-duplicate node pairs by name similarity. Auto-prune wins over
// candidate-prune: the two sets never overlap.
func Analyze(t *Tree, now time.Time) *PruneReport {
	report := &PruneReport{}
	nodes := t.ActiveNodes()

	autoCutoff := now.AddDate(0, 0, -autoPruneDays)
	candidateCutoff := now.AddDate(0, 0, -candidatePruneDays)

	for _, n := range nodes {
		switch {
		case n.LastTriggered.Before(autoCutoff):
			report.AutoPrune = append(report.AutoPrune, n.ID)
		case n.LastTriggered.Before(candidateCutoff) && weakScore(n):
			report.CandidatePrune = append(report.CandidatePrune, n.ID)
		}
	}

	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			sim := nameSimilarity(nodes[i].Name, nodes[j].Name)
			if sim >= mergeSimilarity {
				report.MergeSuggestions = append(report.MergeSuggestions, MergeSuggestion{
					NodeA:      nodes[i].ID,
					NodeB:      nodes[j].ID,
					Similarity: sim,
				})
			}
		}
	}
	return report
}

func weakScore(n *Node) bool {
	return n.VScore == nil || *n.VScore < weakScoreFloor
}

// nameSimilarity is the Jaccard similarity of the lowercased token sets of
// two node names, split on whitespace and dots. Two empty sets are fully
// similar; one empty set against a non-empty one is fully dissimilar.
func nameSimilarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

// fillerTokens carry no capability meaning and would dilute the similarity
// of names like "Handler for rich messaging" vs "Rich Messaging Handler".
var fillerTokens = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "for": {}, "of": {}, "the": {}, "to": {}, "with": {},
}

func tokenize(name string) map[string]struct{} {
	out := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '.'
	})
	for _, f := range fields {
		if _, filler := fillerTokens[f]; f != "" && !filler {
			out[f] = struct{}{}
		}
	}
	return out
}
