package gene

import (
	"sort"
	"strings"

	"evoloop/internal/signal"
)

// Selection tuning.
const (
	// DefaultMinScore is the floor below which a gene is never selected.
	DefaultMinScore = 0.3

	// categoryBonus is the flat boost applied when a gene's category matches
	// the caller's preference. A preference nudges ranking, it never filters.
	categoryBonus = 0.1

	exactMatchScore  = 1.0
	prefixMatchScore = 0.5
)

// Ranked pairs a gene with its match score for one signal set.
type Ranked struct {
	Gene  *Gene
	Score float64
}

// SelectOptions tunes SelectGene.
type SelectOptions struct {
	// PreferCategory, when set, grants the category bonus to matching genes.
	PreferCategory Category

	// MinScore overrides DefaultMinScore when positive.
	MinScore float64
}

// MatchScore scores how well a gene's required patterns are covered by the
// signal set: 1.0 per verbatim hit, 0.5 per prefix-wildcard hit, averaged
// over all patterns. The result is always in [0,1].
func MatchScore(g *Gene, signals []string) float64 {
	if len(g.SignalPatterns) == 0 || len(signals) == 0 {
		return 0
	}
	present := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		present[s] = struct{}{}
	}

	var sum float64
	for _, pattern := range g.SignalPatterns {
		if _, ok := present[pattern]; ok {
			sum += exactMatchScore
			continue
		}
		if signal.HasPrefixForm(pattern) {
			prefix := signal.PrefixOf(pattern)
			for _, s := range signals {
				if strings.HasPrefix(s, prefix) {
					sum += prefixMatchScore
					break
				}
			}
		}
	}
	return sum / float64(len(g.SignalPatterns))
}

// RankGenes scores every gene against the signal set, drops zero scores and
// returns the rest sorted descending by score. Ties keep the input order.
// An empty signal set yields an empty ranking.
func RankGenes(genes []*Gene, signals []string) []Ranked {
	if len(signals) == 0 {
		return nil
	}
	ranked := make([]Ranked, 0, len(genes))
	for _, g := range genes {
		score := MatchScore(g, signals)
		if score > 0 {
			ranked = append(ranked, Ranked{Gene: g, Score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// SelectGene picks the best-matching gene for the signal set, applying the
// category preference bonus and the minimum-score floor. Returns false when
// nothing qualifies, including for an empty signal set.
func SelectGene(genes []*Gene, signals []string, opts SelectOptions) (*Gene, float64, bool) {
	if len(signals) == 0 {
		return nil, 0, false
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	var (
		best      *Gene
		bestScore float64
	)
	for _, g := range genes {
		score := MatchScore(g, signals)
		if score <= 0 {
			continue
		}
		if opts.PreferCategory != "" && g.Category == opts.PreferCategory {
			score += categoryBonus
		}
		if score < minScore {
			continue
		}
		if best == nil || score > bestScore {
			best, bestScore = g, score
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best, bestScore, true
}
