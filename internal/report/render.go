package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"evoloop/internal/captree"
	"evoloop/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true).
			MarginTop(1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B6B6B"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500"))

	prunedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B6B6B")).
			Strikethrough(true)
)

// Render formats the full report for terminal output.
func Render(r *Report) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("evoloop status"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s\n", r.GeneratedAt.Format("2006-01-02 15:04"))))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Posture") + "\n")
	fmt.Fprintf(&b, "  mood=%s confidence=%.2f risk=%.2f\n",
		r.Personality.Mood, r.Personality.Confidence, r.Personality.RiskAppetite)
	fmt.Fprintf(&b, "  weights: freq=%.1f failure=%.1f burden=%.1f cost=%.1f\n",
		r.Weights.Frequency, r.Weights.FailureReduction, r.Weights.UserBurden, r.Weights.SelfCost)

	b.WriteString(sectionStyle.Render("Activity") + "\n")
	fmt.Fprintf(&b, "  capsules committed: %d\n", r.Capsules)
	for _, typ := range sortedEventTypes(r.EventCounts) {
		fmt.Fprintf(&b, "  %-20s %d\n", typ, r.EventCounts[typ])
	}
	if r.RecentDenied > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("  %d mutations denied in the last 7 days", r.RecentDenied)) + "\n")
	}

	b.WriteString(sectionStyle.Render("Top genes") + "\n")
	for _, g := range r.TopGenes(5) {
		score := "unscored"
		if g.VScore != nil {
			score = fmt.Sprintf("v=%d", *g.VScore)
		}
		fmt.Fprintf(&b, "  [%s] %-40s %s\n", g.Category, g.Name, score)
	}

	b.WriteString(sectionStyle.Render("Capability tree") + "\n")
	b.WriteString(RenderTree(r.Tree))

	if r.PruneReport != nil &&
		(len(r.PruneReport.CandidatePrune) > 0 || len(r.PruneReport.MergeSuggestions) > 0) {
		b.WriteString(sectionStyle.Render("Maintenance") + "\n")
		for _, id := range r.PruneReport.CandidatePrune {
			b.WriteString(warnStyle.Render(fmt.Sprintf("  prune candidate: %s", id)) + "\n")
		}
		for _, m := range r.PruneReport.MergeSuggestions {
			b.WriteString(warnStyle.Render(fmt.Sprintf(
				"  merge suggestion: %s + %s (%.2f)", m.NodeA, m.NodeB, m.Similarity)) + "\n")
		}
	}
	return b.String()
}

// RenderTree formats the capability tree as an indented outline. Pruned
// nodes stay visible, struck through, so operators can see what decayed.
func RenderTree(t *captree.Tree) string {
	var b strings.Builder
	renderNode(&b, t, t.Root, 0)
	return b.String()
}

func renderNode(b *strings.Builder, t *captree.Tree, n *captree.Node, depth int) {
	line := fmt.Sprintf("%s%s", strings.Repeat("  ", depth+1), n.Name)
	if n.VScore != nil {
		line += fmt.Sprintf(" (v=%d)", *n.VScore)
	}
	switch n.Status {
	case captree.StatusPruned:
		line = prunedStyle.Render(line)
	case captree.StatusCandidate:
		line = warnStyle.Render(line)
	}
	b.WriteString(line + "\n")

	children := append([]string(nil), n.Children...)
	sort.Strings(children)
	for _, id := range children {
		if child, ok := t.GetNode(id); ok {
			renderNode(b, t, child, depth+1)
		}
	}
}

func sortedEventTypes(counts map[store.EventType]int) []store.EventType {
	out := make([]store.EventType, 0, len(counts))
	for typ := range counts {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
