package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"evoloop/internal/captree"
	"evoloop/internal/pcec"
	"evoloop/internal/store"
)

// ReflectionResult records one divergence cycle.
type ReflectionResult struct {
	CycleID     string      `json:"cycle_id"`
	Prompt      pcec.Prompt `json:"prompt"`
	Actions     []string    `json:"actions,omitempty"`
	Insights    []string    `json:"insights,omitempty"`
	Substantive bool        `json:"substantive"`
	Streak      int         `json:"streak"`
	Pruned      []string    `json:"pruned,omitempty"`
	Merges      int         `json:"merges"`
}

// RunReflection runs one divergence cycle: generate a prompt from the
// stagnation state, dispatch it to the agent runtime, classify the output,
// fold the result back into the stagnation streak and do tree maintenance.
// A bridge failure still closes the cycle, as a stagnant one.
func (e *Engine) RunReflection(ctx context.Context, seed int64) (*ReflectionResult, error) {
	now := e.now()

	var state pcec.State
	if ok, err := e.store.LoadDoc(DocPCECState, &state); err != nil || !ok {
		state = pcec.State{}
	}

	tree, err := e.store.LoadTree()
	if err != nil {
		return nil, fmt.Errorf("engine: load tree: %w", err)
	}
	events, err := e.store.LoadEvents()
	if err != nil {
		return nil, fmt.Errorf("engine: load events: %w", err)
	}

	gen := pcec.NewPromptGenerator(seed)
	prompt := gen.Generate(pcec.Context{
		State:           state,
		RecentFailures:  countFailures(events),
		CapabilityCount: len(tree.ActiveNodes()),
	})

	cycle := pcec.NewCycle(now)
	result := &ReflectionResult{CycleID: cycle.ID, Prompt: prompt}

	report, err := e.bridge.Dispatch(ctx, renderPrompt(prompt), e.cfg.Bridge.DispatchTimeout)
	if err != nil {
		e.log.Warn("reflection dispatch failed", zap.Error(err))
	} else {
		extracted := pcec.ExtractOutcomes(report.Output)
		result.Actions = extracted.Actions
		result.Insights = extracted.Insights
		for _, a := range extracted.Actions {
			cycle.Record(pcec.OutcomeCapability, a)
		}
		for _, in := range extracted.Insights {
			cycle.Record(pcec.OutcomeAbstraction, in)
		}
	}

	state = pcec.Evaluate(cycle, state, now)
	result.Substantive = cycle.Status == pcec.CycleCompleted
	result.Streak = state.StagnantStreak
	if err := e.store.SaveDoc(DocPCECState, state); err != nil {
		return nil, fmt.Errorf("engine: save reflection state: %w", err)
	}

	pruned, merges, err := e.maintainTree(tree, now)
	if err != nil {
		return nil, err
	}
	result.Pruned = pruned
	result.Merges = merges

	e.emit(store.NewEvent(store.EventPCECCycle, fmt.Sprintf(
		"focus=%s substantive=%v streak=%d pruned=%d",
		prompt.Focus, result.Substantive, state.StagnantStreak, len(pruned))).
		WithCycle(cycle.ID))
	return result, nil
}

// maintainTree applies the pruner's analysis: stale nodes are pruned,
// near-duplicate pairs merged. Candidate-prune nodes are only reported.
func (e *Engine) maintainTree(tree *captree.Tree, now time.Time) ([]string, int, error) {
	report := captree.Analyze(tree, now)

	pruned := tree.PruneStale(60, now)
	for _, id := range pruned {
		e.emit(store.NewEvent(store.EventCapabilityPruned, id))
	}

	merges := 0
	for _, s := range report.MergeSuggestions {
		if _, err := tree.MergeNodes(s.NodeA, s.NodeB); err != nil {
			// One of the pair may already be gone from an earlier merge.
			continue
		}
		merges++
	}

	if len(pruned) > 0 || merges > 0 {
		if err := e.store.SaveTree(tree); err != nil {
			return nil, 0, fmt.Errorf("engine: save tree: %w", err)
		}
	}
	return pruned, merges, nil
}

func countFailures(events []store.Event) int {
	n := 0
	for _, ev := range tail(events, recentWindow) {
		if ev.Type == store.EventSolidifyFailed || ev.Type == store.EventRollback {
			n++
		}
	}
	return n
}

func renderPrompt(p pcec.Prompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reflection focus: %s\n", p.Focus)
	b.WriteString("Answer each question with concrete next actions, marked as '- [ ]' checkboxes:\n")
	for i, q := range p.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return b.String()
}
