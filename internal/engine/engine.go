// Package engine orchestrates one full evolution cycle: read recent agent
// sessions, extract signals, select a gene, gate the mutation, dispatch the
// work to the agent runtime and solidify the result. Every step is audited
// as an event, and no failure inside a cycle escapes it.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"evoloop/internal/adl"
	"evoloop/internal/bridge"
	"evoloop/internal/captree"
	"evoloop/internal/config"
	"evoloop/internal/gene"
	"evoloop/internal/mutation"
	"evoloop/internal/personality"
	"evoloop/internal/signal"
	"evoloop/internal/solidify"
	"evoloop/internal/store"
	"evoloop/internal/vfm"
)

// Auxiliary document names under the data root.
const (
	DocPersonality = "personality.json"
	DocWeights     = "weights.json"
	DocPCECState   = "pcec_state.json"
)

// recentWindow bounds how much history feeds preset detection and weight
// mutation.
const recentWindow = 20

// Engine wires the full pipeline together.
type Engine struct {
	cfg      *config.Config
	store    store.Store
	bridge   bridge.Bridge
	pipeline *solidify.Pipeline
	extract  *signal.Extractor
	log      *zap.Logger
	now      func() time.Time
}

// New builds an engine. The logger may be nil.
func New(cfg *config.Config, st store.Store, br bridge.Bridge, pipe *solidify.Pipeline, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		store:    st,
		bridge:   br,
		pipeline: pipe,
		extract:  signal.NewExtractor(),
		log:      log,
		now:      time.Now,
	}
}

// CycleResult records what a cycle did, including why it stopped early.
type CycleResult struct {
	Signals    []string         `json:"signals,omitempty"`
	GeneID     string           `json:"gene_id,omitempty"`
	GeneName   string           `json:"gene_name,omitempty"`
	MatchScore float64          `json:"match_score,omitempty"`
	Preset     string           `json:"preset,omitempty"`
	MutationID string           `json:"mutation_id,omitempty"`
	Dispatched bool             `json:"dispatched"`
	Solidify   *solidify.Result `json:"solidify,omitempty"`
	Skipped    bool             `json:"skipped"`
	Reason     string           `json:"reason,omitempty"`
}

// Committed reports whether the cycle landed a change.
func (r *CycleResult) Committed() bool {
	return r.Solidify != nil && r.Solidify.Committed()
}

// RunCycle drives one evolution cycle end to end. Early exits (no signals,
// no matching gene, quota denial, gate violation) are reported in the
// result, not as errors; errors are reserved for storage and runtime
// failures the cycle cannot contain.
func (e *Engine) RunCycle(ctx context.Context, dryRun bool) (*CycleResult, error) {
	result := &CycleResult{}

	sessions, err := e.bridge.RecentSessions(e.cfg.Agent, e.cfg.SessionWindow)
	if err != nil {
		return e.skip(result, fmt.Sprintf("read sessions: %v", err)), nil
	}
	var entries []signal.LogEntry
	for _, s := range sessions {
		entries = append(entries, s...)
	}

	result.Signals = e.extract.Extract(entries)
	if len(result.Signals) == 0 {
		return e.skip(result, "no signals extracted from recent sessions"), nil
	}
	e.emit(store.NewEvent(store.EventSignalExtracted,
		fmt.Sprintf("%d signals from %d sessions", len(result.Signals), len(sessions))))

	genes, err := e.loadOrSeedGenes()
	if err != nil {
		return nil, err
	}
	capsules, err := e.store.LoadCapsules()
	if err != nil {
		return nil, fmt.Errorf("engine: load capsules: %w", err)
	}
	events, err := e.store.LoadEvents()
	if err != nil {
		return nil, fmt.Errorf("engine: load events: %w", err)
	}

	pers := e.loadPersonality()
	g, score, ok := gene.SelectGene(genes, result.Signals, gene.SelectOptions{
		PreferCategory: pers.PreferredCategory(),
	})
	if !ok {
		return e.skip(result, "no gene matched the signal set"), nil
	}
	result.GeneID = g.ID
	result.GeneName = g.Name
	result.MatchScore = score
	e.emit(store.NewEvent(store.EventGeneSelected,
		fmt.Sprintf("%s scored %.2f", g.Name, score)).WithGene(g.ID))

	result.Preset = e.cfg.Strategy
	if result.Preset == "" {
		result.Preset = mutation.DetectPreset(historyStats(capsules, events))
	}
	weights, ok := mutation.Presets[result.Preset]
	if !ok {
		return e.skip(result, fmt.Sprintf("unknown strategy preset %q", result.Preset)), nil
	}

	if allow := mutation.CheckAllowance(g.Category, weights, recentCategories(events, genes)); !allow.Allowed {
		e.emit(store.NewEvent(store.EventMutationDenied, allow.Reason).WithGene(g.ID))
		return e.skip(result, allow.Reason), nil
	}

	m, err := mutation.FromGene(g)
	if err != nil {
		return e.skip(result, fmt.Sprintf("build mutation: %v", err)), nil
	}
	result.MutationID = m.ID

	// Pre-flight gate: catch vague intent and a regressing baseline before
	// any work is dispatched. The pipeline re-checks against the realized
	// blast radius afterwards.
	if violations := adl.Check(m, mutation.BlastRadius{}, capsules); len(violations) > 0 {
		e.emit(store.NewEvent(store.EventADLViolation,
			fmt.Sprintf("pre-flight: %v", violations)).WithGene(g.ID))
		return e.skip(result, fmt.Sprintf("pre-flight gate rejected: %v", violations)), nil
	}

	changes := solidify.ChangeSet{}
	if !dryRun {
		report, err := e.bridge.Dispatch(ctx, buildTask(g, result.Signals), e.cfg.Bridge.DispatchTimeout)
		if err != nil {
			return e.skip(result, fmt.Sprintf("dispatch: %v", err)), nil
		}
		result.Dispatched = true
		changes = report.Changes
		e.emit(store.NewEvent(store.EventMutationApplied,
			fmt.Sprintf("%s touched %d files", g.Name, changes.Blast().Files)).
			WithGene(g.ID).WithCategory(g.Category))
	}

	res, err := e.pipeline.Solidify(ctx, g, m, changes)
	if err != nil {
		return nil, fmt.Errorf("engine: solidify: %w", err)
	}
	result.Solidify = res

	if dryRun {
		return result, nil
	}
	if err := e.afterSolidify(g, genes, res, pers); err != nil {
		return nil, err
	}
	return result, nil
}

// GeneValidation pairs a gene with its replayed validation outcome.
type GeneValidation struct {
	GeneID  string                      `json:"gene_id"`
	Name    string                      `json:"name"`
	Passed  bool                        `json:"passed"`
	Results []solidify.ValidationResult `json:"results,omitempty"`
}

// RevalidateGenes replays the validation commands of every stored gene and
// reports per-gene outcomes. Failures are audited but do not stop the rest
// of the catalogue from being checked.
func (e *Engine) RevalidateGenes(ctx context.Context) ([]GeneValidation, error) {
	genes, err := e.loadOrSeedGenes()
	if err != nil {
		return nil, err
	}

	out := make([]GeneValidation, 0, len(genes))
	for _, g := range genes {
		gv := GeneValidation{GeneID: g.ID, Name: g.Name, Passed: true}
		gv.Results = e.pipeline.Revalidate(ctx, g)
		for _, r := range gv.Results {
			if !r.Passed {
				gv.Passed = false
				e.emit(store.NewEvent(store.EventSolidifyFailed,
					fmt.Sprintf("revalidation failed: %s", r.Command)).WithGene(g.ID))
				break
			}
		}
		out = append(out, gv)
	}
	return out, nil
}

// SolidifyWorkingTree treats the current working tree as an already-applied
// mutation: the best-matching gene from recent signals supplies the
// validation commands and constraints, and the pipeline decides whether the
// changes become a capsule or get rolled back.
func (e *Engine) SolidifyWorkingTree(ctx context.Context, dryRun bool) (*solidify.Result, error) {
	changes, err := e.bridge.WorkingChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: measure working tree: %w", err)
	}
	if changes.Blast().Files == 0 {
		return &solidify.Result{State: solidify.StateCommitted, Reason: "working tree is clean"}, nil
	}

	genes, err := e.loadOrSeedGenes()
	if err != nil {
		return nil, err
	}

	sessions, err := e.bridge.RecentSessions(e.cfg.Agent, e.cfg.SessionWindow)
	if err != nil {
		sessions = nil
	}
	var entries []signal.LogEntry
	for _, s := range sessions {
		entries = append(entries, s...)
	}
	signals := e.extract.Extract(entries)

	g, _, ok := gene.SelectGene(genes, signals, gene.SelectOptions{})
	if !ok {
		// No signal match; fall back to the first repair gene so the
		// change still runs through validation and the gate.
		for _, cand := range genes {
			if cand.Category == gene.CategoryRepair {
				g = cand
				break
			}
		}
		if g == nil {
			return nil, fmt.Errorf("engine: no gene available to validate against")
		}
	}

	m, err := mutation.FromGene(g)
	if err != nil {
		return nil, fmt.Errorf("engine: build mutation: %w", err)
	}

	res, err := e.pipeline.Solidify(ctx, g, m, changes)
	if err != nil {
		return nil, fmt.Errorf("engine: solidify: %w", err)
	}
	if !dryRun {
		if err := e.afterSolidify(g, genes, res, e.loadPersonality()); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// afterSolidify folds the outcome back into the durable state: capability
// tree growth, value re-scoring, weight mutation and personality update.
func (e *Engine) afterSolidify(g *gene.Gene, genes []*gene.Gene, res *solidify.Result, pers personality.State) error {
	now := e.now()

	if res.Committed() {
		if err := e.growCapability(g, genes, now); err != nil {
			return err
		}
	}

	capsules, err := e.store.LoadCapsules()
	if err != nil {
		return fmt.Errorf("engine: load capsules: %w", err)
	}
	events, err := e.store.LoadEvents()
	if err != nil {
		return fmt.Errorf("engine: load events: %w", err)
	}

	weights := e.loadWeights()
	weights = vfm.MutateWeights(weights, outcomeStats(capsules, events))
	if err := e.store.SaveDoc(DocWeights, weights); err != nil {
		return fmt.Errorf("engine: save weights: %w", err)
	}

	pers = pers.RecordOutcome(res.Committed(), now)
	if err := e.store.SaveDoc(DocPersonality, pers); err != nil {
		return fmt.Errorf("engine: save personality: %w", err)
	}
	return nil
}

// growCapability links a committed gene into the capability tree: touch the
// linked node when one exists, otherwise grow a fresh node under the root.
// The node's value score is recomputed either way and cached on the gene.
func (e *Engine) growCapability(g *gene.Gene, genes []*gene.Gene, now time.Time) error {
	tree, err := e.store.LoadTree()
	if err != nil {
		return fmt.Errorf("engine: load tree: %w", err)
	}

	node, exists := tree.GetNode(g.CapabilityID)
	if g.CapabilityID == "" || !exists {
		node, err = tree.GrowNode(captree.RootID, captree.Candidate{
			Name:    g.Name,
			Level:   captree.LevelLow,
			Input:   fmt.Sprintf("signals matching %v", g.SignalPatterns),
			Output:  firstStep(g),
			GeneIDs: []string{g.ID},
		})
		if err != nil {
			return fmt.Errorf("engine: grow capability: %w", err)
		}
		g.CapabilityID = node.ID
		e.emit(store.NewEvent(store.EventCapabilityGrown, node.ID).WithGene(g.ID))
	}
	tree.Touch(node.ID, now)

	capsules, err := e.store.LoadCapsules()
	if err != nil {
		return fmt.Errorf("engine: load capsules: %w", err)
	}
	score := vfm.ComputeVScore(node, capsules, resolver(genes), e.loadWeights())
	node.VScore = &score
	g.VScore = &score
	g.UpdatedAt = now

	if err := e.store.SaveTree(tree); err != nil {
		return fmt.Errorf("engine: save tree: %w", err)
	}
	if err := e.store.SaveGenes(genes); err != nil {
		return fmt.Errorf("engine: save genes: %w", err)
	}
	return nil
}

func (e *Engine) loadOrSeedGenes() ([]*gene.Gene, error) {
	genes, err := e.store.LoadGenes()
	if err != nil {
		return nil, fmt.Errorf("engine: load genes: %w", err)
	}
	if len(genes) > 0 {
		return genes, nil
	}
	genes = gene.SeedCatalogue(e.now())
	if err := e.store.SaveGenes(genes); err != nil {
		return nil, fmt.Errorf("engine: seed genes: %w", err)
	}
	e.log.Info("seeded gene catalogue", zap.Int("genes", len(genes)))
	return genes, nil
}

func (e *Engine) loadPersonality() personality.State {
	pers := personality.Default()
	if ok, err := e.store.LoadDoc(DocPersonality, &pers); err != nil || !ok {
		return personality.Default()
	}
	return pers
}

func (e *Engine) loadWeights() vfm.Weights {
	w := vfm.DefaultWeights()
	if ok, err := e.store.LoadDoc(DocWeights, &w); err != nil || !ok {
		return vfm.DefaultWeights()
	}
	return w
}

func (e *Engine) skip(result *CycleResult, reason string) *CycleResult {
	result.Skipped = true
	result.Reason = reason
	e.log.Info("cycle skipped", zap.String("reason", reason))
	return result
}

func (e *Engine) emit(ev store.Event) {
	if err := e.store.AppendEvent(ev); err != nil {
		e.log.Warn("event append failed", zap.Error(err))
	}
}

// buildTask renders the dispatch instruction the agent runtime receives.
func buildTask(g *gene.Gene, signals []string) string {
	task := fmt.Sprintf("Apply the %q strategy (%s).\nTriggering signals: %v\nSteps:\n",
		g.Name, g.Category, signals)
	for i, step := range g.StrategySteps {
		task += fmt.Sprintf("%d. %s\n", i+1, step)
	}
	if g.Constraints.MaxFiles > 0 {
		task += fmt.Sprintf("Touch at most %d files.\n", g.Constraints.MaxFiles)
	}
	for _, p := range g.Constraints.ForbiddenPaths {
		task += fmt.Sprintf("Never modify %s.\n", p)
	}
	return task
}

func firstStep(g *gene.Gene) string {
	if len(g.StrategySteps) > 0 {
		return g.StrategySteps[0]
	}
	return g.Name
}

func resolver(genes []*gene.Gene) captree.GeneResolver {
	byID := make(map[string]*gene.Gene, len(genes))
	for _, g := range genes {
		byID[g.ID] = g
	}
	return func(id string) *gene.Gene { return byID[id] }
}

// historyStats summarizes recent events for strategy auto-detection.
func historyStats(capsules []*store.Capsule, events []store.Event) mutation.HistoryStats {
	var stats mutation.HistoryStats
	for _, ev := range tail(events, recentWindow) {
		switch ev.Type {
		case store.EventSolidifySuccess:
			stats.Total++
		case store.EventSolidifyFailed:
			stats.Total++
			stats.Failures++
		}
	}
	for _, c := range tail(capsules, recentWindow) {
		if c.Category == gene.CategoryInnovate {
			stats.InnovateCount++
		}
	}
	stats.Plateau = stats.Total >= 10 && stats.Failures == 0
	return stats
}

// outcomeStats summarizes recent history for weight mutation.
func outcomeStats(capsules []*store.Capsule, events []store.Event) vfm.OutcomeStats {
	var stats vfm.OutcomeStats
	for _, ev := range tail(events, recentWindow) {
		switch ev.Type {
		case store.EventSolidifySuccess:
			stats.Total++
			stats.Successes++
		case store.EventSolidifyFailed:
			stats.Total++
			stats.Failures++
		case store.EventCapabilityGrown:
			stats.GrowthEvents++
		}
	}
	for _, c := range tail(capsules, recentWindow) {
		if c.Category == gene.CategoryInnovate {
			stats.InnovateCount++
		}
	}
	return stats
}

// recentCategories lists the category of every applied mutation in event
// order. The quota window must see mutations that later failed validation
// and rolled back, so it is fed from the event log rather than the capsule
// history. Older events without a category tag fall back to the gene
// catalogue for resolution.
func recentCategories(events []store.Event, genes []*gene.Gene) []gene.Category {
	byGene := make(map[string]gene.Category, len(genes))
	for _, g := range genes {
		byGene[g.ID] = g.Category
	}
	var out []gene.Category
	for _, e := range events {
		if e.Type != store.EventMutationApplied {
			continue
		}
		c := e.Category
		if c == "" {
			c = byGene[e.GeneID]
		}
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func tail[T any](list []T, n int) []T {
	if len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}
