package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoloop/internal/bridge"
	"evoloop/internal/config"
	"evoloop/internal/gene"
	"evoloop/internal/personality"
	"evoloop/internal/signal"
	"evoloop/internal/solidify"
	"evoloop/internal/store"
	"evoloop/internal/vfm"
)

type fakeBridge struct {
	sessions    [][]signal.LogEntry
	sessionsErr error

	dispatched  []string
	report      *bridge.ExecutionReport
	dispatchErr error
}

func (f *fakeBridge) RecentSessions(agent string, n int) ([][]signal.LogEntry, error) {
	return f.sessions, f.sessionsErr
}

func (f *fakeBridge) Dispatch(ctx context.Context, task string, timeout time.Duration) (*bridge.ExecutionReport, error) {
	f.dispatched = append(f.dispatched, task)
	if f.dispatchErr != nil {
		return nil, f.dispatchErr
	}
	return f.report, nil
}

func (f *fakeBridge) WorkingChanges(ctx context.Context) (solidify.ChangeSet, error) {
	if f.report == nil {
		return solidify.ChangeSet{}, nil
	}
	return f.report.Changes, nil
}

type passRunner struct{}

func (passRunner) Run(ctx context.Context, command string) (string, error) { return "ok", nil }

type noopRollback struct{}

func (noopRollback) Restore(path string) error { return nil }
func (noopRollback) Delete(path string) error  { return nil }

func errorSession(detail string, n int) []signal.LogEntry {
	var out []signal.LogEntry
	for i := 0; i < n; i++ {
		out = append(out, signal.LogEntry{Kind: signal.EntryError, ErrorDetail: detail})
	}
	return out
}

func newTestEngine(t *testing.T, br bridge.Bridge, dryRun bool) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	cfg := config.Default(t.TempDir())
	pipe := solidify.New(st, passRunner{}, noopRollback{}, nil, solidify.Options{DryRun: dryRun})
	return New(cfg, st, br, pipe, nil), st
}

func TestRunCycleCommitsAndGrowsCapability(t *testing.T) {
	br := &fakeBridge{
		sessions: [][]signal.LogEntry{errorSession("nil pointer in parser", 3)},
		report: &bridge.ExecutionReport{
			Output:  "fixed",
			Changes: solidify.ChangeSet{ChangedFiles: []string{"parser.go"}, LinesAdded: 12},
		},
	}
	eng, st := newTestEngine(t, br, false)

	res, err := eng.RunCycle(context.Background(), false)
	require.NoError(t, err)
	require.False(t, res.Skipped, res.Reason)

	assert.Contains(t, res.Signals, "recurring_error")
	assert.Equal(t, "gene-repair-recurring-error", res.GeneID)
	assert.True(t, res.Dispatched)
	require.NotNil(t, res.Solidify)
	assert.True(t, res.Committed())

	capsules, err := st.LoadCapsules()
	require.NoError(t, err)
	require.Len(t, capsules, 1)

	tree, err := st.LoadTree()
	require.NoError(t, err)
	active := tree.ActiveNodes()
	require.Len(t, active, 1)
	require.NotNil(t, active[0].VScore)

	genes, err := st.LoadGenes()
	require.NoError(t, err)
	var linked bool
	for _, g := range genes {
		if g.ID == res.GeneID {
			linked = g.CapabilityID == active[0].ID
		}
	}
	assert.True(t, linked, "selected gene should link to the grown node")

	var pers personality.State
	ok, err := st.LoadDoc(DocPersonality, &pers)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, pers.Confidence, 0.5)

	var w vfm.Weights
	ok, err = st.LoadDoc(DocWeights, &w)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunCycleSkipsWithoutSignals(t *testing.T) {
	br := &fakeBridge{sessions: [][]signal.LogEntry{{
		{Kind: signal.EntryMessage, Role: "user", Text: "hello"},
	}}}
	eng, st := newTestEngine(t, br, false)

	res, err := eng.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, br.dispatched)

	capsules, err := st.LoadCapsules()
	require.NoError(t, err)
	assert.Empty(t, capsules)
}

func TestRunCycleContainsSessionReadFailure(t *testing.T) {
	br := &fakeBridge{sessionsErr: errors.New("sessions dir unreadable")}
	eng, _ := newTestEngine(t, br, false)

	res, err := eng.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Contains(t, res.Reason, "sessions dir unreadable")
}

func TestRunCycleDryRunSkipsDispatchAndPersistence(t *testing.T) {
	br := &fakeBridge{sessions: [][]signal.LogEntry{errorSession("boom", 3)}}
	eng, st := newTestEngine(t, br, true)

	res, err := eng.RunCycle(context.Background(), true)
	require.NoError(t, err)
	require.False(t, res.Skipped, res.Reason)
	assert.False(t, res.Dispatched)
	assert.Empty(t, br.dispatched)
	assert.True(t, res.Committed())

	capsules, err := st.LoadCapsules()
	require.NoError(t, err)
	assert.Empty(t, capsules)

	tree, err := st.LoadTree()
	require.NoError(t, err)
	assert.Empty(t, tree.ActiveNodes())

	var pers personality.State
	ok, err := st.LoadDoc(DocPersonality, &pers)
	require.NoError(t, err)
	assert.False(t, ok, "dry run must not write state documents")
}

func TestRunCycleContainsDispatchFailure(t *testing.T) {
	br := &fakeBridge{
		sessions:    [][]signal.LogEntry{errorSession("boom", 3)},
		dispatchErr: errors.New("runtime binary missing"),
	}
	eng, _ := newTestEngine(t, br, false)

	res, err := eng.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Contains(t, res.Reason, "runtime binary missing")
}

func TestRunCycleQuotaCountsFailedMutations(t *testing.T) {
	br := &fakeBridge{
		sessions: [][]signal.LogEntry{errorSession("nil pointer in parser", 3)},
		report:   &bridge.ExecutionReport{Changes: solidify.ChangeSet{ChangedFiles: []string{"parser.go"}}},
	}
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	cfg := config.Default(t.TempDir())
	cfg.Strategy = "conservative"

	// A streak of applied repair mutations that all failed validation
	// leaves events but no capsules. They still count against the quota.
	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendEvent(store.NewEvent(store.EventMutationApplied, "repair attempt").
			WithGene("gene-repair-recurring-error").WithCategory(gene.CategoryRepair)))
		// Log entries from before the category tag existed resolve
		// through the gene catalogue instead.
		require.NoError(t, st.AppendEvent(store.NewEvent(store.EventMutationApplied, "repair attempt").
			WithGene("gene-repair-recurring-error")))
	}

	pipe := solidify.New(st, passRunner{}, noopRollback{}, nil, solidify.Options{})
	eng := New(cfg, st, br, pipe, nil)

	res, err := eng.RunCycle(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Contains(t, res.Reason, "quota exceeded")
	assert.Empty(t, br.dispatched)
}

func TestRunCycleSeedsGeneCatalogueOnce(t *testing.T) {
	br := &fakeBridge{
		sessions: [][]signal.LogEntry{errorSession("boom", 3)},
		report:   &bridge.ExecutionReport{Changes: solidify.ChangeSet{ChangedFiles: []string{"a.go"}}},
	}
	eng, st := newTestEngine(t, br, false)

	_, err := eng.RunCycle(context.Background(), false)
	require.NoError(t, err)

	genes, err := st.LoadGenes()
	require.NoError(t, err)
	assert.Len(t, genes, 4)
}

func TestSolidifyWorkingTreeCommitsChanges(t *testing.T) {
	br := &fakeBridge{
		sessions: [][]signal.LogEntry{errorSession("flaky test", 3)},
		report: &bridge.ExecutionReport{
			Changes: solidify.ChangeSet{ChangedFiles: []string{"flaky_test.go"}, LinesAdded: 8},
		},
	}
	eng, st := newTestEngine(t, br, false)

	res, err := eng.SolidifyWorkingTree(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Committed())

	capsules, err := st.LoadCapsules()
	require.NoError(t, err)
	require.Len(t, capsules, 1)
}

func TestSolidifyWorkingTreeCleanIsNoop(t *testing.T) {
	eng, st := newTestEngine(t, &fakeBridge{}, false)

	res, err := eng.SolidifyWorkingTree(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Committed())
	assert.Contains(t, res.Reason, "clean")

	capsules, err := st.LoadCapsules()
	require.NoError(t, err)
	assert.Empty(t, capsules)
}

type failRunner struct{}

func (failRunner) Run(ctx context.Context, command string) (string, error) {
	return "exit status 1", errors.New("command failed")
}

func TestRevalidateGenesAllPass(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeBridge{}, false)

	results, err := eng.RevalidateGenes(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, gv := range results {
		assert.True(t, gv.Passed, gv.GeneID)
		assert.NotEmpty(t, gv.Results)
	}
}

func TestRevalidateGenesReportsFailures(t *testing.T) {
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	cfg := config.Default(t.TempDir())
	pipe := solidify.New(st, failRunner{}, noopRollback{}, nil, solidify.Options{})
	eng := New(cfg, st, &fakeBridge{}, pipe, nil)

	results, err := eng.RevalidateGenes(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, gv := range results {
		assert.False(t, gv.Passed)
	}

	events, err := st.LoadEvents()
	require.NoError(t, err)
	failures := 0
	for _, ev := range events {
		if ev.Type == store.EventSolidifyFailed {
			failures++
		}
	}
	assert.Equal(t, 4, failures)
}

func TestRunReflectionSubstantiveResetsStreak(t *testing.T) {
	br := &fakeBridge{report: &bridge.ExecutionReport{
		Output: "# Reflection\n- [ ] Build a transcript summarizer capability\nWe keep re-deriving the same parse logic per session.\n",
	}}
	eng, st := newTestEngine(t, br, false)
	require.NoError(t, st.SaveDoc(DocPCECState, map[string]int{"stagnant_streak": 1}))

	res, err := eng.RunReflection(context.Background(), 42)
	require.NoError(t, err)

	assert.True(t, res.Substantive)
	assert.Equal(t, 0, res.Streak)
	assert.NotEmpty(t, res.Actions)
	assert.Len(t, res.Prompt.Questions, 3)
}

func TestRunReflectionBridgeFailureCountsAsStagnant(t *testing.T) {
	br := &fakeBridge{dispatchErr: errors.New("no runtime")}
	eng, _ := newTestEngine(t, br, false)

	first, err := eng.RunReflection(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, first.Substantive)
	assert.Equal(t, 1, first.Streak)

	second, err := eng.RunReflection(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Streak)

	// Streak at the breakthrough threshold widens the question sample.
	third, err := eng.RunReflection(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "stagnation", third.Prompt.Focus)
	assert.Len(t, third.Prompt.Questions, 4)
}
