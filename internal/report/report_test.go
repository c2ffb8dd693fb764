package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoloop/internal/captree"
	"evoloop/internal/gene"
	"evoloop/internal/store"
)

func seededStore(t *testing.T) (*store.FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewFileStore(dir)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, st.SaveGenes(gene.SeedCatalogue(now)))

	tree := captree.New()
	_, err = tree.GrowNode(captree.RootID, captree.Candidate{
		Name:  "Stabilize recurring error",
		Level: captree.LevelLow,
	})
	require.NoError(t, err)
	require.NoError(t, st.SaveTree(tree))

	require.NoError(t, st.AppendCapsule(&store.Capsule{
		ID:        "cap-1",
		Category:  gene.CategoryRepair,
		Summary:   "fixed parser crash",
		CreatedAt: now,
	}))
	require.NoError(t, st.AppendEvent(store.NewEvent(store.EventSolidifySuccess, "committed")))
	require.NoError(t, st.AppendEvent(store.NewEvent(store.EventMutationDenied, "quota")))
	return st, dir
}

func TestBuildAggregatesState(t *testing.T) {
	st, dir := seededStore(t)

	r, err := Build(context.Background(), st, dir, time.Now())
	require.NoError(t, err)

	assert.Len(t, r.Genes, 4)
	assert.Equal(t, 1, r.Capsules)
	assert.Len(t, r.Tree.ActiveNodes(), 1)
	assert.Equal(t, 1, r.EventCounts[store.EventSolidifySuccess])
	assert.Equal(t, 1, r.EventCounts[store.EventMutationDenied])
	assert.Equal(t, 1, r.RecentDenied)
	assert.InDelta(t, 0.5, r.Personality.Confidence, 0.001)
}

func TestBuildOnEmptyStore(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewFileStore(dir)
	require.NoError(t, err)

	r, err := Build(context.Background(), st, dir, time.Now())
	require.NoError(t, err)

	assert.Empty(t, r.Genes)
	assert.Zero(t, r.Capsules)
	assert.Zero(t, r.RecentDenied)
}

func TestTopGenesOrdersByScore(t *testing.T) {
	hi, lo := 80, 20
	r := &Report{Genes: []*gene.Gene{
		{ID: "a", Name: "unscored"},
		{ID: "b", Name: "strong", VScore: &hi},
		{ID: "c", Name: "weak", VScore: &lo},
	}}

	top := r.TopGenes(2)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].ID)
	assert.Equal(t, "c", top[1].ID)
}

func TestRenderIncludesTreeAndCounts(t *testing.T) {
	st, dir := seededStore(t)
	r, err := Build(context.Background(), st, dir, time.Now())
	require.NoError(t, err)

	out := Render(r)
	assert.Contains(t, out, "Stabilize recurring error")
	assert.Contains(t, out, "capsules committed: 1")
	assert.Contains(t, out, "denied in the last 7 days")
}

func TestRenderTreeShowsNodesGrownAfterReload(t *testing.T) {
	st, _ := seededStore(t)

	// Growth in a later run, against a tree reloaded from disk, must show
	// up when the reloaded tree is rendered again.
	tree, err := st.LoadTree()
	require.NoError(t, err)
	_, err = tree.GrowNode(captree.RootID, captree.Candidate{
		Name:  "Batch session imports",
		Level: captree.LevelLow,
	})
	require.NoError(t, err)
	require.NoError(t, st.SaveTree(tree))

	reloaded, err := st.LoadTree()
	require.NoError(t, err)
	out := RenderTree(reloaded)
	assert.Contains(t, out, "Stabilize recurring error")
	assert.Contains(t, out, "Batch session imports")
}
