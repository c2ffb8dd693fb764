package captree

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoloop/internal/gene"
)

func node(id, parent, name string) *Node {
	return &Node{
		ID:       id,
		Name:     name,
		Level:    LevelLow,
		ParentID: parent,
		Status:   StatusActive,
	}
}

func TestNewTree(t *testing.T) {
	tr := New()
	root, ok := tr.GetNode(RootID)
	require.True(t, ok)
	assert.Equal(t, "", root.ParentID)
	assert.Equal(t, StatusActive, root.Status)
}

func TestAddNode(t *testing.T) {
	tr := New()

	require.NoError(t, tr.AddNode(node("io", RootID, "IO capabilities")))
	require.NoError(t, tr.AddNode(node("io.read", "io", "Read files")))

	// Duplicate id fails.
	assert.Error(t, tr.AddNode(node("io", RootID, "IO again")))

	// Missing parent fails.
	assert.Error(t, tr.AddNode(node("net.fetch", "net", "Fetch URLs")))

	// Malformed nodes fail.
	assert.Error(t, tr.AddNode(&Node{ID: "x", ParentID: RootID, Level: LevelLow}))
	assert.Error(t, tr.AddNode(&Node{ID: "x", Name: "x", ParentID: RootID, Level: "giant"}))
	assert.Error(t, tr.AddNode(node(RootID, RootID, "fake root")))

	parent, _ := tr.GetNode("io")
	assert.Contains(t, parent.Children, "io.read")
}

func TestGetChildrenAndPath(t *testing.T) {
	tr := New()
	require.NoError(t, tr.AddNode(node("io", RootID, "IO")))
	require.NoError(t, tr.AddNode(node("io.read", "io", "Read")))
	require.NoError(t, tr.AddNode(node("io.write", "io", "Write")))

	children := tr.GetChildren("io")
	require.Len(t, children, 2)

	path := tr.GetPath("io.read")
	require.Len(t, path, 3)
	ids := []string{path[0].ID, path[1].ID, path[2].ID}
	if diff := cmp.Diff([]string{RootID, "io", "io.read"}, ids); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}

	assert.Nil(t, tr.GetPath("missing"))
	assert.Nil(t, tr.GetChildren("missing"))
}

func TestRemoveNode_Recursive(t *testing.T) {
	tr := New()
	require.NoError(t, tr.AddNode(node("io", RootID, "IO")))
	require.NoError(t, tr.AddNode(node("io.read", "io", "Read")))
	require.NoError(t, tr.AddNode(node("io.read.binary", "io.read", "Read binary")))

	require.NoError(t, tr.RemoveNode("io"))

	for _, id := range []string{"io", "io.read", "io.read.binary"} {
		_, ok := tr.GetNode(id)
		assert.Falsef(t, ok, "%s should be gone", id)
	}
	// No surviving node references the removed subtree.
	for _, n := range tr.Nodes {
		for _, child := range n.Children {
			assert.NotEqual(t, "io", child)
			assert.NotEqual(t, "io.read", child)
		}
	}

	assert.Error(t, tr.RemoveNode("missing"))
	assert.Error(t, tr.RemoveNode(RootID))
}

func TestMergeNodes(t *testing.T) {
	tr := New()
	a := node("msg", RootID, "Messaging")
	a.TriggerCount = 5
	a.GeneIDs = []string{"g1", "g2"}
	a.Skills = []string{"send"}
	b := node("msg2", RootID, "Messaging v2")
	b.TriggerCount = 2
	b.GeneIDs = []string{"g2", "g3"}
	b.Skills = []string{"send", "receive"}
	require.NoError(t, tr.AddNode(a))
	require.NoError(t, tr.AddNode(b))
	require.NoError(t, tr.AddNode(node("msg2.rich", "msg2", "Rich messaging")))

	keeper, err := tr.MergeNodes("msg", "msg2")
	require.NoError(t, err)
	assert.Equal(t, "msg", keeper.ID)

	// Genes and skills are set-unioned.
	assert.ElementsMatch(t, []string{"g1", "g2", "g3"}, keeper.GeneIDs)
	assert.ElementsMatch(t, []string{"send", "receive"}, keeper.Skills)
	assert.Equal(t, 7, keeper.TriggerCount)

	// Children are re-parented to the keeper.
	child, ok := tr.GetNode("msg2.rich")
	require.True(t, ok)
	assert.Equal(t, "msg", child.ParentID)
	assert.Contains(t, keeper.Children, "msg2.rich")

	// The loser is gone and its parent no longer lists it.
	_, ok = tr.GetNode("msg2")
	assert.False(t, ok)
	assert.NotContains(t, tr.Root.Children, "msg2")
}

func TestMergeNodes_HigherTriggerWins(t *testing.T) {
	tr := New()
	a := node("a", RootID, "A")
	a.TriggerCount = 1
	b := node("b", RootID, "B")
	b.TriggerCount = 10
	require.NoError(t, tr.AddNode(a))
	require.NoError(t, tr.AddNode(b))

	keeper, err := tr.MergeNodes("a", "b")
	require.NoError(t, err)
	assert.Equal(t, "b", keeper.ID)
}

func TestPruneStale(t *testing.T) {
	now := time.Now()
	tr := New()

	stale := node("stale", RootID, "Stale")
	stale.LastTriggered = now.AddDate(0, 0, -45)

	fresh := node("fresh", RootID, "Fresh")
	fresh.LastTriggered = now.AddDate(0, 0, -1)

	valuable := node("valuable", RootID, "Valuable")
	valuable.LastTriggered = now.AddDate(0, 0, -45)
	score := 80
	valuable.VScore = &score

	require.NoError(t, tr.AddNode(stale))
	require.NoError(t, tr.AddNode(fresh))
	require.NoError(t, tr.AddNode(valuable))

	pruned := tr.PruneStale(30, now)
	assert.Equal(t, []string{"stale"}, pruned)
	assert.Equal(t, StatusPruned, stale.Status)
	assert.Equal(t, StatusActive, fresh.Status)
	assert.Equal(t, StatusActive, valuable.Status)
}

func TestPruneStale_Idempotent(t *testing.T) {
	now := time.Now()
	tr := New()
	stale := node("stale", RootID, "Stale")
	stale.LastTriggered = now.AddDate(0, 0, -90)
	require.NoError(t, tr.AddNode(stale))

	first := tr.PruneStale(30, now)
	second := tr.PruneStale(30, now)
	assert.Equal(t, []string{"stale"}, first)
	assert.Empty(t, second)
	assert.Equal(t, StatusPruned, stale.Status)
}

func TestFindPath(t *testing.T) {
	tr := New()
	genes := map[string]*gene.Gene{
		"g1": {ID: "g1", SignalPatterns: []string{"log_error", "recurring_error"}},
		"g2": {ID: "g2", SignalPatterns: []string{"user_feature_request"}},
	}
	resolve := func(id string) *gene.Gene { return genes[id] }

	repair := node("repair", RootID, "Repair")
	repair.GeneIDs = []string{"g1"}
	feature := node("feature", RootID, "Feature work")
	feature.GeneIDs = []string{"g2"}
	require.NoError(t, tr.AddNode(repair))
	require.NoError(t, tr.AddNode(feature))

	path := tr.FindPath([]string{"log_error", "recurring_error"}, resolve)
	require.Len(t, path, 2)
	assert.Equal(t, "repair", path[1].ID)

	// Zero affinity means no path.
	assert.Nil(t, tr.FindPath([]string{"unrelated"}, resolve))
	assert.Nil(t, tr.FindPath(nil, resolve))
}

func TestFindPath_DeterministicTieBreak(t *testing.T) {
	tr := New()
	g := &gene.Gene{ID: "g1", SignalPatterns: []string{"log_error"}}
	resolve := func(string) *gene.Gene { return g }

	b := node("bravo", RootID, "Bravo")
	b.GeneIDs = []string{"g1"}
	a := node("alpha", RootID, "Alpha")
	a.GeneIDs = []string{"g1"}
	require.NoError(t, tr.AddNode(b))
	require.NoError(t, tr.AddNode(a))

	// Equal scores: the lowest id wins, regardless of insert order.
	path := tr.FindPath([]string{"log_error"}, resolve)
	require.NotEmpty(t, path)
	assert.Equal(t, "alpha", path[len(path)-1].ID)
}

func TestFindPath_IgnoresPrunedNodes(t *testing.T) {
	tr := New()
	g := &gene.Gene{ID: "g1", SignalPatterns: []string{"log_error"}}
	resolve := func(string) *gene.Gene { return g }

	n := node("repair", RootID, "Repair")
	n.GeneIDs = []string{"g1"}
	n.Status = StatusPruned
	require.NoError(t, tr.AddNode(n))

	assert.Nil(t, tr.FindPath([]string{"log_error"}, resolve))
}

func TestGrowNode(t *testing.T) {
	tr := New()

	n, err := tr.GrowNode(RootID, Candidate{Name: "PDF Export", GeneIDs: []string{"g1"}})
	require.NoError(t, err)
	assert.Equal(t, "pdf_export", n.ID)
	assert.Equal(t, StatusCandidate, n.Status)
	assert.Equal(t, LevelLow, n.Level)

	// Children extend the parent's dotted path.
	child, err := tr.GrowNode(n.ID, Candidate{Name: "Vector Output", Level: LevelMid})
	require.NoError(t, err)
	assert.Equal(t, "pdf_export.vector_output", child.ID)

	// Name collisions under the same parent are disambiguated.
	again, err := tr.GrowNode(RootID, Candidate{Name: "PDF Export"})
	require.NoError(t, err)
	assert.Equal(t, "pdf_export_2", again.ID)

	_, err = tr.GrowNode("missing", Candidate{Name: "x"})
	assert.Error(t, err)
	_, err = tr.GrowNode(RootID, Candidate{})
	assert.Error(t, err)
}
