// Package captree maintains the hierarchical capability graph: a rooted,
// labelled tree of things the agent can do, keyed by dotted-path ids. The
// tree supports growth, removal, merge, stale pruning and signal-affinity
// path lookup.
package captree

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"evoloop/internal/gene"
)

// RootID is the fixed sentinel root of every tree.
const RootID = "root"

// Level grades how abstract a capability is.
type Level string

const (
	LevelLow  Level = "low"
	LevelMid  Level = "mid"
	LevelHigh Level = "high"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelMid, LevelHigh:
		return true
	}
	return false
}

// Status is the lifecycle state of a node. Transitions are one-way: active
// or candidate nodes may become pruned, pruned nodes never come back.
type Status string

const (
	StatusActive    Status = "active"
	StatusCandidate Status = "candidate"
	StatusPruned    Status = "pruned"
)

// Node is one capability in the tree.
type Node struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Level           Level    `json:"level"`
	ParentID        string   `json:"parent_id"`
	Input           string   `json:"input,omitempty"`
	Output          string   `json:"output,omitempty"`
	Preconditions   []string `json:"preconditions,omitempty"`
	FailureBoundary string   `json:"failure_boundary,omitempty"`
	GeneIDs         []string `json:"gene_ids,omitempty"`
	Skills          []string `json:"skills,omitempty"`
	Children        []string `json:"children,omitempty"`
	Status          Status   `json:"status"`

	// VScore is the last computed value score (0-100), nil when unset.
	VScore *int `json:"v_score,omitempty"`

	LastTriggered time.Time `json:"last_triggered,omitempty"`
	TriggerCount  int       `json:"trigger_count"`
}

// Tree is the rooted capability graph. Not safe for concurrent use; the
// pipeline has a single writer.
type Tree struct {
	Root  *Node            `json:"root"`
	Nodes map[string]*Node `json:"nodes"`
}

// New builds an empty tree containing only the root sentinel.
func New() *Tree {
	root := &Node{
		ID:     RootID,
		Name:   "Agent capabilities",
		Level:  LevelHigh,
		Status: StatusActive,
	}
	return &Tree{
		Root:  root,
		Nodes: map[string]*Node{RootID: root},
	}
}

// validate fails fast on malformed nodes before they enter the tree.
func validate(n *Node) error {
	if n == nil {
		return fmt.Errorf("captree: nil node")
	}
	if n.ID == "" {
		return fmt.Errorf("captree: node id is required")
	}
	if n.ID == RootID {
		return fmt.Errorf("captree: %q is reserved for the root", RootID)
	}
	if n.Name == "" {
		return fmt.Errorf("captree: node %s: name is required", n.ID)
	}
	if !n.Level.Valid() {
		return fmt.Errorf("captree: node %s: invalid level %q", n.ID, n.Level)
	}
	if n.ParentID == "" {
		return fmt.Errorf("captree: node %s: parent id is required", n.ID)
	}
	switch n.Status {
	case StatusActive, StatusCandidate, StatusPruned:
	case "":
		n.Status = StatusCandidate
	default:
		return fmt.Errorf("captree: node %s: invalid status %q", n.ID, n.Status)
	}
	return nil
}

// AddNode inserts a node under its declared parent. Fails when the id is
// taken or the parent does not exist.
func (t *Tree) AddNode(n *Node) error {
	if err := validate(n); err != nil {
		return err
	}
	if _, exists := t.Nodes[n.ID]; exists {
		return fmt.Errorf("captree: node %s already exists", n.ID)
	}
	parent, ok := t.Nodes[n.ParentID]
	if !ok {
		return fmt.Errorf("captree: parent %s not found for node %s", n.ParentID, n.ID)
	}
	t.Nodes[n.ID] = n
	parent.Children = append(parent.Children, n.ID)
	return nil
}

// GetNode looks a node up by id.
func (t *Tree) GetNode(id string) (*Node, bool) {
	n, ok := t.Nodes[id]
	return n, ok
}

// GetChildren returns the direct children of a node.
func (t *Tree) GetChildren(id string) []*Node {
	n, ok := t.Nodes[id]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(n.Children))
	for _, childID := range n.Children {
		if child, ok := t.Nodes[childID]; ok {
			out = append(out, child)
		}
	}
	return out
}

// GetPath walks parent links from the root down to the node.
func (t *Tree) GetPath(id string) []*Node {
	n, ok := t.Nodes[id]
	if !ok {
		return nil
	}
	var reversed []*Node
	for n != nil {
		reversed = append(reversed, n)
		if n.ParentID == "" {
			break
		}
		n = t.Nodes[n.ParentID]
	}
	path := make([]*Node, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}

// RemoveNode deletes a node and all its descendants, detaching the subtree
// from the parent's child list. The root cannot be removed.
func (t *Tree) RemoveNode(id string) error {
	if id == RootID {
		return fmt.Errorf("captree: cannot remove the root")
	}
	n, ok := t.Nodes[id]
	if !ok {
		return fmt.Errorf("captree: node %s not found", id)
	}
	for _, childID := range append([]string(nil), n.Children...) {
		if err := t.RemoveNode(childID); err != nil {
			return err
		}
	}
	if parent, ok := t.Nodes[n.ParentID]; ok {
		parent.Children = removeString(parent.Children, id)
	}
	delete(t.Nodes, id)
	return nil
}

// MergeNodes folds two nodes into one: the node with the higher trigger
// count is kept, the other's genes and skills are unioned into it, its
// children are re-parented to the keeper and the loser is removed.
func (t *Tree) MergeNodes(idA, idB string) (*Node, error) {
	a, ok := t.Nodes[idA]
	if !ok {
		return nil, fmt.Errorf("captree: node %s not found", idA)
	}
	b, ok := t.Nodes[idB]
	if !ok {
		return nil, fmt.Errorf("captree: node %s not found", idB)
	}
	if idA == idB {
		return a, nil
	}
	if idA == RootID || idB == RootID {
		return nil, fmt.Errorf("captree: cannot merge the root")
	}

	keeper, loser := a, b
	if b.TriggerCount > a.TriggerCount {
		keeper, loser = b, a
	}

	keeper.GeneIDs = unionStrings(keeper.GeneIDs, loser.GeneIDs)
	keeper.Skills = unionStrings(keeper.Skills, loser.Skills)
	keeper.TriggerCount += loser.TriggerCount

	// Re-parent the loser's children to the keeper.
	for _, childID := range append([]string(nil), loser.Children...) {
		if child, ok := t.Nodes[childID]; ok {
			child.ParentID = keeper.ID
			keeper.Children = append(keeper.Children, childID)
		}
	}
	loser.Children = nil

	if parent, ok := t.Nodes[loser.ParentID]; ok {
		parent.Children = removeString(parent.Children, loser.ID)
	}
	delete(t.Nodes, loser.ID)
	return keeper, nil
}

// PruneStale marks active and candidate nodes as pruned when they have not
// triggered within the threshold and their value score is unset or below the
// worth-evolving floor. Returns the ids pruned in this pass; the operation
// is idempotent.
func (t *Tree) PruneStale(thresholdDays int, now time.Time) []string {
	cutoff := now.AddDate(0, 0, -thresholdDays)
	var pruned []string
	for _, id := range t.sortedIDs() {
		n := t.Nodes[id]
		if n.ID == RootID || n.Status == StatusPruned {
			continue
		}
		if !n.LastTriggered.Before(cutoff) {
			continue
		}
		if n.VScore != nil && *n.VScore >= 40 {
			continue
		}
		n.Status = StatusPruned
		pruned = append(pruned, n.ID)
	}
	return pruned
}

// Touch records a trigger of the node.
func (t *Tree) Touch(id string, now time.Time) {
	if n, ok := t.Nodes[id]; ok {
		n.LastTriggered = now
		n.TriggerCount++
	}
}

// GeneResolver resolves a gene id to its gene, or nil when unknown.
type GeneResolver func(id string) *gene.Gene

// FindPath scores every active node by signal affinity (+1 per linked
// gene's required signal present in the set) and returns the root-to-node
// path of the best scorer. Ties break toward the lowest node id. Returns
// nil when nothing scores above zero.
func (t *Tree) FindPath(signals []string, resolve GeneResolver) []*Node {
	if len(signals) == 0 || resolve == nil {
		return nil
	}
	present := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		present[s] = struct{}{}
	}

	bestID, bestScore := "", 0
	for _, id := range t.sortedIDs() {
		n := t.Nodes[id]
		if n.Status != StatusActive || n.ID == RootID {
			continue
		}
		score := 0
		for _, geneID := range n.GeneIDs {
			g := resolve(geneID)
			if g == nil {
				continue
			}
			for _, pattern := range g.SignalPatterns {
				if _, ok := present[pattern]; ok {
					score++
				}
			}
		}
		if score > bestScore {
			bestID, bestScore = id, score
		}
	}
	if bestScore == 0 {
		return nil
	}
	return t.GetPath(bestID)
}

// Candidate describes a node to grow under an existing parent.
type Candidate struct {
	Name            string
	Level           Level
	Input           string
	Output          string
	Preconditions   []string
	FailureBoundary string
	GeneIDs         []string
	Skills          []string
}

// GrowNode builds a node from the candidate and inserts it under parentID.
// The new node's id extends the parent's dotted path with a slug of the
// candidate name.
func (t *Tree) GrowNode(parentID string, c Candidate) (*Node, error) {
	parent, ok := t.Nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("captree: parent %s not found", parentID)
	}
	if c.Name == "" {
		return nil, fmt.Errorf("captree: candidate name is required")
	}
	level := c.Level
	if level == "" {
		level = LevelLow
	}

	id := slug(c.Name)
	if parent.ID != RootID {
		id = parent.ID + "." + id
	}
	// Disambiguate collisions with a numeric suffix.
	base := id
	for i := 2; ; i++ {
		if _, exists := t.Nodes[id]; !exists {
			break
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}

	n := &Node{
		ID:              id,
		Name:            c.Name,
		Level:           level,
		ParentID:        parent.ID,
		Input:           c.Input,
		Output:          c.Output,
		Preconditions:   c.Preconditions,
		FailureBoundary: c.FailureBoundary,
		GeneIDs:         c.GeneIDs,
		Skills:          c.Skills,
		Status:          StatusCandidate,
	}
	if err := t.AddNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// ActiveNodes returns every non-pruned, non-root node sorted by id.
func (t *Tree) ActiveNodes() []*Node {
	var out []*Node
	for _, id := range t.sortedIDs() {
		n := t.Nodes[id]
		if n.ID == RootID || n.Status == StatusPruned {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (t *Tree) sortedIDs() []string {
	ids := make([]string, 0, len(t.Nodes))
	for id := range t.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func slug(name string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		default:
			if !lastSep {
				b.WriteRune('_')
				lastSep = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
