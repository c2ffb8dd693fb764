// Package gene holds reusable mutation templates ("genes") and the matching
// logic that ranks them against an extracted signal set. A gene describes one
// kind of self-modification strategy: what triggers it, which steps to take,
// what constraints bound it and how to validate the result.
package gene

import (
	"fmt"
	"time"
)

// Category classifies what a gene's mutation is trying to achieve.
type Category string

const (
	CategoryRepair   Category = "repair"   // Fix something that is broken
	CategoryOptimize Category = "optimize" // Improve something that works
	CategoryInnovate Category = "innovate" // Build something that does not exist yet
)

// Categories lists every valid category in preference-neutral order.
var Categories = []Category{CategoryRepair, CategoryOptimize, CategoryInnovate}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryRepair, CategoryOptimize, CategoryInnovate:
		return true
	}
	return false
}

// Constraints bound how far a gene's mutation is allowed to reach.
type Constraints struct {
	MaxFiles       int      `json:"max_files"`
	ForbiddenPaths []string `json:"forbidden_paths,omitempty"`
}

// Gene is a named, reusable mutation template.
type Gene struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`

	// SignalPatterns trigger the gene: each entry is either an exact signal
	// token or a prefix-wildcard pattern such as "errsig:".
	SignalPatterns []string `json:"signal_patterns"`

	// StrategySteps are the ordered actions the mutation should perform.
	StrategySteps []string `json:"strategy_steps"`

	Constraints        Constraints `json:"constraints"`
	ValidationCommands []string    `json:"validation_commands,omitempty"`

	// CapabilityID links the gene to a capability-tree node, if any.
	CapabilityID string `json:"capability_id,omitempty"`

	// VScore caches the linked capability's last computed value score.
	VScore *int `json:"v_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate fails fast on malformed genes; a gene that does not validate is
// never stored or selected.
func (g *Gene) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("gene: id is required")
	}
	if !g.Category.Valid() {
		return fmt.Errorf("gene %s: invalid category %q", g.ID, g.Category)
	}
	if len(g.SignalPatterns) == 0 {
		return fmt.Errorf("gene %s: at least one signal pattern is required", g.ID)
	}
	if len(g.StrategySteps) == 0 {
		return fmt.Errorf("gene %s: at least one strategy step is required", g.ID)
	}
	return nil
}
