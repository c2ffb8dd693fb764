// Package mutation builds concrete mutation proposals from selected genes,
// classifies their risk and enforces the strategy category quotas. A
// mutation proposal is ephemeral: it exists for one evolution cycle only.
package mutation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"evoloop/internal/gene"
)

// Risk grades how dangerous a proposed mutation is.
type Risk string

const (
	RiskLow       Risk = "low"
	RiskLowMedium Risk = "low-medium"
	RiskMedium    Risk = "medium"
)

// baseRisk is the fixed category→risk inheritance.
var baseRisk = map[gene.Category]Risk{
	gene.CategoryRepair:   RiskLow,
	gene.CategoryOptimize: RiskLowMedium,
	gene.CategoryInnovate: RiskMedium,
}

// Blast-radius escalation thresholds.
const (
	escalateFiles         = 10
	escalateLines         = 500
	escalateInnovateFiles = 5
)

// BlastRadius measures the size of a proposed or applied change.
type BlastRadius struct {
	Files int `json:"files"`
	Lines int `json:"lines"`
}

// Mutation is one concrete, proposed application of a gene.
type Mutation struct {
	ID             string        `json:"id"`
	Category       gene.Category `json:"category"`
	Risk           Risk          `json:"risk"`
	Target         string        `json:"target"`
	ExpectedEffect string        `json:"expected_effect"`
	GeneID         string        `json:"gene_id,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// New constructs a mutation proposal, failing fast on malformed input. Risk
// is inherited from the category and may later be escalated by AssessRisk.
func New(category gene.Category, target, expectedEffect, geneID string) (*Mutation, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("mutation: unknown category %q", category)
	}
	if target == "" {
		return nil, fmt.Errorf("mutation: target is required")
	}
	if expectedEffect == "" {
		return nil, fmt.Errorf("mutation: expected_effect is required")
	}
	return &Mutation{
		ID:             uuid.NewString(),
		Category:       category,
		Risk:           baseRisk[category],
		Target:         target,
		ExpectedEffect: expectedEffect,
		GeneID:         geneID,
		CreatedAt:      time.Now(),
	}, nil
}

// FromGene builds a proposal out of a selected gene, deriving the target and
// expected effect from the gene's own description.
func FromGene(g *gene.Gene) (*Mutation, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	target := g.Name
	if target == "" {
		target = g.ID
	}
	effect := fmt.Sprintf("Apply strategy %q: %s", g.Name, g.StrategySteps[0])
	return New(g.Category, target, effect, g.ID)
}

// AssessRisk escalates the mutation's risk level based on blast radius,
// appending a human-readable warning per escalation. Innovate mutations are
// held to a tighter file budget than the rest.
func AssessRisk(m *Mutation, blast BlastRadius) Risk {
	if blast.Files > escalateFiles || blast.Lines > escalateLines {
		m.Risk = RiskMedium
		m.Warnings = append(m.Warnings, fmt.Sprintf(
			"large blast radius: %d files, %d lines", blast.Files, blast.Lines))
	}
	if m.Category == gene.CategoryInnovate && blast.Files > escalateInnovateFiles {
		m.Risk = RiskMedium
		m.Warnings = append(m.Warnings, fmt.Sprintf(
			"innovate mutation touches %d files (budget %d)", blast.Files, escalateInnovateFiles))
	}
	return m.Risk
}
