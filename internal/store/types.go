// Package store persists the engine's durable assets: the gene catalogue,
// the capsule history, the append-only event log and the capability tree.
// Stored JSON that fails to parse degrades to an empty collection so the
// pipeline survives partial writes.
package store

import (
	"time"

	"github.com/google/uuid"

	"evoloop/internal/gene"
)

// CapsuleMetrics records the measurable outcome of one solidification.
type CapsuleMetrics struct {
	BlastFiles       int  `json:"blast_files"`
	BlastLines       int  `json:"blast_lines"`
	ValidationPassed bool `json:"validation_passed"`
}

// Capsule is the durable record of one successful solidification. Capsules
// are append-only and never mutated after creation.
type Capsule struct {
	ID           string         `json:"id"`
	GeneID       string         `json:"gene_id,omitempty"`
	Category     gene.Category  `json:"category"`
	Signals      []string       `json:"signals,omitempty"`
	FilesChanged []string       `json:"files_changed,omitempty"`
	Summary      string         `json:"summary"`
	Metrics      CapsuleMetrics `json:"metrics"`
	CreatedAt    time.Time      `json:"created_at"`
}

// EventType names a pipeline occurrence worth auditing.
type EventType string

const (
	EventSignalExtracted  EventType = "signal_extracted"
	EventGeneSelected     EventType = "gene_selected"
	EventMutationApplied  EventType = "mutation_applied"
	EventMutationDenied   EventType = "mutation_denied"
	EventSolidifySuccess  EventType = "solidify_success"
	EventSolidifyFailed   EventType = "solidify_failed"
	EventRollback         EventType = "rollback"
	EventADLViolation     EventType = "adl_violation"
	EventCapabilityGrown  EventType = "capability_grown"
	EventCapabilityPruned EventType = "capability_pruned"
	EventPCECCycle        EventType = "pcec_cycle"
)

// Event is an append-only audit record, ordered by creation time. GeneID and
// CycleID are optional correlation handles.
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Message   string        `json:"message"`
	GeneID    string        `json:"gene_id,omitempty"`
	Category  gene.Category `json:"category,omitempty"`
	CycleID   string        `json:"cycle_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewEvent builds an event stamped with a fresh id and the current time.
func NewEvent(typ EventType, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// WithGene attaches a gene correlation id.
func (e Event) WithGene(geneID string) Event {
	e.GeneID = geneID
	return e
}

// WithCategory tags the event with the mutation category it concerns.
func (e Event) WithCategory(c gene.Category) Event {
	e.Category = c
	return e
}

// WithCycle attaches a cycle correlation id.
func (e Event) WithCycle(cycleID string) Event {
	e.CycleID = cycleID
	return e
}
