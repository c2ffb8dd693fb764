// Package solidify turns a validated mutation into durable experience. The
// pipeline runs a gene's validation commands, applies the ADL gate to the
// outcome and either commits a capsule or reverts the change. Rollback is
// best-effort and never touches protected paths.
package solidify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evoloop/internal/adl"
	"evoloop/internal/gene"
	"evoloop/internal/mutation"
	"evoloop/internal/store"
)

// State is the pipeline's position in the solidification state machine.
type State string

const (
	StatePending      State = "pending"
	StateValidating   State = "validating"
	StateGateChecking State = "gate-checking"
	StateCommitted    State = "committed"
	StateReverted     State = "reverted"
)

// DefaultCommandTimeout bounds each validation command.
const DefaultCommandTimeout = 30 * time.Second

// ChangeSet describes the files a mutation touched.
type ChangeSet struct {
	ChangedFiles []string `json:"changed_files,omitempty"`
	NewFiles     []string `json:"new_files,omitempty"`
	LinesAdded   int      `json:"lines_added"`
	LinesDeleted int      `json:"lines_deleted"`
}

// Blast computes the change set's blast radius.
func (c ChangeSet) Blast() mutation.BlastRadius {
	return mutation.BlastRadius{
		Files: len(c.ChangedFiles) + len(c.NewFiles),
		Lines: c.LinesAdded + c.LinesDeleted,
	}
}

// ValidationResult records one validation command's outcome.
type ValidationResult struct {
	Command string `json:"command"`
	Passed  bool   `json:"passed"`
	Output  string `json:"output,omitempty"`
}

// Result is the terminal outcome of one solidification.
type Result struct {
	State       State              `json:"state"`
	Validations []ValidationResult `json:"validations,omitempty"`
	Violations  []adl.Violation    `json:"violations,omitempty"`
	CapsuleID   string             `json:"capsule_id,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

// Committed reports whether the change survived.
func (r *Result) Committed() bool {
	return r.State == StateCommitted
}

// Options tune a pipeline instance.
type Options struct {
	// DryRun validates and gate-checks but never rolls back or persists.
	DryRun bool

	// CommandTimeout bounds each validation command; zero means the default.
	CommandTimeout time.Duration
}

// Pipeline drives the solidification state machine.
type Pipeline struct {
	store    store.Store
	runner   CommandRunner
	rollback Rollbacker
	log      *zap.Logger
	opts     Options
}

// New wires a pipeline. The logger may be nil.
func New(st store.Store, runner CommandRunner, rb Rollbacker, log *zap.Logger, opts Options) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	return &Pipeline{store: st, runner: runner, rollback: rb, log: log, opts: opts}
}

// Solidify validates and gate-checks one applied mutation. Terminal states
// are committed and reverted; in dry-run mode nothing is rolled back or
// persisted, the would-be outcome is just reported.
func (p *Pipeline) Solidify(ctx context.Context, g *gene.Gene, m *mutation.Mutation, changes ChangeSet) (*Result, error) {
	result := &Result{State: StatePending}
	blast := changes.Blast()
	mutation.AssessRisk(m, blast)

	// Validation.
	result.State = StateValidating
	p.log.Info("validating mutation",
		zap.String("mutation", m.ID),
		zap.String("gene", g.ID),
		zap.Int("blast_files", blast.Files),
		zap.Int("blast_lines", blast.Lines))

	for _, cmd := range g.ValidationCommands {
		res := p.runCommand(ctx, cmd)
		result.Validations = append(result.Validations, res)
		if !res.Passed {
			result.Reason = fmt.Sprintf("validation failed: %s", cmd)
			return p.fail(result, m, changes, store.EventSolidifyFailed, result.Reason)
		}
	}

	// Gate check against the realized outcome.
	result.State = StateGateChecking
	history, err := p.store.LoadCapsules()
	if err != nil {
		return nil, fmt.Errorf("solidify: load capsule history: %w", err)
	}
	if violations := adl.Check(m, blast, history); len(violations) > 0 {
		result.Violations = violations
		result.Reason = fmt.Sprintf("adl gate rejected: %s", joinViolations(violations))
		return p.fail(result, m, changes, store.EventADLViolation, result.Reason)
	}

	// Commit.
	if p.opts.DryRun {
		result.State = StateCommitted
		result.Reason = "dry-run: no capsule persisted"
		return result, nil
	}

	capsule := &store.Capsule{
		ID:           uuid.NewString(),
		GeneID:       m.GeneID,
		Category:     m.Category,
		FilesChanged: append(append([]string(nil), changes.ChangedFiles...), changes.NewFiles...),
		Summary:      fmt.Sprintf("%s: %s", m.Target, m.ExpectedEffect),
		Metrics: store.CapsuleMetrics{
			BlastFiles:       blast.Files,
			BlastLines:       blast.Lines,
			ValidationPassed: true,
		},
		CreatedAt: time.Now(),
	}
	if err := p.store.AppendCapsule(capsule); err != nil {
		return nil, fmt.Errorf("solidify: persist capsule: %w", err)
	}
	p.emit(store.EventSolidifySuccess, m, fmt.Sprintf("committed %s (%d files)", m.Target, blast.Files))

	result.State = StateCommitted
	result.CapsuleID = capsule.ID
	return result, nil
}

// Revalidate replays a gene's validation commands outside any mutation,
// stopping at the first failure. In dry-run mode the commands are listed
// but not executed.
func (p *Pipeline) Revalidate(ctx context.Context, g *gene.Gene) []ValidationResult {
	var results []ValidationResult
	for _, cmd := range g.ValidationCommands {
		if p.opts.DryRun {
			results = append(results, ValidationResult{Command: cmd, Passed: true, Output: "skipped (dry run)"})
			continue
		}
		res := p.runCommand(ctx, cmd)
		results = append(results, res)
		if !res.Passed {
			break
		}
	}
	return results
}

func (p *Pipeline) runCommand(ctx context.Context, cmd string) ValidationResult {
	cmdCtx, cancel := context.WithTimeout(ctx, p.opts.CommandTimeout)
	defer cancel()

	output, err := p.runner.Run(cmdCtx, cmd)
	if err != nil {
		p.log.Warn("validation command failed", zap.String("command", cmd), zap.Error(err))
		return ValidationResult{Command: cmd, Passed: false, Output: output + "\n" + err.Error()}
	}
	return ValidationResult{Command: cmd, Passed: true, Output: output}
}

// fail records the failure event and, outside dry-run, reverts the change.
func (p *Pipeline) fail(result *Result, m *mutation.Mutation, changes ChangeSet, typ store.EventType, reason string) (*Result, error) {
	p.emit(typ, m, reason)

	if p.opts.DryRun {
		result.State = StateReverted
		return result, nil
	}

	if err := p.revert(changes); err != nil {
		p.log.Warn("rollback incomplete", zap.Error(err))
		p.emit(store.EventRollback, m, fmt.Sprintf("rollback incomplete: %v", err))
	} else {
		p.emit(store.EventRollback, m, fmt.Sprintf("rolled back %d files", changes.Blast().Files))
	}
	result.State = StateReverted
	return result, nil
}

// revert restores changed files and deletes non-protected new files. Per
// file failures are collected; they never abort the remaining steps.
func (p *Pipeline) revert(changes ChangeSet) error {
	if p.rollback == nil {
		return fmt.Errorf("no rollback capability configured")
	}
	var failures []string
	for _, f := range changes.ChangedFiles {
		if IsProtected(f) {
			continue
		}
		if err := p.rollback.Restore(f); err != nil {
			failures = append(failures, fmt.Sprintf("restore %s: %v", f, err))
		}
	}
	for _, f := range changes.NewFiles {
		if IsProtected(f) {
			continue
		}
		if err := p.rollback.Delete(f); err != nil {
			failures = append(failures, fmt.Sprintf("delete %s: %v", f, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d rollback steps failed: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

func (p *Pipeline) emit(typ store.EventType, m *mutation.Mutation, msg string) {
	e := store.NewEvent(typ, msg).WithGene(m.GeneID)
	if err := p.store.AppendEvent(e); err != nil {
		p.log.Warn("failed to append audit event", zap.String("type", string(typ)), zap.Error(err))
	}
}

func joinViolations(violations []adl.Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, string(v))
	}
	return strings.Join(parts, ", ")
}
