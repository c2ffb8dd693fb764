// Package bridge talks to the actual agent runtime on behalf of the engine:
// it reads recent session transcripts and dispatches bounded sub-executions.
// The engine only ever sees the Bridge interface and plain data; transcript
// parsing and process spawning stay on this side of the boundary.
package bridge

import (
	"context"
	"time"

	"evoloop/internal/signal"
	"evoloop/internal/solidify"
)

// ExecutionReport is what a dispatched sub-execution produced: its captured
// output and the files it touched, ready for the solidification pipeline.
type ExecutionReport struct {
	Output  string             `json:"output"`
	Changes solidify.ChangeSet `json:"changes"`
}

// Bridge is the external-collaborator contract.
type Bridge interface {
	// RecentSessions returns up to n of the agent's most recent
	// interaction-log batches, oldest first within each batch.
	RecentSessions(agent string, n int) ([][]signal.LogEntry, error)

	// Dispatch runs a task against the agent runtime, bounded by timeout,
	// and reports its output and file changes.
	Dispatch(ctx context.Context, task string, timeout time.Duration) (*ExecutionReport, error)

	// WorkingChanges measures the uncommitted changes currently sitting in
	// the working tree, without dispatching anything.
	WorkingChanges(ctx context.Context) (solidify.ChangeSet, error)
}
