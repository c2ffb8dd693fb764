package gene

import "time"

// SeedCatalogue returns the default gene set installed on first run. The
// catalogue covers the common trigger signals with one conservative gene per
// category so a fresh installation can act before any learning has happened.
func SeedCatalogue(now time.Time) []*Gene {
	return []*Gene{
		{
			ID:       "gene-repair-recurring-error",
			Name:     "Stabilize recurring error",
			Category: CategoryRepair,
			SignalPatterns: []string{
				"log_error", "recurring_error",
			},
			StrategySteps: []string{
				"Locate the failing code path from the recurring error detail",
				"Write a regression test reproducing the failure",
				"Apply the smallest fix that makes the test pass",
			},
			Constraints:        Constraints{MaxFiles: 4, ForbiddenPaths: []string{".git", "go.sum"}},
			ValidationCommands: []string{"go build ./...", "go test ./..."},
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		{
			ID:       "gene-repair-loop-breaker",
			Name:     "Break repair loop",
			Category: CategoryRepair,
			SignalPatterns: []string{
				"repair_loop_detected", "errsig:",
			},
			StrategySteps: []string{
				"Revert the most recent mutation touching the failing area",
				"Re-run validation to confirm a clean baseline",
			},
			Constraints:        Constraints{MaxFiles: 6},
			ValidationCommands: []string{"go test ./..."},
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		{
			ID:       "gene-optimize-hot-tool",
			Name:     "Streamline heavily used tool path",
			Category: CategoryOptimize,
			SignalPatterns: []string{
				"high_tool_usage:", "stable_success_plateau",
			},
			StrategySteps: []string{
				"Identify the most frequently invoked tool from usage signals",
				"Cache or batch its repeated invocations",
				"Verify output parity against the unoptimized path",
			},
			Constraints:        Constraints{MaxFiles: 5},
			ValidationCommands: []string{"go test ./..."},
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		{
			ID:       "gene-innovate-user-feature",
			Name:     "Prototype requested capability",
			Category: CategoryInnovate,
			SignalPatterns: []string{
				"user_feature_request", "capability_candidate:",
			},
			StrategySteps: []string{
				"Extract the requested capability from the session transcript",
				"Sketch the smallest end-to-end slice of the capability",
				"Implement the slice behind a clearly named entry point",
				"Add a smoke test covering the happy path",
			},
			Constraints:        Constraints{MaxFiles: 5},
			ValidationCommands: []string{"go build ./...", "go test ./..."},
			CreatedAt:          now,
			UpdatedAt:          now,
		},
	}
}
