package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"evoloop/internal/bridge"
	"evoloop/internal/config"
	"evoloop/internal/engine"
	"evoloop/internal/gene"
	"evoloop/internal/pcec"
	"evoloop/internal/report"
	"evoloop/internal/solidify"
	"evoloop/internal/store"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// run / solidify flags
	strategy    string
	agent       string
	sessions    string
	dryRun      bool
	watch       bool
	workingTree bool

	// pcec flags
	once bool

	// tree flags
	pathSignals []string

	// json output
	asJSON bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "evoloop",
	Short: "evoloop - disciplined self-modification loop for CLI agents",
	Long: `evoloop watches an agent's session transcripts, extracts trigger
signals, selects a mutation gene, dispatches the work back to the agent
runtime and solidifies the result behind a safety gate. Committed changes
grow a capability tree that is scored, pruned and merged over time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one evolution cycle",
	Long: `Reads the most recent session transcripts, extracts signals and runs
the full cycle: gene selection, strategy quota check, mutation dispatch,
validation and solidification. With --dry-run everything up to the gate is
evaluated but nothing is dispatched or persisted. With --watch the command
stays running and triggers a cycle whenever a new transcript lands in the
sessions directory.`,
	RunE: runCycle,
}

var solidifyCmd = &cobra.Command{
	Use:   "solidify",
	Short: "Replay validation for all stored genes",
	Long: `Replays every stored gene's validation commands and reports per-gene
outcomes; failures are audited as events. With --working-tree the current
git working tree is instead treated as an already-applied mutation and run
through validation, the safety gate and capsule commit or rollback.`,
	RunE: runSolidify,
}

var pcecCmd = &cobra.Command{
	Use:   "pcec",
	Short: "Run the reflection loop",
	Long: `Runs divergence reflection cycles on a timer. Each cycle generates
a prompt from the stagnation state, dispatches it to the agent runtime,
classifies the output and maintains the capability tree. With --once a
single cycle runs immediately and the command exits.`,
	RunE: runPCEC,
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the capability tree",
	Long: `Prints the capability tree as an indented outline. With --signal
(repeatable) the tree is instead searched for the capability path best
matching the given signals.`,
	RunE: runTree,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the full status report",
	RunE:  runReport,
}

func runCycle(cmd *cobra.Command, args []string) error {
	eng, cfg, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watch {
		w := bridge.NewWatcher(cfg.SessionsDir, logger)
		logger.Info("watching for new transcripts", zap.String("dir", cfg.SessionsDir))
		err := w.Watch(ctx, func(path string) {
			res, err := eng.RunCycle(ctx, dryRun)
			switch {
			case err != nil:
				logger.Error("cycle failed", zap.Error(err))
			case res.Skipped:
				logger.Info("cycle skipped", zap.String("reason", res.Reason))
			default:
				logger.Info("cycle finished",
					zap.String("gene", res.GeneID),
					zap.Bool("committed", res.Committed()))
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	res, err := eng.RunCycle(ctx, dryRun)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(res)
	}
	if res.Skipped {
		fmt.Printf("cycle skipped: %s\n", res.Reason)
		return nil
	}
	fmt.Printf("gene: %s (%s, score %.2f)\n", res.GeneName, res.GeneID, res.MatchScore)
	fmt.Printf("strategy: %s\n", res.Preset)
	if res.Solidify != nil {
		fmt.Printf("state: %s\n", res.Solidify.State)
		if res.Solidify.Reason != "" {
			fmt.Printf("reason: %s\n", res.Solidify.Reason)
		}
	}
	return nil
}

func runSolidify(cmd *cobra.Command, args []string) error {
	eng, _, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if workingTree {
		res, err := eng.SolidifyWorkingTree(ctx, dryRun)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(res)
		}
		fmt.Printf("state: %s\n", res.State)
		if res.Reason != "" {
			fmt.Printf("reason: %s\n", res.Reason)
		}
		if !res.Committed() {
			os.Exit(1)
		}
		return nil
	}

	results, err := eng.RevalidateGenes(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(results)
	}
	failed := 0
	for _, gv := range results {
		mark := "ok"
		if !gv.Passed {
			mark = "FAIL"
			failed++
		}
		fmt.Printf("%-4s %s (%s)\n", mark, gv.Name, gv.GeneID)
	}
	if failed > 0 {
		os.Exit(1)
	}
	return nil
}

func runPCEC(cmd *cobra.Command, args []string) error {
	eng, cfg, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cycle := func(ctx context.Context) error {
		res, err := eng.RunReflection(ctx, time.Now().UnixNano())
		if err != nil {
			return err
		}
		logger.Info("reflection cycle finished",
			zap.String("cycle", res.CycleID),
			zap.String("focus", res.Prompt.Focus),
			zap.Bool("substantive", res.Substantive),
			zap.Int("streak", res.Streak),
			zap.Int("pruned", len(res.Pruned)))
		return nil
	}

	if once {
		if err := cycle(ctx); err != nil {
			return err
		}
		return nil
	}

	sched := pcec.NewScheduler(cfg.Scheduler.Interval, cycle, logger)
	sched.Start(ctx)
	logger.Info("reflection scheduler running", zap.Duration("interval", sched.Interval()))
	<-ctx.Done()
	sched.Stop()
	return nil
}

func runTree(cmd *cobra.Command, args []string) error {
	_, st, _, err := openState()
	if err != nil {
		return err
	}
	tree, err := st.LoadTree()
	if err != nil {
		return err
	}

	if len(pathSignals) > 0 {
		genes, err := st.LoadGenes()
		if err != nil {
			return err
		}
		byID := make(map[string]*gene.Gene, len(genes))
		for _, g := range genes {
			byID[g.ID] = g
		}
		path := tree.FindPath(pathSignals, func(id string) *gene.Gene { return byID[id] })
		if len(path) == 0 {
			fmt.Println("no capability matches the given signals")
			return nil
		}
		for _, n := range path {
			fmt.Println(n.ID)
		}
		return nil
	}

	fmt.Print(report.RenderTree(tree))
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	_, st, dir, err := openState()
	if err != nil {
		return err
	}
	r, err := report.Build(cmd.Context(), st, dir, time.Now())
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(r)
	}
	fmt.Print(report.Render(r))
	return nil
}

// openState resolves the workspace and opens the file store.
func openState() (*config.Config, *store.FileStore, string, error) {
	ws := workspace
	if ws == "" {
		var err error
		if ws, err = os.Getwd(); err != nil {
			return nil, nil, "", err
		}
	}
	cfg, err := config.Load(ws)
	if err != nil {
		return nil, nil, "", err
	}
	if strategy != "" {
		cfg.Strategy = strategy
	}
	if agent != "" {
		cfg.Agent = agent
	}
	if sessions != "" {
		cfg.SessionsDir = sessions
	}

	dir := config.DataDir(ws)
	st, err := store.NewFileStore(dir)
	if err != nil {
		return nil, nil, "", err
	}
	return cfg, st, dir, nil
}

func buildEngine() (*engine.Engine, *config.Config, error) {
	cfg, st, _, err := openState()
	if err != nil {
		return nil, nil, err
	}

	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	br := bridge.NewFileBridge(cfg.SessionsDir, cfg.Bridge.RuntimeBin, ws, logger)
	pipe := solidify.New(st,
		solidify.NewShellRunner(ws),
		solidify.NewGitRollbacker(ws),
		logger,
		solidify.Options{DryRun: dryRun, CommandTimeout: cfg.Solidify.CommandTimeout})
	return engine.New(cfg, st, br, pipe, logger), cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Emit JSON instead of formatted output")

	runCmd.Flags().StringVar(&strategy, "strategy", "", "Strategy preset (conservative, balanced, aggressive)")
	runCmd.Flags().StringVar(&agent, "agent", "", "Agent whose sessions are read")
	runCmd.Flags().StringVar(&sessions, "sessions", "", "Session transcripts directory")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate the cycle without dispatching or persisting")
	runCmd.Flags().BoolVar(&watch, "watch", false, "Keep running and cycle on every new transcript")

	solidifyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "List validation commands without executing them")
	solidifyCmd.Flags().BoolVar(&workingTree, "working-tree", false, "Gate the current working-tree changes instead")

	pcecCmd.Flags().BoolVar(&once, "once", false, "Run a single reflection cycle and exit")

	treeCmd.Flags().StringArrayVar(&pathSignals, "signal", nil, "Signal to match capabilities against (repeatable)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(solidifyCmd)
	rootCmd.AddCommand(pcecCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
