package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpequegn/testguard/internal/aggregator"
	"github.com/jpequegn/testguard/internal/batchrun"
	"github.com/jpequegn/testguard/internal/history"
	"github.com/jpequegn/testguard/internal/scheduler"
	"github.com/jpequegn/testguard/internal/testtree"
	"github.com/jpequegn/testguard/internal/workerclient"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover and run a test assembly under hang-tolerant supervision",
	Long: `Run discovers every test in the given assembly, batches them under the
configured ceiling, and executes the batches concurrently, recursively
isolating any test that hangs.

Example:
  testguard run --assembly ./mysuite.test --worker ./testguard-worker
  testguard run --assembly ./mysuite.test --worker ./testguard-worker --watch`,
	RunE: runTests,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("assembly", "", "path to the test assembly to run (required)")
	runCmd.Flags().String("worker", "", "path to the testguard-worker binary (required)")
	runCmd.Flags().Int("max-tests-per-batch", 0, "planner ceiling (default from config, falls back to 5000)")
	runCmd.Flags().Int("per-test-timeout-seconds", 0, "per-test timeout in seconds forwarded to the worker (0 or unset uses 30; the timeout cannot be disabled)")
	runCmd.Flags().Int("workers", 0, "batch concurrency degree (default from config, falls back to 1)")
	runCmd.Flags().String("initial-filter", "", "substring filter applied before tree construction")
	runCmd.Flags().String("history-db", "", "path to the SQLite history database (empty disables history)")
	runCmd.Flags().Bool("watch", false, "re-run whenever the config file changes")

	_ = viper.BindPFlag("assembly", runCmd.Flags().Lookup("assembly"))
	_ = viper.BindPFlag("worker", runCmd.Flags().Lookup("worker"))
	_ = viper.BindPFlag("maxTestsPerBatch", runCmd.Flags().Lookup("max-tests-per-batch"))
	_ = viper.BindPFlag("perTestTimeoutSeconds", runCmd.Flags().Lookup("per-test-timeout-seconds"))
	_ = viper.BindPFlag("workers", runCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("initialFilter", runCmd.Flags().Lookup("initial-filter"))
	_ = viper.BindPFlag("historyDb", runCmd.Flags().Lookup("history-db"))
}

func runTests(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	assembly := viper.GetString("assembly")
	if assembly == "" {
		return fmt.Errorf("--assembly is required")
	}
	workerBinary := viper.GetString("worker")
	if workerBinary == "" {
		return fmt.Errorf("--worker is required")
	}

	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		return executeRun(ctx, assembly, workerBinary)
	}

	runOnce := func() {
		if err := executeRun(ctx, assembly, workerBinary); err != nil {
			slog.Error("run failed", "error", err)
		}
	}
	runOnce()
	watchAndRerun(runOnce)
	return nil
}

func executeRun(ctx context.Context, assembly, workerBinary string) error {
	maxTestsPerBatch := viper.GetInt("maxTestsPerBatch")
	if maxTestsPerBatch <= 0 {
		maxTestsPerBatch = 5000
	}
	perTestTimeoutSeconds := viper.GetInt("perTestTimeoutSeconds")
	workers := viper.GetInt("workers")
	if workers <= 0 {
		workers = 1
	}
	initialFilter := viper.GetString("initialFilter")
	historyDB := viper.GetString("historyDb")

	slog.Info("starting run",
		"assembly", assembly,
		"worker", workerBinary,
		"maxTestsPerBatch", maxTestsPerBatch,
		"perTestTimeoutSeconds", perTestTimeoutSeconds,
		"workers", workers)

	started := time.Now()

	identifiers, err := discoverTests(ctx, workerBinary, assembly)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	if initialFilter != "" {
		identifiers = filterIdentifiers(identifiers, initialFilter)
	}
	if len(identifiers) == 0 {
		return fmt.Errorf("no tests discovered in %s", assembly)
	}
	slog.Info("discovered tests", "count", len(identifiers))

	tree := testtree.Build(identifiers)

	runner := batchrun.New(batchrun.Options{
		WorkerBinaryPath:      workerBinary,
		Assembly:              assembly,
		PerTestTimeoutSeconds: perTestTimeoutSeconds,
		Logger:                logger,
	})
	sched := scheduler.New(runner, scheduler.Options{
		Concurrency:      workers,
		MaxTestsPerBatch: maxTestsPerBatch,
		Logger:           logger,
	})

	result := sched.Run(ctx, tree)
	duration := time.Since(started)

	runResult := aggregator.Merge(
		aggregator.GenerateRunID(started),
		started,
		duration,
		result.Outcomes,
		result.IsolatedHanging,
		result.FailedBatches,
	)

	printSummary(runResult)

	if historyDB != "" {
		store, err := history.NewSQLiteStore(historyDB)
		if err != nil {
			slog.Error("failed to open history store", "error", err)
		} else {
			defer store.Close()
			if err := store.Save(runResult); err != nil {
				slog.Error("failed to save run to history", "error", err)
			}
		}
	}

	if runResult.FailedCount > 0 || runResult.IsolatedHangingCount > 0 {
		return fmt.Errorf("%d failed, %d isolated as hanging", runResult.FailedCount, runResult.IsolatedHangingCount)
	}
	return nil
}

func discoverTests(ctx context.Context, workerBinary, assembly string) ([]string, error) {
	handle, err := workerclient.Spawn(ctx, workerclient.Options{
		BinaryPath: workerBinary,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to spawn worker: %w", err)
	}
	defer handle.Close()

	tests, err := handle.Discover(ctx, assembly)
	if err != nil {
		return nil, err
	}

	identifiers := make([]string, 0, len(tests))
	for _, test := range tests {
		identifiers = append(identifiers, test.FullyQualifiedName)
	}
	return identifiers, nil
}

func filterIdentifiers(identifiers []string, filter string) []string {
	lower := strings.ToLower(filter)
	var out []string
	for _, id := range identifiers {
		if strings.Contains(strings.ToLower(id), lower) {
			out = append(out, id)
		}
	}
	return out
}

func printSummary(result *aggregator.RunResult) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Test Run Summary (%s)\n", result.RunID)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "Duration: %v\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Passed: %d\n", result.PassedCount)
	fmt.Fprintf(os.Stderr, "Failed: %d\n", result.FailedCount)
	fmt.Fprintf(os.Stderr, "Skipped: %d\n", result.SkippedCount)
	fmt.Fprintf(os.Stderr, "Timed out: %d\n", result.TimedOutCount)
	fmt.Fprintf(os.Stderr, "Isolated as hanging: %d\n", result.IsolatedHangingCount)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════\n\n")

	for _, id := range result.Failed {
		fmt.Fprintf(os.Stderr, "FAIL  %s\n", id)
	}
	for _, id := range result.IsolatedHanging {
		fmt.Fprintf(os.Stderr, "HANG  %s\n", id)
	}
	for _, label := range result.FailedBatches {
		fmt.Fprintf(os.Stderr, "batch produced no results: %s\n", label)
	}
}
