package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/stimalign/internal/model"
	"github.com/ppiankov/stimalign/internal/pipeline"
	"github.com/ppiankov/stimalign/internal/store"
	"github.com/ppiankov/stimalign/internal/worker"
)

var (
	workers        int
	batchOutputDir string
	batchTimeout   time.Duration
	skipSessions   []string
	skipFile       string
	dbPath         string
	loadsPerSecond float64
	batchNoCache   bool
	batchMarkdown  bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Process every session log in a directory in parallel",
	Long: `Batch processes all session logs in a directory concurrently:
- Discover logs matching batch.session_pattern
- Pair each log with <session>_triggers.tsv when present
- Process sessions in parallel; a failing session never stops the others
- Optionally record the run in a SQLite ledger

Example:
  stimalign batch ./events --corpus stimuli.txt
  stimalign batch ./events --workers 8 --output-dir ./clean --skip sub-V1044
  stimalign batch ./events --skip-file qc-excluded.txt --db runs.db`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&workers, "workers", 0, "number of concurrent workers (overrides batch.workers)")
	batchCmd.Flags().StringVar(&batchOutputDir, "output-dir", "", "output directory (overrides output.dir)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringSliceVar(&skipSessions, "skip", nil, "session IDs to skip (added to batch.skip)")
	batchCmd.Flags().StringVar(&skipFile, "skip-file", "", "file listing session IDs to skip, one per line")
	batchCmd.Flags().StringVar(&dbPath, "db", "", "SQLite run ledger (overrides store.path)")
	batchCmd.Flags().Float64Var(&loadsPerSecond, "loads-per-second", 0, "pace session loads per data directory (0 = unpaced)")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "do not read or write the corpus index cache")
	batchCmd.Flags().BoolVar(&batchMarkdown, "md", false, "also write Markdown reports")
}

func runBatch(cmd *cobra.Command, args []string) error {
	dir := args[0]

	cfg, err := prepare(cmd)
	if err != nil {
		return err
	}
	if err := applyBatchFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()
	// Ledger writes must land even after the batch is cut off
	ledgerCtx := context.WithoutCancel(ctx)

	sessions, err := worker.DiscoverSessions(dir, cfg.Batch.SessionPattern, cfg.Batch.Skip, cfg.Batch.TriggerSuffix)
	if err != nil {
		return WrapExitError(ExitCommandError, "discover sessions", err)
	}

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "\n")
	fmt.Fprintf(errOut, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(errOut, "  stimalign batch\n")
	fmt.Fprintf(errOut, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(errOut, "\n")
	fmt.Fprintf(errOut, "  Data dir:     %s\n", dir)
	fmt.Fprintf(errOut, "  Corpus:       %s\n", cfg.Corpus.Path)
	fmt.Fprintf(errOut, "  Sessions:     %d\n", len(sessions))
	fmt.Fprintf(errOut, "  Workers:      %d\n", cfg.Batch.Workers)
	fmt.Fprintf(errOut, "  Output dir:   %s\n", cfg.Output.Dir)
	fmt.Fprintf(errOut, "\n")

	if len(sessions) == 0 {
		fmt.Fprintf(errOut, "No sessions found\n")
		return nil
	}

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	var ledger *store.Store
	var runID string
	if cfg.Store.Path != "" {
		ledger, err = store.Open(cfg.Store.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "open run ledger", err)
		}
		defer func() { _ = ledger.Close() }()

		runID, err = ledger.BeginRun(ledgerCtx, cfg.Corpus.Path, dir)
		if err != nil {
			return WrapExitError(ExitCommandError, "begin run", err)
		}
		fmt.Fprintf(errOut, "  Run:          %s\n\n", runID)
	}

	processor := worker.NewBatchProcessor(&runStamper{pipeline: p, runID: runID},
		cfg.Batch.Workers, cfg.Batch.LoadsPerSecond, cfg.Batch.Burst)
	processor.SetRootRates(rootRates(cfg.Batch.RootRates))
	results := processor.ProcessSessions(ctx, sessions)

	failures := 0
	for _, result := range results {
		if result.Error != nil {
			failures++
			fmt.Fprintf(errOut, "✗ %s: %v\n", result.Session.ID, result.Error)
		} else {
			fmt.Fprintf(errOut, "✓ %s (%.2f%% valid, %d rejected sentences)\n",
				result.Session.ID, result.Report.Score.ValidPercent, len(result.Report.RejectedSentences))
		}

		if ledger != nil {
			var rec store.SessionRecord
			if result.Error != nil {
				rec = store.FailedRecord(result.Session.ID, result.Error)
			} else {
				rec = store.RecordFromReport(result.Report)
			}
			if err := ledger.WriteSession(ledgerCtx, runID, rec); err != nil {
				return WrapExitError(ExitCommandError, "record session", err)
			}
		}
	}

	if ledger != nil {
		if err := ledger.FinishRun(ledgerCtx, runID); err != nil {
			return WrapExitError(ExitCommandError, "finish run", err)
		}
	}

	fmt.Fprintf(errOut, "\n")
	fmt.Fprintf(errOut, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(errOut, "  Batch Complete\n")
	fmt.Fprintf(errOut, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(errOut, "\n")
	fmt.Fprintf(errOut, "  Total:     %d sessions\n", len(results))
	fmt.Fprintf(errOut, "  Success:   %d\n", len(results)-failures)
	fmt.Fprintf(errOut, "  Failures:  %d\n", failures)
	fmt.Fprintf(errOut, "  Output:    %s\n", cfg.Output.Dir)
	fmt.Fprintf(errOut, "\n")

	if failures > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d sessions failed", failures, len(results)))
	}
	return nil
}

// applyBatchFlags copies explicitly set batch flags into cfg
func applyBatchFlags(cmd *cobra.Command, cfg *model.Config) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Batch.Workers = workers
	}
	if flags.Changed("output-dir") {
		cfg.Output.Dir = batchOutputDir
	}
	if flags.Changed("db") {
		cfg.Store.Path = dbPath
	}
	if flags.Changed("loads-per-second") {
		cfg.Batch.LoadsPerSecond = loadsPerSecond
	}
	if flags.Changed("no-cache") {
		cfg.Cache.Enabled = !batchNoCache
	}
	if flags.Changed("md") {
		cfg.Output.Markdown = batchMarkdown
	}

	cfg.Batch.Skip = append(cfg.Batch.Skip, skipSessions...)
	if skipFile != "" {
		ids, err := worker.ReadSkipFile(skipFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "read skip file", err)
		}
		cfg.Batch.Skip = append(cfg.Batch.Skip, ids...)
	}

	if cfg.Batch.Workers <= 0 {
		return NewExitError(ExitCommandError, "workers must be positive")
	}
	if _, err := os.Stat(cfg.Corpus.Path); err != nil {
		return WrapExitError(ExitCommandError, "corpus", err)
	}
	return nil
}

// rootRates maps configured data roots to their load rates
func rootRates(rates []model.RootRate) map[string]float64 {
	out := make(map[string]float64, len(rates))
	for _, r := range rates {
		if r.Root != "" {
			out[r.Root] = r.LoadsPerSecond
		}
	}
	return out
}

// runStamper tags each report with the ledger run ID before it is rendered
type runStamper struct {
	pipeline *pipeline.Pipeline
	runID    string
}

func (r *runStamper) Run(ctx context.Context, session model.Session) (*model.Report, error) {
	res, err := r.pipeline.ProcessSession(ctx, session)
	if err != nil {
		return nil, err
	}
	res.Report.RunID = r.runID
	if err := r.pipeline.Render(res); err != nil {
		return nil, err
	}
	return res.Report, nil
}
