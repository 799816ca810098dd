package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/stimalign/internal/cache"
	"github.com/ppiankov/stimalign/internal/model"
	"github.com/ppiankov/stimalign/internal/pipeline"
)

var (
	sessionID    string
	outputDir    string
	markdown     bool
	noCache      bool
	runTimeout   time.Duration
	triggersPath string
	resampled    string
	failBelow    float64
)

// formatCmd represents the format command
var formatCmd = &cobra.Command{
	Use:   "format <events.tsv>",
	Short: "Normalize a behavioral log and tag word events with token IDs",
	Long: `Format cleans one behavioral log:
- Cluster raw rows recorded within one sample into single events
- Classify each event (word, fixation, question, response, ...)
- Find each sentence between fixations in the stimulus corpus
- Attach sentence, position and token ID to every matched word

Example:
  stimalign format sub-V1001_task-visual_events.tsv --corpus stimuli.txt
  stimalign format events.tsv --session sub-V1001 --output-dir ./clean --md`,
	Args: cobra.ExactArgs(1),
	RunE: runFormat,
}

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate <events.tsv>",
	Short: "Format a behavioral log and validate device triggers against it",
	Long: `Validate runs format, then checks every device trigger against the
annotated log within a one-sample tolerance. Accepted triggers are written
in device space and token space.

Example:
  stimalign validate events.tsv --triggers sub-V1001_triggers.tsv
  stimalign validate events.tsv --triggers raw.tsv --resampled down.tsv --fail-below 95`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(validateCmd)

	for _, cmd := range []*cobra.Command{formatCmd, validateCmd} {
		cmd.Flags().StringVar(&sessionID, "session", "", "session ID (default: derived from the file name)")
		cmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory (overrides output.dir)")
		cmd.Flags().BoolVar(&markdown, "md", false, "also write a Markdown report")
		cmd.Flags().BoolVar(&noCache, "no-cache", false, "do not read or write the corpus index cache")
		cmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "processing timeout")
	}

	validateCmd.Flags().StringVar(&triggersPath, "triggers", "", "device trigger file (sample, duration, code)")
	validateCmd.Flags().StringVar(&resampled, "resampled", "", "the same triggers at the analysis sampling rate")
	validateCmd.Flags().Float64Var(&failBelow, "fail-below", 0, "exit with status 1 when validity is below this percentage")
	_ = validateCmd.MarkFlagRequired("triggers")
}

func runFormat(cmd *cobra.Command, args []string) error {
	cfg, err := prepare(cmd)
	if err != nil {
		return err
	}

	session := model.Session{
		ID:      sessionFromPath(args[0], cfg.Batch.SessionPattern),
		LogPath: args[0],
	}
	_, err = runSingle(cmd, cfg, session)
	return err
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := prepare(cmd)
	if err != nil {
		return err
	}

	session := model.Session{
		ID:            sessionFromPath(args[0], cfg.Batch.SessionPattern),
		LogPath:       args[0],
		TriggersPath:  triggersPath,
		ResampledPath: resampled,
	}
	report, err := runSingle(cmd, cfg, session)
	if err != nil {
		return err
	}

	if failBelow > 0 && report.Score.ValidPercent < failBelow {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%s: %.2f%% valid, below %.2f%%", report.Session, report.Score.ValidPercent, failBelow))
	}
	return nil
}

func runSingle(cmd *cobra.Command, cfg *model.Config, session model.Session) (*model.Report, error) {
	if sessionID != "" {
		session.ID = sessionID
	}
	applyOutputFlags(cmd, cfg)

	p, err := newPipeline(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	report, err := p.Run(ctx, session)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "process session", err)
	}

	pipeline.RenderSummary(cmd.OutOrStdout(), report)
	if cfg.Output.Verbose {
		for kind, path := range report.Outputs {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %s: %s\n", kind, path)
		}
	}
	return report, nil
}

// applyOutputFlags copies explicitly set output flags into cfg
func applyOutputFlags(cmd *cobra.Command, cfg *model.Config) {
	if cmd.Flags().Changed("output-dir") {
		cfg.Output.Dir = outputDir
	}
	if cmd.Flags().Changed("md") {
		cfg.Output.Markdown = markdown
	}
	if cmd.Flags().Changed("no-cache") {
		cfg.Cache.Enabled = !noCache
	}
}

// newPipeline builds a pipeline with the configured corpus index cache
func newPipeline(cfg *model.Config) (*pipeline.Pipeline, error) {
	var opts []pipeline.Option
	if cfg.Cache.Enabled {
		opts = append(opts, pipeline.WithCache(cache.New(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)))
	}

	p, err := pipeline.New(cfg, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build pipeline", err)
	}
	return p, nil
}

// sessionFromPath derives a session ID from a log file name: the first
// capture group of pattern when it matches, the base name otherwise
func sessionFromPath(path, pattern string) string {
	base := filepath.Base(path)
	if re, err := regexp.Compile(pattern); err == nil {
		if m := re.FindStringSubmatch(base); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
