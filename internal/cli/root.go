package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/stimalign/internal/model"
)

// Version is set at build time
var Version = "v0.1.0"

var (
	cfgFile    string
	verbose    bool
	corpusPath string
	logFormat  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stimalign",
	Short: "stimalign - align behavioral logs with stimulus tokens and device triggers",
	Long: `stimalign cleans the behavioral log of a word-by-word reading experiment,
locates every presented sentence in the stimulus corpus, tags each word
event with a corpus-wide token ID, and cross-checks the acquisition
device's trigger codes against the log.

Outputs per session:
  <session>-clean-events.csv   normalized, token-tagged log
  rejected-<session>.txt       sentence candidates not found in the corpus
  <session>-events.tsv         validated device events (with triggers)
  <session>-tokens.tsv         the same events with token IDs as codes
  <session>-report.json        counts, validity and diagnostic signals`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "stimalign %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.stimalign/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&corpusPath, "corpus", "", "stimulus corpus (overrides corpus.path)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides logging.format)")

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".stimalign"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := registerDefaults(viper.GetViper(), model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering defaults: %v\n", err)
	}

	// STIMALIGN_VALIDATION_TOLERANCE overrides validation.tolerance
	viper.SetEnvPrefix("STIMALIGN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// registerDefaults makes every config key known to v, so environment
// variables can override keys absent from the config file
func registerDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}

	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}

	var walk func(prefix string, node map[string]interface{})
	walk = func(prefix string, node map[string]interface{}) {
		for k, val := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if child, ok := val.(map[string]interface{}); ok {
				walk(key, child)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
	return nil
}

// loadConfig resolves the configuration: defaults, config file, environment,
// then global flags
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(), // input.max_file_size: 256MB
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if corpusPath != "" {
		cfg.Corpus.Path = corpusPath
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging installs the default slog logger
func setupLogging(w io.Writer, cfg model.LoggingConfig) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", cfg.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// prepare loads configuration and logging for a command
func prepare(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	if err := setupLogging(cmd.ErrOrStderr(), cfg.Logging); err != nil {
		return nil, WrapExitError(ExitCommandError, "configure logging", err)
	}
	return cfg, nil
}
