package model

import (
	"time"

	"github.com/c2h5oh/datasize"
)

// Config holds the complete stimalign configuration
type Config struct {
	Corpus     CorpusConfig     `yaml:"corpus" mapstructure:"corpus"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// CorpusConfig locates the stimulus corpus
type CorpusConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // stimuli.txt
}

// InputConfig bounds the files read per session
type InputConfig struct {
	MaxFileSize datasize.ByteSize `yaml:"max_file_size" mapstructure:"max_file_size"` // e.g. 256MB; 0 = unlimited
}

// ClassifierConfig holds the markers used to classify behavioral log rows
type ClassifierConfig struct {
	ResponseTag    string   `yaml:"response_tag" mapstructure:"response_tag"`
	PictureTag     string   `yaml:"picture_tag" mapstructure:"picture_tag"`
	IgnoredTags    []string `yaml:"ignored_tags" mapstructure:"ignored_tags"`
	BlockPattern   string   `yaml:"block_pattern" mapstructure:"block_pattern"`
	FixationPrefix string   `yaml:"fixation_prefix" mapstructure:"fixation_prefix"`
	QuestionPrefix string   `yaml:"question_prefix" mapstructure:"question_prefix"`
	IgnoredValues  []string `yaml:"ignored_values" mapstructure:"ignored_values"`
}

// ValidationConfig tunes cross-stream validation reporting
type ValidationConfig struct {
	Tolerance   int     `yaml:"tolerance" mapstructure:"tolerance"`         // Samples; values above 1 are clamped
	WarnBelow   float64 `yaml:"warn_below" mapstructure:"warn_below"`       // Validity % that raises a signal
	CropToWords bool    `yaml:"crop_to_words" mapstructure:"crop_to_words"` // Apply Crop after Simplify
}

// BatchConfig controls session discovery and fan-out
type BatchConfig struct {
	SessionPattern string     `yaml:"session_pattern" mapstructure:"session_pattern"`
	TriggerSuffix  string     `yaml:"trigger_suffix" mapstructure:"trigger_suffix"`
	Skip           []string   `yaml:"skip" mapstructure:"skip"`
	Workers        int        `yaml:"workers" mapstructure:"workers"`
	LoadsPerSecond float64    `yaml:"loads_per_second" mapstructure:"loads_per_second"` // 0 disables pacing
	Burst          int        `yaml:"burst" mapstructure:"burst"`
	RootRates      []RootRate `yaml:"root_rates" mapstructure:"root_rates"`
}

// RootRate paces session loads from one data directory
type RootRate struct {
	Root           string  `yaml:"root" mapstructure:"root"`
	LoadsPerSecond float64 `yaml:"loads_per_second" mapstructure:"loads_per_second"`
}

// CacheConfig controls caching of built corpus indices
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// StoreConfig locates the optional SQLite run ledger
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // Empty disables the ledger
}

// OutputConfig controls rendered artifacts
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Markdown bool   `yaml:"markdown" mapstructure:"markdown"`
	Verbose  bool   `yaml:"verbose" mapstructure:"verbose"`
}

// LoggingConfig controls slog output
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text, json
}

// DefaultConfig returns the defaults used by the MOUS visual task
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Path: "stimuli.txt",
		},
		Input: InputConfig{
			MaxFileSize: 256 * datasize.MB,
		},
		Classifier: DefaultClassifierConfig(),
		Validation: ValidationConfig{
			Tolerance:   1,
			WarnBelow:   90,
			CropToWords: true,
		},
		Batch: BatchConfig{
			SessionPattern: `^(sub-[AV]\d+)_task-visual_events\.tsv$`,
			TriggerSuffix:  "_triggers.tsv",
			Workers:        4,
			LoadsPerSecond: 0,
			Burst:          4,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".stimalign-cache",
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Output: OutputConfig{
			Dir: "./stimalign-out",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultClassifierConfig returns the markers written by the presentation
// software of the visual task
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ResponseTag:    "Response",
		PictureTag:     "Picture",
		IgnoredTags:    []string{"trial", "UDIO001"},
		BlockPattern:   `^(ZINNEN|WOORDEN)`,
		FixationPrefix: "FIX",
		QuestionPrefix: "QUESTION",
		IgnoredValues: []string{
			"blank", "pause", "ISI",
			"PULSE MODE 0", "PULSE MODE 1", "PULSE MODE 2",
			"PULSE MODE 3", "PULSE MODE 4", "PULSE MODE 5",
		},
	}
}
