// Package config holds the settings of a training run. Default reproduces
// the job's fixed constants; Load overlays a YAML file on top of them.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/pkg/log"
)

// Config is the full run configuration.
type Config struct {
	Data     DataConfig     `yaml:"data"`
	Split    SplitConfig    `yaml:"split"`
	Features FeatureConfig  `yaml:"features"`
	Model    ModelConfig    `yaml:"model"`
	Output   OutputConfig   `yaml:"output"`
	RunStore RunStoreConfig `yaml:"run_store"`
	Log      LogConfig      `yaml:"log"`
}

// DataConfig locates the input table.
type DataConfig struct {
	Path  string `yaml:"path"`
	Label string `yaml:"label"`
	// ShuffleSeed makes the initial shuffle reproducible. Unset means a
	// fresh random order on every run.
	ShuffleSeed *uint64 `yaml:"shuffle_seed"`
}

// SplitConfig configures the holdout split.
type SplitConfig struct {
	TestSize    float64 `yaml:"test_size"`
	RandomState uint64  `yaml:"random_state"`
}

// FeatureConfig selects the feature columns by index in the input table
// (label excluded) and the numeric preprocessing.
type FeatureConfig struct {
	Categorical []int  `yaml:"categorical"`
	Numeric     []int  `yaml:"numeric"`
	Imputer     string `yaml:"imputer"`
	Scaler      string `yaml:"scaler"`
}

// ModelConfig configures the random forest.
type ModelConfig struct {
	NEstimators int    `yaml:"n_estimators"`
	RandomState uint64 `yaml:"random_state"`
	Criterion   string `yaml:"criterion"`
	MaxDepth    int    `yaml:"max_depth"`
	MaxFeatures string `yaml:"max_features"`
	Voting      string `yaml:"voting"`
	NJobs       int    `yaml:"n_jobs"`
}

// OutputConfig names the files a run writes.
type OutputConfig struct {
	Image    string `yaml:"image"`
	DPI      int    `yaml:"dpi"`
	Metrics  string `yaml:"metrics"`
	Artifact string `yaml:"artifact"`
}

// RunStoreConfig enables the SQLite run history when Path is set.
type RunStoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures structured logging. File switches output from
// stderr to a size-rotated file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the configuration of the standard drug classifier run.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Path:  "./Data/drug.csv",
			Label: "Drug",
		},
		Split: SplitConfig{
			TestSize:    0.3,
			RandomState: 125,
		},
		Features: FeatureConfig{
			Categorical: []int{1, 2, 3},
			Numeric:     []int{0, 4},
			Imputer:     "median",
			Scaler:      "standard",
		},
		Model: ModelConfig{
			NEstimators: 100,
			RandomState: 125,
			Criterion:   "gini",
			MaxFeatures: "sqrt",
			Voting:      "hard",
		},
		Output: OutputConfig{
			Image:    "./Results/model_results.png",
			DPI:      120,
			Metrics:  "./Results/metrics.txt",
			Artifact: "./Model/drug_pipeline.json",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads the YAML file at path over Default and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and the feature column layout.
func (c *Config) Validate() error {
	switch {
	case c.Data.Path == "":
		return errors.NewValidationError("data.path", "must not be empty", c.Data.Path)
	case c.Data.Label == "":
		return errors.NewValidationError("data.label", "must not be empty", c.Data.Label)
	case c.Split.TestSize <= 0 || c.Split.TestSize >= 1:
		return errors.NewValidationError("split.test_size", "must be in (0, 1)", c.Split.TestSize)
	case c.Model.NEstimators < 1:
		return errors.NewValidationError("model.n_estimators", "must be >= 1", c.Model.NEstimators)
	case c.Model.MaxDepth < 0:
		return errors.NewValidationError("model.max_depth", "must be >= 0", c.Model.MaxDepth)
	case c.Output.DPI <= 0:
		return errors.NewValidationError("output.dpi", "must be positive", c.Output.DPI)
	case c.Output.Image == "" || c.Output.Metrics == "" || c.Output.Artifact == "":
		return errors.NewValidationError("output", "image, metrics and artifact paths are required", c.Output)
	case len(c.Features.Categorical)+len(c.Features.Numeric) == 0:
		return errors.NewValidationError("features", "at least one feature column is required", c.Features)
	}

	switch c.Features.Imputer {
	case "median", "mean", "most_frequent":
	default:
		return errors.NewValidationError("features.imputer", "must be median, mean or most_frequent", c.Features.Imputer)
	}
	switch c.Features.Scaler {
	case "standard", "minmax":
	default:
		return errors.NewValidationError("features.scaler", "must be standard or minmax", c.Features.Scaler)
	}

	seen := make(map[int]string)
	groups := []struct {
		name string
		cols []int
	}{
		{"categorical", c.Features.Categorical},
		{"numeric", c.Features.Numeric},
	}
	for _, g := range groups {
		group := g.name
		for _, j := range g.cols {
			if j < 0 {
				return errors.NewValidationError("features."+group, "column indices must be >= 0", j)
			}
			if other, dup := seen[j]; dup {
				return errors.NewValidationError("features."+group,
					fmt.Sprintf("column %d is already listed as %s", j, other), j)
			}
			seen[j] = group
		}
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidationError("log.level", err.Error(), c.Log.Level)
	}
	return nil
}
