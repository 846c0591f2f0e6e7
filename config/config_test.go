package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultMatchesJobConstants(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./Data/drug.csv", cfg.Data.Path)
	assert.Nil(t, cfg.Data.ShuffleSeed)
	assert.Equal(t, 0.3, cfg.Split.TestSize)
	assert.Equal(t, uint64(125), cfg.Split.RandomState)
	assert.Equal(t, []int{1, 2, 3}, cfg.Features.Categorical)
	assert.Equal(t, []int{0, 4}, cfg.Features.Numeric)
	assert.Equal(t, 100, cfg.Model.NEstimators)
	assert.Equal(t, uint64(125), cfg.Model.RandomState)
	assert.Equal(t, 120, cfg.Output.DPI)
	assert.Equal(t, "./Results/model_results.png", cfg.Output.Image)
	assert.Equal(t, "./Results/metrics.txt", cfg.Output.Metrics)
	assert.Equal(t, "", cfg.RunStore.Path)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
data:
  path: /tmp/in.csv
  shuffle_seed: 7
model:
  n_estimators: 10
  voting: soft
run_store:
  path: /tmp/runs.db
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/in.csv", cfg.Data.Path)
	assert.Equal(t, "Drug", cfg.Data.Label)
	require.NotNil(t, cfg.Data.ShuffleSeed)
	assert.Equal(t, uint64(7), *cfg.Data.ShuffleSeed)
	assert.Equal(t, 10, cfg.Model.NEstimators)
	assert.Equal(t, "soft", cfg.Model.Voting)
	assert.Equal(t, uint64(125), cfg.Model.RandomState)
	assert.Equal(t, 0.3, cfg.Split.TestSize)
	assert.Equal(t, "/tmp/runs.db", cfg.RunStore.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"test size", "split:\n  test_size: 1.5\n"},
		{"estimators", "model:\n  n_estimators: 0\n"},
		{"dpi", "output:\n  dpi: 0\n"},
		{"overlap", "features:\n  categorical: [0, 1]\n  numeric: [1, 4]\n"},
		{"negative column", "features:\n  numeric: [-1]\n"},
		{"scaler", "features:\n  scaler: robust\n"},
		{"log level", "log:\n  level: verbose\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = Load(writeConfig(t, "model:\n  trees: 5\n"))
	assert.Error(t, err)
}
