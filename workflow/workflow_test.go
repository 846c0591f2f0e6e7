package workflow

import (
	"bytes"
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/drugpipe/artifact"
	"github.com/YuminosukeSato/drugpipe/config"
	"github.com/YuminosukeSato/drugpipe/dataset"
	"github.com/YuminosukeSato/drugpipe/metrics"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/runstore"
	"github.com/YuminosukeSato/drugpipe/sklearn/model_selection"
)

func testConfig(t *testing.T, rows int) *config.Config {
	t.Helper()
	dir := t.TempDir()

	data := filepath.Join(dir, "Data", "drug.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(data), 0o755))
	f, err := os.Create(data)
	require.NoError(t, err)
	require.NoError(t, dataset.GenerateDrugTable(rows, 42, 0.05).WriteCSV(f))
	require.NoError(t, f.Close())

	cfg := config.Default()
	cfg.Data.Path = data
	seed := uint64(11)
	cfg.Data.ShuffleSeed = &seed
	cfg.Model.NEstimators = 30
	cfg.Output.Image = filepath.Join(dir, "Results", "model_results.png")
	cfg.Output.Metrics = filepath.Join(dir, "Results", "metrics.txt")
	cfg.Output.Artifact = filepath.Join(dir, "Model", "drug_pipeline.json")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t, 200)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Output.Metrics), 0o755))
	require.NoError(t, os.WriteFile(cfg.Output.Metrics, []byte("previous run"), 0o644))

	var stdout bytes.Buffer
	now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	sum, err := Run(context.Background(), cfg, WithStdout(&stdout), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	assert.Equal(t, 140, sum.NTrain)
	assert.Equal(t, 60, sum.NTest)
	assert.GreaterOrEqual(t, sum.Result.Accuracy, 0.0)
	assert.LessOrEqual(t, sum.Result.Accuracy, 1.0)
	assert.GreaterOrEqual(t, sum.Result.F1, 0.0)
	assert.LessOrEqual(t, sum.Result.F1, 1.0)

	// Exactly one new metrics line.
	log, err := os.ReadFile(cfg.Output.Metrics)
	require.NoError(t, err)
	lines := strings.Split(string(log), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "previous run", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "19-10-26 08:30:00 Accuracy = "), lines[1])

	assert.FileExists(t, cfg.Output.Image)
	assert.FileExists(t, cfg.Output.Artifact)
	assert.Equal(t, sum.Console+"\n", stdout.String())
	assert.True(t, strings.HasPrefix(sum.Console, "Accuracy: "))

	// The persisted pipeline reproduces the holdout predictions.
	loaded, err := artifact.Load(cfg.Output.Artifact)
	require.NoError(t, err)

	table, err := dataset.ReadCSV(cfg.Data.Path)
	require.NoError(t, err)
	table.Shuffle(newRand(*cfg.Data.ShuffleSeed))
	X, y, err := table.Features(cfg.Data.Label)
	require.NoError(t, err)
	split, err := model_selection.TrainTestSplit(X, y,
		model_selection.WithTestSize(cfg.Split.TestSize),
		model_selection.WithRandomState(cfg.Split.RandomState))
	require.NoError(t, err)

	got, err := loaded.Predict(split.XTest)
	require.NoError(t, err)
	assert.Equal(t, sum.Result.YPred, got)
	assert.Equal(t, split.YTest, sum.Result.YTrue)
	assert.Equal(t, metrics.UniqueLabels(split.YTrain), sum.Result.Labels)
	assert.Equal(t, sum.Result.Labels, loaded.Classes())
}

func TestRunIsReproducibleWithSeeds(t *testing.T) {
	cfg := testConfig(t, 120)
	first, err := Run(context.Background(), cfg, WithStdout(&bytes.Buffer{}))
	require.NoError(t, err)
	second, err := Run(context.Background(), cfg, WithStdout(&bytes.Buffer{}))
	require.NoError(t, err)

	assert.Equal(t, first.Result.YPred, second.Result.YPred)

	data, err := os.ReadFile(cfg.Output.Metrics)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "Accuracy ="))
}

func TestRunRecordsRunStore(t *testing.T) {
	cfg := testConfig(t, 80)
	cfg.RunStore.Path = filepath.Join(filepath.Dir(cfg.Output.Metrics), "runs.db")

	sum, err := Run(context.Background(), cfg, WithStdout(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.RunID)

	store, err := runstore.Open(context.Background(), cfg.RunStore.Path)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sum.NTest, runs[0].NTest)
	assert.Equal(t, cfg.Output.Artifact, runs[0].ModelPath)
}

func TestRunMissingInput(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Path = filepath.Join(t.TempDir(), "nope.csv")

	_, err := Run(context.Background(), cfg, WithStdout(&bytes.Buffer{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Contains(t, err.Error(), "load")
}

func TestRunMissingLabelColumn(t *testing.T) {
	cfg := testConfig(t, 40)
	cfg.Data.Label = "Outcome"

	_, err := Run(context.Background(), cfg, WithStdout(&bytes.Buffer{}))
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))
	assert.NoFileExists(t, cfg.Output.Metrics)
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}
