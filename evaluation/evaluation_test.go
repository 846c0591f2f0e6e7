package evaluation

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/dataset"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

type fixedPredictor struct {
	pred    []string
	classes []string
}

func (f fixedPredictor) Predict(*dataset.Frame) ([]string, error) { return f.pred, nil }
func (f fixedPredictor) Classes() []string                        { return f.classes }

func frameOf(t *testing.T, n int) *dataset.Frame {
	t.Helper()
	col := make([]float64, n)
	f, err := dataset.NewFrame([]string{"Age"}, []interface{}{col})
	require.NoError(t, err)
	return f
}

func TestEvaluate(t *testing.T) {
	y := []string{"drugA", "drugA", "drugB", "DrugY"}
	p := fixedPredictor{
		pred:    []string{"drugA", "drugB", "drugB", "DrugY"},
		classes: []string{"DrugY", "drugA", "drugB"},
	}

	r, err := Evaluate(p, frameOf(t, 4), y)
	require.NoError(t, err)

	assert.Equal(t, 0.75, r.Accuracy)
	assert.InDelta(t, (1+2.0/3+2.0/3)/3, r.F1, 1e-12)
	assert.Equal(t, p.classes, r.Labels)
	want := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 1,
		0, 0, 1,
	})
	assert.True(t, mat.Equal(want, r.Confusion))

	_, err = Evaluate(p, frameOf(t, 3), y)
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestFormatMetric(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{0, "0.0"},
		{0.5, "0.5"},
		{0.96666, "0.97"},
		{0.125, "0.12"},
		{0.135, "0.14"},
		{0.215, "0.21"},
		{43.0 / 200, "0.21"},
		{0.005, "0.01"},
		{0.675, "0.68"},
		{0.9, "0.9"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMetric(tt.in), "FormatMetric(%v)", tt.in)
	}
}

func TestAppendMetricsNeverTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Results", "metrics.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("history"), 0o644))

	now := time.Date(2026, 3, 7, 9, 5, 2, 0, time.UTC)
	require.NoError(t, AppendMetrics(path, now, &Result{Accuracy: 1, F1: 0.96666}))
	require.NoError(t, AppendMetrics(path, now.Add(time.Hour), &Result{Accuracy: 0.5, F1: 0.25}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"history\n07-03-26 09:05:02 Accuracy = 1.0, F1 Score = 0.97\n07-03-26 10:05:02 Accuracy = 0.5, F1 Score = 0.25",
		string(data))
}

func TestAppendMetricsCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new", "metrics.txt")
	require.NoError(t, AppendMetrics(path, time.Now(), &Result{Accuracy: 0.8, F1: 0.7}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\n"))
	assert.Equal(t, 1, strings.Count(string(data), "Accuracy ="))
}

func TestConsoleLine(t *testing.T) {
	assert.Equal(t, "Accuracy: 96.67% F1: 0.95", ConsoleLine(&Result{Accuracy: 29.0 / 30, F1: 0.9512}))
	assert.Equal(t, "Accuracy: 100% F1: 1.0", ConsoleLine(&Result{Accuracy: 1, F1: 1}))
}

func TestSaveConfusionMatrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Results", "model_results.png")
	cm := mat.NewDense(3, 3, []float64{
		5, 0, 1,
		0, 7, 0,
		2, 0, 4,
	})
	require.NoError(t, SaveConfusionMatrix(path, cm, []string{"DrugY", "drugA", "drugB"}, 120))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	// 6.4in × 4.8in at 120 dpi.
	assert.InDelta(t, 768, img.Bounds().Dx(), 1)
	assert.InDelta(t, 576, img.Bounds().Dy(), 1)
}

func TestSaveConfusionMatrixSingleClass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.png")
	require.NoError(t, SaveConfusionMatrix(path, mat.NewDense(1, 1, []float64{4}), []string{"drugX"}, 72))
	assert.FileExists(t, path)
}

func TestSaveConfusionMatrixErrors(t *testing.T) {
	dir := t.TempDir()
	cm := mat.NewDense(2, 2, nil)

	err := SaveConfusionMatrix(filepath.Join(dir, "a.png"), cm, []string{"a"}, 120)
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	err = SaveConfusionMatrix(filepath.Join(dir, "b.png"), cm, []string{"a", "b"}, 0)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}
