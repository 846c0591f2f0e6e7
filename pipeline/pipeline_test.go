package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/drugpipe/artifact"
	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/dataset"
	"github.com/YuminosukeSato/drugpipe/pipeline"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/preprocessing"
	"github.com/YuminosukeSato/drugpipe/sklearn/ensemble"
)

func newPipeline() *pipeline.Pipeline {
	ct := preprocessing.NewColumnTransformer(
		preprocessing.Step{Name: "encoder", Transformer: preprocessing.NewOrdinalEncoder(), Columns: []int{1, 2, 3}},
		preprocessing.Step{Name: "num_imputer", Transformer: preprocessing.NewSimpleImputer(), Columns: []int{0, 4}},
		preprocessing.Step{Name: "num_scaler", Transformer: preprocessing.NewStandardScalerDefault(), Columns: []int{0, 4}},
	)
	return pipeline.New(ct, ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(15),
		ensemble.WithRandomState(125),
	))
}

func drugFrame(t *testing.T, n int, seed uint64) (*dataset.Frame, []string) {
	t.Helper()
	X, y, err := dataset.GenerateDrugTable(n, seed, 0.05).Features("Drug")
	require.NoError(t, err)
	return X, y
}

func TestPipelineFitPredict(t *testing.T) {
	X, y := drugFrame(t, 150, 1)
	pipe := newPipeline()
	require.False(t, pipe.IsFitted())
	require.NoError(t, pipe.Fit(X, y))
	assert.True(t, pipe.IsFitted())

	classes := pipe.Classes()
	assert.IsIncreasing(t, classes)

	pred, err := pipe.Predict(X)
	require.NoError(t, err)
	require.Len(t, pred, len(y))
	correct := 0
	for i := range y {
		assert.Contains(t, classes, pred[i])
		if pred[i] == y[i] {
			correct++
		}
	}
	assert.Greater(t, float64(correct)/float64(len(y)), 0.9)

	proba, err := pipe.PredictProba(X)
	require.NoError(t, err)
	r, c := proba.Dims()
	assert.Equal(t, len(y), r)
	assert.Equal(t, len(classes), c)

	Xt, err := pipe.Transform(X)
	require.NoError(t, err)
	_, width := Xt.Dims()
	assert.Equal(t, 7, width)
}

func TestPipelineNotFitted(t *testing.T) {
	X, _ := drugFrame(t, 20, 2)
	pipe := newPipeline()

	_, err := pipe.Predict(X)
	var nf *errors.NotFittedError
	assert.ErrorAs(t, err, &nf)

	_, err = pipe.ExportState()
	assert.ErrorAs(t, err, &nf)
}

func TestPipelineFitErrors(t *testing.T) {
	X, y := drugFrame(t, 20, 3)

	err := newPipeline().Fit(X, y[:10])
	var dim *errors.DimensionError
	assert.ErrorAs(t, err, &dim)

	err = pipeline.New(nil, nil).Fit(X, y)
	var ve *errors.ValueError
	assert.ErrorAs(t, err, &ve)
}

func TestPipelineStateRoundTrip(t *testing.T) {
	X, y := drugFrame(t, 120, 4)
	pipe := newPipeline()
	require.NoError(t, pipe.Fit(X, y))

	st, err := pipe.ExportState()
	require.NoError(t, err)
	assert.Equal(t, pipeline.TypePipeline, st.Type)
	for _, name := range []string{pipeline.StepTransformer, pipeline.StepLabels, pipeline.StepClassifier} {
		_, err := st.Child(name)
		assert.NoError(t, err, name)
	}

	restored := &pipeline.Pipeline{}
	require.NoError(t, restored.ImportState(st, artifact.Decode))
	assert.True(t, restored.IsFitted())
	assert.Equal(t, pipe.Classes(), restored.Classes())

	want, err := pipe.Predict(X)
	require.NoError(t, err)
	got, err := restored.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPipelineImportNeedsDecoder(t *testing.T) {
	X, y := drugFrame(t, 60, 5)
	pipe := newPipeline()
	require.NoError(t, pipe.Fit(X, y))
	st, err := pipe.ExportState()
	require.NoError(t, err)

	err = (&pipeline.Pipeline{}).ImportState(st, nil)
	var ve *errors.ValueError
	assert.ErrorAs(t, err, &ve)

	// A decoder that swaps the label encoder for a scaler.
	swap := func(s *model.State) (model.Stateful, error) {
		if s.Type == preprocessing.TypeLabelEncoder {
			return preprocessing.NewStandardScalerDefault(), nil
		}
		return artifact.Decode(s)
	}
	err = (&pipeline.Pipeline{}).ImportState(st, swap)
	assert.ErrorAs(t, err, &ve)
}
