package ensemble

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// blobs returns three well separated clusters in two dimensions.
func blobs() (*mat.Dense, *mat.Dense) {
	centers := [][2]float64{{0, 0}, {10, 10}, {0, 10}}
	X := mat.NewDense(30, 2, nil)
	y := mat.NewDense(30, 1, nil)
	for i := 0; i < 30; i++ {
		c := i % 3
		X.Set(i, 0, centers[c][0]+float64(i%5)*0.3)
		X.Set(i, 1, centers[c][1]-float64(i%4)*0.2)
		y.Set(i, 0, float64(c))
	}
	return X, y
}

func TestRandomForestClassifier_FitPredict(t *testing.T) {
	X, y := blobs()
	rf := NewRandomForestClassifier(WithNEstimators(25), WithRandomState(125))
	require.NoError(t, rf.Fit(X, y))

	assert.Equal(t, 1.0, rf.Score(X, y))
	assert.Equal(t, []int{0, 1, 2}, rf.Classes())
	assert.Len(t, rf.Estimators(), 25)

	proba, err := rf.PredictProba(X)
	require.NoError(t, err)
	rows, cols := proba.Dims()
	assert.Equal(t, 30, rows)
	assert.Equal(t, 3, cols)
	for i := 0; i < rows; i++ {
		assert.InDelta(t, 1.0, mat.Sum(proba.(*mat.Dense).RowView(i)), 1e-9)
	}

	sum := 0.0
	for _, v := range rf.FeatureImportances() {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestRandomForestClassifier_DeterministicAcrossWorkers(t *testing.T) {
	X, y := blobs()
	probe := mat.NewDense(4, 2, []float64{5, 5, 1, 9, 9, 1, 3, 7})

	fit := func(jobs int) mat.Matrix {
		rf := NewRandomForestClassifier(WithNEstimators(40), WithRandomState(125), WithNJobs(jobs))
		require.NoError(t, rf.Fit(X, y))
		proba, err := rf.PredictProba(probe)
		require.NoError(t, err)
		return proba
	}

	want := fit(1)
	for _, jobs := range []int{2, 3, 8} {
		assert.True(t, mat.Equal(want, fit(jobs)), "n_jobs=%d", jobs)
	}
}

func TestRandomForestClassifier_SeedChangesForest(t *testing.T) {
	X, y := blobs()
	a := NewRandomForestClassifier(WithNEstimators(10), WithRandomState(125))
	b := NewRandomForestClassifier(WithNEstimators(10), WithRandomState(126))
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))
	assert.NotEqual(t, a.FeatureImportances(), b.FeatureImportances())
}

func TestRandomForestClassifier_HardVoteTieGoesToLowestClass(t *testing.T) {
	// Without bootstrap and with every feature available, each tree sees the
	// same data. Two identical points with different labels end in a mixed
	// leaf whose probabilities tie.
	X := mat.NewDense(4, 1, []float64{0, 0, 5, 5})
	y := mat.NewDense(4, 1, []float64{2, 1, 1, 1})
	rf := NewRandomForestClassifier(
		WithNEstimators(3),
		WithBootstrap(false),
		WithMaxFeatures(MaxFeaturesAll),
		WithRandomState(1),
	)
	require.NoError(t, rf.Fit(X, y))

	pred, err := rf.Predict(mat.NewDense(1, 1, []float64{0}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, pred.At(0, 0))
}

func TestRandomForestClassifier_SoftVoting(t *testing.T) {
	X, y := blobs()
	rf := NewRandomForestClassifier(WithNEstimators(15), WithVoting(VotingSoft), WithRandomState(7))
	require.NoError(t, rf.Fit(X, y))
	assert.Equal(t, 1.0, rf.Score(X, y))
}

func TestRandomForestClassifier_Errors(t *testing.T) {
	X, y := blobs()

	_, err := NewRandomForestClassifier().Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	var ve *errors.ValidationError
	assert.True(t, errors.As(NewRandomForestClassifier(WithNEstimators(0)).Fit(X, y), &ve))
	assert.True(t, errors.As(NewRandomForestClassifier(WithVoting("weighted")).Fit(X, y), &ve))
	assert.True(t, errors.As(NewRandomForestClassifier().SetParams(map[string]interface{}{"bootstrap": "yes"}), &ve))

	rf := NewRandomForestClassifier(WithNEstimators(3))
	require.NoError(t, rf.Fit(X, y))
	_, err = rf.Predict(mat.NewDense(1, 5, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestRandomForestClassifier_FeaturesPerSplit(t *testing.T) {
	rf := NewRandomForestClassifier()
	assert.Equal(t, 2, rf.featuresPerSplit(7))
	assert.Equal(t, 1, rf.featuresPerSplit(1))
	rf.maxFeatures = MaxFeaturesLog2
	assert.Equal(t, 3, rf.featuresPerSplit(8))
	rf.maxFeatures = MaxFeaturesAll
	assert.Equal(t, 7, rf.featuresPerSplit(7))
}

func TestRandomForestClassifier_StateRoundTrip(t *testing.T) {
	X, y := blobs()
	rf := NewRandomForestClassifier(WithNEstimators(12), WithRandomState(125))
	require.NoError(t, rf.Fit(X, y))

	st, err := rf.ExportState()
	require.NoError(t, err)
	assert.Len(t, st.Children, 12)

	raw, err := json.Marshal(st)
	require.NoError(t, err)
	var decoded model.State
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored := &RandomForestClassifier{}
	require.NoError(t, restored.ImportState(&decoded, nil))

	probe := mat.NewDense(3, 2, []float64{5, 5, 0.5, 9, 9.5, 0})
	want, err := rf.Predict(probe)
	require.NoError(t, err)
	got, err := restored.Predict(probe)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
	assert.Equal(t, rf.GetParams(), restored.GetParams())
}

func TestRandomForestClassifier_ImportRejectsMissingEstimator(t *testing.T) {
	X, y := blobs()
	rf := NewRandomForestClassifier(WithNEstimators(3), WithRandomState(1))
	require.NoError(t, rf.Fit(X, y))

	st, err := rf.ExportState()
	require.NoError(t, err)
	st.Children = st.Children[:2]

	err = (&RandomForestClassifier{}).ImportState(st, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "2 estimators")
}
