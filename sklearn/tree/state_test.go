package tree

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

func separableData() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(8, 2, []float64{
		1, 5,
		2, 5,
		3, 6,
		4, 6,
		10, 1,
		11, 1,
		12, 2,
		13, 2,
	})
	y := mat.NewDense(8, 1, []float64{3, 3, 3, 3, 7, 7, 7, 7})
	return X, y
}

func TestDecisionTreeClassifier_ClassesKeepOriginalLabels(t *testing.T) {
	X, y := separableData()
	dt := NewDecisionTreeClassifier(WithRandomState(1))
	require.NoError(t, dt.Fit(X, y))

	assert.Equal(t, []int{3, 7}, dt.Classes())
	pred, err := dt.Predict(mat.NewDense(1, 2, []float64{12.5, 1.5}))
	require.NoError(t, err)
	assert.Equal(t, 7.0, pred.At(0, 0))
	assert.Equal(t, 1, dt.GetDepth())
	assert.Equal(t, 2, dt.GetNLeaves())
	assert.Equal(t, 3, dt.GetNodeCount())
}

func TestDecisionTreeClassifier_MissingValuesFollowLargerChild(t *testing.T) {
	// Six training rows fall at or below the threshold, two above it.
	X := mat.NewDense(9, 1, []float64{1, 2, 3, 4, 5, 6, 20, 21, math.NaN()})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 0, 0, 0, 1, 1, 0})

	dt := NewDecisionTreeClassifier(WithRandomState(3))
	require.NoError(t, dt.Fit(X, y))

	pred, err := dt.Predict(mat.NewDense(2, 1, []float64{math.NaN(), 30}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, pred.At(0, 0))
	assert.Equal(t, 1.0, pred.At(1, 0))
	assert.True(t, dt.nodes[0].MissingLeft)
}

func TestDecisionTreeClassifier_RejectsInfinity(t *testing.T) {
	X, y := separableData()
	X.Set(5, 1, math.Inf(1))

	err := NewDecisionTreeClassifier().Fit(X, y)
	var ni *errors.NumericalInstabilityError
	require.ErrorAs(t, err, &ni)
	assert.Equal(t, "DecisionTreeClassifier.Fit", ni.Operation)
}

func TestDecisionTreeClassifier_RejectsNonIntegerLabels(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	y := mat.NewDense(2, 1, []float64{0, 0.5})

	err := NewDecisionTreeClassifier().Fit(X, y)
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))
}

func TestDecisionTreeClassifier_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]interface{}
	}{
		{"criterion", map[string]interface{}{"criterion": "mse"}},
		{"criterion type", map[string]interface{}{"criterion": 1}},
		{"min_samples_split", map[string]interface{}{"min_samples_split": 1}},
		{"min_samples_leaf", map[string]interface{}{"min_samples_leaf": 0}},
		{"fractional depth", map[string]interface{}{"max_depth": 2.5}},
		{"unknown", map[string]interface{}{"splitter": "best"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDecisionTreeClassifier().SetParams(tt.params)
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
}

func TestDecisionTreeClassifier_DimensionMismatch(t *testing.T) {
	X, y := separableData()
	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	_, err := dt.Predict(mat.NewDense(1, 3, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestDecisionTreeClassifier_FitIndexedKeepsClassLayout(t *testing.T) {
	X, _ := separableData()
	codes := []int{0, 0, 0, 0, 2, 2, 2, 2}

	// The sample never contains class 1, yet probabilities still have a
	// column for it.
	dt := NewDecisionTreeClassifier(WithRandomState(9))
	require.NoError(t, dt.FitIndexed(X, codes, 3, []int{0, 0, 1, 4, 5, 5}))

	proba, err := dt.PredictProba(X)
	require.NoError(t, err)
	_, cols := proba.Dims()
	assert.Equal(t, 3, cols)
	assert.Equal(t, []int{0, 1, 2}, dt.Classes())
	assert.Equal(t, 0.0, proba.At(0, 1))
}

func TestDecisionTreeClassifier_MaxFeaturesIsSeeded(t *testing.T) {
	X := mat.NewDense(40, 4, nil)
	y := mat.NewDense(40, 1, nil)
	for i := 0; i < 40; i++ {
		for j := 0; j < 4; j++ {
			X.Set(i, j, float64((i*(j+3))%11))
		}
		y.Set(i, 0, float64(i%3))
	}

	fit := func() []node {
		dt := NewDecisionTreeClassifier(WithMaxFeatures(2), WithRandomState(125))
		require.NoError(t, dt.Fit(X, y))
		return dt.nodes
	}
	assert.Equal(t, fit(), fit())
}

func TestDecisionTreeClassifier_StateRoundTrip(t *testing.T) {
	X, y := separableData()
	dt := NewDecisionTreeClassifier(WithCriterion("entropy"), WithRandomState(math.MaxUint64-5))
	require.NoError(t, dt.Fit(X, y))

	st, err := dt.ExportState()
	require.NoError(t, err)
	raw, err := json.Marshal(st)
	require.NoError(t, err)

	var decoded model.State
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored := &DecisionTreeClassifier{}
	require.NoError(t, restored.ImportState(&decoded, nil))

	assert.Equal(t, "entropy", restored.criterion)
	require.NotNil(t, restored.randomState)
	assert.Equal(t, uint64(math.MaxUint64-5), *restored.randomState)
	assert.Equal(t, dt.Classes(), restored.Classes())

	want, err := dt.PredictProba(X)
	require.NoError(t, err)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestDecisionTreeClassifier_ImportRejectsBrokenTree(t *testing.T) {
	X, y := separableData()
	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))
	st, err := dt.ExportState()
	require.NoError(t, err)

	var data treeData
	require.NoError(t, st.DecodeData(&data))
	data.Nodes[0].Left = 0
	require.NoError(t, st.SetData(data))

	err = (&DecisionTreeClassifier{}).ImportState(st, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid children")
}

func TestDecisionTreeClassifier_ExportBeforeFit(t *testing.T) {
	_, err := NewDecisionTreeClassifier().ExportState()
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}
