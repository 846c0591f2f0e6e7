package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})

	scaler := NewStandardScalerDefault()
	out, err := scaler.FitTransform(X)
	require.NoError(t, err)

	assert.InDelta(t, 2.5, scaler.Mean[0], 1e-12)
	// population standard deviation of 1..4
	assert.InDelta(t, math.Sqrt(1.25), scaler.Scale[0], 1e-12)
	assert.Equal(t, 1.0, scaler.Scale[1], "constant column keeps scale 1")

	sum := 0.0
	for i := 0; i < 4; i++ {
		sum += out.At(i, 0)
		assert.Equal(t, 0.0, out.At(i, 1))
	}
	assert.InDelta(t, 0, sum, 1e-12)

	back, err := scaler.InverseTransform(out)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-12))
}

func TestStandardScalerIgnoresNaN(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, math.NaN(), 3, 5})

	scaler := NewStandardScalerDefault()
	out, err := scaler.FitTransform(X)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, scaler.Mean[0], 1e-12)
	assert.True(t, math.IsNaN(out.At(1, 0)), "NaN passes through")
	assert.InDelta(t, 0.0, out.At(2, 0), 1e-12)
}

func TestStandardScalerErrors(t *testing.T) {
	scaler := NewStandardScalerDefault()

	_, err := scaler.Transform(mat.NewDense(1, 1, []float64{1}))
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	require.NoError(t, scaler.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = scaler.Transform(mat.NewDense(1, 3, []float64{1, 2, 3}))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	allMissing := mat.NewDense(2, 1, []float64{math.NaN(), math.NaN()})
	var valueErr *errors.ValueError
	assert.True(t, errors.As(NewStandardScalerDefault().Fit(allMissing), &valueErr))
}

func TestStandardScalerStateRoundTrip(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 4, 2, 5, 3, 9})
	scaler := NewStandardScaler(true, true)
	require.NoError(t, scaler.Fit(X))

	st, err := scaler.ExportState()
	require.NoError(t, err)

	restored := &StandardScaler{}
	require.NoError(t, restored.ImportState(st, nil))

	a, err := scaler.Transform(X)
	require.NoError(t, err)
	b, err := restored.Transform(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
	assert.Equal(t, scaler.GetParams(), restored.GetParams())
}

func TestMinMaxScaler(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		0, 5,
		5, 5,
		10, math.NaN(),
	})

	scaler := NewMinMaxScalerDefault()
	out, err := scaler.FitTransform(X)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 5}, scaler.DataMin)
	assert.Equal(t, []float64{10, 5}, scaler.DataMax)
	assert.InDelta(t, 0.5, out.At(1, 0), 1e-12)
	assert.InDelta(t, 1.0, out.At(2, 0), 1e-12)
	assert.True(t, math.IsNaN(out.At(2, 1)))

	back, err := scaler.InverseTransform(out)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, back.At(2, 0), 1e-12)

	st, err := scaler.ExportState()
	require.NoError(t, err)
	restored := &MinMaxScaler{}
	require.NoError(t, restored.ImportState(st, nil))
	assert.Equal(t, scaler.FeatureRange, restored.FeatureRange)

	bad := NewMinMaxScaler([2]float64{1, 0})
	assert.Error(t, bad.Fit(X))
}
