package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

func TestSimpleImputerStrategies(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(5, 1, []float64{1, 2, nan, 2, 10})

	tests := []struct {
		name string
		opts []ImputerOption
		want float64
	}{
		{"median", nil, 2},
		{"mean", []ImputerOption{WithStrategy(StrategyMean)}, 3.75},
		{"most_frequent", []ImputerOption{WithStrategy(StrategyMostFrequent)}, 2},
		{"constant", []ImputerOption{WithStrategy(StrategyConstant), WithFillValue(-1)}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp := NewSimpleImputer(tt.opts...)
			out, err := imp.FitTransform(X)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.At(2, 0))
			assert.Equal(t, 10.0, out.At(4, 0), "observed values are kept")
		})
	}
}

func TestSimpleImputerEvenMedian(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{4, 1, 3, 2})
	imp := NewSimpleImputer()
	require.NoError(t, imp.Fit(X))
	assert.Equal(t, 2.5, imp.Statistics[0])
}

func TestSimpleImputerMostFrequentTie(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{7, 3, 7, 3})
	imp := NewSimpleImputer(WithStrategy(StrategyMostFrequent))
	require.NoError(t, imp.Fit(X))
	assert.Equal(t, 3.0, imp.Statistics[0], "ties resolve to the smallest value")
}

func TestSimpleImputerErrors(t *testing.T) {
	allMissing := mat.NewDense(2, 2, []float64{1, math.NaN(), 2, math.NaN()})
	var valueErr *errors.ValueError
	assert.True(t, errors.As(NewSimpleImputer().Fit(allMissing), &valueErr))

	require.NoError(t, NewSimpleImputer(WithStrategy(StrategyConstant)).Fit(allMissing))

	var validation *errors.ValidationError
	err := NewSimpleImputer(WithStrategy("mode")).Fit(mat.NewDense(1, 1, []float64{1}))
	assert.True(t, errors.As(err, &validation))

	_, err = NewSimpleImputer().Transform(allMissing)
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))
}

func TestSimpleImputerStateRoundTrip(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, math.NaN(), 3, 4, math.NaN(), 8})
	imp := NewSimpleImputer(WithStrategy(StrategyMean))
	require.NoError(t, imp.Fit(X))

	st, err := imp.ExportState()
	require.NoError(t, err)
	restored := &SimpleImputer{}
	require.NoError(t, restored.ImportState(st, nil))
	assert.Equal(t, StrategyMean, restored.Strategy)
	assert.Equal(t, imp.Statistics, restored.Statistics)
}
