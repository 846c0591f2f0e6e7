// Package model_selection splits datasets into training and holdout sets.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/drugpipe/dataset"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/pkg/log"
)

// Split is the result of TrainTestSplit. Rows of XTrain align with YTrain
// and rows of XTest with YTest.
type Split struct {
	XTrain *dataset.Frame
	XTest  *dataset.Frame
	YTrain []string
	YTest  []string

	// TrainIndex and TestIndex are the original row positions.
	TrainIndex []int
	TestIndex  []int
}

// Option configures TrainTestSplit.
type Option func(*splitConfig)

type splitConfig struct {
	testSize    float64
	randomState *uint64
}

// WithTestSize sets the fraction of rows in the holdout set (default 0.25).
func WithTestSize(size float64) Option {
	return func(c *splitConfig) {
		c.testSize = size
	}
}

// WithRandomState fixes the permutation seed. Without it every call draws a
// different split.
func WithRandomState(seed uint64) Option {
	return func(c *splitConfig) {
		c.randomState = &seed
	}
}

// TrainTestSplit partitions the rows of X and y into disjoint training and
// holdout sets covering every row. The holdout has ceil(testSize*n) rows.
// No stratification is applied.
//
// Example:
//
//	split, err := model_selection.TrainTestSplit(X, y,
//	    model_selection.WithTestSize(0.3),
//	    model_selection.WithRandomState(125),
//	)
func TrainTestSplit(X *dataset.Frame, y []string, opts ...Option) (*Split, error) {
	n, _ := X.Dims()
	if n != len(y) {
		return nil, errors.NewDimensionError("TrainTestSplit", n, len(y), 0)
	}

	cfg := splitConfig{testSize: 0.25}
	for _, opt := range opts {
		opt(&cfg)
	}

	train, test, err := SplitIndices(n, cfg.testSize, cfg.randomState)
	if err != nil {
		return nil, err
	}

	split := &Split{
		XTrain:     X.Subset(train),
		XTest:      X.Subset(test),
		YTrain:     pick(y, train),
		YTest:      pick(y, test),
		TrainIndex: train,
		TestIndex:  test,
	}

	log.GetLoggerWithName("model_selection").Debug("Split dataset",
		log.SamplesKey, n,
		log.TestSizeKey, cfg.testSize,
		"n_train", len(train),
		"n_test", len(test),
	)
	return split, nil
}

// SplitIndices returns the training and holdout row indices for n rows.
// A nil seed uses a fresh random source.
func SplitIndices(n int, testSize float64, seed *uint64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 || math.IsNaN(testSize) {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("with n_samples=%d and test_size=%v the resulting train set would be empty", n, testSize))
	}

	var rng *rand.Rand
	if seed != nil {
		rng = rand.New(rand.NewPCG(*seed, *seed))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	perm := rng.Perm(n)

	return perm[nTest:], perm[:nTest], nil
}

func pick(y []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}
	return out
}
