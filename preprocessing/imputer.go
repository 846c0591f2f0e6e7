package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// Imputation strategies.
const (
	StrategyMedian       = "median"
	StrategyMean         = "mean"
	StrategyMostFrequent = "most_frequent"
	StrategyConstant     = "constant"
)

// SimpleImputer replaces NaN with a per-column statistic learned from the
// observed training values.
type SimpleImputer struct {
	state *model.StateManager

	// Strategy is one of median (default), mean, most_frequent or constant.
	Strategy string

	// FillValue is used by the constant strategy.
	FillValue float64

	// Statistics holds the replacement value of each column.
	Statistics []float64
}

// ImputerOption configures a SimpleImputer.
type ImputerOption func(*SimpleImputer)

// WithStrategy sets the imputation strategy.
func WithStrategy(strategy string) ImputerOption {
	return func(s *SimpleImputer) {
		s.Strategy = strategy
	}
}

// WithFillValue sets the value used by the constant strategy.
func WithFillValue(v float64) ImputerOption {
	return func(s *SimpleImputer) {
		s.FillValue = v
	}
}

// NewSimpleImputer creates a SimpleImputer using the median strategy unless
// configured otherwise.
//
//	imp := preprocessing.NewSimpleImputer(preprocessing.WithStrategy("median"))
func NewSimpleImputer(opts ...ImputerOption) *SimpleImputer {
	s := &SimpleImputer{
		state:    model.NewStateManager(),
		Strategy: StrategyMedian,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fit learns one statistic per column. A column without any observed value
// is a ValueError unless the strategy is constant.
func (s *SimpleImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SimpleImputer.Fit", "empty data", errors.ErrEmptyData)
	}

	stats := make([]float64, c)
	for j := 0; j < c; j++ {
		if s.Strategy == StrategyConstant {
			stats[j] = s.FillValue
			continue
		}

		observed := observedColumn(X, j)
		if len(observed) == 0 {
			return errors.NewValueError("SimpleImputer.Fit",
				fmt.Sprintf("column %d has no observed values to compute the %s", j, s.Strategy))
		}

		switch s.Strategy {
		case StrategyMedian:
			stats[j] = median(observed)
		case StrategyMean:
			stats[j] = stat.Mean(observed, nil)
		case StrategyMostFrequent:
			stats[j] = mostFrequent(observed)
		default:
			return errors.NewValidationError("strategy",
				"must be one of median, mean, most_frequent, constant", s.Strategy)
		}
	}

	s.Statistics = stats
	s.state.SetDimensions(c, r)
	s.state.SetFitted()
	return nil
}

// Transform replaces NaN with the learned statistics.
func (s *SimpleImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("SimpleImputer", "Transform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	nFeatures, _ := s.state.GetDimensions()
	if c != nFeatures {
		return nil, errors.NewDimensionError("SimpleImputer.Transform", nFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if math.IsNaN(v) {
				v = s.Statistics[j]
			}
			result.Set(i, j, v)
		}
	}
	return result, nil
}

// FitTransform fits and transforms X.
func (s *SimpleImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// IsFitted reports whether Fit has completed.
func (s *SimpleImputer) IsFitted() bool {
	return s.state.IsFitted()
}

// GetParams returns the hyperparameters.
func (s *SimpleImputer) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"strategy":   s.Strategy,
		"fill_value": s.FillValue,
	}
}

type imputerData struct {
	model.ModelState
	Statistics []float64 `json:"statistics"`
}

// TypeName implements model.Stateful.
func (s *SimpleImputer) TypeName() string { return TypeSimpleImputer }

// ExportState implements model.Stateful.
func (s *SimpleImputer) ExportState() (*model.State, error) {
	if err := s.state.RequireFitted("SimpleImputer", "ExportState"); err != nil {
		return nil, err
	}
	st := model.NewState(TypeSimpleImputer, s.GetParams())
	err := st.SetData(imputerData{ModelState: s.state.GetState(), Statistics: s.Statistics})
	return st, err
}

// ImportState implements model.Stateful.
func (s *SimpleImputer) ImportState(st *model.State, _ model.Decoder) error {
	if err := st.Expect(TypeSimpleImputer); err != nil {
		return err
	}
	var data imputerData
	if err := st.DecodeData(&data); err != nil {
		return err
	}
	if len(data.Statistics) != data.NFeatures {
		return errors.NewValueError("SimpleImputer.ImportState", "statistics do not match n_features")
	}

	s.state = model.NewStateManager()
	s.state.SetState(data.ModelState)
	s.Strategy = st.ParamString("strategy", StrategyMedian)
	s.FillValue = st.ParamFloat("fill_value", 0)
	s.Statistics = data.Statistics
	return nil
}

// median averages the two middle values for an even count.
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// mostFrequent returns the smallest of the most common values.
func mostFrequent(values []float64) float64 {
	counts := make(map[float64]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best, bestCount := math.Inf(1), 0
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}
