package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/pkg/log"
)

// Unknown category handling modes of OrdinalEncoder.
const (
	HandleUnknownError        = "error"
	HandleUnknownEncodedValue = "use_encoded_value"
)

// OrdinalEncoder maps the categories of each column to 0..k-1 in sorted
// order. Input rows are [][]string with "" for missing; missing values
// encode as NaN and are never learned as a category.
type OrdinalEncoder struct {
	state *model.StateManager

	// Categories holds the sorted categories learned for each column.
	Categories [][]string

	// HandleUnknown is "error" (default) or "use_encoded_value".
	HandleUnknown string

	// UnknownValue is the code written for unknown categories when
	// HandleUnknown is "use_encoded_value".
	UnknownValue float64

	index []map[string]int
}

// EncoderOption configures an OrdinalEncoder.
type EncoderOption func(*OrdinalEncoder)

// WithHandleUnknown selects how categories unseen during Fit are treated.
// With "use_encoded_value" they encode as value; value must not collide with
// a learned code, so -1 or NaN are the usual choices.
func WithHandleUnknown(mode string, value float64) EncoderOption {
	return func(e *OrdinalEncoder) {
		e.HandleUnknown = mode
		e.UnknownValue = value
	}
}

// NewOrdinalEncoder creates an OrdinalEncoder that rejects unknown
// categories unless configured otherwise.
func NewOrdinalEncoder(opts ...EncoderOption) *OrdinalEncoder {
	e := &OrdinalEncoder{
		state:         model.NewStateManager(),
		HandleUnknown: HandleUnknownError,
		UnknownValue:  math.NaN(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fit learns the sorted categories of every column.
func (e *OrdinalEncoder) Fit(X [][]string) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return errors.NewModelError("OrdinalEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	if e.HandleUnknown != HandleUnknownError && e.HandleUnknown != HandleUnknownEncodedValue {
		return errors.NewValidationError("handle_unknown", "must be error or use_encoded_value", e.HandleUnknown)
	}

	nCols := len(X[0])
	categories := make([][]string, nCols)
	for j := 0; j < nCols; j++ {
		seen := make(map[string]struct{})
		for _, row := range X {
			if len(row) != nCols {
				return errors.NewDimensionError("OrdinalEncoder.Fit", nCols, len(row), 1)
			}
			if v := row[j]; v != "" {
				seen[v] = struct{}{}
			}
		}
		if len(seen) == 0 {
			return errors.NewValueError("OrdinalEncoder.Fit",
				fmt.Sprintf("column %d has no observed categories", j))
		}
		cats := make([]string, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		categories[j] = cats

		if e.HandleUnknown == HandleUnknownEncodedValue && e.UnknownValue >= 0 && e.UnknownValue < float64(len(cats)) {
			return errors.NewValidationError("unknown_value",
				fmt.Sprintf("collides with a code used for column %d", j), e.UnknownValue)
		}
	}

	e.setCategories(categories)
	e.state.SetDimensions(nCols, len(X))
	e.state.SetFitted()

	log.GetLoggerWithName("preprocessing").Debug("Fitted OrdinalEncoder",
		log.SamplesKey, len(X),
		log.FeaturesKey, nCols,
	)
	return nil
}

func (e *OrdinalEncoder) setCategories(categories [][]string) {
	e.Categories = categories
	e.index = make([]map[string]int, len(categories))
	for j, cats := range categories {
		m := make(map[string]int, len(cats))
		for code, v := range cats {
			m[v] = code
		}
		e.index[j] = m
	}
}

// Transform encodes X with the learned categories. An unknown category is an
// UnknownCategoryError naming the column, the value and the row.
func (e *OrdinalEncoder) Transform(X [][]string) (mat.Matrix, error) {
	if err := e.state.RequireFitted("OrdinalEncoder", "Transform"); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, errors.NewModelError("OrdinalEncoder.Transform", "empty data", errors.ErrEmptyData)
	}

	nFeatures, _ := e.state.GetDimensions()
	result := mat.NewDense(len(X), nFeatures, nil)
	for i, row := range X {
		if len(row) != nFeatures {
			return nil, errors.NewDimensionError("OrdinalEncoder.Transform", nFeatures, len(row), 1)
		}
		for j, v := range row {
			if v == "" {
				result.Set(i, j, math.NaN())
				continue
			}
			code, ok := e.index[j][v]
			if !ok {
				if e.HandleUnknown == HandleUnknownEncodedValue {
					result.Set(i, j, e.UnknownValue)
					continue
				}
				return nil, errors.NewUnknownCategoryError(j, v, i)
			}
			result.Set(i, j, float64(code))
		}
	}
	return result, nil
}

// InverseTransform maps codes back to categories. NaN and unknown codes map
// to "".
func (e *OrdinalEncoder) InverseTransform(X mat.Matrix) ([][]string, error) {
	if err := e.state.RequireFitted("OrdinalEncoder", "InverseTransform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	nFeatures, _ := e.state.GetDimensions()
	if c != nFeatures {
		return nil, errors.NewDimensionError("OrdinalEncoder.InverseTransform", nFeatures, c, 1)
	}

	out := make([][]string, r)
	for i := range out {
		out[i] = make([]string, c)
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if math.IsNaN(v) || v < 0 || int(v) >= len(e.Categories[j]) {
				continue
			}
			out[i][j] = e.Categories[j][int(v)]
		}
	}
	return out, nil
}

// IsFitted reports whether Fit has completed.
func (e *OrdinalEncoder) IsFitted() bool {
	return e.state.IsFitted()
}

// GetParams returns the hyperparameters.
func (e *OrdinalEncoder) GetParams() map[string]interface{} {
	params := map[string]interface{}{
		"handle_unknown": e.HandleUnknown,
	}
	// JSON has no NaN, so a NaN unknown value is simply omitted.
	if !math.IsNaN(e.UnknownValue) {
		params["unknown_value"] = e.UnknownValue
	}
	return params
}

type ordinalEncoderData struct {
	model.ModelState
	Categories [][]string `json:"categories"`
}

// TypeName implements model.Stateful.
func (e *OrdinalEncoder) TypeName() string { return TypeOrdinalEncoder }

// ExportState implements model.Stateful.
func (e *OrdinalEncoder) ExportState() (*model.State, error) {
	if err := e.state.RequireFitted("OrdinalEncoder", "ExportState"); err != nil {
		return nil, err
	}
	st := model.NewState(TypeOrdinalEncoder, e.GetParams())
	err := st.SetData(ordinalEncoderData{ModelState: e.state.GetState(), Categories: e.Categories})
	return st, err
}

// ImportState implements model.Stateful.
func (e *OrdinalEncoder) ImportState(st *model.State, _ model.Decoder) error {
	if err := st.Expect(TypeOrdinalEncoder); err != nil {
		return err
	}
	var data ordinalEncoderData
	if err := st.DecodeData(&data); err != nil {
		return err
	}
	if len(data.Categories) != data.NFeatures {
		return errors.NewValueError("OrdinalEncoder.ImportState", "categories do not match n_features")
	}

	e.state = model.NewStateManager()
	e.state.SetState(data.ModelState)
	e.HandleUnknown = st.ParamString("handle_unknown", HandleUnknownError)
	e.UnknownValue = st.ParamFloat("unknown_value", math.NaN())
	e.setCategories(data.Categories)
	return nil
}

// LabelEncoder maps class labels to 0..k-1 in sorted order.
type LabelEncoder struct {
	state   *model.StateManager
	classes []string
	index   map[string]int
}

// NewLabelEncoder creates an unfitted LabelEncoder.
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{state: model.NewStateManager()}
}

// Fit learns the sorted set of labels.
func (le *LabelEncoder) Fit(labels []string) error {
	if len(labels) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	seen := make(map[string]struct{})
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	sort.Strings(classes)

	le.setClasses(classes)
	le.state.SetDimensions(1, len(labels))
	le.state.SetFitted()
	return nil
}

func (le *LabelEncoder) setClasses(classes []string) {
	le.classes = classes
	le.index = make(map[string]int, len(classes))
	for i, c := range classes {
		le.index[c] = i
	}
}

// Transform encodes labels. An unseen label is a ValueError.
func (le *LabelEncoder) Transform(labels []string) ([]int, error) {
	if err := le.state.RequireFitted("LabelEncoder", "Transform"); err != nil {
		return nil, err
	}
	out := make([]int, len(labels))
	for i, l := range labels {
		code, ok := le.index[l]
		if !ok {
			return nil, errors.NewValueError("LabelEncoder.Transform", fmt.Sprintf("y contains previously unseen label %q", l))
		}
		out[i] = code
	}
	return out, nil
}

// FitTransform fits and encodes labels.
func (le *LabelEncoder) FitTransform(labels []string) ([]int, error) {
	if err := le.Fit(labels); err != nil {
		return nil, err
	}
	return le.Transform(labels)
}

// InverseTransform maps codes back to labels.
func (le *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	if err := le.state.RequireFitted("LabelEncoder", "InverseTransform"); err != nil {
		return nil, err
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(le.classes) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform", fmt.Sprintf("unknown code %d", c))
		}
		out[i] = le.classes[c]
	}
	return out, nil
}

// Classes returns the sorted labels.
func (le *LabelEncoder) Classes() []string {
	return append([]string(nil), le.classes...)
}

// IsFitted reports whether Fit has completed.
func (le *LabelEncoder) IsFitted() bool {
	return le.state.IsFitted()
}

type labelEncoderData struct {
	model.ModelState
	Classes []string `json:"classes"`
}

// TypeName implements model.Stateful.
func (le *LabelEncoder) TypeName() string { return TypeLabelEncoder }

// ExportState implements model.Stateful.
func (le *LabelEncoder) ExportState() (*model.State, error) {
	if err := le.state.RequireFitted("LabelEncoder", "ExportState"); err != nil {
		return nil, err
	}
	st := model.NewState(TypeLabelEncoder, nil)
	err := st.SetData(labelEncoderData{ModelState: le.state.GetState(), Classes: le.classes})
	return st, err
}

// ImportState implements model.Stateful.
func (le *LabelEncoder) ImportState(st *model.State, _ model.Decoder) error {
	if err := st.Expect(TypeLabelEncoder); err != nil {
		return err
	}
	var data labelEncoderData
	if err := st.DecodeData(&data); err != nil {
		return err
	}
	if len(data.Classes) == 0 {
		return errors.NewValueError("LabelEncoder.ImportState", "no classes")
	}
	le.state = model.NewStateManager()
	le.state.SetState(data.ModelState)
	le.setClasses(data.Classes)
	return nil
}
