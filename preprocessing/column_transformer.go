package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/dataset"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/pkg/log"
)

// Step is one named transformer applied to a subset of the input columns.
// Transformer must be a model.Transformer (numeric columns) or a
// model.CategoricalTransformer (categorical columns), and must implement
// model.Stateful to be persisted.
type Step struct {
	Name        string
	Transformer interface{}
	Columns     []int
}

// ColumnTransformer applies each step to the original input columns and
// concatenates the step outputs horizontally in step order. Columns named by
// no step are dropped. Two steps may read the same columns, for example an
// imputer and a scaler over the numeric columns.
type ColumnTransformer struct {
	state *model.StateManager
	steps []Step

	names []string
	kinds []dataset.Kind
	width []int
}

// NewColumnTransformer creates a ColumnTransformer from steps.
//
//	ct := preprocessing.NewColumnTransformer(
//	    preprocessing.Step{Name: "encoder", Transformer: preprocessing.NewOrdinalEncoder(), Columns: []int{1, 2, 3}},
//	    preprocessing.Step{Name: "num_imputer", Transformer: preprocessing.NewSimpleImputer(), Columns: []int{0, 4}},
//	    preprocessing.Step{Name: "num_scaler", Transformer: preprocessing.NewStandardScalerDefault(), Columns: []int{0, 4}},
//	)
func NewColumnTransformer(steps ...Step) *ColumnTransformer {
	return &ColumnTransformer{
		state: model.NewStateManager(),
		steps: steps,
	}
}

// Steps returns the configured steps.
func (ct *ColumnTransformer) Steps() []Step {
	return append([]Step(nil), ct.steps...)
}

func (ct *ColumnTransformer) validate(X *dataset.Frame) error {
	if len(ct.steps) == 0 {
		return errors.NewValidationError("steps", "at least one step is required", 0)
	}
	_, nCols := X.Dims()
	seen := make(map[string]struct{}, len(ct.steps))
	for _, step := range ct.steps {
		if step.Name == "" {
			return errors.NewValidationError("steps", "step name must not be empty", step.Name)
		}
		if _, dup := seen[step.Name]; dup {
			return errors.NewValidationError("steps", "step names must be unique", step.Name)
		}
		seen[step.Name] = struct{}{}
		if len(step.Columns) == 0 {
			return errors.NewValidationError(step.Name, "no columns selected", step.Columns)
		}

		var want dataset.Kind
		switch step.Transformer.(type) {
		case model.Transformer:
			want = dataset.Numeric
		case model.CategoricalTransformer:
			want = dataset.Categorical
		default:
			return errors.NewValidationError(step.Name, "transformer type is not supported", fmt.Sprintf("%T", step.Transformer))
		}

		for _, j := range step.Columns {
			if j < 0 || j >= nCols {
				return errors.NewValidationError(step.Name,
					fmt.Sprintf("column index out of range for %d columns", nCols), j)
			}
			if X.Kind(j) != want {
				return errors.NewValidationError(step.Name,
					fmt.Sprintf("column %q is %s, step expects %s", X.Names()[j], X.Kind(j), want), j)
			}
		}
	}
	return nil
}

// Fit fits every step on its columns of X.
func (ct *ColumnTransformer) Fit(X *dataset.Frame) error {
	_, err := ct.FitTransform(X)
	return err
}

// FitTransform fits every step and returns the concatenated output.
func (ct *ColumnTransformer) FitTransform(X *dataset.Frame) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if rows == 0 {
		return nil, errors.NewModelError("ColumnTransformer.Fit", "empty data", errors.ErrEmptyData)
	}
	if err := ct.validate(X); err != nil {
		return nil, err
	}

	outputs := make([]mat.Matrix, len(ct.steps))
	width := make([]int, len(ct.steps))
	for k, step := range ct.steps {
		var out mat.Matrix
		var err error
		switch t := step.Transformer.(type) {
		case model.Transformer:
			out, err = t.FitTransform(numericBlock(X, step.Columns))
		case model.CategoricalTransformer:
			block := categoricalBlock(X, step.Columns)
			if err = t.Fit(block); err == nil {
				out, err = t.Transform(block)
			}
		}
		if err != nil {
			return nil, errors.Wrapf(err, "ColumnTransformer step %q", step.Name)
		}
		outputs[k] = out
		_, width[k] = out.Dims()
	}

	ct.names = X.Names()
	ct.kinds = make([]dataset.Kind, cols)
	for j := range ct.kinds {
		ct.kinds[j] = X.Kind(j)
	}
	ct.width = width
	ct.state.SetDimensions(cols, rows)
	ct.state.SetFitted()

	log.GetLoggerWithName("preprocessing").Debug("Fitted ColumnTransformer",
		log.OperationKey, log.OperationFitTransform,
		log.SamplesKey, rows,
		log.FeaturesKey, sum(width),
		"steps", len(ct.steps),
	)
	return hstack(rows, outputs, width), nil
}

// Transform applies the fitted steps to X. X must have the same column
// layout as the training frame. Learned statistics are not modified.
func (ct *ColumnTransformer) Transform(X *dataset.Frame) (*mat.Dense, error) {
	if err := ct.state.RequireFitted("ColumnTransformer", "Transform"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if cols != len(ct.kinds) {
		return nil, errors.NewDimensionError("ColumnTransformer.Transform", len(ct.kinds), cols, 1)
	}
	if rows == 0 {
		return nil, errors.NewModelError("ColumnTransformer.Transform", "empty data", errors.ErrEmptyData)
	}
	for j, kind := range ct.kinds {
		if X.Kind(j) != kind {
			return nil, errors.NewValidationError(X.Names()[j],
				fmt.Sprintf("column was %s during fit", kind), X.Kind(j).String())
		}
	}

	outputs := make([]mat.Matrix, len(ct.steps))
	for k, step := range ct.steps {
		var out mat.Matrix
		var err error
		switch t := step.Transformer.(type) {
		case model.Transformer:
			out, err = t.Transform(numericBlock(X, step.Columns))
		case model.CategoricalTransformer:
			out, err = t.Transform(categoricalBlock(X, step.Columns))
		}
		if err != nil {
			return nil, errors.Wrapf(err, "ColumnTransformer step %q", step.Name)
		}
		outputs[k] = out
	}
	return hstack(rows, outputs, ct.width), nil
}

// NFeaturesOut returns the number of output columns.
func (ct *ColumnTransformer) NFeaturesOut() int {
	return sum(ct.width)
}

// FeatureNamesOut returns "<step>__<column>" for every output column.
func (ct *ColumnTransformer) FeatureNamesOut() []string {
	var out []string
	for _, step := range ct.steps {
		for _, j := range step.Columns {
			out = append(out, step.Name+"__"+ct.names[j])
		}
	}
	return out
}

// IsFitted reports whether Fit has completed.
func (ct *ColumnTransformer) IsFitted() bool {
	return ct.state.IsFitted()
}

type columnTransformerData struct {
	model.ModelState
	Names []string       `json:"feature_names_in"`
	Kinds []string       `json:"feature_kinds_in"`
	Steps []stepManifest `json:"steps"`
}

type stepManifest struct {
	Name    string `json:"name"`
	Columns []int  `json:"columns"`
	Width   int    `json:"n_features_out"`
}

// TypeName implements model.Stateful.
func (ct *ColumnTransformer) TypeName() string { return TypeColumnTransformer }

// ExportState implements model.Stateful. Each step becomes a child state
// named after the step.
func (ct *ColumnTransformer) ExportState() (*model.State, error) {
	if err := ct.state.RequireFitted("ColumnTransformer", "ExportState"); err != nil {
		return nil, err
	}

	data := columnTransformerData{ModelState: ct.state.GetState(), Names: ct.names}
	for _, k := range ct.kinds {
		data.Kinds = append(data.Kinds, k.String())
	}

	st := model.NewState(TypeColumnTransformer, map[string]interface{}{"remainder": "drop"})
	for k, step := range ct.steps {
		stateful, ok := step.Transformer.(model.Stateful)
		if !ok {
			return nil, errors.NewValueError("ColumnTransformer.ExportState",
				fmt.Sprintf("step %q (%T) cannot be persisted", step.Name, step.Transformer))
		}
		child, err := stateful.ExportState()
		if err != nil {
			return nil, errors.Wrapf(err, "step %q", step.Name)
		}
		st.AddChild(step.Name, child)
		data.Steps = append(data.Steps, stepManifest{Name: step.Name, Columns: step.Columns, Width: ct.width[k]})
	}
	if err := st.SetData(data); err != nil {
		return nil, err
	}
	return st, nil
}

// ImportState implements model.Stateful.
func (ct *ColumnTransformer) ImportState(st *model.State, decode model.Decoder) error {
	if err := st.Expect(TypeColumnTransformer); err != nil {
		return err
	}
	var data columnTransformerData
	if err := st.DecodeData(&data); err != nil {
		return err
	}
	if len(data.Names) != data.NFeatures || len(data.Kinds) != data.NFeatures {
		return errors.NewValueError("ColumnTransformer.ImportState", "input layout does not match n_features")
	}

	kinds := make([]dataset.Kind, len(data.Kinds))
	for j, k := range data.Kinds {
		switch k {
		case dataset.Numeric.String():
			kinds[j] = dataset.Numeric
		case dataset.Categorical.String():
			kinds[j] = dataset.Categorical
		default:
			return errors.NewValueError("ColumnTransformer.ImportState", fmt.Sprintf("unknown column kind %q", k))
		}
	}

	steps := make([]Step, len(data.Steps))
	width := make([]int, len(data.Steps))
	for k, m := range data.Steps {
		childState, err := st.Child(m.Name)
		if err != nil {
			return err
		}
		child, err := decode(childState)
		if err != nil {
			return errors.Wrapf(err, "step %q", m.Name)
		}
		switch child.(type) {
		case model.Transformer, model.CategoricalTransformer:
		default:
			return errors.NewValueError("ColumnTransformer.ImportState",
				fmt.Sprintf("step %q restored as %T, which is not a transformer", m.Name, child))
		}
		for _, j := range m.Columns {
			if j < 0 || j >= data.NFeatures {
				return errors.NewValueError("ColumnTransformer.ImportState",
					fmt.Sprintf("step %q selects column %d of %d", m.Name, j, data.NFeatures))
			}
		}
		steps[k] = Step{Name: m.Name, Transformer: child, Columns: m.Columns}
		width[k] = m.Width
	}

	ct.state = model.NewStateManager()
	ct.state.SetState(data.ModelState)
	ct.steps = steps
	ct.names = data.Names
	ct.kinds = kinds
	ct.width = width
	return nil
}

func numericBlock(X *dataset.Frame, cols []int) *mat.Dense {
	rows, _ := X.Dims()
	block := mat.NewDense(rows, len(cols), nil)
	for k, j := range cols {
		block.SetCol(k, X.Numeric(j))
	}
	return block
}

func categoricalBlock(X *dataset.Frame, cols []int) [][]string {
	rows, _ := X.Dims()
	block := make([][]string, rows)
	for i := range block {
		block[i] = make([]string, len(cols))
	}
	for k, j := range cols {
		for i, v := range X.Categorical(j) {
			block[i][k] = v
		}
	}
	return block
}

func hstack(rows int, blocks []mat.Matrix, width []int) *mat.Dense {
	out := mat.NewDense(rows, sum(width), nil)
	offset := 0
	for k, b := range blocks {
		for i := 0; i < rows; i++ {
			for j := 0; j < width[k]; j++ {
				out.Set(i, offset+j, b.At(i, j))
			}
		}
		offset += width[k]
	}
	return out
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
