package ensemble

import (
	"fmt"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/sklearn/tree"
)

type forestData struct {
	model.ModelState
	RandomState        *uint64   `json:"random_state,omitempty"`
	Classes            []float64 `json:"classes"`
	FeatureImportances []float64 `json:"feature_importances"`
}

func estimatorName(i int) string { return fmt.Sprintf("estimator_%03d", i) }

// TypeName implements model.Stateful.
func (rf *RandomForestClassifier) TypeName() string { return TypeRandomForestClassifier }

// ExportState implements model.Stateful. Each tree becomes a child state.
func (rf *RandomForestClassifier) ExportState() (*model.State, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "ExportState"); err != nil {
		return nil, err
	}
	params := rf.GetParams()
	delete(params, "random_state")

	st := model.NewState(TypeRandomForestClassifier, params)
	if err := st.SetData(forestData{
		ModelState:         rf.state.GetState(),
		RandomState:        rf.randomState,
		Classes:            rf.classes_,
		FeatureImportances: rf.featureImportances_,
	}); err != nil {
		return nil, err
	}
	for i, est := range rf.estimators {
		child, err := est.ExportState()
		if err != nil {
			return nil, errors.Wrapf(err, "estimator %d", i)
		}
		st.AddChild(estimatorName(i), child)
	}
	return st, nil
}

// ImportState implements model.Stateful. Trees are built through decode when
// it is non-nil.
func (rf *RandomForestClassifier) ImportState(st *model.State, decode model.Decoder) error {
	const op = "RandomForestClassifier.ImportState"
	if err := st.Expect(TypeRandomForestClassifier); err != nil {
		return err
	}
	var data forestData
	if err := st.DecodeData(&data); err != nil {
		return err
	}

	restored := NewRandomForestClassifier()
	if err := restored.SetParams(st.Params); err != nil {
		return err
	}
	if len(st.Children) != restored.nEstimators {
		return errors.NewValueError(op, fmt.Sprintf("state has %d estimators, want %d", len(st.Children), restored.nEstimators))
	}

	estimators := make([]*tree.DecisionTreeClassifier, len(st.Children))
	for i := range estimators {
		child, err := st.Child(estimatorName(i))
		if err != nil {
			return err
		}
		est, err := decodeTree(child, decode)
		if err != nil {
			return errors.Wrapf(err, "estimator %d", i)
		}
		if len(est.Classes()) != len(data.Classes) {
			return errors.NewValueError(op, fmt.Sprintf("estimator %d has %d classes, want %d", i, len(est.Classes()), len(data.Classes)))
		}
		estimators[i] = est
	}

	restored.randomState = data.RandomState
	restored.estimators = estimators
	restored.classes_ = data.Classes
	restored.nFeatures_ = data.NFeatures
	restored.featureImportances_ = data.FeatureImportances
	restored.state.SetState(data.ModelState)

	*rf = *restored
	return nil
}

func decodeTree(st *model.State, decode model.Decoder) (*tree.DecisionTreeClassifier, error) {
	if decode == nil {
		est := &tree.DecisionTreeClassifier{}
		return est, est.ImportState(st, nil)
	}
	c, err := decode(st)
	if err != nil {
		return nil, err
	}
	est, ok := c.(*tree.DecisionTreeClassifier)
	if !ok {
		return nil, errors.NewValueError("RandomForestClassifier.ImportState", fmt.Sprintf("estimator has type %s", c.TypeName()))
	}
	return est, nil
}
