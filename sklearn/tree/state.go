package tree

import (
	"fmt"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

type treeData struct {
	model.ModelState
	RandomState        *uint64   `json:"random_state,omitempty"`
	Classes            []float64 `json:"classes"`
	Nodes              []node    `json:"nodes"`
	FeatureImportances []float64 `json:"feature_importances"`
}

// TypeName implements model.Stateful.
func (dt *DecisionTreeClassifier) TypeName() string { return TypeDecisionTreeClassifier }

// ExportState implements model.Stateful. The seed is kept in the data
// section so that it survives JSON without losing precision.
func (dt *DecisionTreeClassifier) ExportState() (*model.State, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "ExportState"); err != nil {
		return nil, err
	}
	params := dt.GetParams()
	delete(params, "random_state")

	st := model.NewState(TypeDecisionTreeClassifier, params)
	err := st.SetData(treeData{
		ModelState:         dt.state.GetState(),
		RandomState:        dt.randomState,
		Classes:            dt.classes_,
		Nodes:              dt.nodes,
		FeatureImportances: dt.featureImportances_,
	})
	return st, err
}

// ImportState implements model.Stateful.
func (dt *DecisionTreeClassifier) ImportState(st *model.State, _ model.Decoder) error {
	if err := st.Expect(TypeDecisionTreeClassifier); err != nil {
		return err
	}
	var data treeData
	if err := st.DecodeData(&data); err != nil {
		return err
	}
	if err := validateNodes(data.Nodes, len(data.Classes), data.NFeatures); err != nil {
		return err
	}

	restored := NewDecisionTreeClassifier()
	if err := restored.SetParams(st.Params); err != nil {
		return err
	}
	restored.randomState = data.RandomState
	restored.nodes = data.Nodes
	restored.classes_ = data.Classes
	restored.nClasses_ = len(data.Classes)
	restored.nFeatures_ = data.NFeatures
	restored.featureImportances_ = data.FeatureImportances
	restored.state.SetState(data.ModelState)

	*dt = *restored
	return nil
}

// validateNodes rejects node tables whose links or shapes would make
// prediction index out of range.
func validateNodes(nodes []node, nClasses, nFeatures int) error {
	const op = "DecisionTreeClassifier.ImportState"
	if len(nodes) == 0 {
		return errors.NewValueError(op, "tree has no nodes")
	}
	if nClasses == 0 {
		return errors.NewValueError(op, "tree has no classes")
	}
	for id, nd := range nodes {
		if len(nd.Value) != nClasses {
			return errors.NewValueError(op, fmt.Sprintf("node %d has %d class values, want %d", id, len(nd.Value), nClasses))
		}
		if nd.Feature == leafFeature {
			continue
		}
		if nd.Feature < 0 || nd.Feature >= nFeatures {
			return errors.NewValueError(op, fmt.Sprintf("node %d splits on feature %d", id, nd.Feature))
		}
		// Children are always appended after their parent.
		if nd.Left <= id || nd.Left >= len(nodes) || nd.Right <= id || nd.Right >= len(nodes) {
			return errors.NewValueError(op, fmt.Sprintf("node %d has invalid children", id))
		}
	}
	return nil
}
