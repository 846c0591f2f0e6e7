package artifact

import (
	"sort"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/pipeline"
	"github.com/YuminosukeSato/drugpipe/preprocessing"
	"github.com/YuminosukeSato/drugpipe/sklearn/ensemble"
	"github.com/YuminosukeSato/drugpipe/sklearn/tree"
)

// Constructor returns an empty component ready for ImportState.
type Constructor func() model.Stateful

var registry = map[string]Constructor{
	pipeline.TypePipeline:               func() model.Stateful { return &pipeline.Pipeline{} },
	preprocessing.TypeColumnTransformer: func() model.Stateful { return &preprocessing.ColumnTransformer{} },
	preprocessing.TypeOrdinalEncoder:    func() model.Stateful { return &preprocessing.OrdinalEncoder{} },
	preprocessing.TypeSimpleImputer:     func() model.Stateful { return &preprocessing.SimpleImputer{} },
	preprocessing.TypeStandardScaler:    func() model.Stateful { return &preprocessing.StandardScaler{} },
	preprocessing.TypeMinMaxScaler:      func() model.Stateful { return &preprocessing.MinMaxScaler{} },
	preprocessing.TypeLabelEncoder:      func() model.Stateful { return &preprocessing.LabelEncoder{} },
	ensemble.TypeRandomForestClassifier: func() model.Stateful { return &ensemble.RandomForestClassifier{} },
	tree.TypeDecisionTreeClassifier:     func() model.Stateful { return &tree.DecisionTreeClassifier{} },
}

// DefaultTrusted returns the component types Load accepts without being told
// to, sorted.
func DefaultTrusted() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Decode builds a component from its state using the registry. It is the
// model.Decoder handed to ImportState, so nested children are decoded the
// same way.
func Decode(s *model.State) (model.Stateful, error) {
	if s == nil {
		return nil, errors.NewValueError("artifact.Decode", "nil state")
	}
	newComponent, ok := registry[s.Type]
	if !ok {
		return nil, errors.NewValueError("artifact.Decode", "no constructor registered for "+s.Type)
	}
	c := newComponent()
	if err := c.ImportState(s, Decode); err != nil {
		return nil, errors.Wrapf(err, "decode %s", s.Type)
	}
	return c, nil
}
