// Package pipeline chains the column transformer, the label encoder and a
// classifier into one object that is fitted and persisted as a unit.
package pipeline

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/dataset"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/pkg/log"
	"github.com/YuminosukeSato/drugpipe/preprocessing"
)

// TypePipeline is the type name written into persisted states.
const TypePipeline = "drugpipe.pipeline.Pipeline"

// Child state names.
const (
	StepTransformer = "transformer"
	StepLabels      = "labels"
	StepClassifier  = "classifier"
)

// Classifier is a persistable classifier working on encoded labels.
type Classifier interface {
	model.Classifier
	model.Stateful
	model.ParameterGetter
}

// Pipeline transforms raw feature frames and predicts string labels.
type Pipeline struct {
	state  *model.StateManager
	logger log.Logger

	transformer *preprocessing.ColumnTransformer
	labels      *preprocessing.LabelEncoder
	classifier  Classifier
}

// New creates an unfitted pipeline.
//
//	pipe := pipeline.New(
//	    preprocessing.NewColumnTransformer(steps...),
//	    ensemble.NewRandomForestClassifier(ensemble.WithRandomState(125)),
//	)
func New(transformer *preprocessing.ColumnTransformer, classifier Classifier) *Pipeline {
	return &Pipeline{
		state:       model.NewStateManager(),
		logger:      log.GetLoggerWithName("pipeline"),
		transformer: transformer,
		labels:      preprocessing.NewLabelEncoder(),
		classifier:  classifier,
	}
}

// Fit learns the transformer on X, the label encoding on y and then the
// classifier on the transformed rows.
func (p *Pipeline) Fit(X *dataset.Frame, y []string) error {
	if p.transformer == nil || p.classifier == nil {
		return errors.NewValueError("Pipeline.Fit", "pipeline needs a transformer and a classifier")
	}
	rows, _ := X.Dims()
	if rows != len(y) {
		return errors.NewDimensionError("Pipeline.Fit", rows, len(y), 0)
	}
	started := time.Now()

	Xt, err := p.transformer.FitTransform(X)
	if err != nil {
		return errors.Wrap(err, "fit transformer")
	}
	codes, err := p.labels.FitTransform(y)
	if err != nil {
		return errors.Wrap(err, "fit labels")
	}
	yv := mat.NewDense(len(codes), 1, nil)
	for i, c := range codes {
		yv.Set(i, 0, float64(c))
	}
	if err := p.classifier.Fit(Xt, yv); err != nil {
		return errors.Wrap(err, "fit classifier")
	}

	_, features := Xt.Dims()
	p.state.SetDimensions(features, rows)
	p.state.SetFitted()
	p.logger.Info("Pipeline fitted",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.ModelNameKey, p.classifier.TypeName(),
		log.HyperParamsKey, p.classifier.GetParams(),
		log.SamplesKey, rows,
		log.FeaturesKey, features,
		log.ClassesKey, len(p.labels.Classes()),
		log.DurationMsKey, time.Since(started).Milliseconds(),
	)
	return nil
}

// Transform applies the fitted column transformer.
func (p *Pipeline) Transform(X *dataset.Frame) (*mat.Dense, error) {
	if err := p.state.RequireFitted("Pipeline", "Transform"); err != nil {
		return nil, err
	}
	return p.transformer.Transform(X)
}

// Predict returns one label per row of X.
func (p *Pipeline) Predict(X *dataset.Frame) ([]string, error) {
	Xt, err := p.Transform(X)
	if err != nil {
		return nil, err
	}
	pred, err := p.classifier.Predict(Xt)
	if err != nil {
		return nil, err
	}
	n, _ := pred.Dims()
	codes := make([]int, n)
	for i := range codes {
		codes[i] = int(pred.At(i, 0))
	}
	return p.labels.InverseTransform(codes)
}

// PredictProba returns class probabilities with columns in Classes order.
func (p *Pipeline) PredictProba(X *dataset.Frame) (mat.Matrix, error) {
	Xt, err := p.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.classifier.PredictProba(Xt)
}

// Classes returns the sorted class labels.
func (p *Pipeline) Classes() []string {
	return p.labels.Classes()
}

// Transformer returns the column transformer.
func (p *Pipeline) Transformer() *preprocessing.ColumnTransformer { return p.transformer }

// Classifier returns the final estimator.
func (p *Pipeline) Classifier() Classifier { return p.classifier }

// IsFitted reports whether Fit has completed.
func (p *Pipeline) IsFitted() bool {
	return p.state.IsFitted()
}

// TypeName implements model.Stateful.
func (p *Pipeline) TypeName() string { return TypePipeline }

// ExportState implements model.Stateful.
func (p *Pipeline) ExportState() (*model.State, error) {
	if err := p.state.RequireFitted("Pipeline", "ExportState"); err != nil {
		return nil, err
	}
	st := model.NewState(TypePipeline, nil)
	if err := st.SetData(p.state.GetState()); err != nil {
		return nil, err
	}
	children := []struct {
		name string
		c    model.Stateful
	}{
		{StepTransformer, p.transformer},
		{StepLabels, p.labels},
		{StepClassifier, p.classifier},
	}
	for _, ch := range children {
		cs, err := ch.c.ExportState()
		if err != nil {
			return nil, errors.Wrapf(err, "export %s", ch.name)
		}
		st.AddChild(ch.name, cs)
	}
	return st, nil
}

// ImportState implements model.Stateful. decode must be able to build every
// child type.
func (p *Pipeline) ImportState(st *model.State, decode model.Decoder) error {
	const op = "Pipeline.ImportState"
	if err := st.Expect(TypePipeline); err != nil {
		return err
	}
	if decode == nil {
		return errors.NewValueError(op, "a decoder is required")
	}
	var data model.ModelState
	if err := st.DecodeData(&data); err != nil {
		return err
	}

	build := func(name string) (model.Stateful, error) {
		cs, err := st.Child(name)
		if err != nil {
			return nil, err
		}
		c, err := decode(cs)
		if err != nil {
			return nil, errors.Wrapf(err, "import %s", name)
		}
		return c, nil
	}

	tc, err := build(StepTransformer)
	if err != nil {
		return err
	}
	transformer, ok := tc.(*preprocessing.ColumnTransformer)
	if !ok {
		return errors.NewValueError(op, "transformer has type "+tc.TypeName())
	}
	lc, err := build(StepLabels)
	if err != nil {
		return err
	}
	labels, ok := lc.(*preprocessing.LabelEncoder)
	if !ok {
		return errors.NewValueError(op, "labels have type "+lc.TypeName())
	}
	cc, err := build(StepClassifier)
	if err != nil {
		return err
	}
	classifier, ok := cc.(Classifier)
	if !ok {
		return errors.NewValueError(op, "classifier has type "+cc.TypeName())
	}
	if len(classifier.Classes()) != len(labels.Classes()) {
		return errors.NewValueError(op, "classifier and label encoder disagree on the number of classes")
	}

	p.state = model.NewStateManager()
	p.state.SetState(data)
	p.logger = log.GetLoggerWithName("pipeline")
	p.transformer = transformer
	p.labels = labels
	p.classifier = classifier
	return nil
}
