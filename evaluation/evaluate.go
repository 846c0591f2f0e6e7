// Package evaluation scores a fitted pipeline on holdout rows and writes the
// run's reports: the confusion-matrix image, the metrics log line and the
// console summary.
package evaluation

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/dataset"
	"github.com/YuminosukeSato/drugpipe/metrics"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/pkg/log"
)

// Predictor is the part of a fitted pipeline Evaluate needs.
type Predictor interface {
	Predict(X *dataset.Frame) ([]string, error)
	Classes() []string
}

// Result holds the holdout scores of one run.
type Result struct {
	Accuracy float64
	F1       float64

	// Labels orders the rows and columns of Confusion.
	Labels    []string
	Confusion *mat.Dense

	YTrue []string
	YPred []string
}

// Evaluate predicts X and scores the predictions against y with accuracy,
// macro F1 and a confusion matrix ordered by the predictor's classes.
func Evaluate(p Predictor, X *dataset.Frame, y []string) (*Result, error) {
	rows, _ := X.Dims()
	if rows != len(y) {
		return nil, errors.NewDimensionError("Evaluate", rows, len(y), 0)
	}
	pred, err := p.Predict(X)
	if err != nil {
		return nil, errors.Wrap(err, "predict holdout")
	}

	acc, err := metrics.AccuracyScore(y, pred)
	if err != nil {
		return nil, err
	}
	f1, err := metrics.F1Score(y, pred, metrics.AverageMacro)
	if err != nil {
		return nil, err
	}
	labels := p.Classes()
	cm, err := metrics.ConfusionMatrix(y, pred, labels)
	if err != nil {
		return nil, err
	}

	log.GetLoggerWithName("evaluation").Info("Evaluation finished",
		log.PhaseKey, log.PhaseTesting,
		log.SamplesKey, rows,
		log.AccuracyKey, acc,
		log.F1ScoreKey, f1,
	)
	return &Result{
		Accuracy:  acc,
		F1:        f1,
		Labels:    labels,
		Confusion: cm,
		YTrue:     y,
		YPred:     pred,
	}, nil
}
