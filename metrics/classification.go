// Package metrics implements classification metrics compatible with
// sklearn.metrics.
package metrics

import (
	"cmp"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// Averaging modes for F1Score.
const (
	AverageMacro    = "macro"
	AverageMicro    = "micro"
	AverageWeighted = "weighted"
)

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	if err := checkVectors("Accuracy", yTrue, yPred); err != nil {
		return 0, err
	}
	n := yTrue.Len()
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率（1 - 正解率）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

func checkVectors(op string, yTrue, yPred *mat.VecDense) error {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != yTrue.Len() {
		return errors.NewDimensionError(op, yTrue.Len(), yPred.Len(), 0)
	}
	return nil
}

func checkLabels[T comparable](op string, yTrue, yPred []T) error {
	if len(yTrue) == 0 {
		return errors.NewValueError(op, "empty input")
	}
	if len(yPred) != len(yTrue) {
		return errors.NewDimensionError(op, len(yTrue), len(yPred), 0)
	}
	return nil
}

// AccuracyScore returns the fraction of positions where yPred equals yTrue.
func AccuracyScore[T comparable](yTrue, yPred []T) (float64, error) {
	if err := checkLabels("AccuracyScore", yTrue, yPred); err != nil {
		return 0, err
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// UniqueLabels returns the sorted union of the labels in every slice.
func UniqueLabels[T cmp.Ordered](ys ...[]T) []T {
	var out []T
	for _, y := range ys {
		out = append(out, y...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ConfusionMatrix counts (true, predicted) pairs. Row i holds the samples
// whose true label is labels[i]; column j those predicted as labels[j].
// Samples whose true or predicted label is not in labels are ignored. A nil
// labels uses UniqueLabels(yTrue, yPred).
func ConfusionMatrix[T cmp.Ordered](yTrue, yPred, labels []T) (*mat.Dense, error) {
	if err := checkLabels("ConfusionMatrix", yTrue, yPred); err != nil {
		return nil, err
	}
	if labels == nil {
		labels = UniqueLabels(yTrue, yPred)
	}
	if len(labels) == 0 {
		return nil, errors.NewValueError("ConfusionMatrix", "labels must not be empty")
	}
	index := make(map[T]int, len(labels))
	for i, l := range labels {
		if _, dup := index[l]; dup {
			return nil, errors.NewValueError("ConfusionMatrix", fmt.Sprintf("duplicate label %v", l))
		}
		index[l] = i
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := range yTrue {
		r, okT := index[yTrue[i]]
		c, okP := index[yPred[i]]
		if okT && okP {
			cm.Set(r, c, cm.At(r, c)+1)
		}
	}
	return cm, nil
}

// ClassScores holds per-class precision, recall, F1 and support, in the
// order of Labels.
type ClassScores[T cmp.Ordered] struct {
	Labels    []T
	Precision []float64
	Recall    []float64
	F1        []float64
	Support   []int
}

// PrecisionRecallF1 computes per-class scores over UniqueLabels(yTrue,
// yPred). A ratio with a zero denominator is 0 and raises an
// UndefinedMetricWarning.
func PrecisionRecallF1[T cmp.Ordered](yTrue, yPred []T) (*ClassScores[T], error) {
	labels := UniqueLabels(yTrue, yPred)
	cm, err := ConfusionMatrix(yTrue, yPred, labels)
	if err != nil {
		return nil, err
	}

	k := len(labels)
	s := &ClassScores[T]{
		Labels:    labels,
		Precision: make([]float64, k),
		Recall:    make([]float64, k),
		F1:        make([]float64, k),
		Support:   make([]int, k),
	}
	var noPredicted, noTrue bool
	for c := 0; c < k; c++ {
		tp := cm.At(c, c)
		predicted := mat.Sum(cm.ColView(c))
		actual := mat.Sum(cm.RowView(c))
		s.Support[c] = int(actual)

		if predicted == 0 {
			noPredicted = true
		} else {
			s.Precision[c] = tp / predicted
		}
		if actual == 0 {
			noTrue = true
		} else {
			s.Recall[c] = tp / actual
		}
		if p, r := s.Precision[c], s.Recall[c]; p+r > 0 {
			s.F1[c] = 2 * p * r / (p + r)
		}
	}

	if noPredicted {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted samples in some labels", 0))
	}
	if noTrue {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true samples in some labels", 0))
	}
	return s, nil
}

// F1Score returns the F1 score averaged with "macro" (unweighted mean over
// classes), "micro" (global counts) or "weighted" (mean weighted by
// support).
func F1Score[T cmp.Ordered](yTrue, yPred []T, average string) (float64, error) {
	switch average {
	case AverageMacro, AverageMicro, AverageWeighted:
	default:
		return 0, errors.NewValidationError("average", "must be macro, micro or weighted", average)
	}
	if err := checkLabels("F1Score", yTrue, yPred); err != nil {
		return 0, err
	}

	if average == AverageMicro {
		// With every label included, micro precision and recall both equal
		// the accuracy.
		return AccuracyScore(yTrue, yPred)
	}

	s, err := PrecisionRecallF1(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	total := 0.0
	if average == AverageMacro {
		for _, f := range s.F1 {
			total += f
		}
		return total / float64(len(s.F1)), nil
	}

	for c, f := range s.F1 {
		total += f * float64(s.Support[c])
	}
	return total / float64(len(yTrue)), nil
}
