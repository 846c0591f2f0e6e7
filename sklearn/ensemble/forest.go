// Package ensemble provides bagged tree ensembles.
package ensemble

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/core/parallel"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/pkg/log"
	"github.com/YuminosukeSato/drugpipe/sklearn/tree"
)

// TypeRandomForestClassifier is the type name written into persisted states.
const TypeRandomForestClassifier = "drugpipe.ensemble.RandomForestClassifier"

// Voting modes.
const (
	VotingHard = "hard"
	VotingSoft = "soft"
)

// max_features modes.
const (
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesLog2 = "log2"
	MaxFeaturesAll  = "all"
)

// bootstrapStream separates the bootstrap draws from the feature draws of a
// tree that share one seed.
const bootstrapStream = 0x9e3779b97f4a7c15

// sequentialPredictTrees is the forest size up to which prediction does not
// start goroutines.
const sequentialPredictTrees = 16

// RandomForestClassifier averages decision trees fitted on bootstrap samples
// with a random subset of features considered at every split.
type RandomForestClassifier struct {
	state *model.StateManager

	// Hyperparameters
	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string
	bootstrap       bool
	voting          string
	randomState     *uint64
	nJobs           int

	// Learned attributes
	estimators          []*tree.DecisionTreeClassifier
	classes_            []float64
	nFeatures_          int
	featureImportances_ []float64
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees (default 100).
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion sets the split criterion of every tree.
func WithCriterion(criterion string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithMaxDepth limits tree depth. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithMinSamplesSplit sets min_samples_split of every tree.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets min_samples_leaf of every tree.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature subset: "sqrt" (default),
// "log2" or "all".
func WithMaxFeatures(mode string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = mode }
}

// WithBootstrap toggles sampling with replacement.
func WithBootstrap(bootstrap bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = bootstrap }
}

// WithVoting selects "hard" majority voting (default) or "soft" averaging of
// tree probabilities for Predict.
func WithVoting(voting string) Option {
	return func(rf *RandomForestClassifier) { rf.voting = voting }
}

// WithRandomState fixes the master seed from which every tree seed is drawn.
func WithRandomState(seed uint64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = &seed }
}

// WithNJobs sets the number of goroutines building trees. 0 uses every CPU.
// The fitted forest does not depend on it.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// NewRandomForestClassifier creates a forest with scikit-learn defaults.
//
//	rf := ensemble.NewRandomForestClassifier(
//	    ensemble.WithNEstimators(100),
//	    ensemble.WithRandomState(125),
//	)
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       tree.CriterionGini,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     MaxFeaturesSqrt,
		bootstrap:       true,
		voting:          VotingHard,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

func (rf *RandomForestClassifier) validateParams() error {
	switch {
	case rf.nEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	case rf.voting != VotingHard && rf.voting != VotingSoft:
		return errors.NewValidationError("voting", "must be hard or soft", rf.voting)
	case rf.maxFeatures != MaxFeaturesSqrt && rf.maxFeatures != MaxFeaturesLog2 && rf.maxFeatures != MaxFeaturesAll:
		return errors.NewValidationError("max_features", "must be sqrt, log2 or all", rf.maxFeatures)
	}
	return nil
}

// featuresPerSplit resolves max_features for p input features.
func (rf *RandomForestClassifier) featuresPerSplit(p int) int {
	var k int
	switch rf.maxFeatures {
	case MaxFeaturesSqrt:
		k = int(math.Sqrt(float64(p)))
	case MaxFeaturesLog2:
		k = int(math.Log2(float64(p)))
	default:
		k = p
	}
	if k < 1 {
		k = 1
	}
	return k
}

// Fit grows the forest on X and integer class labels y.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if err := rf.validateParams(); err != nil {
		return err
	}
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	labels, err := labelVector(y, n)
	if err != nil {
		return err
	}

	classes, codes := encodeLabels(labels)

	logger := log.GetLoggerWithName("ensemble").With(log.ModelNameKey, "RandomForestClassifier")
	logger.Info("Training started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.ClassesKey, len(classes),
		log.EstimatorsKey, rf.nEstimators,
	)
	started := time.Now()

	var master *rand.Rand
	if rf.randomState != nil {
		master = rand.New(rand.NewPCG(*rf.randomState, *rf.randomState))
	} else {
		master = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	// Every seed is drawn up front so scheduling cannot change the forest.
	seeds := make([]uint64, rf.nEstimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	Xd := mat.DenseCopyOf(X)
	maxFeatures := rf.featuresPerSplit(p)
	estimators := make([]*tree.DecisionTreeClassifier, rf.nEstimators)

	err = parallel.ForEach(rf.nEstimators, rf.nJobs, func(i int) error {
		sample := make([]int, n)
		if rf.bootstrap {
			rng := rand.New(rand.NewPCG(seeds[i], seeds[i]^bootstrapStream))
			for k := range sample {
				sample[k] = rng.IntN(n)
			}
		} else {
			for k := range sample {
				sample[k] = k
			}
		}

		est := tree.NewDecisionTreeClassifier(
			tree.WithCriterion(rf.criterion),
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesSplit(rf.minSamplesSplit),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(maxFeatures),
			tree.WithRandomState(seeds[i]),
		)
		if err := est.FitIndexed(Xd, codes, len(classes), sample); err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
		estimators[i] = est
		return nil
	})
	if err != nil {
		return err
	}

	rf.estimators = estimators
	rf.classes_ = classes
	rf.nFeatures_ = p
	rf.featureImportances_ = averageImportances(estimators, p)
	rf.state.SetDimensions(p, n)
	rf.state.SetFitted()

	logger.Info("Training completed",
		log.OperationKey, log.OperationFit,
		log.DurationMsKey, time.Since(started).Milliseconds(),
	)
	return nil
}

func averageImportances(estimators []*tree.DecisionTreeClassifier, p int) []float64 {
	out := make([]float64, p)
	for _, est := range estimators {
		for j, v := range est.GetFeatureImportances() {
			out[j] += v
		}
	}
	total := 0.0
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

func (rf *RandomForestClassifier) checkInput(X mat.Matrix, method string) error {
	if err := rf.state.RequireFitted("RandomForestClassifier", method); err != nil {
		return err
	}
	_, p := X.Dims()
	if p != rf.nFeatures_ {
		return errors.NewDimensionError("RandomForestClassifier."+method, rf.nFeatures_, p, 1)
	}
	return nil
}

// PredictProba returns the mean class probabilities of the trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.checkInput(X, "PredictProba"); err != nil {
		return nil, err
	}
	probas, err := rf.treeOutputs(X, true)
	if err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	sum := mat.NewDense(n, len(rf.classes_), nil)
	for _, proba := range probas {
		sum.Add(sum, proba)
	}
	sum.Scale(1/float64(len(rf.estimators)), sum)
	return sum, nil
}

// treeOutputs collects Predict (or PredictProba) of every tree in estimator
// order. Small forests are evaluated sequentially.
func (rf *RandomForestClassifier) treeOutputs(X mat.Matrix, proba bool) ([]mat.Matrix, error) {
	outs := make([]mat.Matrix, len(rf.estimators))
	errs := make([]error, len(rf.estimators))
	parallel.ParallelizeWithThreshold(len(rf.estimators), sequentialPredictTrees, rf.nJobs, func(start, end int) {
		for t := start; t < end; t++ {
			if proba {
				outs[t], errs[t] = rf.estimators[t].PredictProba(X)
			} else {
				outs[t], errs[t] = rf.estimators[t].Predict(X)
			}
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return outs, nil
}

// Predict returns one class label per sample as an n × 1 matrix. With hard
// voting each tree casts one vote; ties go to the lowest class.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.checkInput(X, "Predict"); err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	k := len(rf.classes_)
	scores := mat.NewDense(n, k, nil)

	switch rf.voting {
	case VotingSoft:
		proba, err := rf.PredictProba(X)
		if err != nil {
			return nil, err
		}
		scores.Copy(proba)
	default:
		allVotes, err := rf.treeOutputs(X, false)
		if err != nil {
			return nil, err
		}
		for _, votes := range allVotes {
			for i := 0; i < n; i++ {
				c := int(votes.At(i, 0))
				scores.Set(i, c, scores.At(i, c)+1)
			}
		}
	}

	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		best := 0
		for c := 1; c < k; c++ {
			if scores.At(i, c) > scores.At(i, best) {
				best = c
			}
		}
		out.Set(i, 0, rf.classes_[best])
	}
	return out, nil
}

// Score returns the mean accuracy on X and y, or 0 if prediction fails.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0
	}
	n, _ := pred.Dims()
	labels, err := labelVector(y, n)
	if err != nil {
		return 0
	}
	correct := 0
	for i, v := range labels {
		if pred.At(i, 0) == v {
			correct++
		}
	}
	return float64(correct) / float64(n)
}

// Classes returns the class labels seen during fitting, sorted.
func (rf *RandomForestClassifier) Classes() []int {
	out := make([]int, len(rf.classes_))
	for i, c := range rf.classes_ {
		out[i] = int(c)
	}
	return out
}

// FeatureImportances returns the normalised mean impurity decrease of each
// feature over all trees.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	return append([]float64(nil), rf.featureImportances_...)
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return rf.estimators
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestClassifier) IsFitted() bool {
	return rf.state.IsFitted()
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	params := map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"voting":            rf.voting,
		"n_jobs":            rf.nJobs,
	}
	if rf.randomState != nil {
		params["random_state"] = *rf.randomState
	}
	return params
}

// SetParams updates hyperparameters. Unknown keys are an error.
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion", "max_features", "voting":
			s, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			switch key {
			case "criterion":
				rf.criterion = s
			case "max_features":
				rf.maxFeatures = s
			case "voting":
				rf.voting = s
			}
		case "bootstrap":
			b, ok := value.(bool)
			if !ok {
				return errors.NewValidationError(key, "must be a bool", value)
			}
			rf.bootstrap = b
		case "n_estimators", "max_depth", "min_samples_split", "min_samples_leaf", "n_jobs":
			v, ok := toInt(value)
			if !ok {
				return errors.NewValidationError(key, "must be an integer", value)
			}
			switch key {
			case "n_estimators":
				rf.nEstimators = v
			case "max_depth":
				rf.maxDepth = v
			case "min_samples_split":
				rf.minSamplesSplit = v
			case "min_samples_leaf":
				rf.minSamplesLeaf = v
			case "n_jobs":
				rf.nJobs = v
			}
		case "random_state":
			if value == nil {
				rf.randomState = nil
				continue
			}
			v, ok := toInt(value)
			if !ok || v < 0 {
				return errors.NewValidationError(key, "must be a non-negative integer", value)
			}
			seed := uint64(v)
			rf.randomState = &seed
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return rf.validateParams()
}

func (rf *RandomForestClassifier) String() string {
	return fmt.Sprintf("RandomForestClassifier(n_estimators=%d, max_features=%s, voting=%s)",
		rf.nEstimators, rf.maxFeatures, rf.voting)
}

func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint64:
		return int(x), true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	}
	return 0, false
}

func labelVector(y mat.Matrix, n int) ([]float64, error) {
	r, c := y.Dims()
	if r*c != n || (r != 1 && c != 1) {
		return nil, errors.NewDimensionError("RandomForestClassifier.Fit", n, r*c, 0)
	}
	out := make([]float64, n)
	for i := range out {
		if c == 1 {
			out[i] = y.At(i, 0)
		} else {
			out[i] = y.At(0, i)
		}
		if out[i] != math.Trunc(out[i]) {
			return nil, errors.NewValueError("RandomForestClassifier.Fit",
				fmt.Sprintf("class labels must be integers, got %v", out[i]))
		}
	}
	return out, nil
}

// encodeLabels returns the sorted distinct labels and each sample's index
// into them.
func encodeLabels(labels []float64) ([]float64, []int) {
	seen := make(map[float64]int)
	var classes []float64
	for _, v := range labels {
		if _, ok := seen[v]; !ok {
			seen[v] = 0
			classes = append(classes, v)
		}
	}
	sort.Float64s(classes)
	for i, c := range classes {
		seen[c] = i
	}
	codes := make([]int, len(labels))
	for i, v := range labels {
		codes[i] = seen[v]
	}
	return classes, codes
}
