// Package tree implements a CART decision tree classifier compatible with
// scikit-learn's DecisionTreeClassifier.
package tree

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// TypeDecisionTreeClassifier is the type name written into persisted states.
const TypeDecisionTreeClassifier = "drugpipe.tree.DecisionTreeClassifier"

// Split criteria.
const (
	CriterionGini    = "gini"
	CriterionEntropy = "entropy"
)

const leafFeature = -1

// node is one entry of the flattened tree. Feature is leafFeature for
// leaves. Samples with a missing (NaN) split feature follow MissingLeft.
type node struct {
	Feature     int       `json:"feature"`
	Threshold   float64   `json:"threshold"`
	Left        int       `json:"left"`
	Right       int       `json:"right"`
	MissingLeft bool      `json:"missing_left"`
	NSamples    int       `json:"n_samples"`
	Impurity    float64   `json:"impurity"`
	Value       []float64 `json:"value"`
}

// DecisionTreeClassifier is a CART classifier. Thresholds are midpoints
// between consecutive distinct feature values; x <= threshold goes left.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string
	maxDepth        int // 0 => no limit
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 => all features
	randomState     *uint64

	// Learned attributes
	nodes               []node
	classes_            []float64
	nClasses_           int
	nFeatures_          int
	featureImportances_ []float64
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the split quality measure: "gini" (default) or "entropy".
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the depth of the tree (root depth = 0). 0 means no limit.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples required in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features are considered per split. 0 means all.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithRandomState fixes the seed used to draw candidate features.
func WithRandomState(seed uint64) Option {
	return func(dt *DecisionTreeClassifier) { dt.randomState = &seed }
}

// NewDecisionTreeClassifier creates a tree with scikit-learn defaults.
//
// Example:
//
//	dt := tree.NewDecisionTreeClassifier(
//	    tree.WithCriterion("entropy"),
//	    tree.WithMaxDepth(5),
//	)
//	err := dt.Fit(X, y)
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       CriterionGini,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

func (dt *DecisionTreeClassifier) validateParams() error {
	switch {
	case dt.criterion != CriterionGini && dt.criterion != CriterionEntropy:
		return errors.NewValidationError("criterion", "must be gini or entropy", dt.criterion)
	case dt.maxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0", dt.maxDepth)
	case dt.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	case dt.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	case dt.maxFeatures < 0:
		return errors.NewValidationError("max_features", "must be >= 0", dt.maxFeatures)
	}
	return nil
}

// Fit builds the tree from X (n_samples × n_features) and y, a column of
// integer class labels.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	n, _ := X.Dims()
	labels, err := labelVector(y, n)
	if err != nil {
		return err
	}

	classes := uniqueSorted(labels)
	index := make(map[float64]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	codes := make([]int, n)
	for i, v := range labels {
		codes[i] = index[v]
	}

	sample := make([]int, n)
	for i := range sample {
		sample[i] = i
	}
	if err := dt.FitIndexed(X, codes, len(classes), sample); err != nil {
		return err
	}
	dt.classes_ = classes
	return nil
}

// FitIndexed builds the tree on the rows of X listed in sample, which may
// repeat rows (bootstrap). codes holds a class index in [0, nClasses) for
// every row of X. The fitted classes are 0..nClasses-1, so trees trained on
// different samples share one probability layout.
func (dt *DecisionTreeClassifier) FitIndexed(X mat.Matrix, codes []int, nClasses int, sample []int) error {
	if err := dt.validateParams(); err != nil {
		return err
	}
	n, p := X.Dims()
	if n == 0 || p == 0 || len(sample) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(codes) != n {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", n, len(codes), 0)
	}
	if nClasses < 1 {
		return errors.NewValueError("DecisionTreeClassifier.Fit", "at least one class is required")
	}
	if err := errors.CheckMatrix("DecisionTreeClassifier.Fit", X, n, p, true); err != nil {
		return err
	}
	for _, i := range sample {
		if i < 0 || i >= n {
			return errors.NewValueError("DecisionTreeClassifier.Fit", fmt.Sprintf("sample index %d out of range", i))
		}
		if codes[i] < 0 || codes[i] >= nClasses {
			return errors.NewValueError("DecisionTreeClassifier.Fit", fmt.Sprintf("class code %d out of range", codes[i]))
		}
	}

	var rng *rand.Rand
	if dt.randomState != nil {
		rng = rand.New(rand.NewPCG(*dt.randomState, *dt.randomState))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	b := &builder{
		dt:          dt,
		X:           mat.DenseCopyOf(X),
		codes:       codes,
		nClasses:    nClasses,
		nFeatures:   p,
		rng:         rng,
		importances: make([]float64, p),
	}
	b.build(append([]int(nil), sample...), 0)

	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	for j := range b.importances {
		b.importances[j] = errors.SafeDivide(b.importances[j], total)
	}

	dt.nodes = b.nodes
	dt.nClasses_ = nClasses
	dt.nFeatures_ = p
	dt.classes_ = make([]float64, nClasses)
	for i := range dt.classes_ {
		dt.classes_[i] = float64(i)
	}
	dt.featureImportances_ = b.importances
	dt.state.SetDimensions(p, len(sample))
	dt.state.SetFitted()
	return nil
}

type builder struct {
	dt          *DecisionTreeClassifier
	X           *mat.Dense
	codes       []int
	nClasses    int
	nFeatures   int
	rng         *rand.Rand
	nodes       []node
	importances []float64
}

type candidate struct {
	feature     int
	threshold   float64
	missingLeft bool
	impurity    float64 // weighted child impurity
	left, right []int
	impL, impR  float64
}

func (b *builder) counts(idx []int) []float64 {
	c := make([]float64, b.nClasses)
	for _, i := range idx {
		c[b.codes[i]]++
	}
	return c
}

// build appends the subtree for idx and returns its node index.
func (b *builder) build(idx []int, depth int) int {
	counts := b.counts(idx)
	n := len(idx)
	impurity := b.impurity(counts, float64(n))

	id := len(b.nodes)
	value := make([]float64, b.nClasses)
	for k, c := range counts {
		value[k] = c / float64(n)
	}
	b.nodes = append(b.nodes, node{
		Feature:  leafFeature,
		NSamples: n,
		Impurity: impurity,
		Value:    value,
	})

	dt := b.dt
	if (dt.maxDepth > 0 && depth >= dt.maxDepth) ||
		n < dt.minSamplesSplit ||
		n < 2*dt.minSamplesLeaf ||
		impurity <= 1e-12 {
		return id
	}

	best, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	fn := float64(n)
	nl, nr := float64(len(best.left)), float64(len(best.right))
	b.importances[best.feature] += fn*impurity - nl*best.impL - nr*best.impR

	left := b.build(best.left, depth+1)
	right := b.build(best.right, depth+1)

	nd := &b.nodes[id]
	nd.Feature = best.feature
	nd.Threshold = best.threshold
	nd.MissingLeft = best.missingLeft
	nd.Left = left
	nd.Right = right
	return id
}

type valued struct {
	v    float64
	code int
	row  int
}

func (b *builder) bestSplit(idx []int) (candidate, bool) {
	features := b.rng.Perm(b.nFeatures)
	limit := b.nFeatures
	if b.dt.maxFeatures > 0 && b.dt.maxFeatures < limit {
		limit = b.dt.maxFeatures
	}

	var best candidate
	found := false
	visited := 0
	for _, f := range features {
		if visited >= limit && found {
			break
		}
		c, informative := b.splitFeature(idx, f)
		if !informative {
			continue
		}
		visited++
		if c.left != nil && (!found || c.impurity < best.impurity) {
			best = c
			found = true
		}
	}
	return best, found
}

// splitFeature finds the best threshold on feature f. informative is false
// when the feature is constant (or missing) over idx.
func (b *builder) splitFeature(idx []int, f int) (candidate, bool) {
	present := make([]valued, 0, len(idx))
	var missing []int
	missingCounts := make([]float64, b.nClasses)
	for _, i := range idx {
		v := b.X.At(i, f)
		if math.IsNaN(v) {
			missing = append(missing, i)
			missingCounts[b.codes[i]]++
			continue
		}
		present = append(present, valued{v: v, code: b.codes[i], row: i})
	}
	if len(present) < 2 {
		return candidate{}, false
	}
	sort.SliceStable(present, func(a, c int) bool { return present[a].v < present[c].v })
	if present[0].v == present[len(present)-1].v {
		return candidate{}, false
	}

	total := make([]float64, b.nClasses)
	for _, s := range present {
		total[s.code]++
	}

	n := float64(len(idx))
	nMissing := len(missing)
	minLeaf := b.dt.minSamplesLeaf

	leftCounts := make([]float64, b.nClasses)
	rightCounts := make([]float64, b.nClasses)
	best := candidate{feature: f, impurity: math.Inf(1)}
	bestPos := -1

	for pos := 1; pos < len(present); pos++ {
		leftCounts[present[pos-1].code]++
		if present[pos].v == present[pos-1].v {
			continue
		}

		nl, nr := pos, len(present)-pos
		missingLeft := nl >= nr
		if missingLeft {
			nl += nMissing
		} else {
			nr += nMissing
		}
		if nl < minLeaf || nr < minLeaf {
			continue
		}

		for k := range rightCounts {
			rightCounts[k] = total[k] - leftCounts[k]
		}
		l := append([]float64(nil), leftCounts...)
		r := rightCounts
		if missingLeft {
			for k := range l {
				l[k] += missingCounts[k]
			}
		} else {
			r = append([]float64(nil), rightCounts...)
			for k := range r {
				r[k] += missingCounts[k]
			}
		}

		impL := b.impurity(l, float64(nl))
		impR := b.impurity(r, float64(nr))
		weighted := (float64(nl)*impL + float64(nr)*impR) / n
		if weighted < best.impurity {
			lo, hi := present[pos-1].v, present[pos].v
			threshold := lo/2 + hi/2
			if threshold >= hi || math.IsInf(threshold, 0) {
				threshold = lo
			}
			best.threshold = threshold
			best.missingLeft = missingLeft
			best.impurity = weighted
			best.impL, best.impR = impL, impR
			bestPos = pos
		}
	}
	if bestPos < 0 {
		return candidate{}, true
	}

	best.left = make([]int, 0, bestPos+nMissing)
	best.right = make([]int, 0, len(present)-bestPos+nMissing)
	for _, s := range present {
		if s.v <= best.threshold {
			best.left = append(best.left, s.row)
		} else {
			best.right = append(best.right, s.row)
		}
	}
	if best.missingLeft {
		best.left = append(best.left, missing...)
	} else {
		best.right = append(best.right, missing...)
	}
	return best, true
}

func (b *builder) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	switch b.dt.criterion {
	case CriterionEntropy:
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				h -= p * math.Log2(p)
			}
		}
		return h
	default:
		g := 1.0
		for _, c := range counts {
			p := c / n
			g -= p * p
		}
		return g
	}
}

// leaf returns the leaf reached by row i of X.
func (dt *DecisionTreeClassifier) leaf(X mat.Matrix, i int) *node {
	nd := &dt.nodes[0]
	for nd.Feature != leafFeature {
		v := X.At(i, nd.Feature)
		switch {
		case math.IsNaN(v):
			if nd.MissingLeft {
				nd = &dt.nodes[nd.Left]
			} else {
				nd = &dt.nodes[nd.Right]
			}
		case v <= nd.Threshold:
			nd = &dt.nodes[nd.Left]
		default:
			nd = &dt.nodes[nd.Right]
		}
	}
	return nd
}

func (dt *DecisionTreeClassifier) checkInput(X mat.Matrix, method string) error {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", method); err != nil {
		return err
	}
	_, p := X.Dims()
	if p != dt.nFeatures_ {
		return errors.NewDimensionError("DecisionTreeClassifier."+method, dt.nFeatures_, p, 1)
	}
	return nil
}

// PredictProba returns the class distribution of the leaf reached by each
// sample, one column per class.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkInput(X, "PredictProba"); err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	out := mat.NewDense(n, dt.nClasses_, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, dt.leaf(X, i).Value)
	}
	return out, nil
}

// Predict returns the most probable class label of each sample as an
// n × 1 matrix. Ties go to the lowest class.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkInput(X, "Predict"); err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, dt.classes_[argmax(dt.leaf(X, i).Value)])
	}
	return out, nil
}

// Score returns the mean accuracy on X and y, or 0 if prediction fails.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
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

// Classes returns the class labels seen during fitting.
func (dt *DecisionTreeClassifier) Classes() []int {
	out := make([]int, len(dt.classes_))
	for i, c := range dt.classes_ {
		out[i] = int(c)
	}
	return out
}

// GetFeatureImportances returns the normalised total impurity decrease
// contributed by each feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetDepth returns the depth of the deepest leaf (root depth = 0).
func (dt *DecisionTreeClassifier) GetDepth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var depth func(id int) int
	depth = func(id int) int {
		nd := dt.nodes[id]
		if nd.Feature == leafFeature {
			return 0
		}
		l, r := depth(nd.Left), depth(nd.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return depth(0)
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	leaves := 0
	for _, nd := range dt.nodes {
		if nd.Feature == leafFeature {
			leaves++
		}
	}
	return leaves
}

// GetNodeCount returns the number of nodes.
func (dt *DecisionTreeClassifier) GetNodeCount() int {
	return len(dt.nodes)
}

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeClassifier) IsFitted() bool {
	return dt.state.IsFitted()
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	params := map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
	}
	if dt.randomState != nil {
		params["random_state"] = *dt.randomState
	}
	return params
}

// SetParams updates hyperparameters. Unknown keys are an error.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion":
			s, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			dt.criterion = s
		case "max_depth", "min_samples_split", "min_samples_leaf", "max_features":
			v, ok := toInt(value)
			if !ok {
				return errors.NewValidationError(key, "must be an integer", value)
			}
			switch key {
			case "max_depth":
				dt.maxDepth = v
			case "min_samples_split":
				dt.minSamplesSplit = v
			case "min_samples_leaf":
				dt.minSamplesLeaf = v
			case "max_features":
				dt.maxFeatures = v
			}
		case "random_state":
			if value == nil {
				dt.randomState = nil
				continue
			}
			v, ok := toInt(value)
			if !ok || v < 0 {
				return errors.NewValidationError(key, "must be a non-negative integer", value)
			}
			seed := uint64(v)
			dt.randomState = &seed
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return dt.validateParams()
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

// labelVector flattens y (n × 1 or 1 × n) and checks that every label is an
// integer.
func labelVector(y mat.Matrix, n int) ([]float64, error) {
	r, c := y.Dims()
	var out []float64
	switch {
	case c == 1 && r == n:
		out = make([]float64, n)
		for i := range out {
			out[i] = y.At(i, 0)
		}
	case r == 1 && c == n:
		out = make([]float64, n)
		for i := range out {
			out[i] = y.At(0, i)
		}
	default:
		return nil, errors.NewDimensionError("DecisionTreeClassifier.Fit", n, r*c, 0)
	}
	for _, v := range out {
		if v != math.Trunc(v) || math.IsNaN(v) {
			return nil, errors.NewValueError("DecisionTreeClassifier.Fit",
				fmt.Sprintf("class labels must be integers, got %v", v))
		}
	}
	return out, nil
}

func uniqueSorted(values []float64) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func argmax(values []float64) int {
	best := 0
	for k, v := range values {
		if v > values[best] {
			best = k
		}
	}
	return best
}
