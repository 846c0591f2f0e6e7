package log

import perrors "github.com/YuminosukeSato/drugpipe/pkg/errors"

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type, e.g. "RandomForestClassifier".
	ModelNameKey = "model.name"

	// OperationKey is the operation being performed: fit, predict, transform...
	OperationKey = "ml.operation"

	// ComponentKey identifies the package or named logger.
	ComponentKey = "ml.component"

	// PhaseKey is the lifecycle phase: training, testing, preprocessing.
	PhaseKey = "ml.phase"

	// StageKey names a workflow stage such as "load" or "split".
	StageKey = "workflow.stage"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ClassesKey  = "data.classes"
	PathKey     = "data.path"
)

// Performance and metrics.
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	F1ScoreKey    = "metrics.f1_score"
)

// Error context.
const (
	ErrorCodeKey  = "error.code"
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Hyperparameters.
const (
	HyperParamsKey = "model.hyperparams"
	RandomSeedKey  = "config.random_seed"
	EstimatorsKey  = "hyperparams.n_estimators"
	TestSizeKey    = "hyperparams.test_size"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationFitTransform = "fit_transform"

	PhaseTraining = "training"
	PhaseTesting  = "testing"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorUntrustedArtifact = "UNTRUSTED_ARTIFACT"
)

// ErrorCode maps err to one of the Error* codes above for the ErrorCodeKey
// attribute. Errors of no known kind map to ErrorInvalidInput.
func ErrorCode(err error) string {
	var (
		notFitted *perrors.NotFittedError
		dim       *perrors.DimensionError
		untrusted *perrors.UntrustedTypeError
	)
	switch {
	case perrors.As(err, &notFitted):
		return ErrorNotFitted
	case perrors.As(err, &dim):
		return ErrorDimensionMismatch
	case perrors.Is(err, perrors.ErrEmptyData):
		return ErrorEmptyData
	case perrors.As(err, &untrusted):
		return ErrorUntrustedArtifact
	}
	return ErrorInvalidInput
}
