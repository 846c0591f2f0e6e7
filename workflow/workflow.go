// Package workflow runs the training job as one forward pass: load, shuffle,
// split, fit, evaluate, report and persist.
package workflow

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/YuminosukeSato/drugpipe/artifact"
	"github.com/YuminosukeSato/drugpipe/config"
	"github.com/YuminosukeSato/drugpipe/dataset"
	"github.com/YuminosukeSato/drugpipe/evaluation"
	"github.com/YuminosukeSato/drugpipe/pipeline"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/pkg/log"
	"github.com/YuminosukeSato/drugpipe/preprocessing"
	"github.com/YuminosukeSato/drugpipe/runstore"
	"github.com/YuminosukeSato/drugpipe/sklearn/ensemble"
	"github.com/YuminosukeSato/drugpipe/sklearn/model_selection"
)

// Summary describes a completed run.
type Summary struct {
	Result  *evaluation.Result
	NTrain  int
	NTest   int
	Console string
	RunID   int64
}

type options struct {
	stdout io.Writer
	now    func() time.Time
}

// Option configures Run.
type Option func(*options)

// WithStdout redirects the console line (default os.Stdout).
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithClock sets the clock used for the metrics timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// stage runs fn under a panic guard and logs its duration.
func stage(logger log.Logger, name string, fn func() error) error {
	started := time.Now()
	err := errors.SafeExecute(name, fn)
	if err != nil {
		logger.Error("Stage failed", err, log.StageKey, name, log.ErrorCodeKey, log.ErrorCode(err))
		return errors.Wrapf(err, "%s", name)
	}
	logger.Debug("Stage finished",
		log.StageKey, name,
		log.DurationMsKey, time.Since(started).Milliseconds(),
	)
	return nil
}

// NewPipeline builds the unfitted pipeline described by cfg.
func NewPipeline(cfg *config.Config) *pipeline.Pipeline {
	var scaler interface{}
	switch cfg.Features.Scaler {
	case "minmax":
		scaler = preprocessing.NewMinMaxScalerDefault()
	default:
		scaler = preprocessing.NewStandardScalerDefault()
	}

	var steps []preprocessing.Step
	if len(cfg.Features.Categorical) > 0 {
		steps = append(steps, preprocessing.Step{
			Name:        "encoder",
			Transformer: preprocessing.NewOrdinalEncoder(),
			Columns:     cfg.Features.Categorical,
		})
	}
	if len(cfg.Features.Numeric) > 0 {
		steps = append(steps,
			preprocessing.Step{
				Name:        "num_imputer",
				Transformer: preprocessing.NewSimpleImputer(preprocessing.WithStrategy(cfg.Features.Imputer)),
				Columns:     cfg.Features.Numeric,
			},
			preprocessing.Step{
				Name:        "num_scaler",
				Transformer: scaler,
				Columns:     cfg.Features.Numeric,
			},
		)
	}

	forest := ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(cfg.Model.NEstimators),
		ensemble.WithRandomState(cfg.Model.RandomState),
		ensemble.WithCriterion(cfg.Model.Criterion),
		ensemble.WithMaxDepth(cfg.Model.MaxDepth),
		ensemble.WithMaxFeatures(cfg.Model.MaxFeatures),
		ensemble.WithVoting(cfg.Model.Voting),
		ensemble.WithNJobs(cfg.Model.NJobs),
	)
	return pipeline.New(preprocessing.NewColumnTransformer(steps...), forest)
}

// Run executes the job described by cfg. Outputs written before a failing
// stage are left in place.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) (*Summary, error) {
	o := options{stdout: os.Stdout, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.GetLoggerWithName("workflow")

	var (
		table *dataset.Table
		split *model_selection.Split
		pipe  *pipeline.Pipeline
		sum   = &Summary{}
	)

	if err := stage(logger, "load", func() error {
		var err error
		table, err = dataset.ReadCSV(cfg.Data.Path)
		if err != nil {
			return err
		}
		logger.Info("Dataset loaded", log.PathKey, cfg.Data.Path, log.SamplesKey, table.Len())
		return nil
	}); err != nil {
		return nil, err
	}

	if err := stage(logger, "split", func() error {
		var rng *rand.Rand
		if seed := cfg.Data.ShuffleSeed; seed != nil {
			rng = rand.New(rand.NewPCG(*seed, *seed))
		}
		table.Shuffle(rng)

		X, y, err := table.Features(cfg.Data.Label)
		if err != nil {
			return err
		}
		split, err = model_selection.TrainTestSplit(X, y,
			model_selection.WithTestSize(cfg.Split.TestSize),
			model_selection.WithRandomState(cfg.Split.RandomState),
		)
		if err != nil {
			return err
		}
		sum.NTrain, sum.NTest = len(split.YTrain), len(split.YTest)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := stage(logger, "fit", func() error {
		pipe = NewPipeline(cfg)
		return pipe.Fit(split.XTrain, split.YTrain)
	}); err != nil {
		return nil, err
	}

	if err := stage(logger, "evaluate", func() error {
		var err error
		sum.Result, err = evaluation.Evaluate(pipe, split.XTest, split.YTest)
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage(logger, "report", func() error {
		r := sum.Result
		if err := evaluation.SaveConfusionMatrix(cfg.Output.Image, r.Confusion, r.Labels, cfg.Output.DPI); err != nil {
			return err
		}
		return evaluation.AppendMetrics(cfg.Output.Metrics, o.now(), r)
	}); err != nil {
		return nil, err
	}

	if cfg.RunStore.Path != "" {
		if err := stage(logger, "run_store", func() error {
			store, err := runstore.Open(ctx, cfg.RunStore.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			sum.RunID, err = store.Record(ctx, runstore.Run{
				RanAt:     o.now(),
				Accuracy:  sum.Result.Accuracy,
				F1Score:   sum.Result.F1,
				NTrain:    sum.NTrain,
				NTest:     sum.NTest,
				ModelPath: cfg.Output.Artifact,
			})
			return err
		}); err != nil {
			return nil, err
		}
	}

	if err := stage(logger, "persist", func() error {
		return artifact.Dump(pipe, cfg.Output.Artifact)
	}); err != nil {
		return nil, err
	}

	sum.Console = evaluation.ConsoleLine(sum.Result)
	if _, err := fmt.Fprintln(o.stdout, sum.Console); err != nil {
		return nil, errors.Wrap(err, "write console line")
	}

	logger.Info("Run finished",
		log.AccuracyKey, sum.Result.Accuracy,
		log.F1ScoreKey, sum.Result.F1,
		log.EstimatorsKey, cfg.Model.NEstimators,
		log.RandomSeedKey, cfg.Model.RandomState,
	)
	return sum, nil
}
