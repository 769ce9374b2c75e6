package pipeline

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/core/model"
	"github.com/YuminosukeSato/ridecast/features"
	"github.com/YuminosukeSato/ridecast/metrics"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
	"github.com/YuminosukeSato/ridecast/pkg/log"
)

// Split is the training and held-out partition of the design matrix.
type Split struct {
	XTrain *mat.Dense
	YTrain *mat.VecDense
	XTest  *mat.Dense
	YTest  *mat.VecDense
}

// VariantResult is the outcome of fitting and scoring one variant. Err is a
// *errors.ModelFitError when the variant was excluded. Importances is nil
// for models that do not report feature importances.
type VariantResult struct {
	Name        VariantName
	Model       model.Regressor
	Metrics     metrics.MetricSet
	Importances map[string]float64
	Err         error
	Duration    time.Duration
}

// OK reports whether the variant can take part in selection.
func (r VariantResult) OK() bool { return r.Err == nil }

// Trainer fits variants on a split and scores them on the held-out rows.
type Trainer struct {
	Variants []Variant
	Parallel bool
	Logger   log.Logger
}

// Train returns one result per variant in variant order. Variants run
// sequentially unless Parallel is set, in which case all of them finish
// before Train returns.
func (t *Trainer) Train(ctx context.Context, split *Split) []VariantResult {
	results := make([]VariantResult, len(t.Variants))
	if !t.Parallel {
		for i, v := range t.Variants {
			if err := ctx.Err(); err != nil {
				results[i] = VariantResult{Name: v.Name, Err: errors.NewModelFitError(string(v.Name), err)}
				continue
			}
			results[i] = t.trainOne(v, split)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, v := range t.Variants {
		wg.Add(1)
		go func(i int, v Variant) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				results[i] = VariantResult{Name: v.Name, Err: errors.NewModelFitError(string(v.Name), err)}
				return
			}
			results[i] = t.trainOne(v, split)
		}(i, v)
	}
	wg.Wait()
	return results
}

func (t *Trainer) trainOne(v Variant, split *Split) VariantResult {
	logger := t.logger().With(log.ModelNameKey, string(v.Name))
	start := time.Now()
	res := VariantResult{Name: v.Name}

	err := errors.SafeExecute("train "+string(v.Name), func() error {
		m := v.New()
		if err := m.Fit(split.XTrain, split.YTrain); err != nil {
			return err
		}
		ms, err := Evaluate(m, split.XTest, split.YTest)
		if err != nil {
			return err
		}
		res.Model = m
		res.Metrics = ms
		if fi, ok := m.(model.FeatureImporter); ok {
			res.Importances = NamedImportances(fi.GetFeatureImportances())
		}
		return nil
	})
	res.Duration = time.Since(start)

	if err != nil {
		res.Model = nil
		res.Err = errors.NewModelFitError(string(v.Name), err)
		logger.Error("Variant failed", res.Err, log.DurationMsKey, res.Duration.Milliseconds())
		return res
	}

	fields := []any{
		log.R2ScoreKey, res.Metrics.R2,
		log.RMSEKey, res.Metrics.RMSE,
		log.MAEKey, res.Metrics.MAE,
		log.DurationMsKey, res.Duration.Milliseconds(),
	}
	if res.Importances != nil {
		fields = append(fields, log.ImportancesKey, res.Importances)
	}
	logger.Info("Variant evaluated", fields...)
	return res
}

// NamedImportances keys importances by feature name. Columns beyond
// features.FeatureNames are ignored.
func NamedImportances(imp []float64) map[string]float64 {
	out := make(map[string]float64, len(features.FeatureNames))
	for j, name := range features.FeatureNames {
		if j >= len(imp) {
			break
		}
		out[name] = imp[j]
	}
	return out
}

func (t *Trainer) logger() log.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return log.GetLoggerWithName("pipeline.trainer")
}

// Evaluate scores a fitted model on held-out rows.
func Evaluate(m model.Regressor, X mat.Matrix, y *mat.VecDense) (metrics.MetricSet, error) {
	pred, err := m.Predict(X)
	if err != nil {
		return metrics.MetricSet{}, err
	}
	return metrics.EvaluateMatrix(y, pred)
}

// Summarize collects the metrics of successful variants.
func Summarize(results []VariantResult) metrics.Summary {
	s := make(metrics.Summary, len(results))
	for _, r := range results {
		if r.OK() {
			s[string(r.Name)] = r.Metrics
		}
	}
	return s
}

// Failures returns the errors of excluded variants in variant order.
func Failures(results []VariantResult) []error {
	var errs []error
	for _, r := range results {
		if !r.OK() {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
