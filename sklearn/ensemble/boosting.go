package ensemble

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/core/model"
	"github.com/YuminosukeSato/ridecast/core/parallel"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
	"github.com/YuminosukeSato/ridecast/pkg/log"
	"github.com/YuminosukeSato/ridecast/sklearn/tree"
)

func init() {
	model.Register("ensemble.GradientBoostingRegressor", &GradientBoostingRegressor{})
}

// GradientBoostingRegressor is an additive ensemble of regression trees fitted
// to the gradients of the squared error, with second-order split gain and L2
// regularised leaf values.
type GradientBoostingRegressor struct {
	model.BaseEstimator

	NEstimators    int
	MaxDepth       int
	LearningRate   float64
	Lambda         float64 // L2 regularisation on leaf values
	MinSamplesLeaf int
	MinGainToSplit float64

	BaseScore float64 // initial prediction, the training label mean
	Trees     []tree.Tree
	NFeatures int
}

var _ model.Regressor = (*GradientBoostingRegressor)(nil)
var _ model.FeatureImporter = (*GradientBoostingRegressor)(nil)

// BoostingOption configures a GradientBoostingRegressor.
type BoostingOption func(*GradientBoostingRegressor)

// WithBoostingRounds sets the number of boosting rounds.
func WithBoostingRounds(n int) BoostingOption {
	return func(gb *GradientBoostingRegressor) { gb.NEstimators = n }
}

// WithBoostingMaxDepth sets the maximum depth of every tree.
func WithBoostingMaxDepth(depth int) BoostingOption {
	return func(gb *GradientBoostingRegressor) { gb.MaxDepth = depth }
}

// WithLearningRate sets the shrinkage applied to every tree.
func WithLearningRate(lr float64) BoostingOption {
	return func(gb *GradientBoostingRegressor) { gb.LearningRate = lr }
}

// WithLambda sets the L2 regularisation on leaf values.
func WithLambda(lambda float64) BoostingOption {
	return func(gb *GradientBoostingRegressor) { gb.Lambda = lambda }
}

// NewGradientBoostingRegressor creates a booster with 100 rounds of depth 8
// trees, learning rate 0.1 and lambda 1.
func NewGradientBoostingRegressor(opts ...BoostingOption) *GradientBoostingRegressor {
	gb := &GradientBoostingRegressor{
		NEstimators:    100,
		MaxDepth:       8,
		LearningRate:   0.1,
		Lambda:         1,
		MinSamplesLeaf: 1,
	}
	for _, opt := range opts {
		opt(gb)
	}
	return gb
}

// Fit runs NEstimators boosting rounds.
func (gb *GradientBoostingRegressor) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("GradientBoostingRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != rows {
		return errors.NewDimensionError("GradientBoostingRegressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("GradientBoostingRegressor.Fit", "y must be a column vector")
	}
	if gb.NEstimators <= 0 {
		return errors.NewValidationError("n_estimators", "must be positive", gb.NEstimators)
	}
	if gb.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", gb.LearningRate)
	}
	if gb.Lambda < 0 {
		return errors.NewValidationError("lambda", "must be non-negative", gb.Lambda)
	}

	logger := log.GetLoggerWithName("ensemble.boosting")
	start := time.Now()

	d := tree.NewDataset(X)
	labels := make([]float64, rows)
	base := 0.0
	for i := range labels {
		labels[i] = y.At(i, 0)
		base += labels[i]
	}
	base /= float64(rows)

	pred := make([]float64, rows)
	for i := range pred {
		pred[i] = base
	}
	indices := make([]int, rows)
	for i := range indices {
		indices[i] = i
	}
	grad := make([]float64, rows)
	hess := make([]float64, rows)
	for i := range hess {
		hess[i] = 1
	}

	cfg := tree.BuildConfig{
		MaxDepth:        gb.MaxDepth,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  gb.MinSamplesLeaf,
		Lambda:          gb.Lambda,
		MinGain:         gb.MinGainToSplit,
	}

	trees := make([]tree.Tree, 0, gb.NEstimators)
	for iter := 0; iter < gb.NEstimators; iter++ {
		// squared error: g = ŷ - y, h = 1
		for i := range grad {
			grad[i] = pred[i] - labels[i]
		}

		t := tree.Build(d, grad, hess, indices, cfg, nil)
		trees = append(trees, t)

		parallel.ParallelizeWithThreshold(rows, predictParallelThreshold, func(s, e int) {
			for i := s; i < e; i++ {
				pred[i] += gb.LearningRate * t.PredictRow(d.Row(i))
			}
		})

		if iter%10 == 0 || iter == gb.NEstimators-1 {
			if err := errors.CheckNumericalStability("GradientBoostingRegressor.Fit", pred, iter); err != nil {
				return err
			}
			if logger.Enabled(context.Background(), log.LevelDebug) {
				logger.Debug("Training progress",
					log.IterationKey, iter,
					"loss", squaredLoss(pred, labels),
				)
			}
		}
	}

	gb.BaseScore = base
	gb.Trees = trees
	gb.NFeatures = cols
	gb.SetFitted()

	logger.Debug("Boosting finished",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"rounds", len(trees),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// Predict returns BaseScore plus the shrunk sum of all tree outputs.
func (gb *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !gb.IsFitted() {
		return nil, errors.NewNotFittedError("GradientBoostingRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != gb.NFeatures {
		return nil, errors.NewDimensionError("GradientBoostingRegressor.Predict", gb.NFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	parallel.ParallelizeWithThreshold(rows, predictParallelThreshold, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			sum := 0.0
			for t := range gb.Trees {
				sum += gb.Trees[t].PredictRow(row)
			}
			out.Set(i, 0, gb.BaseScore+gb.LearningRate*sum)
		}
	})
	return out, nil
}

// GetFeatureImportances returns gain-based importances summed over rounds.
func (gb *GradientBoostingRegressor) GetFeatureImportances() []float64 {
	imp := make([]float64, gb.NFeatures)
	for t := range gb.Trees {
		gb.Trees[t].AddImportances(imp)
	}
	tree.Normalize(imp)
	return imp
}

func squaredLoss(pred, labels []float64) float64 {
	sum := 0.0
	for i := range pred {
		diff := pred[i] - labels[i]
		sum += diff * diff
	}
	return sum / float64(len(pred))
}
