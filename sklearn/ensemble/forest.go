package ensemble

import (
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/core/model"
	"github.com/YuminosukeSato/ridecast/core/parallel"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
	"github.com/YuminosukeSato/ridecast/pkg/log"
	"github.com/YuminosukeSato/ridecast/sklearn/tree"
)

func init() {
	model.Register("ensemble.RandomForestRegressor", &RandomForestRegressor{})
}

// 並列処理の閾値（予測時、この値以下の行数では逐次処理）
const predictParallelThreshold = 1000

// RandomForestRegressor averages CART trees grown on bootstrap samples.
type RandomForestRegressor struct {
	model.BaseEstimator

	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // features per split, 0 = all
	Bootstrap       bool
	RandomState     int64
	NJobs           int // worker goroutines, <= 0 = runtime.NumCPU()

	Trees     []tree.Tree
	NFeatures int
}

var _ model.Regressor = (*RandomForestRegressor)(nil)
var _ model.FeatureImporter = (*RandomForestRegressor)(nil)

// ForestOption configures a RandomForestRegressor.
type ForestOption func(*RandomForestRegressor)

// WithForestEstimators sets the number of trees.
func WithForestEstimators(n int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.NEstimators = n }
}

// WithForestMaxDepth sets the maximum depth of every tree.
func WithForestMaxDepth(depth int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.MaxDepth = depth }
}

// WithForestMaxFeatures sets how many features each split considers.
func WithForestMaxFeatures(n int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.MaxFeatures = n }
}

// WithForestMinSamplesLeaf sets the minimum number of samples at a leaf.
func WithForestMinSamplesLeaf(n int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.MinSamplesLeaf = n }
}

// WithForestBootstrap toggles bootstrap sampling.
func WithForestBootstrap(b bool) ForestOption {
	return func(rf *RandomForestRegressor) { rf.Bootstrap = b }
}

// WithForestRandomState sets the master seed.
func WithForestRandomState(seed int64) ForestOption {
	return func(rf *RandomForestRegressor) { rf.RandomState = seed }
}

// WithForestJobs sets the number of goroutines used to grow trees.
func WithForestJobs(n int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.NJobs = n }
}

// NewRandomForestRegressor creates a forest of 50 bootstrap trees of depth 12 seeded with 42.
func NewRandomForestRegressor(opts ...ForestOption) *RandomForestRegressor {
	rf := &RandomForestRegressor{
		NEstimators:     50,
		MaxDepth:        12,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		RandomState:     42,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Fit grows NEstimators trees in parallel.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("RandomForestRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != rows {
		return errors.NewDimensionError("RandomForestRegressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("RandomForestRegressor.Fit", "y must be a column vector")
	}
	if rf.NEstimators <= 0 {
		return errors.NewValidationError("n_estimators", "must be positive", rf.NEstimators)
	}

	logger := log.GetLoggerWithName("ensemble.forest")
	start := time.Now()

	d := tree.NewDataset(X)
	labels := make([]float64, rows)
	for i := range labels {
		labels[i] = y.At(i, 0)
	}

	// Seeds are drawn up front so each tree is independent of scheduling.
	master := rand.New(rand.NewSource(rf.RandomState))
	seeds := make([]int64, rf.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]tree.Tree, rf.NEstimators)
	errs := make([]error, rf.NEstimators)
	parallel.ForEach(rf.NEstimators, rf.NJobs, func(i int) {
		errs[i] = errors.SafeExecute("RandomForestRegressor.growTree", func() error {
			t, err := rf.growTree(d, labels, seeds[i])
			trees[i] = t
			return err
		})
	})
	for i, err := range errs {
		if err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
	}

	rf.Trees = trees
	rf.NFeatures = cols
	rf.SetFitted()

	logger.Debug("Forest grown",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"trees", rf.NEstimators,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (rf *RandomForestRegressor) growTree(d *tree.Dataset, labels []float64, seed int64) (tree.Tree, error) {
	rng := rand.New(rand.NewSource(seed))
	indices := make([]int, d.Rows)
	if rf.Bootstrap {
		for i := range indices {
			indices[i] = rng.Intn(d.Rows)
		}
	} else {
		for i := range indices {
			indices[i] = i
		}
	}

	dt := tree.NewDecisionTreeRegressor(
		tree.WithMaxDepth(rf.MaxDepth),
		tree.WithMinSamplesSplit(rf.MinSamplesSplit),
		tree.WithMinSamplesLeaf(rf.MinSamplesLeaf),
		tree.WithMaxFeatures(rf.MaxFeatures),
		tree.WithRandomState(rng.Int63()),
	)
	if err := dt.FitIndices(d, labels, indices); err != nil {
		return tree.Tree{}, err
	}
	return dt.Tree, nil
}

// Predict averages the predictions of all trees.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != rf.NFeatures {
		return nil, errors.NewDimensionError("RandomForestRegressor.Predict", rf.NFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	n := float64(len(rf.Trees))
	parallel.ParallelizeWithThreshold(rows, predictParallelThreshold, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			sum := 0.0
			for t := range rf.Trees {
				sum += rf.Trees[t].PredictRow(row)
			}
			out.Set(i, 0, sum/n)
		}
	})
	return out, nil
}

// GetFeatureImportances returns gain-based importances averaged over trees.
func (rf *RandomForestRegressor) GetFeatureImportances() []float64 {
	imp := make([]float64, rf.NFeatures)
	for t := range rf.Trees {
		rf.Trees[t].AddImportances(imp)
	}
	tree.Normalize(imp)
	return imp
}
