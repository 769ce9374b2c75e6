// Package tree implements CART regression trees.
package tree

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/core/model"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

func init() {
	model.Register("tree.DecisionTreeRegressor", &DecisionTreeRegressor{})
}

// DecisionTreeRegressor is a CART regression tree using variance reduction.
type DecisionTreeRegressor struct {
	model.BaseEstimator

	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     int64

	Tree      Tree
	NFeatures int
}

var _ model.Regressor = (*DecisionTreeRegressor)(nil)
var _ model.FeatureImporter = (*DecisionTreeRegressor)(nil)

// NewDecisionTreeRegressor creates a tree with unlimited depth, splitting
// nodes of at least two samples.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// Fit trains the tree on X (n×p) and y (n×1).
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != rows {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("DecisionTreeRegressor.Fit", "y must be a column vector")
	}

	labels := make([]float64, rows)
	indices := make([]int, rows)
	for i := range labels {
		labels[i] = y.At(i, 0)
		indices[i] = i
	}
	return dt.FitIndices(NewDataset(X), labels, indices)
}

// FitIndices trains the tree on the rows of d selected by indices.
// Duplicated indices act as sample weights, as in a bootstrap sample.
func (dt *DecisionTreeRegressor) FitIndices(d *Dataset, y []float64, indices []int) error {
	if len(indices) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != d.Rows {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", d.Rows, len(y), 0)
	}
	if dt.MaxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be non-negative", dt.MaxDepth)
	}

	grad := make([]float64, len(y))
	hess := make([]float64, len(y))
	for i, v := range y {
		grad[i] = -v
		hess[i] = 1
	}

	cfg := BuildConfig{
		MaxDepth:        dt.MaxDepth,
		MinSamplesSplit: dt.MinSamplesSplit,
		MinSamplesLeaf:  dt.MinSamplesLeaf,
		MaxFeatures:     dt.MaxFeatures,
	}
	rng := rand.New(rand.NewSource(dt.RandomState))

	dt.Tree = Build(d, grad, hess, indices, cfg, rng)
	dt.NFeatures = d.Cols
	dt.SetFitted()
	return nil
}

// Predict returns an n×1 matrix of predictions.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !dt.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != dt.NFeatures {
		return nil, errors.NewDimensionError("DecisionTreeRegressor.Predict", dt.NFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, dt.Tree.PredictRow(row))
	}
	return out, nil
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeRegressor) GetDepth() int {
	return dt.Tree.Depth
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeRegressor) GetNLeaves() int {
	return dt.Tree.NLeaves()
}

// GetFeatureImportances returns gain-based importances normalised to sum to 1.
func (dt *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	imp := make([]float64, dt.NFeatures)
	dt.Tree.AddImportances(imp)
	Normalize(imp)
	return imp
}

// GetParams returns the hyperparameters of the tree.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":         dt.MaxDepth,
		"min_samples_split": dt.MinSamplesSplit,
		"min_samples_leaf":  dt.MinSamplesLeaf,
		"max_features":      dt.MaxFeatures,
		"random_state":      dt.RandomState,
	}
}

// Normalize scales v in place so that it sums to 1. Zero vectors are left as is.
func Normalize(v []float64) {
	total := 0.0
	for _, x := range v {
		total += x
	}
	if total <= 0 {
		return
	}
	for i := range v {
		v[i] /= total
	}
}
