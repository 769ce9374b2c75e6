package linear

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/core/model"
	"github.com/YuminosukeSato/ridecast/core/parallel"
	"github.com/YuminosukeSato/ridecast/metrics"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

func init() {
	model.Register("linear.LinearRegression", &LinearRegression{})
}

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 1000

// LinearRegression は最小二乗法による線形回帰モデル
//
// 切片ありの場合はXとyを中心化してからSVDで最小ノルム解を求める。
// 特徴量が定数列や線形従属でも（ランク落ちしても）学習できる。
type LinearRegression struct {
	model.BaseEstimator
	FitIntercept bool          // 切片を推定するか
	Rcond        float64       // 特異値の相対カットオフ。0なら eps*max(n, p)
	Weights      *mat.VecDense // 重み（係数）
	Intercept    float64       // 切片
	NFeatures    int           // 特徴量の数
	Rank         int           // 中心化した計画行列のランク
	Singular     []float64     // 中心化した計画行列の特異値
}

var _ model.Regressor = (*LinearRegression)(nil)

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{FitIntercept: true}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習させる
func (lr *LinearRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LinearRegression.Fit")

	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}

	// 列平均とyの平均
	xMean := make([]float64, c)
	var yMean float64
	if lr.FitIntercept {
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				xMean[j] += X.At(i, j)
			}
			yMean += y.At(i, 0)
		}
		for j := range xMean {
			xMean[j] /= float64(r)
		}
		yMean /= float64(r)
	}

	// 中心化した計画行列とラベル
	Xc := mat.NewDense(r, c, nil)
	yc := mat.NewDense(r, 1, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				Xc.Set(i, j, X.At(i, j)-xMean[j])
			}
			yc.Set(i, 0, y.At(i, 0)-yMean)
		}
	})

	var svd mat.SVD
	if ok := svd.Factorize(Xc, mat.SVDThin); !ok {
		return errors.NewModelError("LinearRegression.Fit", "SVD factorization failed", errors.ErrSingularMatrix)
	}

	rcond := lr.Rcond
	if rcond <= 0 {
		rcond = 2.220446049250313e-16 * float64(max(r, c))
	}
	lr.Singular = svd.Values(nil)
	lr.Rank = svd.Rank(rcond)

	var coef mat.Dense
	if lr.Rank == 0 {
		// 全ての列が定数。切片のみのモデルになる
		coef.ReuseAs(c, 1)
	} else {
		svd.SolveTo(&coef, yc, lr.Rank)
	}

	weights := mat.NewVecDense(c, nil)
	intercept := yMean
	for j := 0; j < c; j++ {
		w := coef.At(j, 0)
		weights.SetVec(j, w)
		intercept -= w * xMean[j]
	}
	if err := errors.CheckNumericalStability("LinearRegression.Fit", append(weights.RawVector().Data[:c:c], intercept), 0); err != nil {
		return err
	}

	lr.Weights = weights
	lr.Intercept = intercept
	lr.NFeatures = c
	lr.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError("LinearRegression", "Predict")
	}

	r, c := X.Dims()
	if c != lr.NFeatures {
		return nil, errors.NewDimensionError("LinearRegression.Predict", lr.NFeatures, c, 1)
	}

	// 予測: y = X * weights + intercept
	predictions := mat.NewDense(r, 1, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			pred := lr.Intercept
			for j := 0; j < c; j++ {
				pred += X.At(i, j) * lr.Weights.AtVec(j)
			}
			predictions.Set(i, 0, pred)
		}
	})

	return predictions, nil
}

// GetWeights は学習された重み（係数）を返す
func (lr *LinearRegression) GetWeights() []float64 {
	if lr.Weights == nil {
		return nil
	}
	weights := make([]float64, lr.Weights.Len())
	for i := range weights {
		weights[i] = lr.Weights.AtVec(i)
	}
	return weights
}

// GetIntercept は学習された切片を返す
func (lr *LinearRegression) GetIntercept() float64 {
	if !lr.IsFitted() {
		return 0
	}
	return lr.Intercept
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	yTrueVec, err := metrics.ColumnVector("LinearRegression.Score", y)
	if err != nil {
		return 0, err
	}
	yPredVec, err := metrics.ColumnVector("LinearRegression.Score", yPred)
	if err != nil {
		return 0, err
	}
	score, err := metrics.R2Score(yTrueVec, yPredVec)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(score) {
		return 0, errors.NewNumericalInstabilityError("LinearRegression.Score", []float64{score}, 0)
	}
	return score, nil
}
