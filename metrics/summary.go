package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

// MetricSet はひとつのバリアントのホールドアウト評価結果
type MetricSet struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// Summary はバリアント名からMetricSetへの対応。metrics_summary.jsonとして保存される
type Summary map[string]MetricSet

// Evaluate は予測値をホールドアウトのラベルと比較してMetricSetを返す
//
// 予測値または算出した指標にNaN/Infが含まれる場合はNumericalInstabilityErrorを返す。
// 呼び出し側はそのバリアントを失敗として扱う。
func Evaluate(yTrue, yPred *mat.VecDense) (MetricSet, error) {
	if yTrue.Len() == 0 {
		return MetricSet{}, errors.NewValueError("Evaluate", "empty vector")
	}
	if yPred.Len() != yTrue.Len() {
		return MetricSet{}, errors.NewDimensionError("Evaluate", yTrue.Len(), yPred.Len(), 0)
	}
	if err := errors.CheckNumericalStability("evaluate", vecData(yPred), 0); err != nil {
		return MetricSet{}, err
	}

	rmse, err := RMSE(yTrue, yPred)
	if err != nil {
		return MetricSet{}, err
	}
	mae, err := MAE(yTrue, yPred)
	if err != nil {
		return MetricSet{}, err
	}
	r2, err := R2Score(yTrue, yPred)
	if err != nil {
		return MetricSet{}, err
	}
	ms := MetricSet{RMSE: rmse, MAE: mae, R2: r2}
	if !ms.Valid() {
		return MetricSet{}, errors.NewNumericalInstabilityError("evaluate", []float64{rmse, mae, r2}, 0)
	}
	return ms, nil
}

// EvaluateMatrix はPredictの戻り値（n×1行列）を直接評価する
func EvaluateMatrix(yTrue *mat.VecDense, yPred mat.Matrix) (MetricSet, error) {
	pred, err := ColumnVector("EvaluateMatrix", yPred)
	if err != nil {
		return MetricSet{}, err
	}
	return Evaluate(yTrue, pred)
}

// Valid はすべての指標が有限値かどうかを返す
func (m MetricSet) Valid() bool {
	return isFinite(m.RMSE) && isFinite(m.MAE) && isFinite(m.R2)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func vecData(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
