package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

// hourly ride counts for one zone and the forecasts scored against them
var (
	observedRides = []float64{12, 30, 7, 45, 18, 0}
	forecastRides = []float64{14, 27, 7, 40, 21, 1}
)

func vec(v []float64) *mat.VecDense {
	return mat.NewVecDense(len(v), append([]float64(nil), v...))
}

func TestRegressionMetrics_RideCounts(t *testing.T) {
	// residuals: -2, 3, 0, 5, -3, -1
	const (
		wantMSE = 48.0 / 6
		wantMAE = 14.0 / 6
	)
	yTrue, yPred := vec(observedRides), vec(forecastRides)

	mse, err := MSE(yTrue, yPred)
	if err != nil {
		t.Fatalf("MSE() error = %v", err)
	}
	if math.Abs(mse-wantMSE) > 1e-12 {
		t.Errorf("MSE() = %v, want %v", mse, wantMSE)
	}

	rmse, err := RMSE(yTrue, yPred)
	if err != nil {
		t.Fatalf("RMSE() error = %v", err)
	}
	if math.Abs(rmse-math.Sqrt(wantMSE)) > 1e-12 {
		t.Errorf("RMSE() = %v, want %v", rmse, math.Sqrt(wantMSE))
	}

	mae, err := MAE(yTrue, yPred)
	if err != nil {
		t.Fatalf("MAE() error = %v", err)
	}
	if math.Abs(mae-wantMAE) > 1e-12 {
		t.Errorf("MAE() = %v, want %v", mae, wantMAE)
	}

	// mean 112/6, TSS = 1379.333..., RSS = 48
	var mean, tss float64
	for _, v := range observedRides {
		mean += v
	}
	mean /= float64(len(observedRides))
	for _, v := range observedRides {
		tss += (v - mean) * (v - mean)
	}
	r2, err := R2Score(yTrue, yPred)
	if err != nil {
		t.Fatalf("R2Score() error = %v", err)
	}
	if want := 1 - 48/tss; math.Abs(r2-want) > 1e-12 {
		t.Errorf("R2Score() = %v, want %v", r2, want)
	}
}

func TestRegressionMetrics_PerfectForecast(t *testing.T) {
	yTrue, yPred := vec(observedRides), vec(observedRides)

	ms, err := Evaluate(yTrue, yPred)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ms.RMSE != 0 || ms.MAE != 0 || ms.R2 != 1 {
		t.Errorf("Evaluate() = %+v, want RMSE=0 MAE=0 R2=1", ms)
	}
}

func TestR2Score_MeanForecastIsZero(t *testing.T) {
	mean := 112.0 / 6
	pred := make([]float64, len(observedRides))
	for i := range pred {
		pred[i] = mean
	}
	r2, err := R2Score(vec(observedRides), vec(pred))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(r2) > 1e-12 {
		t.Errorf("R2Score() = %v, want 0", r2)
	}
}

func TestR2Score_WorseThanMeanIsNegative(t *testing.T) {
	reversed := make([]float64, len(observedRides))
	for i, v := range observedRides {
		reversed[len(reversed)-1-i] = v
	}
	r2, err := R2Score(vec(observedRides), vec(reversed))
	if err != nil {
		t.Fatal(err)
	}
	if r2 >= 0 {
		t.Errorf("R2Score() = %v, want negative", r2)
	}
}

func TestR2Score_ConstantDemand(t *testing.T) {
	tests := []struct {
		name string
		pred []float64
		want float64
	}{
		{name: "exact", pred: []float64{8, 8, 8, 8}, want: 1},
		{name: "off", pred: []float64{8, 9, 8, 7}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var warnings []error
			errors.SetZerologWarnFunc(func(w error) { warnings = append(warnings, w) })
			defer errors.SetZerologWarnFunc(nil)

			got, err := R2Score(vec([]float64{8, 8, 8, 8}), vec(tt.pred))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("R2Score() = %v, want %v", got, tt.want)
			}
			if len(warnings) != 1 {
				t.Fatalf("warnings = %d, want 1", len(warnings))
			}
			var w *errors.UndefinedMetricWarning
			if !errors.As(warnings[0], &w) || w.Metric != "r2" || w.Result != tt.want {
				t.Errorf("unexpected warning %v", warnings[0])
			}
		})
	}
}

func TestRegressionMetrics_InvalidInput(t *testing.T) {
	metricFuncs := map[string]func(yTrue, yPred *mat.VecDense) (float64, error){
		"MSE":     MSE,
		"RMSE":    RMSE,
		"MAE":     MAE,
		"R2Score": R2Score,
	}
	for name, fn := range metricFuncs {
		t.Run(name+"/empty", func(t *testing.T) {
			_, err := fn(&mat.VecDense{}, &mat.VecDense{})
			var verr *errors.ValueError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValueError, got %v", err)
			}
		})
		t.Run(name+"/length mismatch", func(t *testing.T) {
			_, err := fn(vec(observedRides), vec(forecastRides[:4]))
			var derr *errors.DimensionError
			if !errors.As(err, &derr) {
				t.Errorf("expected DimensionError, got %v", err)
			}
		})
	}
}

func TestColumnVector(t *testing.T) {
	v, err := ColumnVector("predict", mat.NewDense(3, 1, []float64{4, 5, 6}))
	if err != nil {
		t.Fatal(err)
	}
	if v.Len() != 3 || v.AtVec(2) != 6 {
		t.Errorf("ColumnVector() = %v", mat.Formatted(v))
	}

	if _, err := ColumnVector("predict", mat.NewDense(3, 2, nil)); err == nil {
		t.Error("expected error for a two-column matrix")
	}
}
