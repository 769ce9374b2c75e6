package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/config"
	"github.com/YuminosukeSato/ridecast/core/model"
)

var testZones = [][2]float64{
	{40.7500, -73.9900},
	{40.7000, -73.9500},
	{40.8000, -73.9600},
}

// writeRides writes one uber-format file per month with a demand pattern
// driven by hour, zone and day.
func writeRides(t *testing.T, dir string, days int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("Date/Time,Lat,Lon,Base\n")
	for day := 1; day <= days; day++ {
		for hour := 0; hour < 24; hour++ {
			for z, zone := range testZones {
				count := 1 + (hour*(z+1))%5 + day%2
				for k := 0; k < count; k++ {
					fmt.Fprintf(&b, "4/%d/2014 %d:%02d:00,%.4f,%.4f,B02512\n",
						day, hour, (k*7)%60, zone[0]+0.001*float64(k%3), zone[1])
				}
			}
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uber-raw-data-apr14.csv"), []byte(b.String()), 0o644))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Data.Dir = t.TempDir()
	cfg.Artifacts.ModelDir = filepath.Join(t.TempDir(), "models")
	cfg.Training.RandomForest.NEstimators = 5
	cfg.Training.RandomForest.MaxDepth = 6
	cfg.Training.XGBoost.NEstimators = 10
	cfg.Training.XGBoost.MaxDepth = 4
	return cfg
}

type failingRegressor struct{ model.BaseEstimator }

func (f *failingRegressor) Fit(X, y mat.Matrix) error {
	return fmt.Errorf("solver diverged")
}

func (f *failingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	return nil, fmt.Errorf("not fitted")
}

type panickingRegressor struct{ model.BaseEstimator }

func (p *panickingRegressor) Fit(X, y mat.Matrix) error {
	panic("tree builder lost its root")
}

func (p *panickingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	return nil, nil
}

// nanRegressor fits but predicts NaN, which must exclude it.
type nanRegressor struct{ model.BaseEstimator }

func (n *nanRegressor) Fit(X, y mat.Matrix) error {
	n.SetFitted()
	return nil
}

func (n *nanRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, nanValue())
	}
	return out, nil
}

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}

// hugeRegressor predicts finite values whose squared errors overflow.
type hugeRegressor struct{ model.BaseEstimator }

func (h *hugeRegressor) Fit(X, y mat.Matrix) error {
	h.SetFitted()
	return nil
}

func (h *hugeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, 1e200)
	}
	return out, nil
}
