package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/core/model"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
	"github.com/YuminosukeSato/ridecast/pkg/log"
)

func smallSplit() *Split {
	X := mat.NewDense(6, 5, []float64{
		0, 1, 4, 0, 0,
		1, 1, 4, 0, 0,
		2, 2, 4, 1, 0,
		3, 2, 4, 1, 1,
		4, 3, 4, 0, 1,
		5, 3, 4, 1, 1,
	})
	y := mat.NewVecDense(6, []float64{3, 5, 7, 9, 11, 13})
	return &Split{XTrain: X, YTrain: y, XTest: X, YTest: y}
}

func TestTrainer_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, parallel := range []bool{false, true} {
		tr := &Trainer{
			Variants: []Variant{
				{Name: "A", New: func() model.Regressor { return &hugeRegressor{} }},
				{Name: "B", New: func() model.Regressor { return &hugeRegressor{} }},
			},
			Parallel: parallel,
			Logger:   log.NewTestLogger(log.LevelDebug),
		}
		results := tr.Train(ctx, smallSplit())
		require.Len(t, results, 2)
		for _, r := range results {
			assert.False(t, r.OK(), "parallel=%v", parallel)
			var fitErr *errors.ModelFitError
			require.True(t, errors.As(r.Err, &fitErr))
			assert.Equal(t, string(r.Name), fitErr.Variant)
			assert.ErrorIs(t, r.Err, context.Canceled)
			assert.Nil(t, r.Model)
		}
	}
}

func TestNamedImportances(t *testing.T) {
	got := NamedImportances([]float64{0.5, 0.1, 0.1, 0.2, 0.1, 0.9})
	assert.Equal(t, map[string]float64{
		"hour": 0.5, "day_of_week": 0.1, "month": 0.1, "lat_bin": 0.2, "lon_bin": 0.1,
	}, got)

	short := NamedImportances([]float64{1})
	assert.Equal(t, map[string]float64{"hour": 1}, short)
}
