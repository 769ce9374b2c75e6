package model_selection

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

func TestTrainTestSplitSizes(t *testing.T) {
	tests := []struct {
		n         int
		wantTest  int
		wantTrain int
	}{
		{n: 2, wantTest: 1, wantTrain: 1},
		{n: 10, wantTest: 2, wantTrain: 8},
		{n: 11, wantTest: 3, wantTrain: 8},
		{n: 1000, wantTest: 200, wantTrain: 800},
	}
	for _, tt := range tests {
		train, test, err := TrainTestSplit(tt.n, 0.2, 42)
		require.NoError(t, err)
		assert.Len(t, test, tt.wantTest, "n=%d", tt.n)
		assert.Len(t, train, tt.wantTrain, "n=%d", tt.n)

		all := append(append([]int{}, train...), test...)
		sort.Ints(all)
		for i, v := range all {
			require.Equal(t, i, v, "split must be a partition of [0, n)")
		}
	}
}

func TestTrainTestSplitIsReproducible(t *testing.T) {
	trainA, testA, err := TrainTestSplit(500, 0.2, 42)
	require.NoError(t, err)
	trainB, testB, err := TrainTestSplit(500, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, trainA, trainB)
	assert.Equal(t, testA, testB)

	_, testC, err := TrainTestSplit(500, 0.2, 7)
	require.NoError(t, err)
	assert.NotEqual(t, testA, testC)
}

func TestTrainTestSplitInsufficientData(t *testing.T) {
	for _, n := range []int{0, 1} {
		_, _, err := TrainTestSplit(n, 0.2, 42)
		var insufficient *errors.InsufficientDataError
		require.True(t, errors.As(err, &insufficient), "n=%d: got %v", n, err)
		assert.Equal(t, n, insufficient.Rows)
	}
}

func TestTrainTestSplitRejectsBadTestSize(t *testing.T) {
	for _, size := range []float64{0, 1, -0.1, 1.5} {
		_, _, err := TrainTestSplit(10, size, 42)
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve), "test_size=%v", size)
	}
}

func TestSelectRows(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	y := mat.NewVecDense(3, []float64{10, 20, 30})

	subX, subY := SelectRows(X, y, []int{2, 0})
	assert.Equal(t, []float64{5, 6, 1, 2}, subX.RawMatrix().Data)
	assert.Equal(t, []float64{30, 10}, subY.RawVector().Data)
}
