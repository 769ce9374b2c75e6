// Package model_selection provides the seeded hold-out split used by training.
package model_selection

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

// minSplitRows is the smallest table that yields non-empty train and test sides.
const minSplitRows = 2

// TrainTestSplit shuffles [0, n) with a seeded source and returns the
// training and held-out row indices. The held-out side has ceil(testSize*n)
// rows. The same (n, testSize, seed) always yields the same partition.
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	if n < minSplitRows {
		return nil, nil, errors.NewInsufficientDataError(n, minSplitRows)
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, nil, errors.NewInsufficientDataError(n, minSplitRows)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = perm[:nTest]
	train = perm[nTest:]
	return train, test, nil
}

// SelectRows copies the given rows of X and y into new matrices.
func SelectRows(X *mat.Dense, y *mat.VecDense, rows []int) (*mat.Dense, *mat.VecDense) {
	_, c := X.Dims()
	outX := mat.NewDense(len(rows), c, nil)
	outY := mat.NewVecDense(len(rows), nil)
	for i, r := range rows {
		outX.SetRow(i, X.RawRowView(r))
		outY.SetVec(i, y.AtVec(r))
	}
	return outX, outY
}
