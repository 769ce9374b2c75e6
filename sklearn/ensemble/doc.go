// Package ensemble provides tree ensembles for regression: a bagged random
// forest and second-order gradient boosting with L2-regularised leaves.
//
// Both models are deterministic for a fixed seed. The forest draws one seed
// per tree from its master seed before any tree is built, so the result does
// not depend on goroutine scheduling.
package ensemble
