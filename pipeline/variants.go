package pipeline

import (
	"github.com/YuminosukeSato/ridecast/config"
	"github.com/YuminosukeSato/ridecast/core/model"
	"github.com/YuminosukeSato/ridecast/linear"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
	"github.com/YuminosukeSato/ridecast/sklearn/ensemble"
)

// VariantName identifies a model variant in logs, metrics and artifacts.
type VariantName string

const (
	LinearRegression VariantName = config.VariantLinearRegression
	RandomForest     VariantName = config.VariantRandomForest
	XGBoost          VariantName = config.VariantXGBoost
)

// Variant pairs a name with a constructor for an unfitted model.
type Variant struct {
	Name VariantName
	New  func() model.Regressor
}

// VariantsFromConfig returns the configured variants in configured order.
func VariantsFromConfig(cfg config.TrainingConfig) ([]Variant, error) {
	variants := make([]Variant, 0, len(cfg.Variants))
	for _, name := range cfg.Variants {
		v, err := newVariant(VariantName(name), cfg)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, nil
}

func newVariant(name VariantName, cfg config.TrainingConfig) (Variant, error) {
	switch name {
	case LinearRegression:
		return Variant{Name: name, New: func() model.Regressor {
			return linear.NewLinearRegression()
		}}, nil
	case RandomForest:
		rf := cfg.RandomForest
		return Variant{Name: name, New: func() model.Regressor {
			return ensemble.NewRandomForestRegressor(
				ensemble.WithForestEstimators(rf.NEstimators),
				ensemble.WithForestMaxDepth(rf.MaxDepth),
				ensemble.WithForestRandomState(cfg.Seed),
				ensemble.WithForestJobs(cfg.Workers),
			)
		}}, nil
	case XGBoost:
		xgb := cfg.XGBoost
		return Variant{Name: name, New: func() model.Regressor {
			return ensemble.NewGradientBoostingRegressor(
				ensemble.WithBoostingRounds(xgb.NEstimators),
				ensemble.WithBoostingMaxDepth(xgb.MaxDepth),
				ensemble.WithLearningRate(xgb.LearningRate),
				ensemble.WithLambda(xgb.Lambda),
			)
		}}, nil
	default:
		return Variant{}, errors.NewValidationError("training.variants", "unknown variant", string(name))
	}
}
