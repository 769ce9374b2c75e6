// Package config loads the training and serving configuration: built-in
// defaults, then an optional YAML file, then RIDECAST_* environment
// variables.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

// Variant names accepted in training.variants.
const (
	VariantLinearRegression = "LinearRegression"
	VariantRandomForest     = "RandomForest"
	VariantXGBoost          = "XGBoost"
)

// KnownVariants lists every supported variant in default order.
var KnownVariants = []string{VariantLinearRegression, VariantRandomForest, VariantXGBoost}

type Config struct {
	Data      DataConfig      `yaml:"data"`
	Training  TrainingConfig  `yaml:"training"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Log       LogConfig       `yaml:"log"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type DataConfig struct {
	Dir       string `yaml:"dir"`
	Pattern   string `yaml:"pattern"`
	Delimiter string `yaml:"delimiter"`
}

type TrainingConfig struct {
	Seed             int64          `yaml:"seed"`
	TestSize         float64        `yaml:"test_size"`
	Variants         []string       `yaml:"variants"`
	ParallelVariants bool           `yaml:"parallel_variants"`
	Workers          int            `yaml:"workers"`
	RandomForest     ForestConfig   `yaml:"random_forest"`
	XGBoost          BoostingConfig `yaml:"xgboost"`
}

type ForestConfig struct {
	NEstimators int `yaml:"n_estimators"`
	MaxDepth    int `yaml:"max_depth"`
}

type BoostingConfig struct {
	NEstimators  int     `yaml:"n_estimators"`
	MaxDepth     int     `yaml:"max_depth"`
	LearningRate float64 `yaml:"learning_rate"`
	Lambda       float64 `yaml:"lambda"`
}

type ArtifactsConfig struct {
	ModelDir        string `yaml:"model_dir"`
	KeepGenerations int    `yaml:"keep_generations"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RecorderConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

type NotifyConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Data: DataConfig{
			Dir:       "data",
			Pattern:   "uber-raw-data-*.csv",
			Delimiter: ",",
		},
		Training: TrainingConfig{
			Seed:     42,
			TestSize: 0.2,
			Variants: append([]string(nil), KnownVariants...),
			RandomForest: ForestConfig{
				NEstimators: 50,
				MaxDepth:    12,
			},
			XGBoost: BoostingConfig{
				NEstimators:  100,
				MaxDepth:     8,
				LearningRate: 0.1,
				Lambda:       1,
			},
		},
		Artifacts: ArtifactsConfig{
			ModelDir:        "models",
			KeepGenerations: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Notify: NotifyConfig{
			Exchange: "ridecast_topic",
		},
	}
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, errors.Wrapf(err, "parse config file %s", path)
			}
		case !os.IsNotExist(err):
			return Config{}, errors.Wrapf(err, "read config file %s", path)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Data.Dir = envOrDefault("RIDECAST_DATA_DIR", cfg.Data.Dir)
	cfg.Data.Pattern = envOrDefault("RIDECAST_DATA_PATTERN", cfg.Data.Pattern)
	cfg.Artifacts.ModelDir = envOrDefault("RIDECAST_MODEL_DIR", cfg.Artifacts.ModelDir)
	cfg.Log.Level = envOrDefault("RIDECAST_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOrDefault("RIDECAST_LOG_FORMAT", cfg.Log.Format)
	cfg.Recorder.PostgresDSN = envOrDefault("RIDECAST_POSTGRES_DSN", cfg.Recorder.PostgresDSN)
	cfg.Notify.AMQPURL = envOrDefault("RIDECAST_AMQP_URL", cfg.Notify.AMQPURL)

	if raw := os.Getenv("RIDECAST_SEED"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errors.NewValidationError("RIDECAST_SEED", "must be an integer", raw)
		}
		cfg.Training.Seed = seed
	}
	return nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Data.Dir) == "" {
		return errors.NewValidationError("data.dir", "is required", c.Data.Dir)
	}
	if strings.TrimSpace(c.Data.Pattern) == "" {
		return errors.NewValidationError("data.pattern", "is required", c.Data.Pattern)
	}
	if _, err := c.Data.DelimiterRune(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Artifacts.ModelDir) == "" {
		return errors.NewValidationError("artifacts.model_dir", "is required", c.Artifacts.ModelDir)
	}
	if c.Artifacts.KeepGenerations < 1 {
		return errors.NewValidationError("artifacts.keep_generations", "must be at least 1", c.Artifacts.KeepGenerations)
	}
	if !(c.Training.TestSize > 0 && c.Training.TestSize < 1) {
		return errors.NewValidationError("training.test_size", "must be in (0, 1)", c.Training.TestSize)
	}
	if len(c.Training.Variants) == 0 {
		return errors.NewValidationError("training.variants", "at least one variant is required", c.Training.Variants)
	}
	seen := make(map[string]bool, len(c.Training.Variants))
	for _, v := range c.Training.Variants {
		if !isKnownVariant(v) {
			return errors.NewValidationError("training.variants", "unknown variant", v)
		}
		if seen[v] {
			return errors.NewValidationError("training.variants", "duplicate variant", v)
		}
		seen[v] = true
	}
	if c.Training.RandomForest.NEstimators < 1 {
		return errors.NewValidationError("training.random_forest.n_estimators", "must be at least 1", c.Training.RandomForest.NEstimators)
	}
	if c.Training.XGBoost.NEstimators < 1 {
		return errors.NewValidationError("training.xgboost.n_estimators", "must be at least 1", c.Training.XGBoost.NEstimators)
	}
	if !(c.Training.XGBoost.LearningRate > 0) {
		return errors.NewValidationError("training.xgboost.learning_rate", "must be positive", c.Training.XGBoost.LearningRate)
	}
	if c.Training.XGBoost.Lambda < 0 {
		return errors.NewValidationError("training.xgboost.lambda", "must be non-negative", c.Training.XGBoost.Lambda)
	}
	return nil
}

// DelimiterRune returns the single-character field delimiter.
func (d DataConfig) DelimiterRune() (rune, error) {
	r := []rune(d.Delimiter)
	if len(r) != 1 {
		return 0, errors.NewValidationError("data.delimiter", "must be a single character", d.Delimiter)
	}
	return r[0], nil
}

func isKnownVariant(name string) bool {
	for _, v := range KnownVariants {
		if v == name {
			return true
		}
	}
	return false
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}
