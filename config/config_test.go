package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ridecast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "uber-raw-data-*.csv", cfg.Data.Pattern)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, 0.2, cfg.Training.TestSize)
	assert.Equal(t, []string{"LinearRegression", "RandomForest", "XGBoost"}, cfg.Training.Variants)
	assert.Equal(t, 50, cfg.Training.RandomForest.NEstimators)
	assert.Equal(t, 12, cfg.Training.RandomForest.MaxDepth)
	assert.Equal(t, 100, cfg.Training.XGBoost.NEstimators)
	assert.Equal(t, 8, cfg.Training.XGBoost.MaxDepth)
	assert.Equal(t, 0.1, cfg.Training.XGBoost.LearningRate)
	assert.Equal(t, 3, cfg.Artifacts.KeepGenerations)
	assert.False(t, cfg.Training.ParallelVariants)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data:
  dir: /srv/rides
training:
  seed: 7
  variants: [XGBoost, LinearRegression]
  parallel_variants: true
  random_forest:
    n_estimators: 10
artifacts:
  keep_generations: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/rides", cfg.Data.Dir)
	assert.Equal(t, "uber-raw-data-*.csv", cfg.Data.Pattern, "unset keys keep defaults")
	assert.Equal(t, int64(7), cfg.Training.Seed)
	assert.Equal(t, []string{"XGBoost", "LinearRegression"}, cfg.Training.Variants)
	assert.True(t, cfg.Training.ParallelVariants)
	assert.Equal(t, 10, cfg.Training.RandomForest.NEstimators)
	assert.Equal(t, 12, cfg.Training.RandomForest.MaxDepth)
	assert.Equal(t, 5, cfg.Artifacts.KeepGenerations)
}

func TestLoadEnvBeatsYAML(t *testing.T) {
	path := writeConfig(t, `
data:
  dir: /from/yaml
training:
  seed: 7
`)
	t.Setenv("RIDECAST_DATA_DIR", "/from/env")
	t.Setenv("RIDECAST_SEED", "99")
	t.Setenv("RIDECAST_MODEL_DIR", "/models")
	t.Setenv("RIDECAST_POSTGRES_DSN", "postgres://localhost/ridecast")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Data.Dir)
	assert.Equal(t, int64(99), cfg.Training.Seed)
	assert.Equal(t, "/models", cfg.Artifacts.ModelDir)
	assert.Equal(t, "postgres://localhost/ridecast", cfg.Recorder.PostgresDSN)
}

func TestLoadInvalidSeedEnv(t *testing.T) {
	t.Setenv("RIDECAST_SEED", "forty-two")
	_, err := Load("")
	var verr *errors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "RIDECAST_SEED", verr.ParamName)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "training: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		param  string
	}{
		{"unknown variant", func(c *Config) { c.Training.Variants = []string{"SVR"} }, "training.variants"},
		{"duplicate variant", func(c *Config) { c.Training.Variants = []string{"XGBoost", "XGBoost"} }, "training.variants"},
		{"no variants", func(c *Config) { c.Training.Variants = nil }, "training.variants"},
		{"test size zero", func(c *Config) { c.Training.TestSize = 0 }, "training.test_size"},
		{"test size one", func(c *Config) { c.Training.TestSize = 1 }, "training.test_size"},
		{"empty data dir", func(c *Config) { c.Data.Dir = " " }, "data.dir"},
		{"empty model dir", func(c *Config) { c.Artifacts.ModelDir = "" }, "artifacts.model_dir"},
		{"keep zero", func(c *Config) { c.Artifacts.KeepGenerations = 0 }, "artifacts.keep_generations"},
		{"long delimiter", func(c *Config) { c.Data.Delimiter = ";;" }, "data.delimiter"},
		{"negative lambda", func(c *Config) { c.Training.XGBoost.Lambda = -1 }, "training.xgboost.lambda"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.param, verr.ParamName)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestDelimiterRune(t *testing.T) {
	r, err := DataConfig{Delimiter: ";"}.DelimiterRune()
	require.NoError(t, err)
	assert.Equal(t, ';', r)
}
