package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/ridecast/core/model"
	"github.com/YuminosukeSato/ridecast/notify"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
	"github.com/YuminosukeSato/ridecast/pkg/log"
	"github.com/YuminosukeSato/ridecast/runrecord"
)

type fakeRecorder struct {
	reports []runrecord.RunReport
	err     error
}

func (f *fakeRecorder) RecordRun(_ context.Context, r runrecord.RunReport) error {
	f.reports = append(f.reports, r)
	return f.err
}

type fakePublisher struct {
	events []notify.GenerationEvent
	err    error
}

func (f *fakePublisher) PublishGeneration(_ context.Context, e notify.GenerationEvent) error {
	f.events = append(f.events, e)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

func runIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestRun_EmptyDirWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	p, err := New(cfg, WithLogger(log.NewTestLogger(log.LevelDebug)))
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	var nf *errors.DataNotFoundError
	require.True(t, errors.As(err, &nf), "got %v", err)
	assert.Equal(t, cfg.Data.Dir, nf.Dir)

	_, statErr := os.Stat(cfg.Artifacts.ModelDir)
	assert.True(t, os.IsNotExist(statErr), "no artifacts are written")
}

func TestRun_InsufficientData(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Data.Dir+"/uber-raw-data-may14.csv",
		[]byte("Date/Time,Lat,Lon,Base\n5/1/2014 0:11:00,40.769,-73.9549,B02512\n"), 0o644))

	p, err := New(cfg, WithLogger(log.NewTestLogger(log.LevelDebug)))
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	var ins *errors.InsufficientDataError
	require.True(t, errors.As(err, &ins), "got %v", err)
	assert.Equal(t, 1, ins.Rows)
}

func TestRun_PublishesBestModel(t *testing.T) {
	cfg := testConfig(t)
	writeRides(t, cfg.Data.Dir, 4)

	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	logger := log.NewTestLogger(log.LevelDebug)
	p, err := New(cfg,
		WithLogger(logger),
		WithRecorder(rec),
		WithPublisher(pub),
		WithRunIDFunc(runIDs("run-a")),
	)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-a", res.RunID)
	assert.Len(t, res.Summary, 3)
	assert.Empty(t, res.Failures())
	assert.Equal(t, res.Groups, res.TrainRows+res.TestRows)
	assert.Greater(t, res.RawEvents, res.Groups)

	want, err := SelectFromSummary([]string{"LinearRegression", "RandomForest", "XGBoost"}, res.Summary)
	require.NoError(t, err)
	assert.Equal(t, want.Name, res.Best.Name)

	current, err := p.Store().Current()
	require.NoError(t, err)
	assert.Equal(t, "run-a", current)

	loaded, err := p.Store().LoadCurrent()
	require.NoError(t, err)
	assert.Equal(t, res.Best.Name, loaded.Best.Variant)
	assert.Equal(t, res.Summary, loaded.Summary)
	assert.Equal(t, []string{"LinearRegression", "RandomForest", "XGBoost"}, loaded.Manifest.Variants)

	require.Len(t, rec.reports, 1)
	assert.Equal(t, res.Best.Name, rec.reports[0].BestVariant)
	assert.Equal(t, res.Groups, rec.reports[0].Groups)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "run-a", pub.events[0].Generation)

	assert.True(t, logger.ContainsMessage("Raw events loaded"))
	assert.True(t, logger.ContainsMessage("Demand rows aggregated"))
	assert.True(t, logger.ContainsMessage("Best model selected"))
	assert.True(t, logger.ContainsField(log.ModelNameKey, res.Best.Name))
}

func TestRun_FailingVariantsExcluded(t *testing.T) {
	cfg := testConfig(t)
	writeRides(t, cfg.Data.Dir, 3)

	good, err := VariantsFromConfig(cfg.Training)
	require.NoError(t, err)
	variants := []Variant{
		{Name: "Diverging", New: func() model.Regressor { return &failingRegressor{} }},
		good[0],
		{Name: "Crashing", New: func() model.Regressor { return &panickingRegressor{} }},
		{Name: "NaN", New: func() model.Regressor { return &nanRegressor{} }},
		good[2],
	}

	p, err := New(cfg, WithVariants(variants), WithLogger(log.NewTestLogger(log.LevelDebug)))
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Summary, 2)
	assert.Contains(t, res.Summary, "LinearRegression")
	assert.Contains(t, res.Summary, "XGBoost")

	failures := res.Failures()
	require.Len(t, failures, 3)
	names := make([]string, 0, len(failures))
	for _, f := range failures {
		var fitErr *errors.ModelFitError
		require.True(t, errors.As(f, &fitErr))
		names = append(names, fitErr.Variant)
	}
	assert.Equal(t, []string{"Diverging", "Crashing", "NaN"}, names)

	var panicErr *errors.PanicError
	assert.True(t, errors.As(failures[1], &panicErr))
	var numErr *errors.NumericalInstabilityError
	assert.True(t, errors.As(failures[2], &numErr))

	loaded, err := p.Store().LoadCurrent()
	require.NoError(t, err)
	assert.Equal(t, []string{"LinearRegression", "XGBoost"}, loaded.Manifest.Variants)
}

func TestRun_OverflowingMetricsExcludeOnlyThatVariant(t *testing.T) {
	cfg := testConfig(t)
	writeRides(t, cfg.Data.Dir, 2)

	good, err := VariantsFromConfig(cfg.Training)
	require.NoError(t, err)
	variants := []Variant{
		good[0],
		{Name: "Overflow", New: func() model.Regressor { return &hugeRegressor{} }},
	}
	p, err := New(cfg, WithVariants(variants), WithLogger(log.NewTestLogger(log.LevelDebug)))
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "LinearRegression", res.Best.Name)
	assert.Len(t, res.Summary, 1)

	failures := res.Failures()
	require.Len(t, failures, 1)
	var fitErr *errors.ModelFitError
	require.True(t, errors.As(failures[0], &fitErr))
	assert.Equal(t, "Overflow", fitErr.Variant)
	var numErr *errors.NumericalInstabilityError
	assert.True(t, errors.As(failures[0], &numErr))

	loaded, err := p.Store().LoadCurrent()
	require.NoError(t, err)
	assert.Equal(t, []string{"LinearRegression"}, loaded.Manifest.Variants)
}

func TestRun_RecordsBestVariantImportances(t *testing.T) {
	cfg := testConfig(t)
	cfg.Training.Variants = []string{"RandomForest"}
	writeRides(t, cfg.Data.Dir, 3)

	rec := &fakeRecorder{}
	logger := log.NewTestLogger(log.LevelDebug)
	p, err := New(cfg, WithRecorder(rec), WithLogger(logger))
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Importances, 5)

	var total float64
	for _, name := range []string{"hour", "day_of_week", "month", "lat_bin", "lon_bin"} {
		v, ok := res.Importances[name]
		require.True(t, ok, name)
		assert.GreaterOrEqual(t, v, 0.0)
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	require.Len(t, rec.reports, 1)
	assert.Equal(t, res.Importances, rec.reports[0].Importances)
	assert.True(t, logger.ContainsMessage("Variant evaluated"))
}

func TestRun_LinearBestHasNoImportances(t *testing.T) {
	cfg := testConfig(t)
	cfg.Training.Variants = []string{"LinearRegression"}
	writeRides(t, cfg.Data.Dir, 2)

	rec := &fakeRecorder{}
	p, err := New(cfg, WithRecorder(rec), WithLogger(log.NewTestLogger(log.LevelInfo)))
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Importances)
	require.Len(t, rec.reports, 1)
	assert.Nil(t, rec.reports[0].Importances)
}

func TestRun_AllVariantsFailed(t *testing.T) {
	cfg := testConfig(t)
	writeRides(t, cfg.Data.Dir, 2)

	variants := []Variant{
		{Name: "A", New: func() model.Regressor { return &failingRegressor{} }},
		{Name: "B", New: func() model.Regressor { return &panickingRegressor{} }},
	}
	p, err := New(cfg, WithVariants(variants), WithLogger(log.NewTestLogger(log.LevelDebug)))
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	var all *errors.AllVariantsFailedError
	require.True(t, errors.As(err, &all), "got %v", err)
	assert.Len(t, all.Failures, 2)

	_, err = p.Store().Current()
	assert.True(t, errors.Is(err, errors.ErrNoGeneration))
}

func TestRun_Deterministic(t *testing.T) {
	cfg := testConfig(t)
	writeRides(t, cfg.Data.Dir, 3)

	p1, err := New(cfg, WithLogger(log.NewTestLogger(log.LevelInfo)))
	require.NoError(t, err)
	r1, err := p1.Run(context.Background())
	require.NoError(t, err)

	cfg2 := cfg
	cfg2.Artifacts.ModelDir = t.TempDir()
	cfg2.Training.ParallelVariants = true
	cfg2.Training.Workers = 1
	p2, err := New(cfg2, WithLogger(log.NewTestLogger(log.LevelInfo)))
	require.NoError(t, err)
	r2, err := p2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, r1.Summary, r2.Summary)
	assert.Equal(t, r1.Best, r2.Best)
	assert.NotEqual(t, r1.RunID, r2.RunID)
}

func TestRun_RerunReplacesGeneration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Training.Variants = []string{"LinearRegression"}
	writeRides(t, cfg.Data.Dir, 2)

	p, err := New(cfg, WithRunIDFunc(runIDs("first", "second")), WithLogger(log.NewTestLogger(log.LevelInfo)))
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	current, err := p.Store().Current()
	require.NoError(t, err)
	assert.Equal(t, "second", current)
}

func TestRun_SideChannelFailuresOnlyWarn(t *testing.T) {
	cfg := testConfig(t)
	cfg.Training.Variants = []string{"LinearRegression"}
	writeRides(t, cfg.Data.Dir, 2)

	logger := log.NewTestLogger(log.LevelDebug)
	p, err := New(cfg,
		WithLogger(logger),
		WithRecorder(&fakeRecorder{err: errors.New("connection refused")}),
		WithPublisher(&fakePublisher{err: errors.New("channel closed")}),
	)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "LinearRegression", res.Best.Name)
	assert.True(t, logger.ContainsMessage("Recording training run failed"))
	assert.True(t, logger.ContainsMessage("Announcing generation failed"))
}

func TestRun_Canceled(t *testing.T) {
	cfg := testConfig(t)
	writeRides(t, cfg.Data.Dir, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := New(cfg, WithLogger(log.NewTestLogger(log.LevelInfo)))
	require.NoError(t, err)
	_, err = p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(cfg.Artifacts.ModelDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Training.Variants = []string{"SVR"}
	_, err := New(cfg)
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))
}
