// Package pipeline runs the batch training flow: load raw ride events,
// aggregate them into hourly demand rows, split, fit every configured
// variant, select the best one by held-out R2 and publish a new artifact
// generation.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/ridecast/artifact"
	"github.com/YuminosukeSato/ridecast/config"
	"github.com/YuminosukeSato/ridecast/dataset"
	"github.com/YuminosukeSato/ridecast/features"
	"github.com/YuminosukeSato/ridecast/metrics"
	"github.com/YuminosukeSato/ridecast/model_selection"
	"github.com/YuminosukeSato/ridecast/notify"
	"github.com/YuminosukeSato/ridecast/pkg/log"
	"github.com/YuminosukeSato/ridecast/runrecord"
)

// Pipeline holds the collaborators of one or more training runs.
type Pipeline struct {
	cfg       config.Config
	store     *artifact.Store
	variants  []Variant
	recorder  runrecord.Recorder
	publisher notify.Publisher
	logger    log.Logger
	newRunID  func() string
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets the run ledger. The default discards reports.
func WithRecorder(r runrecord.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithPublisher sets the generation announcer. The default drops events.
func WithPublisher(pub notify.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithLogger sets the pipeline logger.
func WithLogger(l log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithVariants replaces the variants built from the configuration.
func WithVariants(v []Variant) Option {
	return func(p *Pipeline) { p.variants = v }
}

// WithStore replaces the artifact store rooted at artifacts.model_dir.
func WithStore(s *artifact.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithRunIDFunc overrides run id generation.
func WithRunIDFunc(f func() string) Option {
	return func(p *Pipeline) { p.newRunID = f }
}

// New validates cfg and builds a Pipeline.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:       cfg,
		recorder:  runrecord.NopRecorder{},
		publisher: notify.NopPublisher{},
		logger:    log.GetLoggerWithName("pipeline"),
		newRunID:  func() string { return uuid.NewString() },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.variants == nil {
		v, err := VariantsFromConfig(cfg.Training)
		if err != nil {
			return nil, err
		}
		p.variants = v
	}
	if p.store == nil {
		p.store = artifact.NewStore(cfg.Artifacts.ModelDir,
			artifact.WithKeepGenerations(cfg.Artifacts.KeepGenerations),
			artifact.WithLogger(p.logger.With(log.ComponentKey, "artifact")),
		)
	}
	return p, nil
}

// Result describes a finished run.
type Result struct {
	RunID     string
	Manifest  *artifact.Manifest
	Best      Selection
	Summary   metrics.Summary
	Variants  []VariantResult
	RawEvents int
	Groups    int
	TrainRows int
	TestRows  int

	// Importances of the best variant, nil when it reports none.
	Importances map[string]float64
}

// Failures returns the errors of variants excluded from selection.
func (r *Result) Failures() []error { return Failures(r.Variants) }

// Run executes every stage in sequence. Nothing is written to the artifact
// store unless a best model was selected; run-ledger and broker failures are
// logged and do not fail the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := p.now()
	res := &Result{RunID: p.newRunID()}
	logger := p.logger.With(log.RunIDKey, res.RunID)
	logger.Info("Training run started",
		log.RandomSeedKey, p.cfg.Training.Seed,
		"variants", len(p.variants),
	)

	delim, err := p.cfg.Data.DelimiterRune()
	if err != nil {
		return nil, err
	}
	events, err := dataset.LoadDir(p.cfg.Data.Dir, p.cfg.Data.Pattern,
		dataset.WithDelimiter(delim),
		dataset.WithLogger(logger.With(log.ComponentKey, "dataset")),
	)
	if err != nil {
		logger.Error("Loading raw events failed", err, log.StageKey, "load")
		return nil, err
	}
	res.RawEvents = len(events)
	logger.Info("Raw events loaded", log.StageKey, "load", log.EventsKey, res.RawEvents)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := features.Aggregate(events)
	res.Groups = len(rows)
	logger.Info("Demand rows aggregated", log.StageKey, "features", log.GroupsKey, res.Groups)

	split, err := p.split(rows)
	if err != nil {
		logger.Error("Splitting demand rows failed", err, log.StageKey, "split")
		return nil, err
	}
	res.TrainRows, _ = split.XTrain.Dims()
	res.TestRows, _ = split.XTest.Dims()
	logger.Info("Rows split",
		log.StageKey, "split",
		"train_rows", res.TrainRows,
		"test_rows", res.TestRows,
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trainer := &Trainer{
		Variants: p.variants,
		Parallel: p.cfg.Training.ParallelVariants,
		Logger:   logger.With(log.StageKey, "train"),
	}
	res.Variants = trainer.Train(ctx, split)
	res.Summary = Summarize(res.Variants)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best, err := Select(res.Variants)
	if err != nil {
		logger.Error("No variant could be selected", err, log.StageKey, "select")
		return nil, err
	}
	res.Best = best
	for _, r := range res.Variants {
		if string(r.Name) == best.Name {
			res.Importances = r.Importances
		}
	}
	logger.Info("Best model selected",
		log.StageKey, "select",
		log.ModelNameKey, best.Name,
		log.R2ScoreKey, best.Metrics.R2,
		log.RMSEKey, best.Metrics.RMSE,
	)

	gen := artifact.Generation{
		ID:        res.RunID,
		Best:      best.Name,
		Summary:   res.Summary,
		TrainRows: res.TrainRows,
		TestRows:  res.TestRows,
	}
	for _, r := range res.Variants {
		if r.OK() {
			gen.Models = append(gen.Models, artifact.NamedModel{Variant: string(r.Name), Model: r.Model})
		}
	}
	res.Manifest, err = p.store.Publish(ctx, gen)
	if err != nil {
		logger.Error("Publishing generation failed", err, log.StageKey, "persist")
		return nil, err
	}

	p.sideChannels(ctx, logger, res, started)

	logger.Info("Training run finished",
		log.GenerationKey, res.RunID,
		log.ModelNameKey, best.Name,
		log.DurationMsKey, p.now().Sub(started).Milliseconds(),
	)
	return res, nil
}

func (p *Pipeline) split(rows []features.DemandRow) (*Split, error) {
	train, test, err := model_selection.TrainTestSplit(len(rows), p.cfg.Training.TestSize, p.cfg.Training.Seed)
	if err != nil {
		return nil, err
	}
	X, y := features.Matrix(rows)
	s := &Split{}
	s.XTrain, s.YTrain = model_selection.SelectRows(X, y, train)
	s.XTest, s.YTest = model_selection.SelectRows(X, y, test)
	return s, nil
}

func (p *Pipeline) sideChannels(ctx context.Context, logger log.Logger, res *Result, started time.Time) {
	var failed []string
	for _, r := range res.Variants {
		if !r.OK() {
			failed = append(failed, string(r.Name))
		}
	}
	report := runrecord.RunReport{
		RunID:       res.RunID,
		StartedAt:   started,
		FinishedAt:  p.now(),
		RawEvents:   res.RawEvents,
		Groups:      res.Groups,
		TrainRows:   res.TrainRows,
		TestRows:    res.TestRows,
		BestVariant: res.Best.Name,
		BestMetrics: res.Best.Metrics,
		Summary:     res.Summary,
		Importances: res.Importances,
		Failed:      failed,
	}
	if err := p.recorder.RecordRun(ctx, report); err != nil {
		logger.Warn("Recording training run failed", err)
	}

	event := notify.GenerationEvent{
		Generation:  res.RunID,
		ModelDir:    p.store.Root(),
		BestVariant: res.Best.Name,
		BestMetrics: res.Best.Metrics,
		PublishedAt: res.Manifest.CreatedAt,
	}
	if err := p.publisher.PublishGeneration(ctx, event); err != nil {
		logger.Warn("Announcing generation failed", err)
	}
}

// Store returns the artifact store the pipeline publishes to.
func (p *Pipeline) Store() *artifact.Store { return p.store }
