// Standard attribute keys for ridecast log records.
//
// Keys follow a dotted "category.name" convention so that records emitted by
// the loader, the trainer and the artifact store can be filtered together.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the model variant.
	// Examples: "LinearRegression", "RandomForest", "XGBoost"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "evaluate", "persist"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package emitted the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the lifecycle phase.
	PhaseKey = "ml.phase"

	// StageKey names the pipeline stage: load, features, split, train, evaluate, select, persist.
	StageKey = "pipeline.stage"

	// RunIDKey carries the identifier of one pipeline run.
	RunIDKey = "run.id"
)

// Data shape.
const (
	// SamplesKey is the number of rows processed.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of feature columns.
	FeaturesKey = "data.features"

	// FilesKey is the number of raw input files read.
	FilesKey = "data.files"

	// EventsKey is the number of raw pickup events read.
	EventsKey = "data.events"

	// GroupsKey is the number of aggregated feature groups.
	GroupsKey = "data.groups"
)

// Performance and evaluation.
const (
	// DurationMsKey is the wall-clock time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// WorkersKey is the number of goroutines used by a parallel operation.
	WorkersKey = "perf.workers"

	// MAEKey, RMSEKey and R2ScoreKey are held-out regression metrics.
	MAEKey     = "metrics.mae"
	RMSEKey    = "metrics.rmse"
	R2ScoreKey = "metrics.r2_score"

	// ImportancesKey maps feature names to a fitted model's importances.
	ImportancesKey = "metrics.feature_importances"

	// IterationKey is the current boosting round or tree index.
	IterationKey = "training.iteration"

	// RandomSeedKey records the seed used for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Artifacts.
const (
	// ArtifactKey names a persisted artifact file.
	ArtifactKey = "artifact.key"

	// GenerationKey is the identifier of a published model generation.
	GenerationKey = "artifact.generation"

	// ChecksumKey is the xxhash64 checksum of an artifact, hex encoded.
	ChecksumKey = "artifact.checksum"

	// SizeBytesKey is the size of an artifact in bytes.
	SizeBytesKey = "artifact.size_bytes"
)

// Errors.
const (
	// ErrorTypeKey is the Go type of the reported error or warning.
	ErrorTypeKey = "error.type"

	// StacktraceKey carries the stack trace recorded by cockroachdb/errors.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit      = "fit"
	OperationPredict  = "predict"
	OperationEvaluate = "evaluate"
	OperationPersist  = "persist"

	PhaseTraining  = "training"
	PhaseInference = "inference"
)
