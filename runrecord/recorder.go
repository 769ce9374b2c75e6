// Package runrecord keeps a ledger of training runs outside the artifact
// store.
package runrecord

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/YuminosukeSato/ridecast/metrics"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

// RunReport summarises one finished training run.
type RunReport struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	RawEvents   int
	Groups      int
	TrainRows   int
	TestRows    int
	BestVariant string
	BestMetrics metrics.MetricSet
	Summary     metrics.Summary
	Importances map[string]float64 // feature importances of the best variant
	Failed      []string           // variants excluded by fit errors
}

// Recorder stores run reports.
type Recorder interface {
	RecordRun(ctx context.Context, report RunReport) error
}

// NopRecorder discards reports.
type NopRecorder struct{}

func (NopRecorder) RecordRun(context.Context, RunReport) error { return nil }

// Schema creates the training_runs table.
const Schema = `
CREATE TABLE IF NOT EXISTS training_runs (
	run_id        TEXT PRIMARY KEY,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL,
	raw_events    INTEGER NOT NULL,
	groups        INTEGER NOT NULL,
	train_rows    INTEGER NOT NULL,
	test_rows     INTEGER NOT NULL,
	best_variant  TEXT NOT NULL,
	best_rmse     DOUBLE PRECISION NOT NULL,
	best_mae      DOUBLE PRECISION NOT NULL,
	best_r2       DOUBLE PRECISION NOT NULL,
	summary       JSONB NOT NULL,
	importances   JSONB NOT NULL,
	failed        JSONB NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresRecorder inserts reports into training_runs.
type PostgresRecorder struct {
	db *sqlx.DB
}

// NewPostgresRecorder wraps an open database handle.
func NewPostgresRecorder(db *sqlx.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// OpenPostgres connects to dsn and makes sure the table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect to postgres")
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create training_runs table")
	}
	return NewPostgresRecorder(db), nil
}

// RecordRun inserts the report. Reruns with the same id overwrite the row.
func (r *PostgresRecorder) RecordRun(ctx context.Context, report RunReport) error {
	const query = `
		INSERT INTO training_runs (
			run_id, started_at, finished_at,
			raw_events, groups, train_rows, test_rows,
			best_variant, best_rmse, best_mae, best_r2,
			summary, importances, failed
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			best_variant = EXCLUDED.best_variant,
			best_rmse = EXCLUDED.best_rmse,
			best_mae = EXCLUDED.best_mae,
			best_r2 = EXCLUDED.best_r2,
			summary = EXCLUDED.summary,
			importances = EXCLUDED.importances,
			failed = EXCLUDED.failed`

	summaryJSON, err := json.Marshal(report.Summary)
	if err != nil {
		return errors.Wrap(err, "marshal metrics summary")
	}
	importances := report.Importances
	if importances == nil {
		importances = map[string]float64{}
	}
	importancesJSON, err := json.Marshal(importances)
	if err != nil {
		return errors.Wrap(err, "marshal feature importances")
	}
	failed := report.Failed
	if failed == nil {
		failed = []string{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return errors.Wrap(err, "marshal failed variants")
	}

	_, err = r.db.ExecContext(ctx, query,
		report.RunID, report.StartedAt, report.FinishedAt,
		report.RawEvents, report.Groups, report.TrainRows, report.TestRows,
		report.BestVariant, report.BestMetrics.RMSE, report.BestMetrics.MAE, report.BestMetrics.R2,
		summaryJSON, importancesJSON, failedJSON,
	)
	if err != nil {
		return errors.Wrapf(err, "insert training run %s", report.RunID)
	}
	return nil
}

// Close releases the database handle.
func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}
