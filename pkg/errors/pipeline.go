package errors

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// DataNotFoundError is returned when no input file matches the loader pattern.
// It aborts the run before any training.
type DataNotFoundError struct {
	Dir     string
	Pattern string
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("ridecast: no input files matching %q in %s", e.Pattern, e.Dir)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *DataNotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("dir", e.Dir).
		Str("pattern", e.Pattern).
		Str("type", "DataNotFoundError")
}

// NewDataNotFoundError creates a DataNotFoundError with a stack trace.
func NewDataNotFoundError(dir, pattern string) error {
	return errors.WithStack(&DataNotFoundError{Dir: dir, Pattern: pattern})
}

// MalformedRecordError is returned when a raw record is missing a required
// field or carries an unparseable value. The whole load is aborted.
type MalformedRecordError struct {
	Source string // file name or stream label
	Line   int    // 1-based line number, header included
	Field  string
	Value  string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("ridecast: malformed record at %s:%d: field %q", e.Source, e.Line, e.Field)
	if e.Value != "" {
		msg += fmt.Sprintf(" (value %q)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *MalformedRecordError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("source", e.Source).
		Int("line", e.Line).
		Str("field", e.Field).
		Str("value", e.Value).
		Str("type", "MalformedRecordError")
}

// NewMalformedRecordError creates a MalformedRecordError with a stack trace.
func NewMalformedRecordError(source string, line int, field, value string, cause error) error {
	return errors.WithStack(&MalformedRecordError{
		Source: source,
		Line:   line,
		Field:  field,
		Value:  value,
		Err:    cause,
	})
}

// InsufficientDataError is returned when the aggregated table cannot be split
// into non-empty training and held-out partitions.
type InsufficientDataError struct {
	Rows    int
	MinRows int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("ridecast: insufficient data: %d rows, need at least %d", e.Rows, e.MinRows)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *InsufficientDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("rows", e.Rows).
		Int("min_rows", e.MinRows).
		Str("type", "InsufficientDataError")
}

// NewInsufficientDataError creates an InsufficientDataError with a stack trace.
func NewInsufficientDataError(rows, minRows int) error {
	return errors.WithStack(&InsufficientDataError{Rows: rows, MinRows: minRows})
}

// ModelFitError reports that one variant failed to fit or to produce usable
// predictions. It never aborts the pipeline by itself.
type ModelFitError struct {
	Variant string
	Err     error
}

func (e *ModelFitError) Error() string {
	return fmt.Sprintf("ridecast: variant %s failed: %v", e.Variant, e.Err)
}

func (e *ModelFitError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *ModelFitError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("variant", e.Variant).
		Str("cause", fmt.Sprint(e.Err)).
		Str("type", "ModelFitError")
}

// NewModelFitError creates a ModelFitError with a stack trace.
func NewModelFitError(variant string, cause error) error {
	return errors.WithStack(&ModelFitError{Variant: variant, Err: cause})
}

// AllVariantsFailedError is returned when every configured variant failed.
type AllVariantsFailedError struct {
	Failures []error
}

func (e *AllVariantsFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("ridecast: all %d variants failed: [%s]", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual variant failures to errors.Is/As.
func (e *AllVariantsFailedError) Unwrap() []error {
	return e.Failures
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *AllVariantsFailedError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("failures", len(e.Failures)).
		Str("type", "AllVariantsFailedError")
}

// NewAllVariantsFailedError creates an AllVariantsFailedError with a stack trace.
func NewAllVariantsFailedError(failures []error) error {
	return errors.WithStack(&AllVariantsFailedError{Failures: failures})
}

// PersistenceError reports which artifact could not be written or read.
type PersistenceError struct {
	Artifact string
	Op       string // "write", "read", "publish", "prune"
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ridecast: %s artifact %q: %v", e.Op, e.Artifact, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *PersistenceError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("artifact", e.Artifact).
		Str("op", e.Op).
		Str("type", "PersistenceError")
}

// NewPersistenceError creates a PersistenceError with a stack trace.
func NewPersistenceError(op, artifact string, cause error) error {
	return errors.WithStack(&PersistenceError{Op: op, Artifact: artifact, Err: cause})
}
