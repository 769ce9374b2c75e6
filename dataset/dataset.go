// Package dataset reads raw ride pickup events from delimited files.
package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/YuminosukeSato/ridecast/pkg/errors"
	"github.com/YuminosukeSato/ridecast/pkg/log"
)

// DefaultPattern matches the monthly pickup exports.
const DefaultPattern = "uber-raw-data-*.csv"

// RawEvent is a single pickup.
type RawEvent struct {
	Timestamp time.Time
	Latitude  float64
	Longitude float64
}

// Column names accepted for each required field, compared case-insensitively.
var (
	timestampColumns = []string{"date/time", "timestamp", "pickup_datetime"}
	latitudeColumns  = []string{"lat", "latitude"}
	longitudeColumns = []string{"lon", "longitude"}
)

// Layouts tried in order; the first that parses wins.
var timestampLayouts = []string{
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

type loaderConfig struct {
	delimiter rune
	logger    log.Logger
}

// LoaderOption configures LoadDir and ReadEvents.
type LoaderOption func(*loaderConfig)

// WithDelimiter sets the field delimiter. The default is ','.
func WithDelimiter(d rune) LoaderOption {
	return func(c *loaderConfig) {
		if d != 0 {
			c.delimiter = d
		}
	}
}

// WithLogger sets the logger used for per-file progress.
func WithLogger(l log.Logger) LoaderOption {
	return func(c *loaderConfig) { c.logger = l }
}

func newLoaderConfig(opts []LoaderOption) loaderConfig {
	cfg := loaderConfig{delimiter: ',', logger: log.GetLoggerWithName("dataset")}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// LoadDir reads every file in dir matching pattern, in lexical order, and
// returns the union of their events. An empty pattern means DefaultPattern.
func LoadDir(dir, pattern string, opts ...LoaderOption) ([]RawEvent, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	cfg := newLoaderConfig(opts)

	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, errors.NewValidationError("data.pattern", err.Error(), pattern)
	}
	if len(files) == 0 {
		return nil, errors.NewDataNotFoundError(dir, pattern)
	}
	sort.Strings(files)

	var events []RawEvent
	for _, path := range files {
		n, err := readFile(path, &events, cfg)
		if err != nil {
			return nil, err
		}
		cfg.logger.Info("Loaded input file",
			"file", filepath.Base(path),
			log.EventsKey, n,
		)
	}
	return events, nil
}

func readFile(path string, dst *[]RawEvent, cfg loaderConfig) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	before := len(*dst)
	if err := readInto(f, filepath.Base(path), dst, cfg); err != nil {
		return 0, err
	}
	return len(*dst) - before, nil
}

// ReadEvents parses one delimited stream with a header row. source labels
// the stream in error messages.
func ReadEvents(r io.Reader, source string, opts ...LoaderOption) ([]RawEvent, error) {
	var events []RawEvent
	if err := readInto(r, source, &events, newLoaderConfig(opts)); err != nil {
		return nil, err
	}
	return events, nil
}

type columns struct {
	timestamp, latitude, longitude int
}

func readInto(r io.Reader, source string, dst *[]RawEvent, cfg loaderConfig) error {
	cr := csv.NewReader(r)
	cr.Comma = cfg.delimiter
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return errors.NewMalformedRecordError(source, 1, "header", "", errors.ErrEmptyData)
	}
	if err != nil {
		return errors.NewMalformedRecordError(source, 1, "header", "", err)
	}
	cols, err := locateColumns(header, source)
	if err != nil {
		return err
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			line := 0
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				line = parseErr.Line
			}
			return errors.NewMalformedRecordError(source, line, "record", "", err)
		}
		line, _ := cr.FieldPos(0)

		ev, err := parseRecord(record, cols, source, line)
		if err != nil {
			return err
		}
		*dst = append(*dst, ev)
	}
}

func locateColumns(header []string, source string) (columns, error) {
	find := func(field string, aliases []string) (int, error) {
		for i, h := range header {
			name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
			for _, a := range aliases {
				if name == a {
					return i, nil
				}
			}
		}
		return -1, errors.NewMalformedRecordError(source, 1, field, strings.Join(header, ","), errors.New("missing required column"))
	}

	var c columns
	var err error
	if c.timestamp, err = find("timestamp", timestampColumns); err != nil {
		return c, err
	}
	if c.latitude, err = find("latitude", latitudeColumns); err != nil {
		return c, err
	}
	if c.longitude, err = find("longitude", longitudeColumns); err != nil {
		return c, err
	}
	return c, nil
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseRecord(record []string, cols columns, source string, line int) (RawEvent, error) {
	rawTS := field(record, cols.timestamp)
	if rawTS == "" {
		return RawEvent{}, errors.NewMalformedRecordError(source, line, "timestamp", "", errors.New("empty field"))
	}
	ts, err := ParseTimestamp(rawTS)
	if err != nil {
		return RawEvent{}, errors.NewMalformedRecordError(source, line, "timestamp", rawTS, err)
	}

	lat, err := parseCoordinate(field(record, cols.latitude))
	if err != nil {
		return RawEvent{}, errors.NewMalformedRecordError(source, line, "latitude", field(record, cols.latitude), err)
	}
	lon, err := parseCoordinate(field(record, cols.longitude))
	if err != nil {
		return RawEvent{}, errors.NewMalformedRecordError(source, line, "longitude", field(record, cols.longitude), err)
	}

	return RawEvent{Timestamp: ts, Latitude: lat, Longitude: lon}, nil
}

func parseCoordinate(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty field")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("coordinate is not finite")
	}
	return v, nil
}

// ParseTimestamp parses s with the accepted layouts. Layouts without a zone
// are read as UTC so calendar fields never shift.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognised timestamp %q", s)
}
