// Package serving answers demand queries from the published model
// generation without retraining.
package serving

import (
	"math"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/artifact"
	"github.com/YuminosukeSato/ridecast/features"
	"github.com/YuminosukeSato/ridecast/metrics"
	"github.com/YuminosukeSato/ridecast/pkg/errors"
	"github.com/YuminosukeSato/ridecast/pkg/log"
)

// Rides a single driver is expected to cover in one window.
const ridesPerDriver = 8

// PredictRequest asks for the demand of one zone in one window of a day.
type PredictRequest struct {
	ZoneID     int
	Date       string // YYYY-MM-DD
	TimeWindow string
}

// Forecast is the answer to a PredictRequest.
type Forecast struct {
	PredictedRides     float64           `json:"predicted_rides"`
	RecommendedDrivers int               `json:"recommended_drivers"`
	SurgeProbability   float64           `json:"surge_probability"`
	Zone               Zone              `json:"zone"`
	Hour               int               `json:"hour"`
	Variant            string            `json:"variant"`
	Generation         string            `json:"generation"`
	Metrics            metrics.MetricSet `json:"metrics"`
}

// snapshot is one immutable loaded generation.
type snapshot struct {
	loaded *artifact.Loaded
}

// Forecaster serves predictions from the store's current generation. The
// generation is loaded on first use and replaced only by Reload.
type Forecaster struct {
	store   *artifact.Store
	logger  log.Logger
	current atomic.Pointer[snapshot]
	loadMu  sync.Mutex
}

// NewForecaster returns a Forecaster reading from store.
func NewForecaster(store *artifact.Store) *Forecaster {
	return &Forecaster{
		store:  store,
		logger: log.GetLoggerWithName("serving"),
	}
}

// Reload reads the current generation and swaps it in. On error the
// previously loaded generation stays in use.
func (f *Forecaster) Reload() error {
	f.loadMu.Lock()
	defer f.loadMu.Unlock()
	_, err := f.load()
	return err
}

func (f *Forecaster) load() (*snapshot, error) {
	loaded, err := f.store.LoadCurrent()
	if err != nil {
		return nil, err
	}
	if loaded.Manifest.SchemaVersion != features.SchemaVersion || loaded.Best.SchemaVersion != features.SchemaVersion {
		return nil, errors.NewValidationError("schema_version",
			"artifact was built with a different feature schema", loaded.Manifest.SchemaVersion)
	}
	if !loaded.Best.Model.IsFitted() {
		return nil, errors.NewNotFittedError(loaded.Best.Kind, "Forecaster.Reload")
	}

	s := &snapshot{loaded: loaded}
	f.current.Store(s)
	f.logger.Info("Model generation loaded",
		log.GenerationKey, loaded.Manifest.Generation,
		log.ModelNameKey, loaded.Best.Variant,
		log.R2ScoreKey, loaded.Manifest.BestMetrics.R2,
	)
	return s, nil
}

func (f *Forecaster) acquire() (*snapshot, error) {
	if s := f.current.Load(); s != nil {
		return s, nil
	}
	f.loadMu.Lock()
	defer f.loadMu.Unlock()
	if s := f.current.Load(); s != nil {
		return s, nil
	}
	return f.load()
}

// Generation returns the id of the loaded generation, loading it if needed.
func (f *Forecaster) Generation() (string, error) {
	s, err := f.acquire()
	if err != nil {
		return "", err
	}
	return s.loaded.Manifest.Generation, nil
}

// Predict derives the feature vector for req with the same code used in
// training and runs the best model on it.
func (f *Forecaster) Predict(req PredictRequest) (Forecast, error) {
	zone, err := ZoneByID(req.ZoneID)
	if err != nil {
		return Forecast{}, err
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		return Forecast{}, err
	}
	s, err := f.acquire()
	if err != nil {
		return Forecast{}, err
	}

	hour := HourForWindow(req.TimeWindow)
	tf := features.Temporal(date)
	x := features.Vector(hour, tf.DayOfWeek, tf.Month, zone.Lat, zone.Lon)

	out, err := s.loaded.Best.Model.Predict(mat.NewDense(1, len(x), x))
	if err != nil {
		return Forecast{}, errors.Wrap(err, "predict demand")
	}
	pred := out.At(0, 0)
	if err := errors.CheckScalar("serving.predict", pred, 0); err != nil {
		return Forecast{}, err
	}

	rides := math.Max(0, pred)
	fc := Forecast{
		PredictedRides:     rides,
		RecommendedDrivers: recommendedDrivers(rides),
		SurgeProbability:   surgeProbability(rides),
		Zone:               zone,
		Hour:               hour,
		Variant:            s.loaded.Best.Variant,
		Generation:         s.loaded.Manifest.Generation,
		Metrics:            s.loaded.Summary[s.loaded.Best.Variant],
	}
	f.logger.Debug("Forecast served",
		log.OperationKey, log.OperationPredict,
		"zone", zone.ID,
		"hour", hour,
		"rides", rides,
	)
	return fc, nil
}

func recommendedDrivers(rides float64) int {
	if rides <= 0 {
		return 0
	}
	n := int(rides / ridesPerDriver)
	if n < 1 {
		n = 1
	}
	return n
}

// surgeProbability is a percentage in [10, 95].
func surgeProbability(rides float64) float64 {
	return math.Min(95, 10+rides/100*80)
}
