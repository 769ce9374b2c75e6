// Package features turns raw pickup events into the hourly demand table and
// derives the predictor vector shared by training and serving.
package features

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ridecast/dataset"
)

// SchemaVersion identifies the layout of the predictor vector. It is stored
// with every persisted model and checked before serving.
const SchemaVersion = 1

// FeatureNames lists the predictor columns in order.
var FeatureNames = []string{"hour", "day_of_week", "month", "lat_bin", "lon_bin"}

// Bin rounds a coordinate to two decimals, half away from zero.
// Bin(Bin(x)) == Bin(x).
func Bin(coord float64) float64 {
	return math.Round(coord*100) / 100
}

// TimeFeatures are the calendar fields of one timestamp.
type TimeFeatures struct {
	Year      int
	Month     int
	Day       int
	Hour      int
	DayOfWeek int // Monday=0 … Sunday=6
}

// Temporal extracts calendar fields in the timestamp's own location.
func Temporal(t time.Time) TimeFeatures {
	return TimeFeatures{
		Year:      t.Year(),
		Month:     int(t.Month()),
		Day:       t.Day(),
		Hour:      t.Hour(),
		DayOfWeek: DayOfWeek(t.Weekday()),
	}
}

// DayOfWeek converts time.Weekday (Sunday=0) to Monday=0 numbering.
func DayOfWeek(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// DemandRow is the ride count of one (date, hour, location cell) group.
type DemandRow struct {
	Year      int
	Month     int
	Day       int
	Hour      int
	DayOfWeek int
	LatBin    float64
	LonBin    float64
	RideCount int
}

type groupKey struct {
	year, month, day, hour, dow int
	lat, lon                    float64
}

// Aggregate groups events by (year, month, day, hour, day_of_week, lat_bin,
// lon_bin) and counts them. Only observed groups appear. Rows are sorted by
// year, month, day, hour, lat_bin, lon_bin.
func Aggregate(events []dataset.RawEvent) []DemandRow {
	counts := make(map[groupKey]int, len(events)/4+1)
	for _, ev := range events {
		tf := Temporal(ev.Timestamp)
		k := groupKey{
			year:  tf.Year,
			month: tf.Month,
			day:   tf.Day,
			hour:  tf.Hour,
			dow:   tf.DayOfWeek,
			lat:   Bin(ev.Latitude),
			lon:   Bin(ev.Longitude),
		}
		counts[k]++
	}

	rows := make([]DemandRow, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, DemandRow{
			Year:      k.year,
			Month:     k.month,
			Day:       k.day,
			Hour:      k.hour,
			DayOfWeek: k.dow,
			LatBin:    k.lat,
			LonBin:    k.lon,
			RideCount: n,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rowLess(&rows[i], &rows[j]) })
	return rows
}

func rowLess(a, b *DemandRow) bool {
	switch {
	case a.Year != b.Year:
		return a.Year < b.Year
	case a.Month != b.Month:
		return a.Month < b.Month
	case a.Day != b.Day:
		return a.Day < b.Day
	case a.Hour != b.Hour:
		return a.Hour < b.Hour
	case a.LatBin != b.LatBin:
		return a.LatBin < b.LatBin
	default:
		return a.LonBin < b.LonBin
	}
}

// Vector builds the predictor vector [hour, day_of_week, month, lat_bin, lon_bin].
// Coordinates are binned here so callers can pass raw positions.
func Vector(hour, dayOfWeek, month int, lat, lon float64) []float64 {
	return []float64{float64(hour), float64(dayOfWeek), float64(month), Bin(lat), Bin(lon)}
}

// Features returns the predictor vector of the row.
func (r DemandRow) Features() []float64 {
	return Vector(r.Hour, r.DayOfWeek, r.Month, r.LatBin, r.LonBin)
}

// Matrix builds the design matrix and label vector of rows.
func Matrix(rows []DemandRow) (*mat.Dense, *mat.VecDense) {
	if len(rows) == 0 {
		return &mat.Dense{}, &mat.VecDense{}
	}
	X := mat.NewDense(len(rows), len(FeatureNames), nil)
	y := mat.NewVecDense(len(rows), nil)
	for i, r := range rows {
		X.SetRow(i, r.Features())
		y.SetVec(i, float64(r.RideCount))
	}
	return X, y
}

// TotalRides sums RideCount over rows.
func TotalRides(rows []DemandRow) int {
	total := 0
	for _, r := range rows {
		total += r.RideCount
	}
	return total
}
