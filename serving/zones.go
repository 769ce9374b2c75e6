package serving

import (
	"time"

	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

// Zone is a representative pickup point.
type Zone struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Zones is the catalog of NYC representative points.
var Zones = []Zone{
	{ID: 1, Name: "Manhattan (Midtown)", Lat: 40.75, Lon: -73.98},
	{ID: 2, Name: "Manhattan (UES)", Lat: 40.77, Lon: -73.96},
	{ID: 3, Name: "Manhattan (UWS)", Lat: 40.78, Lon: -73.97},
	{ID: 4, Name: "Manhattan (Chelsea)", Lat: 40.74, Lon: -74.00},
	{ID: 5, Name: "Manhattan (Upper)", Lat: 40.83, Lon: -73.94},
	{ID: 6, Name: "Brooklyn (Heights)", Lat: 40.69, Lon: -73.99},
	{ID: 7, Name: "Brooklyn (Williamsburg)", Lat: 40.71, Lon: -73.95},
	{ID: 8, Name: "Queens (JFK Airport)", Lat: 40.64, Lon: -73.78},
	{ID: 9, Name: "Queens (LGA Airport)", Lat: 40.77, Lon: -73.87},
	{ID: 10, Name: "Manhattan (Financial Dist)", Lat: 40.70, Lon: -74.01},
}

// ZoneByID looks a zone up in the catalog.
func ZoneByID(id int) (Zone, error) {
	for _, z := range Zones {
		if z.ID == id {
			return z, nil
		}
	}
	return Zone{}, errors.NewValidationError("zone_id", "unknown zone", id)
}

// Time windows offered to planners.
const (
	WindowMorning   = "Morning (6-10 AM)"
	WindowMidday    = "Midday (10 AM-2 PM)"
	WindowAfternoon = "Afternoon (2-6 PM)"
	WindowEvening   = "Evening (6-10 PM)"
	WindowNight     = "Night (10 PM-2 AM)"
	WindowLateNight = "Late Night (2-6 AM)"
)

// DefaultHour is used for an unrecognised window.
const DefaultHour = 12

var windowHours = map[string]int{
	WindowMorning:   8,
	WindowMidday:    12,
	WindowAfternoon: 16,
	WindowEvening:   20,
	WindowNight:     0,
	WindowLateNight: 4,

	"morning":    8,
	"midday":     12,
	"afternoon":  16,
	"evening":    20,
	"night":      0,
	"late_night": 4,
}

// HourForWindow maps a time window to the representative hour of day.
func HourForWindow(window string) int {
	if h, ok := windowHours[window]; ok {
		return h
	}
	return DefaultHour
}

// DateLayout is the accepted request date format.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.NewValidationError("date", "must be YYYY-MM-DD", s)
	}
	return t, nil
}
