// Package units holds the pure unit conversions used when preparing
// activity and split rows for display. All functions are I/O free and
// tolerate missing input: the pointer variants return nil for nil.
package units

import (
	"fmt"
	"math"
)

const (
	metersPerMile = 1609.344
	feetPerMeter  = 3.28084

	// paceFactor converts meters/second to minutes-per-mile:
	// (1609.344 m/mi) / (60 s/min) = 26.8224.
	paceFactor = 26.8224
)

// MetersToMiles converts a distance in meters to miles, rounded to 2 decimals.
func MetersToMiles(meters float64) float64 {
	return round(meters/metersPerMile, 2)
}

// MetersToFeet converts a length in meters to feet, rounded to 1 decimal.
func MetersToFeet(meters float64) float64 {
	return round(meters*feetPerMeter, 1)
}

// SpeedToPaceMinMi converts a speed in meters/second to a pace in
// minutes-per-mile, rounded to 2 decimals. Pace is undefined for
// non-positive speeds, in which case ok is false.
func SpeedToPaceMinMi(speed float64) (pace float64, ok bool) {
	if speed <= 0 {
		return 0, false
	}
	return round(paceFactor/speed, 2), true
}

// FormatHMS renders a duration in whole seconds as "H:MM:SS", or "M:SS"
// when the hour component is zero. Negative input collapses to "0:00".
func FormatHMS(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h == 0 {
		return fmt.Sprintf("%d:%02d", m, s)
	}
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// MilesPtr converts an optional distance in meters to miles.
func MilesPtr(meters *float64) *float64 {
	if meters == nil {
		return nil
	}
	v := MetersToMiles(*meters)
	return &v
}

// FeetPtr converts an optional length in meters to feet.
func FeetPtr(meters *float64) *float64 {
	if meters == nil {
		return nil
	}
	v := MetersToFeet(*meters)
	return &v
}

// PacePtr converts an optional speed in meters/second to a pace in
// minutes-per-mile. Nil input and non-positive speeds both yield nil.
func PacePtr(speed *float64) *float64 {
	if speed == nil {
		return nil
	}
	pace, ok := SpeedToPaceMinMi(*speed)
	if !ok {
		return nil
	}
	return &pace
}

func round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
