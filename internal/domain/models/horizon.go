package models

import "fmt"

// Horizon is a post-event window measured in trading bars.
type Horizon string

const (
	H1d  Horizon = "1d"
	H3d  Horizon = "3d"
	H5d  Horizon = "5d"
	H10d Horizon = "10d"
	H30d Horizon = "30d"
)

// Horizons is the fixed, ordered set every PriceMovement covers.
var Horizons = []Horizon{H1d, H3d, H5d, H10d, H30d}

// Bars returns the number of trading bars after the event.
func (h Horizon) Bars() int {
	switch h {
	case H1d:
		return 1
	case H3d:
		return 3
	case H5d:
		return 5
	case H10d:
		return 10
	case H30d:
		return 30
	default:
		return 0
	}
}

// IsValidHorizon returns true if h is one of Horizons.
func IsValidHorizon(h Horizon) bool { return h.Bars() > 0 }

// ParseHorizon validates a raw horizon string.
func ParseHorizon(s string) (Horizon, error) {
	h := Horizon(s)
	if !IsValidHorizon(h) {
		return "", fmt.Errorf("unsupported horizon: %q", s)
	}
	return h, nil
}

// NormalizeHorizon converts raw string to a valid horizon (or 5d).
func NormalizeHorizon(s string) Horizon {
	if h, err := ParseHorizon(s); err == nil {
		return h
	}
	return H5d
}
