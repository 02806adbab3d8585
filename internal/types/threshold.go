package types

import "time"

// Intensity grades how forceful an alert should be.
type Intensity int

const (
	IntensityMild Intensity = iota
	IntensityNormal
	IntensityHarsh
	IntensityCritical
)

// String returns the canonical lowercase name used in persistence and logs.
func (i Intensity) String() string {
	switch i {
	case IntensityMild:
		return "mild"
	case IntensityNormal:
		return "normal"
	case IntensityHarsh:
		return "harsh"
	case IntensityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseIntensity maps a persisted intensity name back to its value.
// Unrecognized names map to IntensityMild.
func ParseIntensity(s string) Intensity {
	switch s {
	case "normal":
		return IntensityNormal
	case "harsh":
		return IntensityHarsh
	case "critical":
		return IntensityCritical
	default:
		return IntensityMild
	}
}

// Threshold is one alert trigger point: cross Duration of foreground use in
// a day and an alert of the given intensity becomes due.
type Threshold struct {
	Duration  time.Duration
	Intensity Intensity
}

// DefaultThresholds returns the built-in threshold table, ascending by
// duration.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Duration: 30 * time.Minute, Intensity: IntensityMild},
		{Duration: 1 * time.Hour, Intensity: IntensityNormal},
		{Duration: 2 * time.Hour, Intensity: IntensityHarsh},
		{Duration: 4 * time.Hour, Intensity: IntensityCritical},
	}
}
