package analysis

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseThreshold converts "200%" or "2" into a ratio
func ParseThreshold(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty threshold")
	}

	percent := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q: %w", s, err)
	}
	if percent {
		v /= 100
	}
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("threshold %q must be a positive ratio", s)
	}
	return v, nil
}

// FormatRatio renders a ratio the way thresholds are written, e.g. 2.5 -> "250%"
func FormatRatio(r float64) string {
	return strconv.FormatFloat(r*100, 'f', -1, 64) + "%"
}

// SeverityThreshold classifies how much worse a bench got, in percent
type SeverityThreshold struct {
	Unit     string  `json:"unit"`
	Minor    float64 `json:"minor"`
	Major    float64 `json:"major"`
	Critical float64 `json:"critical"`
}

// Severity levels
const (
	SeverityLow      = "low"
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

func defaultSeverityThresholds() map[string]SeverityThreshold {
	return map[string]SeverityThreshold{
		"default": {Minor: 10, Major: 50, Critical: 100},
		// allocation counts are noisy only in the extremes
		"allocs/op": {Minor: 5, Major: 25, Critical: 50},
	}
}

// severityFor maps a worsening percentage to a level
func severityFor(t SeverityThreshold, worse float64) string {
	switch {
	case worse >= t.Critical:
		return SeverityCritical
	case worse >= t.Major:
		return SeverityMajor
	case worse >= t.Minor:
		return SeverityMinor
	}
	return SeverityLow
}
