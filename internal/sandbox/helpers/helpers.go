// Package helpers implements the fixed library of formatting, numeric, and
// HTML-building functions exposed to sandboxed scripts. Every function is
// pure: output depends only on arguments, and generated markup is sanitized
// before it leaves the library.
package helpers

import (
	"strconv"

	"gonum.org/v1/gonum/floats/scalar"
)

// Severity labels returned by ClassifyRange. Closed set.
const (
	SeverityCriticalLow  = "critical-low"
	SeverityLow          = "low"
	SeverityNormal       = "normal"
	SeverityHigh         = "high"
	SeverityCriticalHigh = "critical-high"
)

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	if places < 0 {
		places = 0
	}
	return scalar.Round(v, places)
}

// FormatNumber renders v with a fixed number of decimals.
func FormatNumber(v float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// Choose returns whenTrue if cond holds, whenFalse otherwise.
func Choose(cond bool, whenTrue, whenFalse string) string {
	if cond {
		return whenTrue
	}
	return whenFalse
}

// Pluralize selects the singular or plural form for a count.
func Pluralize(n float64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// ClassifyRange maps a value onto a severity label given the bounds
// criticalLow <= low <= high <= criticalHigh.
func ClassifyRange(v, criticalLow, low, high, criticalHigh float64) string {
	switch {
	case v < criticalLow:
		return SeverityCriticalLow
	case v < low:
		return SeverityLow
	case v > criticalHigh:
		return SeverityCriticalHigh
	case v > high:
		return SeverityHigh
	default:
		return SeverityNormal
	}
}
