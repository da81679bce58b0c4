package util

import (
	"runtime"
	"strings"
)

// PeriodsPerYear returns the annualisation factor for a bar interval: the
// approximate number of bars in one trading year. Daily bars use the
// conventional 252 trading days; intraday intervals assume a 6.5 hour US
// session. Unrecognised intervals fall back to daily.
func PeriodsPerYear(interval string) float64 {
	switch strings.ToLower(interval) {
	case "1m":
		return 252 * 6.5 * 60
	case "5m":
		return 252 * 6.5 * 12
	case "15m":
		return 252 * 6.5 * 4
	case "30m":
		return 252 * 6.5 * 2
	case "1h":
		return 252 * 6.5
	case "4h":
		return 252 * 6.5 / 4
	case "1d", "":
		return 252
	default:
		return 252
	}
}

// Workers returns the default worker-pool size for CPU-bound fan-out work:
// one fewer than the available CPU count, never less than one.
func Workers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}
