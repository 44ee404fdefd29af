package agents

import (
	"math"
	"time"
)

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(values)-1))
}

// slopePerMinute is the least-squares slope of values against their
// timestamps, in value units per minute. Zero when fewer than two distinct times.
func slopePerMinute(times []time.Time, values []float64) float64 {
	n := len(values)
	if n < 2 || len(times) != n {
		return 0
	}
	origin := times[0]
	var sx, sy, sxx, sxy float64
	for i := range values {
		x := times[i].Sub(origin).Minutes()
		sx += x
		sy += values[i]
		sxx += x * x
		sxy += x * values[i]
	}
	den := float64(n)*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (float64(n)*sxy - sx*sy) / den
}
