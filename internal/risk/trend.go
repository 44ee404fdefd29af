package risk

import "github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"

// trendDeadband is the per-cycle slope below which scores count as stable.
const trendDeadband = 0.1

// slope is the least-squares slope of scores against their index, in points per cycle.
func slope(scores []float64) float64 {
	n := float64(len(scores))
	if len(scores) < 2 {
		return 0
	}
	var sx, sy, sxx, sxy float64
	for i, y := range scores {
		x := float64(i)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	return (n*sxy - sx*sy) / (n*sxx - sx*sx)
}

// TrendOf classifies the sign of the slope of scores (oldest first).
func TrendOf(scores []float64) blackboard.Trend {
	s := slope(scores)
	switch {
	case s > trendDeadband:
		return blackboard.TrendIncreasing
	case s < -trendDeadband:
		return blackboard.TrendDecreasing
	default:
		return blackboard.TrendStable
	}
}
