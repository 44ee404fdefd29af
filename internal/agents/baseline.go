package agents

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/observation"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// BaselineDetector compares the newest sample of each series with the mean and
// standard deviation of the samples before it.
type BaselineDetector struct {
	zThreshold float64
	minSamples int
}

// NewBaselineDetector creates a detector. minSamples counts the newest sample.
func NewBaselineDetector(zThreshold float64, minSamples int) *BaselineDetector {
	if minSamples < 3 {
		minSamples = 3
	}
	return &BaselineDetector{zThreshold: zThreshold, minSamples: minSamples}
}

func (d *BaselineDetector) Name() string { return blackboard.AgentBaseline }

// Run implements Detector.
func (d *BaselineDetector) Run(ctx context.Context, w *observation.Window) ([]blackboard.Finding, error) {
	series := w.Series()
	keys := make([]observation.SeriesKey, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	var findings []blackboard.Finding
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples := series[key]
		if len(samples) < d.minSamples {
			continue
		}

		history := make([]float64, len(samples)-1)
		for i, m := range samples[:len(samples)-1] {
			history[i] = m.Value
		}
		mean, std := meanStd(history)
		if std == 0 {
			continue
		}

		last := samples[len(samples)-1]
		z := (last.Value - mean) / std
		if math.Abs(z) < d.zThreshold {
			continue
		}

		severity := blackboard.SeverityMedium
		if math.Abs(z) >= 2*d.zThreshold {
			severity = blackboard.SeverityHigh
		}
		findings = append(findings, newAnomaly(blackboard.AgentBaseline, blackboard.AnomalyBaselineDeviation,
			key.ResourceID, severity, math.Abs(z)/(math.Abs(z)+1), last.Timestamp,
			fmt.Sprintf("%s = %v is %.1f standard deviations from its mean %.2f", key, last.Value, z, mean),
			last.ID))
	}
	return findings, nil
}
