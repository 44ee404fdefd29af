package agents

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/config"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/observation"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// ResourceDetector flags sustained threshold breaches and upward drift per
// metric series. A series yields at most one sustained anomaly (critical wins
// over warning) and at most one drift anomaly.
type ResourceDetector struct {
	sustain    int
	drift      float64
	thresholds map[string]config.ThresholdConfig
}

// NewResourceDetector creates a detector from its configuration.
func NewResourceDetector(cfg config.ResourceDetectorConfig) *ResourceDetector {
	d := &ResourceDetector{
		sustain:    cfg.SustainSamples,
		drift:      cfg.DriftPerMinute,
		thresholds: make(map[string]config.ThresholdConfig, len(cfg.Thresholds)),
	}
	if d.sustain < 1 {
		d.sustain = 1
	}
	for _, t := range cfg.Thresholds {
		d.thresholds[t.Metric] = t
	}
	return d
}

func (d *ResourceDetector) Name() string { return blackboard.AgentResource }

// Run implements Detector.
func (d *ResourceDetector) Run(ctx context.Context, w *observation.Window) ([]blackboard.Finding, error) {
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

		if th, ok := d.thresholds[key.Name]; ok {
			if a := d.sustained(key, samples, th); a != nil {
				findings = append(findings, a)
			}
		}
		if a := d.drifting(key, samples); a != nil {
			findings = append(findings, a)
		}
	}
	return findings, nil
}

// sustained looks for a run of at least d.sustain consecutive samples at or
// above a threshold, checking critical before warning.
func (d *ResourceDetector) sustained(key observation.SeriesKey, samples []observation.Metric, th config.ThresholdConfig) *blackboard.Anomaly {
	levels := []struct {
		limit    float64
		typ      blackboard.AnomalyType
		severity blackboard.Severity
	}{
		{th.Critical, blackboard.AnomalySustainedResourceCritical, blackboard.SeverityCritical},
		{th.Warning, blackboard.AnomalySustainedResourceWarning, blackboard.SeverityMedium},
	}

	for _, lvl := range levels {
		run := longestRunAtOrAbove(samples, lvl.limit)
		if len(run) < d.sustain {
			continue
		}
		evidence := make([]string, len(run))
		var peak float64
		for i, m := range run {
			evidence[i] = m.ID
			peak = math.Max(peak, m.Value)
		}
		// Timestamped at the sample that completed the sustain requirement.
		at := run[d.sustain-1].Timestamp
		confidence := math.Min(0.99, 0.7+0.05*float64(len(run)-d.sustain+1))
		return newAnomaly(blackboard.AgentResource, lvl.typ, key.ResourceID, lvl.severity, confidence, at,
			fmt.Sprintf("%s at or above %v for %d samples (peak %v)", key, lvl.limit, len(run), peak),
			evidence...)
	}
	return nil
}

func longestRunAtOrAbove(samples []observation.Metric, limit float64) []observation.Metric {
	var best, cur []observation.Metric
	for _, m := range samples {
		if m.Value >= limit {
			cur = append(cur, m)
			if len(cur) > len(best) {
				best = cur
			}
			continue
		}
		cur = nil
	}
	return best
}

func (d *ResourceDetector) drifting(key observation.SeriesKey, samples []observation.Metric) *blackboard.Anomaly {
	if d.drift <= 0 || len(samples) < 3 {
		return nil
	}
	times := make([]time.Time, len(samples))
	values := make([]float64, len(samples))
	evidence := make([]string, len(samples))
	for i, m := range samples {
		times[i], values[i], evidence[i] = m.Timestamp, m.Value, m.ID
	}

	slope := slopePerMinute(times, values)
	if slope <= d.drift {
		return nil
	}
	ratio := slope / d.drift
	severity := blackboard.SeverityLow
	if ratio >= 2 {
		severity = blackboard.SeverityMedium
	}
	return newAnomaly(blackboard.AgentResource, blackboard.AnomalyResourceDrift, key.ResourceID, severity,
		math.Min(0.9, 0.5+0.1*ratio), samples[len(samples)-1].Timestamp,
		fmt.Sprintf("%s drifting %+.2f/min (limit %.2f/min)", key, slope, d.drift),
		evidence...)
}
