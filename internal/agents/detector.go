// Package agents contains the detector plug-in contract and the built-in
// detectors run during PHASE_DETECT.
//
// A detector is a pure function of its observation window: it reads the
// window, returns findings, and touches nothing else. The orchestrator
// appends the returned findings to the blackboard on the detector's behalf,
// so section authorization is still checked against Name().
package agents

import (
	"context"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/config"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/observation"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// Detector analyzes one observation window and returns Anomaly or PolicyHit findings.
type Detector interface {
	// Name is the agent identity stamped on every finding.
	Name() string

	// Run must not retain or mutate w, and should return promptly once ctx is done.
	Run(ctx context.Context, w *observation.Window) ([]blackboard.Finding, error)
}

// FromConfig builds the enabled built-in detectors in a fixed order.
func FromConfig(cfg *config.DetectorsConfig) []Detector {
	var detectors []Detector
	if *cfg.Workflow.Enabled {
		detectors = append(detectors, NewWorkflowDetector(cfg.Workflow.Workflows))
	}
	if *cfg.Resource.Enabled {
		detectors = append(detectors, NewResourceDetector(*cfg.Resource))
	}
	if *cfg.Compliance.Enabled {
		detectors = append(detectors, NewComplianceDetector(cfg.Compliance.Policies))
	}
	if *cfg.Baseline.Enabled {
		detectors = append(detectors, NewBaselineDetector(cfg.Baseline.ZThreshold, cfg.Baseline.MinSamples))
	}
	return detectors
}
