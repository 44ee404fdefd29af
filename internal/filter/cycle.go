package filter

import (
	"fmt"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// Criteria defines filtering criteria for completed cycles.
// All filters are ANDed together - a cycle must match ALL criteria to pass.
type Criteria struct {
	Since    time.Time            // zero = no filter
	Until    time.Time            // zero = no filter
	MinState blackboard.RiskState // cycles ranked at or above this state, empty = no filter
	MinScore float64              // 0 = no filter
	Agent    string               // agent that produced at least one finding, empty = no filter
}

// Validate rejects unknown risk states.
func (c *Criteria) Validate() error {
	if c.MinState != "" && c.MinState.Rank() < 0 {
		return fmt.Errorf("unknown risk state %q (valid: NORMAL, DEGRADED, AT_RISK, VIOLATION, INCIDENT)", c.MinState)
	}
	if c.MinScore < 0 || c.MinScore > 100 {
		return fmt.Errorf("min score must be in [0, 100], got %v", c.MinScore)
	}
	return nil
}

// Matches returns true if the cycle summary matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(s *blackboard.CycleSummary) bool {
	completed := s.StartedAt
	if s.CompletedAt != nil {
		completed = *s.CompletedAt
	}
	if !c.Since.IsZero() && completed.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && completed.After(c.Until) {
		return false
	}

	if c.MinState != "" && s.RiskState.Rank() < c.MinState.Rank() {
		return false
	}
	if c.MinScore > 0 && s.RiskScore < c.MinScore {
		return false
	}

	if c.Agent != "" {
		found := false
		for _, a := range s.Agents {
			if a == c.Agent {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return !c.Since.IsZero() ||
		!c.Until.IsZero() ||
		c.MinState != "" ||
		c.MinScore > 0 ||
		c.Agent != ""
}
