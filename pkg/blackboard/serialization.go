package blackboard

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Serialization helpers for converting between cycle snapshots and Redis hashes
//
// Scalar cycle fields are stored as individual hash fields so they can be read
// with HMGET; each finding section is JSON-encoded into a single field.

// CycleSnapshotToHash converts a completed cycle snapshot to a Redis hash.
func CycleSnapshotToHash(s *CycleSnapshot) (map[string]interface{}, error) {
	if s == nil {
		return nil, fmt.Errorf("snapshot cannot be nil")
	}

	hash := map[string]interface{}{
		"id":            s.Cycle.ID,
		"status":        string(s.Cycle.Status),
		"phase":         string(s.Cycle.Phase),
		"started_at_ms": s.Cycle.StartedAt.UnixMilli(),
	}

	if s.Cycle.CompletedAt != nil {
		hash["completed_at_ms"] = s.Cycle.CompletedAt.UnixMilli()
	} else {
		hash["completed_at_ms"] = int64(0)
	}

	sections := map[string]interface{}{
		"anomalies":       nonNil(s.Anomalies),
		"policy_hits":     nonNil(s.PolicyHits),
		"risk_signals":    nonNil(s.RiskSignals),
		"causal_links":    nonNil(s.CausalLinks),
		"hypotheses":      nonNil(s.Hypotheses),
		"recommendations": nonNil(s.Recommendations),
	}
	for field, v := range sections {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", field, err)
		}
		hash[field] = string(data)
	}

	if s.Risk != nil {
		riskJSON, err := json.Marshal(s.Risk)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal risk: %w", err)
		}
		hash["risk"] = string(riskJSON)
		hash["risk_score"] = strconv.FormatFloat(s.Risk.RiskScore, 'f', -1, 64)
		hash["risk_state"] = string(s.Risk.RiskState)
	} else {
		hash["risk"] = ""
		hash["risk_score"] = ""
		hash["risk_state"] = ""
	}

	return hash, nil
}

// HashToCycleSnapshot converts a Redis hash back to a cycle snapshot.
func HashToCycleSnapshot(hash map[string]string) (*CycleSnapshot, error) {
	if hash["id"] == "" {
		return nil, fmt.Errorf("cycle hash has no id")
	}

	startedMs, err := strconv.ParseInt(hash["started_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at_ms field: %w", err)
	}

	snap := &CycleSnapshot{
		Cycle: Cycle{
			ID:        hash["id"],
			Status:    CycleStatus(hash["status"]),
			Phase:     Phase(hash["phase"]),
			StartedAt: time.UnixMilli(startedMs).UTC(),
		},
	}

	if completedMs, _ := strconv.ParseInt(hash["completed_at_ms"], 10, 64); completedMs > 0 {
		t := time.UnixMilli(completedMs).UTC()
		snap.Cycle.CompletedAt = &t
	}

	decoders := []struct {
		field string
		into  interface{}
	}{
		{"anomalies", &snap.Anomalies},
		{"policy_hits", &snap.PolicyHits},
		{"risk_signals", &snap.RiskSignals},
		{"causal_links", &snap.CausalLinks},
		{"hypotheses", &snap.Hypotheses},
		{"recommendations", &snap.Recommendations},
	}
	for _, d := range decoders {
		raw := hash[d.field]
		if raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(raw), d.into); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", d.field, err)
		}
	}

	if riskJSON := hash["risk"]; riskJSON != "" {
		snap.Risk = &RiskSnapshot{}
		if err := json.Unmarshal([]byte(riskJSON), snap.Risk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal risk: %w", err)
		}
	}

	return snap, nil
}

// nonNil keeps empty sections encoded as [] rather than null.
func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
