package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// FormatTable writes cycle summaries as a formatted table to the provided writer.
// The table includes columns: ID, STATE, SCORE, TREND, FINDINGS, LINKS, RECS and AGE.
// Returns the number of cycles formatted.
func FormatTable(w io.Writer, cycles []blackboard.CycleSummary, instanceName string, now time.Time) int {
	if len(cycles) == 0 {
		fmt.Fprintf(w, "No cycles found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Cycles for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-10s %6s %-10s %8s %6s %5s %s\n",
		"ID", "STATE", "SCORE", "TREND", "FINDINGS", "LINKS", "RECS", "AGE")
	fmt.Fprintf(w, "%-10s %-10s %6s %-10s %8s %6s %5s %s\n",
		"----------", "----------", "------", "----------", "--------", "------", "-----", "--------")

	for _, c := range cycles {
		fmt.Fprintf(w, "%-10s %-10s %6.2f %-10s %8d %6d %5d %s\n",
			formatID(c.ID),
			formatState(c.RiskState),
			c.RiskScore,
			formatTrend(c.Trend),
			c.Anomalies+c.PolicyHits,
			c.CausalLinks,
			c.Recommendations,
			formatAge(c.CompletedAt, now),
		)
	}

	countMsg := "cycle"
	if len(cycles) != 1 {
		countMsg = "cycles"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(cycles), countMsg)

	return len(cycles)
}

// FormatJSONL writes cycles as line-delimited JSON (JSONL) to the provided writer.
// Each cycle snapshot is written as a single JSON object on its own line.
func FormatJSONL(w io.Writer, cycles []*blackboard.CycleSnapshot) error {
	enc := json.NewEncoder(w)
	for _, c := range cycles {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes a single cycle as pretty-printed JSON to the provided writer.
func FormatSingleJSON(w io.Writer, cycle *blackboard.CycleSnapshot) error {
	data, err := json.MarshalIndent(cycle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cycle to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// FormatDetail writes a human-readable account of one cycle: its risk,
// findings, explanations and recommended actions.
func FormatDetail(w io.Writer, s *blackboard.CycleSnapshot) {
	fmt.Fprintf(w, "Cycle %s (%s)\n", s.Cycle.ID, s.Cycle.Status)
	fmt.Fprintf(w, "  started:   %s\n", s.Cycle.StartedAt.Format(time.RFC3339))
	if s.Cycle.CompletedAt != nil {
		fmt.Fprintf(w, "  completed: %s\n", s.Cycle.CompletedAt.Format(time.RFC3339))
	}
	if s.Cycle.FailureReason != "" {
		fmt.Fprintf(w, "  failure:   %s\n", s.Cycle.FailureReason)
	}

	if r := s.Risk; r != nil {
		fmt.Fprintf(w, "\nRisk: %.2f %s (delta %+.2f, %s)\n", r.RiskScore, r.RiskState, r.Delta, r.Trend)
		fmt.Fprintf(w, "  workflow %.2f  resource %.2f  compliance %.2f\n", r.WorkflowRisk, r.ResourceRisk, r.ComplianceRisk)
	}

	labels := make(map[string]string)
	if len(s.Anomalies)+len(s.PolicyHits) > 0 {
		fmt.Fprintf(w, "\nFindings:\n")
	}
	for _, a := range s.Anomalies {
		labels[a.ID] = fmt.Sprintf("%s on %s", a.Type, a.Entity)
		fmt.Fprintf(w, "  %-8s %-28s %-14s %-8s %s\n", formatID(a.ID), a.Type, formatEntity(a.Entity), a.Severity, a.Agent)
	}
	for _, h := range s.PolicyHits {
		labels[h.ID] = fmt.Sprintf("%s on %s", h.ViolationType, formatEntity(h.Entity))
		fmt.Fprintf(w, "  %-8s %-28s %-14s %-8s %s\n", formatID(h.ID), h.ViolationType, formatEntity(h.Entity), "policy", h.PolicyID)
	}

	if len(s.CausalLinks) > 0 {
		fmt.Fprintf(w, "\nCausal links:\n")
	}
	for _, l := range s.CausalLinks {
		cross := ""
		if l.Reasoning.CrossCycle {
			cross = " [prior cycle]"
		}
		fmt.Fprintf(w, "  %.2f  %s -> %s (%s)%s\n", l.Confidence, label(labels, l.CauseID, l.CauseKind), label(labels, l.EffectID, l.EffectKind), l.Reasoning, cross)
	}

	if len(s.Hypotheses) > 0 {
		fmt.Fprintf(w, "\nHypotheses:\n")
	}
	for _, h := range s.Hypotheses {
		fmt.Fprintf(w, "  %.2f  %s\n", h.Confidence, h.Statement)
	}

	if len(s.Recommendations) > 0 {
		fmt.Fprintf(w, "\nRecommendations:\n")
	}
	for _, r := range s.Recommendations {
		fmt.Fprintf(w, "  [%s] %s %s: %s\n", strings.ToUpper(string(r.Priority)), r.Action, r.Target, r.Rationale)
	}
}

// FormatRiskHistory writes the risk snapshots as a table, oldest first.
func FormatRiskHistory(w io.Writer, history []*blackboard.RiskSnapshot) int {
	if len(history) == 0 {
		fmt.Fprintln(w, "No risk history recorded")
		return 0
	}

	fmt.Fprintf(w, "%-20s %-10s %6s %7s %-10s %8s %8s %10s\n",
		"TIME", "STATE", "SCORE", "DELTA", "TREND", "WORKFLOW", "RESOURCE", "COMPLIANCE")
	for _, r := range history {
		fmt.Fprintf(w, "%-20s %-10s %6.2f %+7.2f %-10s %8.2f %8.2f %10.2f\n",
			r.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			formatState(r.RiskState),
			r.RiskScore,
			r.Delta,
			formatTrend(r.Trend),
			r.WorkflowRisk,
			r.ResourceRisk,
			r.ComplianceRisk,
		)
	}
	return len(history)
}

func label(labels map[string]string, id, kind string) string {
	if l, ok := labels[id]; ok {
		return l
	}
	return kind + " " + formatID(id)
}

// formatID truncates a UUID to its first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatEntity(entity string) string {
	if entity == "" {
		return "-"
	}
	if len(entity) > 14 {
		return entity[:11] + "..."
	}
	return entity
}

func formatState(s blackboard.RiskState) string {
	if s == "" {
		return "-"
	}
	return string(s)
}

func formatTrend(t blackboard.Trend) string {
	if t == "" {
		return "-"
	}
	return string(t)
}

// formatAge shows relative time like "2m ago", "1h ago", etc.
func formatAge(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}

	diff := now.Sub(*t)
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
