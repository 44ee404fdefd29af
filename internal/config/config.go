package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CognicoreConfig represents the top-level cognicore.yml configuration
type CognicoreConfig struct {
	Version      string              `yaml:"version"`
	Instance     string              `yaml:"instance,omitempty"`
	Redis        *RedisConfig        `yaml:"redis,omitempty"`
	Orchestrator *OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Risk         *RiskConfig         `yaml:"risk,omitempty"`
	Causal       *CausalConfig       `yaml:"causal,omitempty"`
	Detectors    *DetectorsConfig    `yaml:"detectors,omitempty"`
}

// RedisConfig locates the Redis server used for observations and history.
type RedisConfig struct {
	URL string `yaml:"url,omitempty"` // redis://host:port/db
}

// OrchestratorConfig specifies cycle scheduling
type OrchestratorConfig struct {
	CycleInterval time.Duration `yaml:"cycle_interval,omitempty"` // default 60s
	Window        time.Duration `yaml:"window,omitempty"`         // observation window per cycle, default 5m
	AgentTimeout  time.Duration `yaml:"agent_timeout,omitempty"`  // per detector, default 10s
	HealthAddr    string        `yaml:"health_addr,omitempty"`    // default ":8080", "off" disables
	HistorySize   *int          `yaml:"history_size,omitempty"`   // completed cycles retained, default 100
}

// RiskConfig tunes the risk index engine. Weights and the contribution table are fixed.
type RiskConfig struct {
	Baseline    *float64 `yaml:"baseline,omitempty"`     // floor score, default 20
	TrendWindow int      `yaml:"trend_window,omitempty"` // snapshots used for trend, default 10
	HistorySize int      `yaml:"history_size,omitempty"` // snapshots retained, default 100
}

// CausalConfig tunes the causal inference engine.
type CausalConfig struct {
	CorrelationWindow time.Duration   `yaml:"correlation_window,omitempty"` // default 10m
	Lookback          time.Duration   `yaml:"lookback,omitempty"`           // prior cycle tail, 0 disables
	MaxChainDepth     int             `yaml:"max_chain_depth,omitempty"`    // default 5
	Patterns          []PatternConfig `yaml:"patterns,omitempty"`           // added to or overriding the built-in table
}

// PatternConfig is one (cause kind, effect kind) row of the causal pattern table.
type PatternConfig struct {
	Cause          string   `yaml:"cause"`
	Effect         string   `yaml:"effect"`
	BaseConfidence float64  `yaml:"base_confidence"`
	Decay          *float64 `yaml:"decay,omitempty"`
}

// DetectorsConfig configures the built-in detector agents.
type DetectorsConfig struct {
	Workflow   *WorkflowDetectorConfig   `yaml:"workflow,omitempty"`
	Resource   *ResourceDetectorConfig   `yaml:"resource,omitempty"`
	Compliance *ComplianceDetectorConfig `yaml:"compliance,omitempty"`
	Baseline   *BaselineDetectorConfig   `yaml:"baseline,omitempty"`
}

// WorkflowDetectorConfig lists the workflows whose step order and timing are checked.
type WorkflowDetectorConfig struct {
	Enabled   *bool                `yaml:"enabled,omitempty"`
	Workflows []WorkflowDefinition `yaml:"workflows,omitempty"`
}

// WorkflowDefinition describes the expected steps of one workflow type.
type WorkflowDefinition struct {
	Name  string       `yaml:"name"`
	Match string       `yaml:"match,omitempty"` // workflow id prefix, defaults to name
	Steps []StepConfig `yaml:"steps"`
}

// StepConfig is one expected step. MaxDuration bounds the gap since the previous step.
type StepConfig struct {
	Name        string        `yaml:"name"`
	MaxDuration time.Duration `yaml:"max_duration,omitempty"`
}

// ResourceDetectorConfig sets per-metric thresholds.
type ResourceDetectorConfig struct {
	Enabled        *bool             `yaml:"enabled,omitempty"`
	SustainSamples int               `yaml:"sustain_samples,omitempty"`  // default 3
	DriftPerMinute float64           `yaml:"drift_per_minute,omitempty"` // 0 disables drift
	Thresholds     []ThresholdConfig `yaml:"thresholds,omitempty"`
}

// ThresholdConfig applies to every series with the given metric name.
type ThresholdConfig struct {
	Metric   string  `yaml:"metric"`
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// ComplianceDetectorConfig holds the data-driven policy set.
type ComplianceDetectorConfig struct {
	Enabled  *bool          `yaml:"enabled,omitempty"`
	Policies []PolicyConfig `yaml:"policies,omitempty"`
}

// PolicyConfig matches events that violate a policy. All given conditions must hold.
type PolicyConfig struct {
	ID            string            `yaml:"id"`
	ViolationType string            `yaml:"violation_type"`
	EventTypes    []string          `yaml:"event_types,omitempty"`
	Where         map[string]string `yaml:"where,omitempty"`     // attribute equals value
	WhereNot      map[string]string `yaml:"where_not,omitempty"` // attribute absent or different
	OutsideHours  *HourRange        `yaml:"outside_hours,omitempty"`
	Confidence    float64           `yaml:"confidence,omitempty"` // default 0.95
}

// HourRange is a UTC business-hours range [Start, End).
type HourRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// BaselineDetectorConfig tunes z-score deviation detection.
type BaselineDetectorConfig struct {
	Enabled    *bool   `yaml:"enabled,omitempty"`
	ZThreshold float64 `yaml:"z_threshold,omitempty"` // default 3
	MinSamples int     `yaml:"min_samples,omitempty"` // default 8
}

// Default returns a validated configuration with every default applied.
func Default() *CognicoreConfig {
	c := &CognicoreConfig{Version: "1.0"}
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return c
}

// Validate performs strict validation on the configuration and fills in
// defaults for omitted sections.
func (c *CognicoreConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		c.Instance = "default"
	}
	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379"
	}

	if c.Orchestrator == nil {
		c.Orchestrator = &OrchestratorConfig{}
	}
	if err := c.Orchestrator.validate(); err != nil {
		return err
	}

	if c.Risk == nil {
		c.Risk = &RiskConfig{}
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}

	if c.Causal == nil {
		c.Causal = &CausalConfig{}
	}
	if err := c.Causal.validate(); err != nil {
		return err
	}

	if c.Detectors == nil {
		c.Detectors = &DetectorsConfig{}
	}
	return c.Detectors.validate()
}

func (o *OrchestratorConfig) validate() error {
	if o.CycleInterval == 0 {
		o.CycleInterval = 60 * time.Second
	}
	if o.Window == 0 {
		o.Window = 5 * time.Minute
	}
	if o.AgentTimeout == 0 {
		o.AgentTimeout = 10 * time.Second
	}
	if o.HealthAddr == "" {
		o.HealthAddr = ":8080"
	}
	if o.HistorySize == nil {
		defaultHistory := 100
		o.HistorySize = &defaultHistory
	}

	if o.CycleInterval < 0 || o.Window < 0 || o.AgentTimeout < 0 {
		return fmt.Errorf("orchestrator durations must be positive")
	}
	if *o.HistorySize < 1 {
		return fmt.Errorf("orchestrator.history_size must be >= 1, got %d", *o.HistorySize)
	}
	if o.AgentTimeout >= o.CycleInterval {
		return fmt.Errorf("orchestrator.agent_timeout (%s) must be shorter than cycle_interval (%s)", o.AgentTimeout, o.CycleInterval)
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.Baseline == nil {
		defaultBaseline := 20.0
		r.Baseline = &defaultBaseline
	}
	if r.TrendWindow == 0 {
		r.TrendWindow = 10
	}
	if r.HistorySize == 0 {
		r.HistorySize = 100
	}

	if *r.Baseline <= 0 || *r.Baseline >= 100 {
		return fmt.Errorf("risk.baseline must be in (0, 100), got %v", *r.Baseline)
	}
	if r.TrendWindow < 2 {
		return fmt.Errorf("risk.trend_window must be >= 2, got %d", r.TrendWindow)
	}
	if r.HistorySize < r.TrendWindow {
		return fmt.Errorf("risk.history_size (%d) must be >= trend_window (%d)", r.HistorySize, r.TrendWindow)
	}
	return nil
}

func (c *CausalConfig) validate() error {
	if c.CorrelationWindow == 0 {
		c.CorrelationWindow = 10 * time.Minute
	}
	if c.MaxChainDepth == 0 {
		c.MaxChainDepth = 5
	}

	if c.CorrelationWindow < 0 {
		return fmt.Errorf("causal.correlation_window must be positive")
	}
	if c.Lookback < 0 {
		return fmt.Errorf("causal.lookback cannot be negative")
	}
	if c.MaxChainDepth < 1 {
		return fmt.Errorf("causal.max_chain_depth must be >= 1, got %d", c.MaxChainDepth)
	}
	for i, p := range c.Patterns {
		if p.Cause == "" || p.Effect == "" {
			return fmt.Errorf("causal.patterns[%d]: cause and effect are required", i)
		}
		if p.BaseConfidence <= 0 || p.BaseConfidence > 1 {
			return fmt.Errorf("causal.patterns[%d] (%s->%s): base_confidence must be in (0, 1], got %v", i, p.Cause, p.Effect, p.BaseConfidence)
		}
		if p.Decay != nil && *p.Decay <= 0 {
			return fmt.Errorf("causal.patterns[%d] (%s->%s): decay must be positive", i, p.Cause, p.Effect)
		}
	}
	return nil
}

func (d *DetectorsConfig) validate() error {
	if d.Workflow == nil {
		d.Workflow = &WorkflowDetectorConfig{}
	}
	if d.Resource == nil {
		d.Resource = &ResourceDetectorConfig{}
	}
	if d.Compliance == nil {
		d.Compliance = &ComplianceDetectorConfig{}
	}
	if d.Baseline == nil {
		d.Baseline = &BaselineDetectorConfig{}
	}

	if err := d.Workflow.validate(); err != nil {
		return err
	}
	if err := d.Resource.validate(); err != nil {
		return err
	}
	if err := d.Compliance.validate(); err != nil {
		return err
	}
	return d.Baseline.validate()
}

func (w *WorkflowDetectorConfig) validate() error {
	w.Enabled = defaultTrue(w.Enabled)

	names := make(map[string]bool)
	for i := range w.Workflows {
		wf := &w.Workflows[i]
		if wf.Name == "" {
			return fmt.Errorf("detectors.workflow.workflows[%d]: name is required", i)
		}
		if names[wf.Name] {
			return fmt.Errorf("duplicate workflow '%s'", wf.Name)
		}
		names[wf.Name] = true
		if wf.Match == "" {
			wf.Match = wf.Name
		}
		if len(wf.Steps) < 2 {
			return fmt.Errorf("workflow '%s': at least two steps are required", wf.Name)
		}
		seen := make(map[string]bool)
		for _, s := range wf.Steps {
			if s.Name == "" {
				return fmt.Errorf("workflow '%s': step name is required", wf.Name)
			}
			if seen[s.Name] {
				return fmt.Errorf("workflow '%s': duplicate step '%s'", wf.Name, s.Name)
			}
			seen[s.Name] = true
			if s.MaxDuration < 0 {
				return fmt.Errorf("workflow '%s' step '%s': max_duration cannot be negative", wf.Name, s.Name)
			}
		}
	}
	return nil
}

func (r *ResourceDetectorConfig) validate() error {
	r.Enabled = defaultTrue(r.Enabled)
	if r.SustainSamples == 0 {
		r.SustainSamples = 3
	}
	if len(r.Thresholds) == 0 {
		r.Thresholds = []ThresholdConfig{
			{Metric: "cpu", Warning: 75, Critical: 90},
			{Metric: "memory", Warning: 80, Critical: 95},
			{Metric: "disk", Warning: 85, Critical: 95},
		}
	}

	if r.SustainSamples < 1 {
		return fmt.Errorf("detectors.resource.sustain_samples must be >= 1, got %d", r.SustainSamples)
	}
	if r.DriftPerMinute < 0 {
		return fmt.Errorf("detectors.resource.drift_per_minute cannot be negative")
	}
	for _, t := range r.Thresholds {
		if t.Metric == "" {
			return fmt.Errorf("detectors.resource.thresholds: metric is required")
		}
		if t.Warning <= 0 {
			return fmt.Errorf("threshold '%s': warning must be positive, got %v", t.Metric, t.Warning)
		}
		if t.Warning >= t.Critical {
			return fmt.Errorf("threshold '%s': warning (%v) must be below critical (%v)", t.Metric, t.Warning, t.Critical)
		}
	}
	return nil
}

func (c *ComplianceDetectorConfig) validate() error {
	c.Enabled = defaultTrue(c.Enabled)
	if len(c.Policies) == 0 {
		c.Policies = DefaultPolicies()
	}

	ids := make(map[string]bool)
	for i := range c.Policies {
		p := &c.Policies[i]
		if p.ID == "" {
			return fmt.Errorf("detectors.compliance.policies[%d]: id is required", i)
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate policy id '%s'", p.ID)
		}
		ids[p.ID] = true
		if p.ViolationType == "" {
			return fmt.Errorf("policy '%s': violation_type is required", p.ID)
		}
		if len(p.EventTypes) == 0 && len(p.Where) == 0 && len(p.WhereNot) == 0 && p.OutsideHours == nil {
			return fmt.Errorf("policy '%s': at least one condition is required", p.ID)
		}
		if h := p.OutsideHours; h != nil {
			if h.Start < 0 || h.Start > 23 || h.End < 1 || h.End > 24 || h.Start >= h.End {
				return fmt.Errorf("policy '%s': invalid outside_hours %d-%d", p.ID, h.Start, h.End)
			}
		}
		if p.Confidence == 0 {
			p.Confidence = 0.95
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			return fmt.Errorf("policy '%s': confidence must be in [0, 1], got %v", p.ID, p.Confidence)
		}
	}
	return nil
}

func (b *BaselineDetectorConfig) validate() error {
	b.Enabled = defaultTrue(b.Enabled)
	if b.ZThreshold == 0 {
		b.ZThreshold = 3
	}
	if b.MinSamples == 0 {
		b.MinSamples = 8
	}

	if b.ZThreshold < 0 {
		return fmt.Errorf("detectors.baseline.z_threshold cannot be negative")
	}
	if b.MinSamples < 3 {
		return fmt.Errorf("detectors.baseline.min_samples must be >= 3, got %d", b.MinSamples)
	}
	return nil
}

// DefaultPolicies is the policy set used when none are configured.
func DefaultPolicies() []PolicyConfig {
	return []PolicyConfig{
		{
			ID:            "write-requires-approval",
			ViolationType: "WRITE_WITHOUT_APPROVAL",
			EventTypes:    []string{"WRITE"},
			WhereNot:      map[string]string{"approved": "true"},
			Confidence:    0.95,
		},
		{
			ID:            "business-hours-access",
			ViolationType: "AFTER_HOURS_ACCESS",
			EventTypes:    []string{"ACCESS"},
			OutsideHours:  &HourRange{Start: 8, End: 18},
			Confidence:    0.8,
		},
		{
			ID:            "no-shared-credentials",
			ViolationType: "CREDENTIAL_SHARING",
			EventTypes:    []string{"ACCESS", "LOGIN"},
			Where:         map[string]string{"credential_shared": "true"},
			Confidence:    0.95,
		},
	}
}

func defaultTrue(b *bool) *bool {
	if b == nil {
		v := true
		return &v
	}
	return b
}

// ApplyEnv overrides file values with COGNICORE_INSTANCE and REDIS_URL when set.
func (c *CognicoreConfig) ApplyEnv(getenv func(string) string) {
	if v := getenv("COGNICORE_INSTANCE"); v != "" {
		c.Instance = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.URL = v
	}
}

// Load reads and validates cognicore.yml from the specified path
func Load(path string) (*CognicoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config CognicoreConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
