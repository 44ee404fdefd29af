package blackboard

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultHistorySize is how many completed cycles the store retains.
const DefaultHistorySize = 100

// PersistenceSink receives every completed cycle exactly once.
// Delivery is fire-and-forget: the sink logs its own failures and the store
// never retries.
type PersistenceSink interface {
	Persist(ctx context.Context, snapshot *CycleSnapshot)
}

// Store is the in-process blackboard. It holds at most one open cycle and a
// bounded FIFO history of completed cycles.
//
// Writes to one section of one cycle are serialized by that section's lock,
// held only for the duration of a single append. Readers never take the lock:
// each section publishes an immutable slice through an atomic pointer and
// readers get clones of its entries.
type Store struct {
	mu          sync.RWMutex
	cycles      map[string]*cycleState
	openID      string
	completed   []string // completed cycle ids, oldest first
	aborted     []string // aborted cycle ids, oldest first
	historySize int

	authzMu sync.RWMutex
	authz   map[string]map[Section]bool

	sink PersistenceSink
}

type cycleState struct {
	metaMu sync.Mutex
	cycle  Cycle

	phase    atomic.Int32
	closed   atomic.Bool
	sections map[Section]*section // fixed at cycle start
	risk     atomic.Pointer[RiskSnapshot]
	snapshot *CycleSnapshot // set once on completion, guarded by metaMu
}

type section struct {
	mu         sync.Mutex
	entries    atomic.Pointer[[]entry]
	policyKeys map[string]struct{}
}

type entry struct {
	finding Finding
	phase   int32 // ordinal of the cycle phase at append time
}

// NewStore creates a store. sink may be nil; historySize <= 0 selects
// DefaultHistorySize. The default section authorizations are installed.
func NewStore(sink PersistenceSink, historySize int) *Store {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	s := &Store{
		cycles:      make(map[string]*cycleState),
		historySize: historySize,
		authz:       make(map[string]map[Section]bool),
		sink:        sink,
	}
	for agent, sections := range DefaultAuthorizations() {
		s.Authorize(agent, sections...)
	}
	return s
}

// DefaultAuthorizations maps each built-in producer to the sections its role may write.
func DefaultAuthorizations() map[string][]Section {
	return map[string][]Section{
		AgentWorkflow:   {SectionAnomalies},
		AgentResource:   {SectionAnomalies},
		AgentBaseline:   {SectionAnomalies},
		AgentCompliance: {SectionPolicyHits},
		AgentRisk:       {SectionRiskSignals},
		AgentCausal:     {SectionCausalLinks},
		AgentSynthesis:  {SectionHypotheses, SectionRecommendations},
	}
}

// Authorize grants agent write access to the given sections.
func (s *Store) Authorize(agent string, sections ...Section) {
	s.authzMu.Lock()
	defer s.authzMu.Unlock()

	granted, ok := s.authz[agent]
	if !ok {
		granted = make(map[Section]bool)
		s.authz[agent] = granted
	}
	for _, sec := range sections {
		granted[sec] = true
	}
}

// IsAuthorized reports whether agent may write section.
func (s *Store) IsAuthorized(agent string, sec Section) bool {
	s.authzMu.RLock()
	defer s.authzMu.RUnlock()
	return s.authz[agent][sec]
}

// StartCycle opens a new cycle. Fails with ConcurrentCycleError if one is already open.
func (s *Store) StartCycle() (CycleHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openID != "" {
		return CycleHandle{}, &ConcurrentCycleError{OpenCycleID: s.openID}
	}

	cs := &cycleState{
		cycle: Cycle{
			ID:        uuid.New().String(),
			StartedAt: time.Now().UTC(),
			Status:    CycleStatusOpen,
			Phase:     PhaseOpen,
		},
		sections: make(map[Section]*section, len(AllSections())),
	}
	cs.phase.Store(int32(PhaseOpen.Ordinal()))
	for _, sec := range AllSections() {
		sc := &section{}
		empty := []entry{}
		sc.entries.Store(&empty)
		if sec == SectionPolicyHits {
			sc.policyKeys = make(map[string]struct{})
		}
		cs.sections[sec] = sc
	}

	s.cycles[cs.cycle.ID] = cs
	s.openID = cs.cycle.ID

	return CycleHandle{ID: cs.cycle.ID, StartedAt: cs.cycle.StartedAt}, nil
}

func (s *Store) lookup(cycleID string) (*cycleState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, ok := s.cycles[cycleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCycleNotFound, cycleID)
	}
	return cs, nil
}

func (cs *cycleState) closedError() error {
	cs.metaMu.Lock()
	defer cs.metaMu.Unlock()
	return &CycleClosedError{CycleID: cs.cycle.ID, Status: cs.cycle.Status}
}

// AdvancePhase moves an open cycle forward to phase. Moving backwards, staying
// put, or advancing to CLOSED (use CompleteCycle) is an error.
func (s *Store) AdvancePhase(cycleID string, phase Phase) error {
	cs, err := s.lookup(cycleID)
	if err != nil {
		return err
	}

	cs.metaMu.Lock()
	defer cs.metaMu.Unlock()

	if cs.closed.Load() {
		return &CycleClosedError{CycleID: cycleID, Status: cs.cycle.Status}
	}
	if phase.Ordinal() < 0 || phase == PhaseClosed {
		return fmt.Errorf("cannot advance cycle %s to phase %q", cycleID, phase)
	}
	if !cs.cycle.Phase.Before(phase) {
		return fmt.Errorf("cannot move cycle %s from %s back to %s", cycleID, cs.cycle.Phase, phase)
	}

	cs.cycle.Phase = phase
	cs.phase.Store(int32(phase.Ordinal()))
	return nil
}

// Append validates f and appends it to section of the cycle, returning the
// finding's id. The store keeps its own copy; later changes to f are not seen.
//
// Errors: ErrCycleNotFound, *CycleClosedError, *UnauthorizedSectionError,
// ErrMissingEvidence, ErrInvalidFinding, ErrDuplicatePolicyHit.
func (s *Store) Append(cycleID string, sec Section, f Finding) (string, error) {
	if f == nil {
		return "", fmt.Errorf("%w: nil finding", ErrInvalidFinding)
	}
	if err := sec.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFinding, err)
	}

	cs, err := s.lookup(cycleID)
	if err != nil {
		return "", err
	}
	if cs.closed.Load() {
		return "", cs.closedError()
	}

	if f.Section() != sec {
		return "", fmt.Errorf("%w: %T belongs to section %q, not %q", ErrInvalidFinding, f, f.Section(), sec)
	}

	agent := f.Base().Agent
	if !s.IsAuthorized(agent, sec) {
		return "", &UnauthorizedSectionError{Agent: agent, Section: sec}
	}

	owned := f.Clone()
	base := owned.Base()
	if base.CycleID != "" && base.CycleID != cycleID {
		return "", fmt.Errorf("%w: finding belongs to cycle %s", ErrInvalidFinding, base.CycleID)
	}
	base.CycleID = cycleID
	if base.ID == "" {
		base.ID = uuid.New().String()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now().UTC()
	}
	if err := owned.Validate(); err != nil {
		return "", err
	}

	sc := cs.sections[sec]
	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Re-checked under the section lock: CompleteCycle sets closed before
	// draining section locks, so no append can land after the freeze.
	if cs.closed.Load() {
		return "", cs.closedError()
	}

	if hit, ok := owned.(*PolicyHit); ok {
		key := hit.DedupKey()
		if _, dup := sc.policyKeys[key]; dup {
			return "", fmt.Errorf("%w: policy %s event %s", ErrDuplicatePolicyHit, hit.PolicyID, hit.EventID)
		}
		sc.policyKeys[key] = struct{}{}
	}

	old := *sc.entries.Load()
	next := make([]entry, len(old), len(old)+1)
	copy(next, old)
	next = append(next, entry{finding: owned, phase: cs.phase.Load()})
	sc.entries.Store(&next)

	return base.ID, nil
}

// Read returns a snapshot of section. While the cycle is open only entries
// appended in a phase strictly before the cycle's current phase are visible;
// once the cycle is closed every entry is.
func (s *Store) Read(cycleID string, sec Section) ([]Finding, error) {
	if err := sec.Validate(); err != nil {
		return nil, err
	}
	cs, err := s.lookup(cycleID)
	if err != nil {
		return nil, err
	}

	visibleAll := cs.closed.Load()
	current := cs.phase.Load()

	entries := *cs.sections[sec].entries.Load()
	out := make([]Finding, 0, len(entries))
	for _, e := range entries {
		if !visibleAll && e.phase >= current {
			continue
		}
		out = append(out, e.finding.Clone())
	}
	return out, nil
}

// ReadSection is Read with the result narrowed to one finding type.
func ReadSection[T Finding](s *Store, cycleID string, sec Section) ([]T, error) {
	findings, err := s.Read(cycleID, sec)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(findings))
	for _, f := range findings {
		if t, ok := f.(T); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// AttachRisk records the cycle's risk snapshot. Only an agent authorized for
// the risk_signals section may attach it, and only once per cycle.
func (s *Store) AttachRisk(cycleID, agent string, snap *RiskSnapshot) error {
	if snap == nil {
		return fmt.Errorf("risk snapshot cannot be nil")
	}
	if !s.IsAuthorized(agent, SectionRiskSignals) {
		return &UnauthorizedSectionError{Agent: agent, Section: SectionRiskSignals}
	}
	cs, err := s.lookup(cycleID)
	if err != nil {
		return err
	}
	if cs.closed.Load() {
		return cs.closedError()
	}

	owned := snap.Clone()
	owned.CycleID = cycleID
	if !cs.risk.CompareAndSwap(nil, owned) {
		return fmt.Errorf("cycle %s already has a risk snapshot", cycleID)
	}
	return nil
}

// Risk returns the cycle's risk snapshot, if attached.
func (s *Store) Risk(cycleID string) (*RiskSnapshot, error) {
	cs, err := s.lookup(cycleID)
	if err != nil {
		return nil, err
	}
	return cs.risk.Load().Clone(), nil
}

// CompleteCycle freezes every section, stamps completed_at, moves the cycle
// into history and hands the snapshot to the persistence sink.
func (s *Store) CompleteCycle(ctx context.Context, cycleID string) (*CycleSnapshot, error) {
	cs, err := s.lookup(cycleID)
	if err != nil {
		return nil, err
	}
	if !cs.closed.CompareAndSwap(false, true) {
		return nil, cs.closedError()
	}

	// Drain in-flight appends.
	for _, sec := range AllSections() {
		sc := cs.sections[sec]
		sc.mu.Lock()
		sc.mu.Unlock() //nolint:staticcheck // barrier
	}

	cs.metaMu.Lock()
	completedAt := time.Now().UTC()
	cs.cycle.CompletedAt = &completedAt
	cs.cycle.Status = CycleStatusComplete
	cs.cycle.Phase = PhaseClosed
	cs.phase.Store(int32(PhaseClosed.Ordinal()))
	snap := cs.buildSnapshot()
	cs.snapshot = snap
	cs.metaMu.Unlock()

	s.mu.Lock()
	if s.openID == cycleID {
		s.openID = ""
	}
	s.completed = append(s.completed, cycleID)
	for len(s.completed) > s.historySize {
		evicted := s.completed[0]
		s.completed = s.completed[1:]
		delete(s.cycles, evicted)
	}
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.Persist(ctx, snap.Clone())
	}

	return snap.Clone(), nil
}

// buildSnapshot must be called with metaMu held after the cycle is closed.
func (cs *cycleState) buildSnapshot() *CycleSnapshot {
	snap := &CycleSnapshot{Cycle: cs.cycle, Risk: cs.risk.Load().Clone()}
	if cs.cycle.CompletedAt != nil {
		t := *cs.cycle.CompletedAt
		snap.Cycle.CompletedAt = &t
	}
	for _, sec := range AllSections() {
		for _, e := range *cs.sections[sec].entries.Load() {
			switch f := e.finding.Clone().(type) {
			case *Anomaly:
				snap.Anomalies = append(snap.Anomalies, f)
			case *PolicyHit:
				snap.PolicyHits = append(snap.PolicyHits, f)
			case *RiskSignal:
				snap.RiskSignals = append(snap.RiskSignals, f)
			case *CausalLink:
				snap.CausalLinks = append(snap.CausalLinks, f)
			case *Hypothesis:
				snap.Hypotheses = append(snap.Hypotheses, f)
			case *Recommendation:
				snap.Recommendations = append(snap.Recommendations, f)
			}
		}
	}
	return snap
}

// AbortCycle marks an open cycle as failed without completing it. The cycle
// stays discoverable through Cycle but never enters completed history, and
// the store becomes free to open a new cycle.
func (s *Store) AbortCycle(cycleID, reason string) error {
	cs, err := s.lookup(cycleID)
	if err != nil {
		return err
	}
	if !cs.closed.CompareAndSwap(false, true) {
		return cs.closedError()
	}

	for _, sec := range AllSections() {
		sc := cs.sections[sec]
		sc.mu.Lock()
		sc.mu.Unlock() //nolint:staticcheck // barrier
	}

	cs.metaMu.Lock()
	cs.cycle.Status = CycleStatusAborted
	cs.cycle.FailureReason = reason
	cs.metaMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openID == cycleID {
		s.openID = ""
	}
	s.aborted = append(s.aborted, cycleID)
	for len(s.aborted) > s.historySize {
		evicted := s.aborted[0]
		s.aborted = s.aborted[1:]
		delete(s.cycles, evicted)
	}

	log.Printf("[Blackboard] Cycle %s aborted: %s", cycleID, reason)
	return nil
}

// Cycle returns the current metadata of any retained cycle (open, complete or aborted).
func (s *Store) Cycle(cycleID string) (Cycle, error) {
	cs, err := s.lookup(cycleID)
	if err != nil {
		return Cycle{}, err
	}
	cs.metaMu.Lock()
	defer cs.metaMu.Unlock()

	c := cs.cycle
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		c.CompletedAt = &t
	}
	return c, nil
}

// OpenCycle returns the currently open cycle, if any.
func (s *Store) OpenCycle() (Cycle, bool) {
	s.mu.RLock()
	id := s.openID
	s.mu.RUnlock()
	if id == "" {
		return Cycle{}, false
	}
	c, err := s.Cycle(id)
	if err != nil {
		return Cycle{}, false
	}
	return c, true
}

// Snapshot returns the snapshot of a completed cycle. Open and aborted cycles
// yield ErrCycleNotFound.
func (s *Store) Snapshot(cycleID string) (*CycleSnapshot, error) {
	cs, err := s.lookup(cycleID)
	if err != nil {
		return nil, err
	}
	cs.metaMu.Lock()
	defer cs.metaMu.Unlock()
	if cs.snapshot == nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrCycleNotFound, cycleID, cs.cycle.Status)
	}
	return cs.snapshot.Clone(), nil
}

// History returns completed cycles, oldest first.
func (s *Store) History() []*CycleSnapshot {
	s.mu.RLock()
	ids := append([]string(nil), s.completed...)
	s.mu.RUnlock()

	out := make([]*CycleSnapshot, 0, len(ids))
	for _, id := range ids {
		if snap, err := s.Snapshot(id); err == nil {
			out = append(out, snap)
		}
	}
	return out
}

// LastCompleted returns the most recently completed cycle.
func (s *Store) LastCompleted() (*CycleSnapshot, bool) {
	s.mu.RLock()
	if len(s.completed) == 0 {
		s.mu.RUnlock()
		return nil, false
	}
	id := s.completed[len(s.completed)-1]
	s.mu.RUnlock()

	snap, err := s.Snapshot(id)
	if err != nil {
		return nil, false
	}
	return snap, true
}

// AbortedCycles returns the retained aborted cycles, oldest first.
func (s *Store) AbortedCycles() []Cycle {
	s.mu.RLock()
	ids := append([]string(nil), s.aborted...)
	s.mu.RUnlock()

	out := make([]Cycle, 0, len(ids))
	for _, id := range ids {
		if c, err := s.Cycle(id); err == nil {
			out = append(out, c)
		}
	}
	return out
}
