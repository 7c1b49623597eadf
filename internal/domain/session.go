package domain

import "time"

type SessionID string

type Phase string

const (
	PhaseContextCapture  Phase = "context_capture"
	PhaseDiscovery       Phase = "discovery"
	PhaseRecommendations Phase = "recommendations"
	PhaseDeepResearch    Phase = "deep_research"
	PhaseComplete        Phase = "complete"
)

var phaseOrder = []Phase{
	PhaseContextCapture,
	PhaseDiscovery,
	PhaseRecommendations,
	PhaseDeepResearch,
	PhaseComplete,
}

// Phases returns the five workflow phases in execution order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

func (p Phase) Valid() bool {
	for _, known := range phaseOrder {
		if p == known {
			return true
		}
	}
	return false
}

// Next returns the phase that follows p, or p itself when p is terminal
// or unknown.
func (p Phase) Next() Phase {
	for i, known := range phaseOrder {
		if p == known && i+1 < len(phaseOrder) {
			return phaseOrder[i+1]
		}
	}
	return p
}

// AgentUpdate is one backend worker's reported progress inside a progress
// event. The agent itself is opaque to this client.
type AgentUpdate struct {
	Status     string
	Progress   int
	ItemsFound int
}

// ProgressState is the derived workflow state owned by one progress state
// machine instance. It is mutated only by folding stream events.
type ProgressState struct {
	Phase           Phase
	OverallProgress int
	AgentUpdates    map[string]AgentUpdate
	IsConnected     bool
	IsComplete      bool
	Error           string
	Messages        []string
}

// NewProgressState returns the initial state: context capture, zero
// progress, no agents, disconnected.
func NewProgressState() ProgressState {
	return ProgressState{
		Phase:        PhaseContextCapture,
		AgentUpdates: map[string]AgentUpdate{},
	}
}

// Clone returns a deep copy so callers can hold a snapshot while the state
// machine keeps folding.
func (s ProgressState) Clone() ProgressState {
	out := s
	out.AgentUpdates = make(map[string]AgentUpdate, len(s.AgentUpdates))
	for name, update := range s.AgentUpdates {
		out.AgentUpdates[name] = update
	}
	out.Messages = append([]string(nil), s.Messages...)
	return out
}

// PhaseProgress is the backend's per-phase completion report inside a
// session snapshot.
type PhaseProgress struct {
	Completed bool
	Progress  int
}

// SessionSnapshot is the backend's request/response view of a session.
type SessionSnapshot struct {
	ID              SessionID
	CurrentPhase    Phase
	OverallProgress int
	PhaseProgress   map[Phase]PhaseProgress
	PreviousPhase   Phase
}

// SessionRecord is the locally persisted memo of a session the steward has
// started or resumed on this machine.
type SessionRecord struct {
	ID        SessionID
	StudyName string
	LastPhase Phase
	StartedAt time.Time
	UpdatedAt time.Time
}
