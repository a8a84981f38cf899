package domain

import "time"

// Phase represents a stage of the R2C2 feedback conversation
type Phase string

const (
	PhaseRelationship Phase = "relationship"
	PhaseReaction     Phase = "reaction"
	PhaseContent      Phase = "content"
	PhaseCoaching     Phase = "coaching"
)

// phaseOrder fixes the ordering used for monotonicity checks
var phaseOrder = []Phase{PhaseRelationship, PhaseReaction, PhaseContent, PhaseCoaching}

// Index returns the position of the phase in the R2C2 ordering, or -1 for
// an unknown phase value.
func (p Phase) Index() int {
	for i, phase := range phaseOrder {
		if phase == p {
			return i
		}
	}
	return -1
}

// Valid reports whether the phase is one of the four R2C2 phases
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Next returns the phase that follows p. The second return value is false
// when p is the terminal coaching phase or not a valid phase.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i >= len(phaseOrder)-1 {
		return p, false
	}
	return phaseOrder[i+1], true
}

// TransitionTrigger identifies what caused a phase transition
type TransitionTrigger string

const (
	TriggerTimeElapsed        TransitionTrigger = "time-elapsed"
	TriggerEmotionalReadiness TransitionTrigger = "emotional-readiness"
	TriggerManual             TransitionTrigger = "manual"
	TriggerForcedTimeout      TransitionTrigger = "forced-timeout"
)

// PhaseTransition records a single phase change. Records are append-only:
// they are created by the phase machine and never mutated afterwards.
type PhaseTransition struct {
	FromPhase           Phase
	ToPhase             Phase
	Timestamp           time.Time
	TimeInPreviousPhase float64 // seconds
	Trigger             TransitionTrigger
}
