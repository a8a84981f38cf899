// Package r2c2 implements the phase state machine for the four-phase
// feedback conversation: relationship, reaction, content, coaching.
//
// A transition out of the current phase fires when the minimum dwell time
// has elapsed AND the phase's readiness condition holds, or unconditionally
// once elapsed time reaches the hard ceiling (twice the minimum). Time
// always eventually wins, so a stalled emotional gate can never trap a
// session in one phase.
package r2c2

import (
	"fmt"
	"strings"
	"time"

	"github.com/openefficiency/empathaicoach/domain"
	"github.com/openefficiency/empathaicoach/emotion"
)

// Durations holds the minimum dwell time per phase. The hard ceiling for
// each phase is twice its minimum.
type Durations struct {
	Relationship time.Duration
	Reaction     time.Duration
	Content      time.Duration
	Coaching     time.Duration
}

// DefaultDurations returns the stock phase minimums
func DefaultDurations() Durations {
	return Durations{
		Relationship: 120 * time.Second,
		Reaction:     180 * time.Second,
		Content:      240 * time.Second,
		Coaching:     300 * time.Second,
	}
}

func (d Durations) min(p domain.Phase) time.Duration {
	switch p {
	case domain.PhaseRelationship:
		return d.Relationship
	case domain.PhaseReaction:
		return d.Reaction
	case domain.PhaseContent:
		return d.Content
	case domain.PhaseCoaching:
		return d.Coaching
	}
	return 0
}

// ReadinessFunc gates the content→coaching transition. It receives the
// utterances spoken since the phase began and reports whether the user has
// engaged with the feedback specifics. The time ceiling overrides it.
type ReadinessFunc func(utterancesSincePhase []domain.Utterance) bool

// readinessLanguage marks explicit engagement with next steps
var readinessLanguage = []string{
	"what should i do",
	"what can i do",
	"ready to",
	"makes sense",
	"i want to work on",
	"how do i improve",
}

// minContentUtterances is the engagement floor for the default readiness check
const minContentUtterances = 4

// DefaultReadiness fires once the user has spoken enough in the content
// phase or used explicit readiness language.
func DefaultReadiness(utterances []domain.Utterance) bool {
	spoken := 0
	for _, u := range utterances {
		if u.Speaker != domain.SpeakerUser {
			continue
		}
		spoken++
		lower := strings.ToLower(u.Text)
		for _, marker := range readinessLanguage {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return spoken >= minContentUtterances
}

// EvalContext carries the per-turn signals a transition decision needs
type EvalContext struct {
	History *emotion.History
	// DefensiveCount and DefensiveCountAtPhaseEntry bracket the trailing
	// window: the reaction phase may end early only when defensiveness is
	// trending down or flat, not up.
	DefensiveCount             int
	DefensiveCountAtPhaseEntry int
	// UtterancesSincePhase is the transcript slice since the current
	// phase began, consumed by the content readiness predicate.
	UtterancesSincePhase []domain.Utterance
}

// Machine owns the current phase, time-in-phase, and the append-only
// transition log for a single session. Not safe for concurrent use; the
// orchestrator serializes turns.
type Machine struct {
	phase      domain.Phase
	phaseStart time.Time
	log        []domain.PhaseTransition
	durations  Durations
	readiness  ReadinessFunc
	now        func() time.Time
}

// Option configures a Machine
type Option func(*Machine)

// WithClock injects a clock for tests
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithReadiness swaps the content→coaching readiness predicate
func WithReadiness(fn ReadinessFunc) Option {
	return func(m *Machine) { m.readiness = fn }
}

// NewMachine starts a machine in the relationship phase
func NewMachine(d Durations, opts ...Option) *Machine {
	m := &Machine{
		phase:     domain.PhaseRelationship,
		durations: d,
		readiness: DefaultReadiness,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.phaseStart = m.now()
	return m
}

// Phase returns the current phase
func (m *Machine) Phase() domain.Phase { return m.phase }

// PhaseStart returns when the current phase began
func (m *Machine) PhaseStart() time.Time { return m.phaseStart }

// TimeInPhase returns elapsed time in the current phase
func (m *Machine) TimeInPhase() time.Duration {
	return m.now().Sub(m.phaseStart)
}

// TransitionLog returns the ordered transition records
func (m *Machine) TransitionLog() []domain.PhaseTransition {
	return m.log
}

// Evaluate checks the transition rule for the current phase and advances
// when it fires, returning the transition record. It returns nil when the
// machine stays put. Coaching is terminal and never auto-transitions.
func (m *Machine) Evaluate(ctx EvalContext) *domain.PhaseTransition {
	if m.phase == domain.PhaseCoaching {
		return nil
	}

	elapsed := m.TimeInPhase()
	minDwell := m.durations.min(m.phase)
	ceiling := 2 * minDwell

	if elapsed >= ceiling {
		return m.advance(domain.TriggerForcedTimeout, elapsed)
	}
	if elapsed < minDwell {
		return nil
	}

	switch m.phase {
	case domain.PhaseRelationship:
		// rapport-building has no measurable emotional gate
		return m.advance(domain.TriggerTimeElapsed, elapsed)
	case domain.PhaseReaction:
		if ctx.History != nil && ctx.History.IsImproving() {
			return m.advance(domain.TriggerEmotionalReadiness, elapsed)
		}
		if ctx.DefensiveCount <= ctx.DefensiveCountAtPhaseEntry {
			return m.advance(domain.TriggerEmotionalReadiness, elapsed)
		}
	case domain.PhaseContent:
		if m.readiness(ctx.UtterancesSincePhase) {
			return m.advance(domain.TriggerEmotionalReadiness, elapsed)
		}
	}
	return nil
}

// Advance performs an explicit transition request to a specific phase.
// Only a single forward step is legal; anything else is rejected with
// ErrInvalidTransition.
func (m *Machine) Advance(to domain.Phase, trigger domain.TransitionTrigger) (*domain.PhaseTransition, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown phase %q", domain.ErrInvalidTransition, to)
	}
	next, ok := m.phase.Next()
	if !ok || to != next {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, m.phase, to)
	}
	return m.advance(trigger, m.TimeInPhase()), nil
}

// Reset returns the machine to the relationship phase. This is the only
// legal backward movement and exists for explicit session restarts.
func (m *Machine) Reset() {
	m.phase = domain.PhaseRelationship
	m.phaseStart = m.now()
	m.log = nil
}

func (m *Machine) advance(trigger domain.TransitionTrigger, elapsed time.Duration) *domain.PhaseTransition {
	next, ok := m.phase.Next()
	if !ok {
		return nil
	}
	t := domain.PhaseTransition{
		FromPhase:           m.phase,
		ToPhase:             next,
		Timestamp:           m.now(),
		TimeInPreviousPhase: elapsed.Seconds(),
		Trigger:             trigger,
	}
	m.log = append(m.log, t)
	m.phase = next
	m.phaseStart = t.Timestamp
	return &t
}
