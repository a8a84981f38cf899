package domain

import "time"

// EventKind discriminates the egress event union
type EventKind string

const (
	EventEmotionDetected EventKind = "emotion-detected"
	EventPhaseTransition EventKind = "phase-transition"
	EventPlanUpdated     EventKind = "plan-updated"
	EventDialogue        EventKind = "dialogue"
	EventSessionEnded    EventKind = "session-ended"
)

// Event is the typed union of everything the orchestrator emits to UI and
// telemetry collaborators. Consumers switch on Kind and type-assert; no
// dispatch mechanism is implied.
type Event interface {
	Kind() EventKind
}

// EmotionDetectedEvent is emitted for every classified utterance window
type EmotionDetectedEvent struct {
	SessionID  string    `json:"session_id"`
	Emotion    Emotion   `json:"emotion"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	Phase      Phase     `json:"phase"`
}

func (EmotionDetectedEvent) Kind() EventKind { return EventEmotionDetected }

// PhaseTransitionEvent is emitted when the phase machine advances
type PhaseTransitionEvent struct {
	SessionID  string          `json:"session_id"`
	Transition PhaseTransition `json:"transition"`
}

func (PhaseTransitionEvent) Kind() EventKind { return EventPhaseTransition }

// PlanUpdatedEvent is emitted when the development plan gains goals
type PlanUpdatedEvent struct {
	SessionID string `json:"session_id"`
	Goals     []Goal `json:"goals"`
}

func (PlanUpdatedEvent) Kind() EventKind { return EventPlanUpdated }

// DialogueEvent is emitted when a validated coach reply joins the transcript
type DialogueEvent struct {
	SessionID string    `json:"session_id"`
	Utterance Utterance `json:"utterance"`
	Fallback  bool      `json:"fallback"` // true when a canned line replaced a rejected reply
}

func (DialogueEvent) Kind() EventKind { return EventDialogue }

// SessionEndedEvent carries the final summary
type SessionEndedEvent struct {
	SessionID string         `json:"session_id"`
	Summary   SessionSummary `json:"summary"`
}

func (SessionEndedEvent) Kind() EventKind { return EventSessionEnded }
