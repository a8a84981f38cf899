package domain

import "time"

// SessionStatus tracks the orchestrator-level lifecycle of a session
type SessionStatus string

const (
	StatusIdle        SessionStatus = "idle"
	StatusActive      SessionStatus = "active"
	StatusSummarizing SessionStatus = "summarizing"
	StatusEnded       SessionStatus = "ended"
)

// Speaker tags who produced an utterance
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerCoach Speaker = "coach"
)

// Utterance is one speaker-tagged line of the session transcript
type Utterance struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Phase     Phase     `json:"phase"`
}

// SessionState is the mutable aggregate for one coaching session. The
// orchestrator is its sole mutator; everything else reads it.
type SessionState struct {
	SessionID              string
	UserID                 string
	Status                 SessionStatus
	CurrentPhase           Phase
	StartTime              time.Time
	PhaseStartTime         time.Time
	EndTime                *time.Time
	DefensiveReactionCount int // cumulative for the whole session, never reset on transition
	EmotionHistory         []EmotionEvent
	TransitionLog          []PhaseTransition
	FeedbackData           FeedbackData // read-only during the session
	Transcript             []Utterance
	DevelopmentPlan        []Goal
	Summary                *SessionSummary
}

// EmotionalJourney summarizes how the speaker's emotional state moved over
// the course of a session.
type EmotionalJourney struct {
	StartEmotion       Emotion         `json:"start_emotion"`
	EndEmotion         Emotion         `json:"end_emotion"`
	PredominantEmotion Emotion         `json:"predominant_emotion"`
	EmotionChanges     int             `json:"emotion_changes"`
	Distribution       map[Emotion]int `json:"distribution"`
}

// SessionSummary is produced when a session moves to summarizing and is
// persisted alongside the session record.
type SessionSummary struct {
	SessionID        string            `json:"session_id"`
	UserID           string            `json:"user_id"`
	StartTime        time.Time         `json:"start_time"`
	EndTime          time.Time         `json:"end_time"`
	DurationSeconds  float64           `json:"duration_seconds"`
	PhaseDurations   map[Phase]float64 `json:"phase_durations"`
	PhasesCompleted  []Phase           `json:"phases_completed"`
	EmotionalJourney EmotionalJourney  `json:"emotional_journey"`
	GoalCount        int               `json:"goal_count"`
	KeyInsights      []string          `json:"key_insights"`
}
