package storage

import "time"

// Session is the persisted coaching session row. The transcript, feedback
// data, and final summary are JSON columns; emotion events, phase
// transitions, and goals live in their own append tables.
type Session struct {
	ID                     string     `gorm:"primaryKey"`
	UserID                 string     `gorm:"not null;index:idx_sessions_user_id"`
	Status                 string     `gorm:"not null;default:'idle';check:status IN ('idle','active','summarizing','ended')"`
	CurrentPhase           string     `gorm:"not null;default:'relationship';check:current_phase IN ('relationship','reaction','content','coaching')"`
	StartTime              time.Time  `gorm:"not null;index:idx_sessions_start_time"`
	PhaseStartTime         time.Time  `gorm:"not null"`
	EndTime                *time.Time `gorm:"default:null"`
	DefensiveReactionCount int        `gorm:"not null;default:0"`
	FeedbackData           string     // JSON serialized domain.FeedbackData
	Transcript             string     // JSON serialized []domain.Utterance
	Summary                *string    // JSON serialized domain.SessionSummary, set at session end
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Goal is one development-plan entry (development_plans table)
type Goal struct {
	ID                 string `gorm:"primaryKey"`
	SessionID          string `gorm:"not null;index:idx_goals_session_id"`
	GoalText           string `gorm:"not null"`
	GoalType           string `gorm:"not null;check:goal_type IN ('start','stop','continue')"`
	SpecificBehavior   string
	MeasurableCriteria string
	TargetDate         *time.Time `gorm:"default:null"`
	ActionSteps        string     // JSON array of steps
	IsCompleted        bool       `gorm:"not null;default:false;index:idx_goals_completed"`
	CompletedAt        *time.Time `gorm:"default:null"`
	CreatedAt          time.Time
}

// TableName keeps the original table name for development plan goals
func (Goal) TableName() string { return "development_plans" }

// EmotionEvent is one classified utterance window (append-only)
type EmotionEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	SessionID  string    `gorm:"not null;index:idx_emotion_events_session_id"`
	Timestamp  time.Time `gorm:"not null;index:idx_emotion_events_timestamp"`
	Emotion    string    `gorm:"not null;check:emotion IN ('neutral','defensive','frustrated','sad','anxious','positive')"`
	Confidence float64   `gorm:"check:confidence >= 0.0 AND confidence <= 1.0"`
	Phase      string    `gorm:"not null;check:phase IN ('relationship','reaction','content','coaching')"`
	CreatedAt  time.Time
}

// PhaseTransition is one phase change record (append-only)
type PhaseTransition struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement"`
	SessionID           string    `gorm:"not null;index:idx_phase_transitions_session_id"`
	FromPhase           string    `gorm:"not null"`
	ToPhase             string    `gorm:"not null"`
	TransitionTime      time.Time `gorm:"not null"`
	Trigger             string    `gorm:"not null"`
	TimeInPreviousPhase float64   // seconds
	CreatedAt           time.Time
}
