package domain

import (
	"strings"
	"time"
)

// GoalType tags a development goal with the start/stop/continue framework
type GoalType string

const (
	GoalStart    GoalType = "start"
	GoalStop     GoalType = "stop"
	GoalContinue GoalType = "continue"
)

// Valid reports whether t is a recognized goal type
func (t GoalType) Valid() bool {
	return t == GoalStart || t == GoalStop || t == GoalContinue
}

// Goal is one entry of a development plan. After creation only the
// completion fields may change, and only from not-completed to completed.
type Goal struct {
	ID                 string     `json:"goal_id"`
	SessionID          string     `json:"session_id"`
	Text               string     `json:"goal_text"`
	Type               GoalType   `json:"goal_type"`
	SpecificBehavior   string     `json:"specific_behavior"`
	MeasurableCriteria string     `json:"measurable_criteria"`
	TargetDate         *time.Time `json:"target_date,omitempty"`
	ActionSteps        []string   `json:"action_steps"`
	IsCompleted        bool       `json:"is_completed"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// WellFormed reports whether the goal carries every required field. Goals
// failing this check are dropped rather than persisted half-formed.
func (g Goal) WellFormed() bool {
	return strings.TrimSpace(g.Text) != "" && g.Type.Valid() && len(g.ActionSteps) > 0
}

// NormalizedText returns the dedupe key for a goal: lowercase text with
// collapsed whitespace.
func (g Goal) NormalizedText() string {
	return strings.Join(strings.Fields(strings.ToLower(g.Text)), " ")
}
