package ports

import (
	"context"
	"time"

	"github.com/openefficiency/empathaicoach/domain"
)

// SessionReader reads persisted session state
type SessionReader interface {
	LoadSession(ctx context.Context, sessionID string) (*domain.SessionState, error)
	ListSessionsByUser(ctx context.Context, userID string, limit int) ([]*domain.SessionState, error)
}

// SessionWriter creates and saves session aggregates
type SessionWriter interface {
	CreateSession(ctx context.Context, state *domain.SessionState) error
	SaveSession(ctx context.Context, state *domain.SessionState) error
}

// EventRecorder appends immutable per-turn records. These are side tables
// so emotion and transition history survive independently of the aggregate.
type EventRecorder interface {
	AppendEmotionEvent(ctx context.Context, sessionID string, event domain.EmotionEvent) error
	AppendPhaseTransition(ctx context.Context, sessionID string, transition domain.PhaseTransition) error
}

// GoalWriter persists development plan goals. UpdateGoal rewrites the text
// fields of an existing goal in place; completion state stays with
// MarkGoalComplete, which only ever moves a goal to completed.
type GoalWriter interface {
	AppendGoal(ctx context.Context, sessionID string, goal domain.Goal) error
	UpdateGoal(ctx context.Context, goal domain.Goal) error
	MarkGoalComplete(ctx context.Context, goalID string, completedAt time.Time) error
}

// SessionRepository is the composite persistence contract consumed by the
// orchestrator. The core does not depend on the backing representation.
type SessionRepository interface {
	SessionReader
	SessionWriter
	EventRecorder
	GoalWriter
}
