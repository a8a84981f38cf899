package ports

import (
	"context"

	"github.com/openefficiency/empathaicoach/domain"
)

// CoachModel is the language-model contract. The core treats it as an
// opaque, possibly-slow, possibly-failing function and never inspects
// model internals.
type CoachModel interface {
	Generate(ctx context.Context, systemPrompt string, transcript []domain.Utterance) (string, error)
}

// GoalRefiner is an optional capability: models that implement it are asked
// to tighten heuristically extracted goals into SMART form during session
// summarization. Refinement failures are non-fatal; the heuristic goals
// stand.
type GoalRefiner interface {
	RefineGoals(ctx context.Context, goals []domain.Goal, transcript []domain.Utterance) ([]domain.Goal, error)
}
