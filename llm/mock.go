package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openefficiency/empathaicoach/domain"
)

// MockModel is a deterministic stand-in for the real model, used by the
// --mock-model flag and tests. Replies are phase-appropriate and always
// pass reply validation.
type MockModel struct{}

// NewMockModel returns the deterministic mock
func NewMockModel() *MockModel {
	return &MockModel{}
}

// phase markers recognized in the system prompt, most specific first
var mockReplies = []struct {
	marker string
	reply  string
}{
	{"coaching phase", "Let's turn this into a plan. What is one specific goal you want to commit to, and what's the first step you could start this week?"},
	{"content phase", "Looking at the feedback together, a few patterns stand out. Which of these themes feels most important for you to understand better?"},
	{"reaction phase", "It makes sense that this feedback stirs things up. I hear that this is difficult. What's coming up for you as you sit with it?"},
	{"relationship phase", "Welcome, I'm glad you're taking time for this. Before we look at anything, how are you feeling about the feedback process so far?"},
}

// Generate returns a canned reply keyed off the phase named in the system
// prompt. The turn count is appended so consecutive replies differ.
func (m *MockModel) Generate(ctx context.Context, systemPrompt string, transcript []domain.Utterance) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lower := strings.ToLower(systemPrompt)
	for _, entry := range mockReplies {
		if strings.Contains(lower, entry.marker) {
			return fmt.Sprintf("%s (turn %d)", entry.reply, len(transcript)), nil
		}
	}
	return fmt.Sprintf("I hear you. Tell me more about that. (turn %d)", len(transcript)), nil
}

// RefineGoals passes heuristic goals through unchanged
func (m *MockModel) RefineGoals(ctx context.Context, goals []domain.Goal, transcript []domain.Utterance) ([]domain.Goal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return goals, nil
}
