// Package plan extracts structured development goals from the coaching
// phase of a session transcript.
//
// Extraction is deliberately lexical: the coaching prompts steer the user
// toward start/stop/continue commitments, so goal-type keywords plus a
// length floor are enough to recover them. Half-formed goals are dropped
// silently rather than persisted.
package plan

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openefficiency/empathaicoach/domain"
)

// goal type detection keywords, checked in order
var goalTypeCues = []struct {
	goalType domain.GoalType
	cues     []string
}{
	{domain.GoalStart, []string{"start", "begin", "initiate", "i'll try", "i will try"}},
	{domain.GoalStop, []string{"stop", "quit", "cease", "avoid", "no longer"}},
	{domain.GoalContinue, []string{"continue", "keep", "maintain"}},
}

// measurable criteria markers: numbers, cadence words, deadlines
var measurableCues = []string{
	"every", "each", "per week", "per day", "weekly", "daily", "once", "twice",
	"by the end", "within", "at least",
}

// minGoalTextLen filters out throwaway acknowledgements
const minGoalTextLen = 20

// Builder turns coaching-phase transcript slices into validated goals
type Builder struct {
	now   func() time.Time
	newID func() string
}

// NewBuilder returns a builder using wall-clock time and UUID goal IDs
func NewBuilder() *Builder {
	return &Builder{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// NewBuilderWithClock injects the clock and ID source for tests
func NewBuilderWithClock(now func() time.Time, newID func() string) *Builder {
	return &Builder{now: now, newID: newID}
}

// Extract scans the user utterances of a coaching-phase transcript slice
// and returns the well-formed goals it finds. Utterances that do not carry
// a recognizable commitment are ignored; candidates missing required
// fields are dropped, never returned half-formed.
func (b *Builder) Extract(sessionID string, transcript []domain.Utterance) []domain.Goal {
	var goals []domain.Goal
	seen := make(map[string]bool)

	for _, u := range transcript {
		if u.Speaker != domain.SpeakerUser {
			continue
		}
		goal, ok := b.goalFromUtterance(sessionID, u)
		if !ok || !goal.WellFormed() {
			continue
		}
		key := goal.NormalizedText()
		if seen[key] {
			continue
		}
		seen[key] = true
		goals = append(goals, goal)
	}
	return goals
}

// Merge appends extracted goals to an existing plan, deduping by
// normalized goal text. Running extraction twice over an unchanged
// transcript therefore leaves the plan unchanged.
func (b *Builder) Merge(existing, extracted []domain.Goal) []domain.Goal {
	seen := make(map[string]bool, len(existing))
	for _, g := range existing {
		seen[g.NormalizedText()] = true
	}
	merged := existing
	for _, g := range extracted {
		key := g.NormalizedText()
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, g)
	}
	return merged
}

func (b *Builder) goalFromUtterance(sessionID string, u domain.Utterance) (domain.Goal, bool) {
	text := strings.TrimSpace(u.Text)
	if len(text) < minGoalTextLen {
		return domain.Goal{}, false
	}
	lower := strings.ToLower(text)

	var goalType domain.GoalType
	var matched string
	for _, entry := range goalTypeCues {
		for _, cue := range entry.cues {
			if strings.Contains(lower, cue) {
				goalType = entry.goalType
				matched = cue
				break
			}
		}
		if goalType != "" {
			break
		}
	}
	if goalType == "" {
		return domain.Goal{}, false
	}

	goal := domain.Goal{
		ID:                 b.newID(),
		SessionID:          sessionID,
		Text:               text,
		Type:               goalType,
		SpecificBehavior:   behaviorClause(lower, text, matched),
		MeasurableCriteria: measurableClause(text),
		ActionSteps:        actionSteps(text),
		CreatedAt:          b.now(),
	}
	return goal, true
}

// behaviorClause takes the text from the matched commitment keyword onward
// as the specific behavior; the whole utterance when the cut is degenerate.
func behaviorClause(lower, text, cue string) string {
	idx := strings.Index(lower, cue)
	if idx < 0 || len(text)-idx < minGoalTextLen/2 {
		return text
	}
	return strings.TrimSpace(text[idx:])
}

// measurableClause returns the first sentence carrying a cadence or
// deadline marker, empty when none exists.
func measurableClause(text string) string {
	for _, s := range splitSentences(text) {
		sl := strings.ToLower(s)
		for _, cue := range measurableCues {
			if strings.Contains(sl, cue) {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// actionSteps splits the utterance into sentence-level steps, keeping ones
// long enough to be actionable. The commitment itself always yields at
// least one step.
func actionSteps(text string) []string {
	var steps []string
	for _, s := range splitSentences(text) {
		s = strings.TrimSpace(s)
		if len(s) >= minGoalTextLen/2 {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		steps = []string{strings.TrimSpace(text)}
	}
	return steps
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == ';' || r == '!' || r == '?'
	})
}
