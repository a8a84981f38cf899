package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openefficiency/empathaicoach/domain"
	"github.com/openefficiency/empathaicoach/logging"
)

func TestMain(m *testing.M) {
	if _, err := logging.Initialize(false, "", 0); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "coach.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testState(sessionID, userID string, start time.Time) *domain.SessionState {
	return &domain.SessionState{
		SessionID:      sessionID,
		UserID:         userID,
		Status:         domain.StatusActive,
		CurrentPhase:   domain.PhaseRelationship,
		StartTime:      start,
		PhaseStartTime: start,
		FeedbackData: domain.FeedbackData{
			Themes: []domain.FeedbackTheme{
				{Category: "improvement", Theme: "Delegation", Frequency: 3, Examples: []string{"Takes on too much work"}},
			},
			RawComments: []domain.FeedbackComment{
				{Source: "peer", Category: "delegation", Comment: "Takes on too much work", Sentiment: "negative"},
			},
		},
		Transcript: []domain.Utterance{
			{Speaker: domain.SpeakerCoach, Text: "Hi, how are you today?", Timestamp: start, Phase: domain.PhaseRelationship},
		},
	}
}

func TestCreateAndLoadSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession(ctx, testState("sess-1", "user-1", start)))

	loaded, err := store.LoadSession(ctx, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", loaded.SessionID)
	assert.Equal(t, "user-1", loaded.UserID)
	assert.Equal(t, domain.StatusActive, loaded.Status)
	assert.Equal(t, domain.PhaseRelationship, loaded.CurrentPhase)
	assert.WithinDuration(t, start, loaded.StartTime, time.Second)
	assert.Nil(t, loaded.EndTime)
	assert.Nil(t, loaded.Summary)

	require.Len(t, loaded.FeedbackData.Themes, 1)
	assert.Equal(t, "Delegation", loaded.FeedbackData.Themes[0].Theme)
	require.Len(t, loaded.Transcript, 1)
	assert.Equal(t, domain.SpeakerCoach, loaded.Transcript[0].Speaker)
}

func TestSaveSessionUpdatesAggregate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	state := testState("sess-1", "user-1", start)
	require.NoError(t, store.CreateSession(ctx, state))

	end := start.Add(20 * time.Minute)
	state.Status = domain.StatusEnded
	state.CurrentPhase = domain.PhaseCoaching
	state.DefensiveReactionCount = 2
	state.EndTime = &end
	state.Summary = &domain.SessionSummary{
		SessionID:       "sess-1",
		UserID:          "user-1",
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: 1200,
		GoalCount:       1,
	}
	require.NoError(t, store.SaveSession(ctx, state))

	loaded, err := store.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, loaded.Status)
	assert.Equal(t, domain.PhaseCoaching, loaded.CurrentPhase)
	assert.Equal(t, 2, loaded.DefensiveReactionCount)
	require.NotNil(t, loaded.EndTime)
	assert.WithinDuration(t, end, *loaded.EndTime, time.Second)
	require.NotNil(t, loaded.Summary)
	assert.Equal(t, 1, loaded.Summary.GoalCount)
	assert.InDelta(t, 1200.0, loaded.Summary.DurationSeconds, 0.001)
}

func TestSaveSessionUnknown(t *testing.T) {
	store := newTestStore(t)

	err := store.SaveSession(context.Background(), testState("missing", "user-1", time.Now().UTC()))

	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestLoadSessionUnknown(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadSession(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestListSessionsByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession(ctx, testState("sess-1", "user-1", base)))
	require.NoError(t, store.CreateSession(ctx, testState("sess-2", "user-1", base.Add(time.Hour))))
	require.NoError(t, store.CreateSession(ctx, testState("sess-3", "user-2", base.Add(2*time.Hour))))

	sessions, err := store.ListSessionsByUser(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-2", sessions[0].SessionID)
	assert.Equal(t, "sess-1", sessions[1].SessionID)

	limited, err := store.ListSessionsByUser(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "sess-2", limited[0].SessionID)

	none, err := store.ListSessionsByUser(ctx, "user-9", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAppendTablesRebuildAggregate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession(ctx, testState("sess-1", "user-1", start)))

	require.NoError(t, store.AppendEmotionEvent(ctx, "sess-1", domain.EmotionEvent{
		Timestamp: start.Add(10 * time.Second), Emotion: domain.EmotionDefensive, Confidence: 0.8, Phase: domain.PhaseRelationship,
	}))
	require.NoError(t, store.AppendEmotionEvent(ctx, "sess-1", domain.EmotionEvent{
		Timestamp: start.Add(40 * time.Second), Emotion: domain.EmotionPositive, Confidence: 0.6, Phase: domain.PhaseRelationship,
	}))
	require.NoError(t, store.AppendPhaseTransition(ctx, "sess-1", domain.PhaseTransition{
		FromPhase:           domain.PhaseRelationship,
		ToPhase:             domain.PhaseReaction,
		Timestamp:           start.Add(125 * time.Second),
		TimeInPreviousPhase: 125,
		Trigger:             domain.TriggerTimeElapsed,
	}))
	require.NoError(t, store.AppendGoal(ctx, "sess-1", domain.Goal{
		ID:                 "goal-1",
		SessionID:          "sess-1",
		Text:               "I will start scheduling weekly one-on-ones with each engineer.",
		Type:               domain.GoalStart,
		SpecificBehavior:   "start scheduling weekly one-on-ones",
		MeasurableCriteria: "weekly",
		ActionSteps:        []string{"Identify the first concrete occasion to apply this"},
		CreatedAt:          start.Add(15 * time.Minute),
	}))

	loaded, err := store.LoadSession(ctx, "sess-1")
	require.NoError(t, err)

	require.Len(t, loaded.EmotionHistory, 2)
	assert.Equal(t, domain.EmotionDefensive, loaded.EmotionHistory[0].Emotion)
	assert.Equal(t, domain.EmotionPositive, loaded.EmotionHistory[1].Emotion)
	assert.InDelta(t, 0.8, loaded.EmotionHistory[0].Confidence, 0.001)

	require.Len(t, loaded.TransitionLog, 1)
	assert.Equal(t, domain.PhaseReaction, loaded.TransitionLog[0].ToPhase)
	assert.Equal(t, domain.TriggerTimeElapsed, loaded.TransitionLog[0].Trigger)
	assert.InDelta(t, 125.0, loaded.TransitionLog[0].TimeInPreviousPhase, 0.001)

	require.Len(t, loaded.DevelopmentPlan, 1)
	goal := loaded.DevelopmentPlan[0]
	assert.Equal(t, domain.GoalStart, goal.Type)
	assert.Equal(t, []string{"Identify the first concrete occasion to apply this"}, goal.ActionSteps)
	assert.False(t, goal.IsCompleted)
}

func TestMarkGoalComplete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession(ctx, testState("sess-1", "user-1", start)))
	require.NoError(t, store.AppendGoal(ctx, "sess-1", domain.Goal{
		ID:          "goal-1",
		SessionID:   "sess-1",
		Text:        "I will start scheduling weekly one-on-ones with each engineer.",
		Type:        domain.GoalStart,
		ActionSteps: []string{"Put recurring slots on the calendar"},
		CreatedAt:   start,
	}))

	completedAt := start.Add(48 * time.Hour)
	require.NoError(t, store.MarkGoalComplete(ctx, "goal-1", completedAt))

	loaded, err := store.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, loaded.DevelopmentPlan, 1)
	assert.True(t, loaded.DevelopmentPlan[0].IsCompleted)
	require.NotNil(t, loaded.DevelopmentPlan[0].CompletedAt)
	assert.WithinDuration(t, completedAt, *loaded.DevelopmentPlan[0].CompletedAt, time.Second)

	// completion is one-way, a second call keeps the original timestamp
	require.NoError(t, store.MarkGoalComplete(ctx, "goal-1", completedAt.Add(24*time.Hour)))
	loaded, err = store.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.WithinDuration(t, completedAt, *loaded.DevelopmentPlan[0].CompletedAt, time.Second)
}

func TestMarkGoalCompleteUnknown(t *testing.T) {
	store := newTestStore(t)

	err := store.MarkGoalComplete(context.Background(), "missing", time.Now().UTC())

	assert.ErrorIs(t, err, domain.ErrGoalNotFound)
}

func TestUpdateGoalRewritesTextFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession(ctx, testState("sess-1", "user-1", start)))
	require.NoError(t, store.AppendGoal(ctx, "sess-1", domain.Goal{
		ID:          "goal-1",
		SessionID:   "sess-1",
		Text:        "I will start scheduling weekly one-on-ones with each engineer.",
		Type:        domain.GoalStart,
		ActionSteps: []string{"Put recurring slots on the calendar"},
		CreatedAt:   start,
	}))
	completedAt := start.Add(time.Hour)
	require.NoError(t, store.MarkGoalComplete(ctx, "goal-1", completedAt))

	require.NoError(t, store.UpdateGoal(ctx, domain.Goal{
		ID:                 "goal-1",
		SessionID:          "sess-1",
		Text:               "Hold a weekly one-on-one with every engineer on the team.",
		Type:               domain.GoalStart,
		SpecificBehavior:   "scheduling recurring one-on-ones",
		MeasurableCriteria: "one completed one-on-one per engineer per week",
		ActionSteps:        []string{"Put recurring slots on the calendar", "Prepare a shared agenda doc"},
		CreatedAt:          start,
	}))

	loaded, err := store.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, loaded.DevelopmentPlan, 1)
	goal := loaded.DevelopmentPlan[0]
	assert.Equal(t, "Hold a weekly one-on-one with every engineer on the team.", goal.Text)
	assert.Equal(t, "one completed one-on-one per engineer per week", goal.MeasurableCriteria)
	assert.Equal(t, []string{"Put recurring slots on the calendar", "Prepare a shared agenda doc"}, goal.ActionSteps)

	// completion state is owned by MarkGoalComplete and survives the rewrite
	assert.True(t, goal.IsCompleted)
	require.NotNil(t, goal.CompletedAt)
	assert.WithinDuration(t, completedAt, *goal.CompletedAt, time.Second)
}

func TestUpdateGoalUnknown(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateGoal(context.Background(), domain.Goal{ID: "missing", Type: domain.GoalStart})

	assert.ErrorIs(t, err, domain.ErrGoalNotFound)
}
