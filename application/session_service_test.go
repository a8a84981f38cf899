package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openefficiency/empathaicoach/dialogue"
	"github.com/openefficiency/empathaicoach/domain"
	"github.com/openefficiency/empathaicoach/llm"
	"github.com/openefficiency/empathaicoach/logging"
	"github.com/openefficiency/empathaicoach/storage"
)

func TestMain(m *testing.M) {
	if _, err := logging.Initialize(false, "", 0); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeRepo is an in-memory ports.SessionRepository. Setting
// failEmotionAppends makes that many AppendEmotionEvent calls fail, to
// exercise turn retry behavior.
type fakeRepo struct {
	sessions           map[string]*domain.SessionState
	emotions           map[string][]domain.EmotionEvent
	transitions        map[string][]domain.PhaseTransition
	goals              map[string][]domain.Goal
	failEmotionAppends int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions:    make(map[string]*domain.SessionState),
		emotions:    make(map[string][]domain.EmotionEvent),
		transitions: make(map[string][]domain.PhaseTransition),
		goals:       make(map[string][]domain.Goal),
	}
}

func cloneState(state *domain.SessionState) *domain.SessionState {
	copied := *state
	copied.EmotionHistory = append([]domain.EmotionEvent(nil), state.EmotionHistory...)
	copied.TransitionLog = append([]domain.PhaseTransition(nil), state.TransitionLog...)
	copied.Transcript = append([]domain.Utterance(nil), state.Transcript...)
	copied.DevelopmentPlan = append([]domain.Goal(nil), state.DevelopmentPlan...)
	return &copied
}

func (r *fakeRepo) CreateSession(ctx context.Context, state *domain.SessionState) error {
	r.sessions[state.SessionID] = cloneState(state)
	return nil
}

func (r *fakeRepo) SaveSession(ctx context.Context, state *domain.SessionState) error {
	if _, ok := r.sessions[state.SessionID]; !ok {
		return fmt.Errorf("session %s: %w", state.SessionID, domain.ErrSessionNotFound)
	}
	r.sessions[state.SessionID] = cloneState(state)
	return nil
}

func (r *fakeRepo) LoadSession(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	state, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	return cloneState(state), nil
}

func (r *fakeRepo) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]*domain.SessionState, error) {
	var result []*domain.SessionState
	for _, state := range r.sessions {
		if state.UserID == userID {
			result = append(result, cloneState(state))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.After(result[j].StartTime) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeRepo) AppendEmotionEvent(ctx context.Context, sessionID string, event domain.EmotionEvent) error {
	if r.failEmotionAppends > 0 {
		r.failEmotionAppends--
		return fmt.Errorf("%w: append emotion event: disk I/O error", domain.ErrPersistenceFailure)
	}
	r.emotions[sessionID] = append(r.emotions[sessionID], event)
	return nil
}

func (r *fakeRepo) AppendPhaseTransition(ctx context.Context, sessionID string, transition domain.PhaseTransition) error {
	r.transitions[sessionID] = append(r.transitions[sessionID], transition)
	return nil
}

func (r *fakeRepo) AppendGoal(ctx context.Context, sessionID string, goal domain.Goal) error {
	r.goals[sessionID] = append(r.goals[sessionID], goal)
	return nil
}

func (r *fakeRepo) UpdateGoal(ctx context.Context, goal domain.Goal) error {
	for sessionID, goals := range r.goals {
		for i, g := range goals {
			if g.ID != goal.ID {
				continue
			}
			updated := goal
			updated.IsCompleted = g.IsCompleted
			updated.CompletedAt = g.CompletedAt
			goals[i] = updated
			r.goals[sessionID] = goals
			return nil
		}
	}
	return fmt.Errorf("goal %s: %w", goal.ID, domain.ErrGoalNotFound)
}

func (r *fakeRepo) MarkGoalComplete(ctx context.Context, goalID string, completedAt time.Time) error {
	for sessionID, goals := range r.goals {
		for i, g := range goals {
			if g.ID != goalID {
				continue
			}
			if !g.IsCompleted {
				goals[i].IsCompleted = true
				goals[i].CompletedAt = &completedAt
				r.goals[sessionID] = goals
			}
			return nil
		}
	}
	return fmt.Errorf("goal %s: %w", goalID, domain.ErrGoalNotFound)
}

type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testFeedback() domain.FeedbackData {
	return domain.FeedbackData{
		Themes: []domain.FeedbackTheme{
			{Category: "improvement", Theme: "Delegation", Frequency: 3, Examples: []string{"Takes on too much work instead of delegating to the team"}},
		},
	}
}

func newTestService(t *testing.T, opts ...ServiceOption) (*SessionService, *fakeRepo, *testClock, *[]domain.Event) {
	t.Helper()
	repo := newFakeRepo()
	clock := newTestClock()
	var events []domain.Event
	opts = append([]ServiceOption{
		WithClock(clock.now),
		WithEventSink(func(e domain.Event) { events = append(events, e) }),
	}, opts...)
	svc := NewSessionService(repo, llm.NewMockModel(), opts...)
	return svc, repo, clock, &events
}

func eventKinds(events []domain.Event) []domain.EventKind {
	kinds := make([]domain.EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind()
	}
	return kinds
}

func TestFullSessionFlow(t *testing.T) {
	svc, repo, clock, events := newTestService(t)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "user-1", testFeedback())
	require.NoError(t, err)
	sessionID := state.SessionID
	assert.Equal(t, domain.StatusActive, state.Status)
	assert.Equal(t, domain.PhaseRelationship, state.CurrentPhase)

	// Turn 1, inside the relationship dwell minimum
	clock.advance(10 * time.Second)
	res, err := svc.ProcessUtterance(ctx, sessionID, "Hello, I am here.", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseRelationship, res.Phase)
	assert.Nil(t, res.Transition)
	assert.False(t, res.Fallback)
	assert.Equal(t, domain.EmotionNeutral, res.Emotion)
	assert.NotEmpty(t, res.Reply)
	assert.Empty(t, res.Plan)

	// Turn 2 crosses the 120s minimum, relationship advances on time alone
	clock.advance(115 * time.Second)
	res, err = svc.ProcessUtterance(ctx, sessionID, "Things have been busy at work lately.", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Transition)
	assert.Equal(t, domain.PhaseReaction, res.Transition.ToPhase)
	assert.Equal(t, domain.TriggerTimeElapsed, res.Transition.Trigger)
	assert.InDelta(t, 125.0, res.Transition.TimeInPreviousPhase, 0.001)
	assert.Equal(t, domain.PhaseReaction, res.Phase)

	// Turn 3, reaction dwell passed with a calm history, advances to content
	clock.advance(185 * time.Second)
	res, err = svc.ProcessUtterance(ctx, sessionID, "I guess that is fair to say.", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Transition)
	assert.Equal(t, domain.PhaseContent, res.Transition.ToPhase)
	assert.Equal(t, domain.TriggerEmotionalReadiness, res.Transition.Trigger)

	// Turn 4, readiness language after the content dwell moves to coaching
	clock.advance(245 * time.Second)
	res, err = svc.ProcessUtterance(ctx, sessionID, "Okay. I'm ready to hear what I can work on.", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Transition)
	assert.Equal(t, domain.PhaseCoaching, res.Transition.ToPhase)
	assert.Empty(t, res.Plan)

	// Turn 5, a commitment in coaching lands in the development plan
	clock.advance(5 * time.Second)
	res, err = svc.ProcessUtterance(ctx, sessionID, "I will start scheduling weekly one-on-ones with each engineer on my team.", nil)
	require.NoError(t, err)
	assert.Nil(t, res.Transition)
	require.Len(t, res.Plan, 1)
	assert.Equal(t, domain.GoalStart, res.Plan[0].Type)
	goalID := res.Plan[0].ID

	clock.advance(40 * time.Second)
	summary, err := svc.EndSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.GoalCount)
	assert.InDelta(t, 600.0, summary.DurationSeconds, 0.001)
	require.Len(t, summary.PhasesCompleted, 4)
	assert.Equal(t, domain.PhaseCoaching, summary.PhasesCompleted[3])
	assert.Equal(t, domain.EmotionNeutral, summary.EmotionalJourney.StartEmotion)
	assert.NotEmpty(t, summary.KeyInsights)

	// persisted state and side tables reflect the whole session
	persisted, err := svc.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, persisted.Status)
	require.NotNil(t, persisted.EndTime)
	assert.Len(t, repo.emotions[sessionID], 5)
	assert.Len(t, repo.transitions[sessionID], 3)
	assert.Len(t, repo.goals[sessionID], 1)

	// a closed session rejects further turns
	_, err = svc.ProcessUtterance(ctx, sessionID, "one more thing", nil)
	assert.ErrorIs(t, err, domain.ErrSessionEnded)

	require.NoError(t, svc.CompleteGoal(ctx, goalID))
	assert.True(t, repo.goals[sessionID][0].IsCompleted)

	assert.Equal(t, []domain.EventKind{
		domain.EventEmotionDetected, domain.EventDialogue,
		domain.EventEmotionDetected, domain.EventPhaseTransition, domain.EventDialogue,
		domain.EventEmotionDetected, domain.EventPhaseTransition, domain.EventDialogue,
		domain.EventEmotionDetected, domain.EventPhaseTransition, domain.EventDialogue,
		domain.EventEmotionDetected, domain.EventDialogue, domain.EventPlanUpdated,
		domain.EventSessionEnded,
	}, eventKinds(*events))
}

func TestDefensiveUtterancesAccumulate(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "user-1", testFeedback())
	require.NoError(t, err)

	clock.advance(5 * time.Second)
	res, err := svc.ProcessUtterance(ctx, state.SessionID, "This is so unfair, it's not my fault.", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.EmotionDefensive, res.Emotion)

	clock.advance(5 * time.Second)
	_, err = svc.ProcessUtterance(ctx, state.SessionID, "They don't understand how I work.", nil)
	require.NoError(t, err)

	current, err := svc.GetSession(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.DefensiveReactionCount)
}

// failingModel always reports the model as unreachable
type failingModel struct{}

func (failingModel) Generate(ctx context.Context, systemPrompt string, transcript []domain.Utterance) (string, error) {
	return "", fmt.Errorf("%w: connection refused", domain.ErrModelUnavailable)
}

func TestModelFailureUsesFallback(t *testing.T) {
	repo := newFakeRepo()
	clock := newTestClock()
	svc := NewSessionService(repo, failingModel{}, WithClock(clock.now))
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "user-1", testFeedback())
	require.NoError(t, err)

	clock.advance(5 * time.Second)
	res, err := svc.ProcessUtterance(ctx, state.SessionID, "Hello there.", nil)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, dialogue.Fallback(domain.PhaseRelationship), res.Reply)
}

// stubModel returns a fixed reply regardless of phase
type stubModel struct {
	reply string
}

func (m stubModel) Generate(ctx context.Context, systemPrompt string, transcript []domain.Utterance) (string, error) {
	return m.reply, nil
}

func TestRejectedRepliesFallBack(t *testing.T) {
	repo := newFakeRepo()
	clock := newTestClock()
	svc := NewSessionService(repo, stubModel{reply: "Let's move on to the next topic."}, WithClock(clock.now))
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "user-1", testFeedback())
	require.NoError(t, err)

	// crossing into reaction with a defensive utterance forces the
	// emotional-validation check, which the stub reply never passes
	clock.advance(125 * time.Second)
	res, err := svc.ProcessUtterance(ctx, state.SessionID, "This is so unfair.", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReaction, res.Phase)
	assert.True(t, res.Fallback)
	assert.Equal(t, dialogue.Fallback(domain.PhaseReaction), res.Reply)
}

func TestTickAppliesCeilingTransition(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "user-1", testFeedback())
	require.NoError(t, err)

	// a silent user still moves forward once the 240s ceiling hits
	clock.advance(250 * time.Second)
	transition, err := svc.Tick(ctx, state.SessionID)
	require.NoError(t, err)
	require.NotNil(t, transition)
	assert.Equal(t, domain.PhaseReaction, transition.ToPhase)
	assert.Equal(t, domain.TriggerForcedTimeout, transition.Trigger)
}

func TestTickForceEndsOverlongSession(t *testing.T) {
	svc, _, clock, events := newTestService(t, WithMaxSessionDuration(10*time.Minute))
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "user-1", testFeedback())
	require.NoError(t, err)

	clock.advance(11 * time.Minute)
	transition, err := svc.Tick(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Nil(t, transition)

	current, err := svc.GetSession(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, current.Status)

	kinds := eventKinds(*events)
	require.NotEmpty(t, kinds)
	assert.Equal(t, domain.EventSessionEnded, kinds[len(kinds)-1])
}

func TestAdvancePhaseManual(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "user-1", testFeedback())
	require.NoError(t, err)

	_, err = svc.AdvancePhase(ctx, state.SessionID, domain.PhaseCoaching)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	transition, err := svc.AdvancePhase(ctx, state.SessionID, domain.PhaseReaction)
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerManual, transition.Trigger)

	current, err := svc.GetSession(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReaction, current.CurrentPhase)
}

func TestUnknownSession(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.ProcessUtterance(context.Background(), "missing", "hello", nil)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = svc.EndSession(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFailedTurnPersistenceLeavesStateIntact(t *testing.T) {
	svc, repo, clock, _ := newTestService(t)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "user-1", testFeedback())
	require.NoError(t, err)

	clock.advance(5 * time.Second)
	repo.failEmotionAppends = 1
	_, err = svc.ProcessUtterance(ctx, state.SessionID, "This is so unfair, it's not my fault.", nil)
	require.ErrorIs(t, err, domain.ErrPersistenceFailure)

	// the failed turn left no trace in memory
	current, err := svc.GetSession(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Empty(t, current.Transcript)
	assert.Empty(t, current.EmotionHistory)
	assert.Zero(t, current.DefensiveReactionCount)

	// retrying the same turn records everything exactly once
	res, err := svc.ProcessUtterance(ctx, state.SessionID, "This is so unfair, it's not my fault.", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.EmotionDefensive, res.Emotion)

	current, err = svc.GetSession(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Len(t, current.EmotionHistory, 1)
	assert.Len(t, current.Transcript, 2)
	assert.Equal(t, 1, current.DefensiveReactionCount)
	assert.Len(t, repo.emotions[state.SessionID], 1)
}

// refiningModel rewrites goal text the way the structured-output refinement
// call does, on top of the mock's canned replies.
type refiningModel struct {
	*llm.MockModel
}

func (m refiningModel) RefineGoals(ctx context.Context, goals []domain.Goal, transcript []domain.Utterance) ([]domain.Goal, error) {
	refined := make([]domain.Goal, len(goals))
	for i, g := range goals {
		refined[i] = g
		refined[i].Text = "Hold a weekly one-on-one with every engineer on the team."
		refined[i].MeasurableCriteria = "one completed one-on-one per engineer per week"
	}
	return refined, nil
}

func TestRefinedGoalsSurvivePersistence(t *testing.T) {
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "coach.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := newTestClock()
	svc := NewSessionService(store, refiningModel{llm.NewMockModel()}, WithClock(clock.now))
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "user-1", testFeedback())
	require.NoError(t, err)

	for _, phase := range []domain.Phase{domain.PhaseReaction, domain.PhaseContent, domain.PhaseCoaching} {
		_, err = svc.AdvancePhase(ctx, state.SessionID, phase)
		require.NoError(t, err)
	}

	clock.advance(time.Second)
	res, err := svc.ProcessUtterance(ctx, state.SessionID, "I will start scheduling weekly one-on-ones with each engineer on my team.", nil)
	require.NoError(t, err)
	require.Len(t, res.Plan, 1)

	summary, err := svc.EndSession(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.GoalCount)

	// reloading from storage after the session left memory returns the
	// refined wording, not the heuristic extraction
	loaded, err := store.LoadSession(ctx, state.SessionID)
	require.NoError(t, err)
	require.Len(t, loaded.DevelopmentPlan, 1)
	assert.Equal(t, "Hold a weekly one-on-one with every engineer on the team.", loaded.DevelopmentPlan[0].Text)
	assert.Equal(t, "one completed one-on-one per engineer per week", loaded.DevelopmentPlan[0].MeasurableCriteria)
}

func TestListSessions(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.StartSession(ctx, "user-1", testFeedback())
	require.NoError(t, err)
	clock.advance(time.Hour)
	second, err := svc.StartSession(ctx, "user-1", testFeedback())
	require.NoError(t, err)

	sessions, err := svc.ListSessions(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.SessionID, sessions[0].SessionID)
	assert.Equal(t, first.SessionID, sessions[1].SessionID)
}
