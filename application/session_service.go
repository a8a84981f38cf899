// Package application orchestrates coaching sessions: it owns the per-turn
// loop that classifies emotion, drives the phase machine, builds prompts,
// screens model replies, and persists everything.
package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openefficiency/empathaicoach/dialogue"
	"github.com/openefficiency/empathaicoach/domain"
	"github.com/openefficiency/empathaicoach/emotion"
	"github.com/openefficiency/empathaicoach/logging"
	"github.com/openefficiency/empathaicoach/plan"
	"github.com/openefficiency/empathaicoach/ports"
	"github.com/openefficiency/empathaicoach/r2c2"
)

// maxRegenerations bounds how many times a rejected reply is regenerated
// before the canned fallback is used.
const maxRegenerations = 2

// defaultEmotionWindow is the trailing window for trend queries
const defaultEmotionWindow = 30 * time.Second

// defaultMaxSessionDuration force-ends sessions that run away
const defaultMaxSessionDuration = time.Hour

// EventSink receives orchestrator events. A nil sink drops them.
type EventSink func(domain.Event)

// TurnResult is everything one processed utterance produces for the caller
type TurnResult struct {
	Reply      string                        `json:"reply"`
	Fallback   bool                          `json:"fallback"`
	Emotion    domain.Emotion                `json:"emotion"`
	Confidence float64                       `json:"confidence"`
	Phase      domain.Phase                  `json:"phase"`
	Transition *domain.PhaseTransition       `json:"transition,omitempty"`
	Pacing     dialogue.PacingRecommendation `json:"pacing"`
	Guidance   dialogue.PhaseGuidance        `json:"guidance"`
	Plan       []domain.Goal                 `json:"plan,omitempty"`
}

// activeSession bundles the in-memory collaborators for one live session
type activeSession struct {
	state                 *domain.SessionState
	machine               *r2c2.Machine
	history               *emotion.History
	validator             *dialogue.Validator
	defensiveAtPhaseEntry int
	phaseStartIdx         int // transcript index when the current phase began
	coachingTurns         int
}

// SessionService is the sole mutator of session state. Turns for the same
// session are serialized under the service lock; persistence failures keep
// the in-memory state intact so a retry does not lose context.
type SessionService struct {
	repo       ports.SessionRepository
	model      ports.CoachModel
	classifier *emotion.Classifier
	prompts    *dialogue.PromptSelector
	builder    *plan.Builder

	durations     r2c2.Durations
	emotionWindow time.Duration
	maxSession    time.Duration
	now           func() time.Time
	newID         func() string
	sink          EventSink

	mu     sync.Mutex
	active map[string]*activeSession
}

// ServiceOption configures a SessionService
type ServiceOption func(*SessionService)

// WithClock injects a clock for tests
func WithClock(now func() time.Time) ServiceOption {
	return func(s *SessionService) {
		s.now = now
		s.builder = plan.NewBuilderWithClock(now, s.newID)
	}
}

// WithDurations overrides the phase dwell minimums
func WithDurations(d r2c2.Durations) ServiceOption {
	return func(s *SessionService) { s.durations = d }
}

// WithEmotionWindow overrides the trailing trend window
func WithEmotionWindow(w time.Duration) ServiceOption {
	return func(s *SessionService) { s.emotionWindow = w }
}

// WithMaxSessionDuration overrides the forced session end time
func WithMaxSessionDuration(d time.Duration) ServiceOption {
	return func(s *SessionService) { s.maxSession = d }
}

// WithEventSink registers the event consumer
func WithEventSink(sink EventSink) ServiceOption {
	return func(s *SessionService) { s.sink = sink }
}

// WithThresholds overrides the classifier tuning
func WithThresholds(t emotion.Thresholds) ServiceOption {
	return func(s *SessionService) { s.classifier = emotion.NewClassifier(t) }
}

// NewSessionService wires the orchestrator
func NewSessionService(repo ports.SessionRepository, model ports.CoachModel, opts ...ServiceOption) *SessionService {
	s := &SessionService{
		repo:          repo,
		model:         model,
		classifier:    emotion.NewClassifier(emotion.DefaultThresholds()),
		prompts:       dialogue.NewPromptSelector(),
		durations:     r2c2.DefaultDurations(),
		emotionWindow: defaultEmotionWindow,
		maxSession:    defaultMaxSessionDuration,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
		active:        make(map[string]*activeSession),
	}
	s.builder = plan.NewBuilder()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession creates a new active session seeded with parsed feedback
func (s *SessionService) StartSession(ctx context.Context, userID string, feedback domain.FeedbackData) (*domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	state := &domain.SessionState{
		SessionID:      s.newID(),
		UserID:         userID,
		Status:         domain.StatusActive,
		CurrentPhase:   domain.PhaseRelationship,
		StartTime:      now,
		PhaseStartTime: now,
		FeedbackData:   feedback,
	}

	if err := s.repo.CreateSession(ctx, state); err != nil {
		return nil, err
	}

	s.active[state.SessionID] = &activeSession{
		state:     state,
		machine:   r2c2.NewMachine(s.durations, r2c2.WithClock(s.now)),
		history:   emotion.NewHistoryWithClock(s.now),
		validator: dialogue.NewValidator(feedback),
	}

	logging.Logger.Info("session started", "session_id", state.SessionID, "user_id", userID)
	return snapshot(state), nil
}

// ProcessUtterance runs one full turn: classify, record, evaluate the
// phase machine, generate a validated coach reply, and persist.
func (s *SessionService) ProcessUtterance(ctx context.Context, sessionID, text string, features *domain.AudioFeatures) (*TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.activeSessionLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state := sess.state
	now := s.now()

	// Classify the emotion window and persist it before touching in-memory
	// state, so a failed turn can be retried without double-recording.
	label, confidence := s.classifier.Classify(emotion.Window{Features: features, Text: text})
	event := domain.EmotionEvent{
		Timestamp:  now,
		Emotion:    label,
		Confidence: confidence,
		Phase:      state.CurrentPhase,
	}
	if err := s.repo.AppendEmotionEvent(ctx, sessionID, event); err != nil {
		logging.Logger.Error("failed to persist emotion event", "session_id", sessionID, "error", err)
		return nil, err
	}
	sess.history.Record(event)
	state.EmotionHistory = append(state.EmotionHistory, event)
	if label.Defensive() {
		state.DefensiveReactionCount++
	}
	s.emit(domain.EmotionDetectedEvent{
		SessionID:  sessionID,
		Emotion:    label,
		Confidence: confidence,
		Timestamp:  now,
		Phase:      state.CurrentPhase,
	})

	// Record the user utterance before evaluating readiness so the turn
	// itself counts toward engagement.
	state.Transcript = append(state.Transcript, domain.Utterance{
		Speaker:   domain.SpeakerUser,
		Text:      text,
		Timestamp: now,
		Phase:     state.CurrentPhase,
	})

	transition, err := s.evaluateLocked(ctx, sess)
	if err != nil {
		return nil, err
	}

	if state.CurrentPhase == domain.PhaseCoaching {
		sess.coachingTurns++
	}

	// Build the prompt and generate a screened reply
	trend := sess.history.Trend(s.emotionWindow)
	prompt := s.prompts.Build(dialogue.PromptInput{
		Phase:                  state.CurrentPhase,
		Themes:                 state.FeedbackData.Themes,
		Trend:                  trend,
		DefensiveReactionCount: state.DefensiveReactionCount,
	})

	reply, fallback, err := s.generateLocked(ctx, sess, prompt, label)
	if err != nil {
		return nil, err
	}

	coachTurn := domain.Utterance{
		Speaker:   domain.SpeakerCoach,
		Text:      reply,
		Timestamp: s.now(),
		Phase:     state.CurrentPhase,
	}
	state.Transcript = append(state.Transcript, coachTurn)
	s.emit(domain.DialogueEvent{SessionID: sessionID, Utterance: coachTurn, Fallback: fallback})

	// Goals accrue only once the session reaches coaching
	if state.CurrentPhase == domain.PhaseCoaching {
		if err := s.extractGoalsLocked(ctx, sess); err != nil {
			return nil, err
		}
	}

	if err := s.repo.SaveSession(ctx, state); err != nil {
		logging.Logger.Error("failed to persist session", "session_id", sessionID, "error", err)
		return nil, err
	}

	return &TurnResult{
		Reply:      reply,
		Fallback:   fallback,
		Emotion:    label,
		Confidence: confidence,
		Phase:      state.CurrentPhase,
		Transition: transition,
		Pacing:     s.prompts.Pacing(trend),
		Guidance:   dialogue.GuidanceFor(state.CurrentPhase),
		Plan:       append([]domain.Goal(nil), state.DevelopmentPlan...),
	}, nil
}

// Tick re-evaluates time-based transitions between utterances, so a silent
// user still moves forward once the ceiling hits. It also force-ends
// sessions past the maximum duration.
func (s *SessionService) Tick(ctx context.Context, sessionID string) (*domain.PhaseTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.activeSessionLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.now().Sub(sess.state.StartTime) >= s.maxSession {
		logging.Logger.Info("session exceeded max duration, ending", "session_id", sessionID)
		if _, err := s.endLocked(ctx, sess); err != nil {
			return nil, err
		}
		return nil, nil
	}

	transition, err := s.evaluateLocked(ctx, sess)
	if err != nil {
		return nil, err
	}
	if transition != nil {
		if err := s.repo.SaveSession(ctx, sess.state); err != nil {
			return nil, err
		}
	}
	return transition, nil
}

// TickAll runs Tick over every active session. The server's background
// loop calls this so silent sessions still hit their time ceilings.
func (s *SessionService) TickAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if _, err := s.Tick(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			logging.Logger.Warn("tick failed", "session_id", id, "error", err)
		}
	}
}

// AdvancePhase performs a manual, single-forward-step phase change
func (s *SessionService) AdvancePhase(ctx context.Context, sessionID string, to domain.Phase) (*domain.PhaseTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.activeSessionLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	transition, err := sess.machine.Advance(to, domain.TriggerManual)
	if err != nil {
		return nil, err
	}
	if err := s.applyTransitionLocked(ctx, sess, transition); err != nil {
		return nil, err
	}
	if err := s.repo.SaveSession(ctx, sess.state); err != nil {
		return nil, err
	}
	return transition, nil
}

// EndSession summarizes and closes a session. Goal refinement runs when the
// model supports it; refinement failure is non-fatal.
func (s *SessionService) EndSession(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.activeSessionLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.endLocked(ctx, sess)
}

func (s *SessionService) endLocked(ctx context.Context, sess *activeSession) (*domain.SessionSummary, error) {
	state := sess.state
	state.Status = domain.StatusSummarizing

	if refiner, ok := s.model.(ports.GoalRefiner); ok && len(state.DevelopmentPlan) > 0 {
		refined, err := refiner.RefineGoals(ctx, state.DevelopmentPlan, state.Transcript)
		if err != nil {
			logging.Logger.Warn("goal refinement failed, keeping heuristic goals",
				"session_id", state.SessionID, "error", err)
		} else {
			state.DevelopmentPlan = refined
			// Goal rows were written at extraction time; rewrite them so the
			// persisted plan matches the refined wording. A failed rewrite
			// keeps the heuristic row, which is still a valid goal.
			for _, goal := range refined {
				if err := s.repo.UpdateGoal(ctx, goal); err != nil {
					logging.Logger.Warn("failed to persist refined goal",
						"session_id", state.SessionID, "goal_id", goal.ID, "error", err)
				}
			}
		}
	}

	now := s.now()
	state.EndTime = &now
	state.Summary = s.buildSummaryLocked(sess, now)
	state.Status = domain.StatusEnded

	if err := s.repo.SaveSession(ctx, state); err != nil {
		// keep in-memory state so the caller can retry
		state.Status = domain.StatusSummarizing
		return nil, err
	}

	delete(s.active, state.SessionID)
	s.emit(domain.SessionEndedEvent{SessionID: state.SessionID, Summary: *state.Summary})
	logging.Logger.Info("session ended",
		"session_id", state.SessionID,
		"duration_s", state.Summary.DurationSeconds,
		"goals", state.Summary.GoalCount)
	return state.Summary, nil
}

// CompleteGoal marks one development goal completed
func (s *SessionService) CompleteGoal(ctx context.Context, goalID string) error {
	return s.repo.MarkGoalComplete(ctx, goalID, s.now())
}

// GetSession returns a session, live or persisted
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	s.mu.Lock()
	if sess, ok := s.active[sessionID]; ok {
		state := snapshot(sess.state)
		s.mu.Unlock()
		return state, nil
	}
	s.mu.Unlock()
	return s.repo.LoadSession(ctx, sessionID)
}

// ListSessions returns a user's sessions newest-first
func (s *SessionService) ListSessions(ctx context.Context, userID string, limit int) ([]*domain.SessionState, error) {
	return s.repo.ListSessionsByUser(ctx, userID, limit)
}

// evaluateLocked runs the phase machine and applies any resulting
// transition to the aggregate and side tables.
func (s *SessionService) evaluateLocked(ctx context.Context, sess *activeSession) (*domain.PhaseTransition, error) {
	state := sess.state
	transition := sess.machine.Evaluate(r2c2.EvalContext{
		History:                    sess.history,
		DefensiveCount:             state.DefensiveReactionCount,
		DefensiveCountAtPhaseEntry: sess.defensiveAtPhaseEntry,
		UtterancesSincePhase:       state.Transcript[sess.phaseStartIdx:],
	})
	if transition == nil {
		return nil, nil
	}
	if err := s.applyTransitionLocked(ctx, sess, transition); err != nil {
		return nil, err
	}
	return transition, nil
}

func (s *SessionService) applyTransitionLocked(ctx context.Context, sess *activeSession, transition *domain.PhaseTransition) error {
	state := sess.state
	state.CurrentPhase = transition.ToPhase
	state.PhaseStartTime = transition.Timestamp
	state.TransitionLog = append(state.TransitionLog, *transition)
	sess.defensiveAtPhaseEntry = state.DefensiveReactionCount
	sess.phaseStartIdx = len(state.Transcript)

	if err := s.repo.AppendPhaseTransition(ctx, state.SessionID, *transition); err != nil {
		logging.Logger.Error("failed to persist phase transition",
			"session_id", state.SessionID, "error", err)
		return err
	}
	s.emit(domain.PhaseTransitionEvent{SessionID: state.SessionID, Transition: *transition})
	logging.Logger.Info("phase transition",
		"session_id", state.SessionID,
		"from", transition.FromPhase,
		"to", transition.ToPhase,
		"trigger", transition.Trigger,
		"time_in_phase_s", transition.TimeInPreviousPhase)
	return nil
}

// generateLocked asks the model for a reply and screens it. Rejected
// replies are regenerated up to maxRegenerations times, then replaced by
// the phase fallback line.
func (s *SessionService) generateLocked(ctx context.Context, sess *activeSession, prompt string, lastEmotion domain.Emotion) (string, bool, error) {
	state := sess.state
	check := dialogue.CheckInput{
		Phase:        state.CurrentPhase,
		LastEmotion:  lastEmotion,
		CoachingTurn: sess.coachingTurns,
	}

	for attempt := 0; attempt <= maxRegenerations; attempt++ {
		reply, err := s.model.Generate(ctx, prompt, state.Transcript)
		if err != nil {
			if errors.Is(err, domain.ErrModelUnavailable) {
				logging.Logger.Warn("model unavailable, using fallback",
					"session_id", state.SessionID, "error", err)
				return dialogue.Fallback(state.CurrentPhase), true, nil
			}
			return "", false, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
		}

		check.Reply = reply
		ok, reason := sess.validator.Check(check)
		if ok {
			return reply, false, nil
		}
		logging.Logger.Warn("reply rejected",
			"session_id", state.SessionID,
			"reason", reason,
			"attempt", attempt+1)
	}
	return dialogue.Fallback(state.CurrentPhase), true, nil
}

// extractGoalsLocked harvests new goals from the coaching transcript
func (s *SessionService) extractGoalsLocked(ctx context.Context, sess *activeSession) error {
	state := sess.state
	var coaching []domain.Utterance
	for _, u := range state.Transcript {
		if u.Phase == domain.PhaseCoaching {
			coaching = append(coaching, u)
		}
	}

	extracted := s.builder.Extract(state.SessionID, coaching)
	before := len(state.DevelopmentPlan)
	merged := s.builder.Merge(state.DevelopmentPlan, extracted)
	if len(merged) == before {
		return nil
	}

	added := merged[before:]
	for _, goal := range added {
		if err := s.repo.AppendGoal(ctx, state.SessionID, goal); err != nil {
			logging.Logger.Error("failed to persist goal",
				"session_id", state.SessionID, "goal_id", goal.ID, "error", err)
			return err
		}
	}
	state.DevelopmentPlan = merged
	s.emit(domain.PlanUpdatedEvent{SessionID: state.SessionID, Goals: append([]domain.Goal(nil), merged...)})
	logging.Logger.Info("development plan updated",
		"session_id", state.SessionID, "new_goals", len(added), "total", len(merged))
	return nil
}

func (s *SessionService) buildSummaryLocked(sess *activeSession, endTime time.Time) *domain.SessionSummary {
	state := sess.state

	phaseDurations := make(map[domain.Phase]float64)
	completed := []domain.Phase{}
	for _, t := range state.TransitionLog {
		phaseDurations[t.FromPhase] += t.TimeInPreviousPhase
		completed = append(completed, t.FromPhase)
	}
	// current phase runs until the end timestamp
	phaseDurations[state.CurrentPhase] += endTime.Sub(state.PhaseStartTime).Seconds()
	completed = append(completed, state.CurrentPhase)

	journey := sess.history.Journey()

	var insights []string
	if journey.StartEmotion.Negative() && !journey.EndEmotion.Negative() {
		insights = append(insights, fmt.Sprintf("emotional state improved from %s to %s over the session", journey.StartEmotion, journey.EndEmotion))
	}
	if state.DefensiveReactionCount >= 3 {
		insights = append(insights, fmt.Sprintf("%d defensive reactions observed; consider a gentler follow-up", state.DefensiveReactionCount))
	}
	if state.CurrentPhase == domain.PhaseCoaching && len(state.DevelopmentPlan) > 0 {
		insights = append(insights, fmt.Sprintf("session completed all phases with %d committed goals", len(state.DevelopmentPlan)))
	}
	if len(state.DevelopmentPlan) == 0 {
		insights = append(insights, "no development goals were captured; a follow-up session is recommended")
	}

	return &domain.SessionSummary{
		SessionID:        state.SessionID,
		UserID:           state.UserID,
		StartTime:        state.StartTime,
		EndTime:          endTime,
		DurationSeconds:  endTime.Sub(state.StartTime).Seconds(),
		PhaseDurations:   phaseDurations,
		PhasesCompleted:  completed,
		EmotionalJourney: journey,
		GoalCount:        len(state.DevelopmentPlan),
		KeyInsights:      insights,
	}
}

func (s *SessionService) activeSessionLocked(ctx context.Context, sessionID string) (*activeSession, error) {
	sess, ok := s.active[sessionID]
	if !ok {
		// Distinguish an ended session from an unknown one
		if state, err := s.repo.LoadSession(ctx, sessionID); err == nil && state.Status == domain.StatusEnded {
			return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionEnded)
		}
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	if sess.state.Status != domain.StatusActive {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionEnded)
	}
	if !sess.state.CurrentPhase.Valid() {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrCorruptState)
	}
	return sess, nil
}

func (s *SessionService) emit(event domain.Event) {
	if s.sink != nil {
		s.sink(event)
	}
}

// snapshot copies the aggregate so callers cannot mutate live state
func snapshot(state *domain.SessionState) *domain.SessionState {
	copied := *state
	copied.EmotionHistory = append([]domain.EmotionEvent(nil), state.EmotionHistory...)
	copied.TransitionLog = append([]domain.PhaseTransition(nil), state.TransitionLog...)
	copied.Transcript = append([]domain.Utterance(nil), state.Transcript...)
	copied.DevelopmentPlan = append([]domain.Goal(nil), state.DevelopmentPlan...)
	return &copied
}
