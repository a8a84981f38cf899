// Package storage persists coaching sessions, emotion events, phase
// transitions, and development plans in SQLite via GORM.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openefficiency/empathaicoach/domain"
	"github.com/openefficiency/empathaicoach/logging"
)

// gormLogger wraps the application logger for GORM
type gormLogger struct {
	level logger.LogLevel
}

// LogMode sets the log level
func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{level: level}
}

// Info logs info messages
func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		logging.Logger.Info(fmt.Sprintf(msg, data...))
	}
}

// Warn logs warn messages
func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		logging.Logger.Warn(fmt.Sprintf(msg, data...))
	}
}

// Error logs error messages
func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		logging.Logger.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs SQL queries - only in debug mode
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level < logger.Info {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logging.Logger.Error("gorm query error",
			"error", err,
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	} else if elapsed > 200*time.Millisecond {
		logging.Logger.Warn("slow query",
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	} else {
		logging.Logger.Debug("gorm query",
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	}
}

// newGormLogger creates a GORM logger that respects the --debug flag
// (cmd/root.go exports it via EMPATHAI_DEBUG)
func newGormLogger() logger.Interface {
	if os.Getenv("EMPATHAI_DEBUG") == "1" {
		return (&gormLogger{}).LogMode(logger.Info)
	}
	return (&gormLogger{}).LogMode(logger.Silent)
}

// Store provides thread-safe ACID access to session state. It implements
// ports.SessionRepository.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new storage instance with WAL mode enabled
func NewStore(dbPath string) (*Store, error) {
	// Expand home directory if present
	if len(dbPath) > 0 && dbPath[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, dbPath[1:])
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		PrepareStmt: false, // avoid transaction conflicts
		NowFunc:     func() time.Time { return time.Now().UTC() },
		Logger:      newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for concurrent access
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA synchronous=NORMAL")
	db.Exec("PRAGMA foreign_keys=ON")

	if err := db.AutoMigrate(&Session{}, &Goal{}, &EmotionEvent{}, &PhaseTransition{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	// SQLite with WAL mode can handle multiple readers + 1 writer
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(0)

	return &Store{db: db}, nil
}

// CreateSession inserts a new session aggregate
func (s *Store) CreateSession(ctx context.Context, state *domain.SessionState) error {
	row, err := sessionRow(state)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	err = withRetry(func() error {
		return s.db.WithContext(ctx).Create(row).Error
	}, 3)
	if err != nil {
		return fmt.Errorf("%w: create session %s: %v", domain.ErrPersistenceFailure, state.SessionID, err)
	}
	return nil
}

// SaveSession overwrites the aggregate row for a session. Emotion events,
// transitions, and goals are append-only side tables and are not rewritten
// here.
func (s *Store) SaveSession(ctx context.Context, state *domain.SessionState) error {
	row, err := sessionRow(state)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	err = withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&Session{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
				"user_id":                  row.UserID,
				"status":                   row.Status,
				"current_phase":            row.CurrentPhase,
				"start_time":               row.StartTime,
				"phase_start_time":         row.PhaseStartTime,
				"end_time":                 row.EndTime,
				"defensive_reaction_count": row.DefensiveReactionCount,
				"feedback_data":            row.FeedbackData,
				"transcript":               row.Transcript,
				"summary":                  row.Summary,
			})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return domain.ErrSessionNotFound
			}
			return nil
		})
	}, 3)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("session %s: %w", state.SessionID, domain.ErrSessionNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: save session %s: %v", domain.ErrPersistenceFailure, state.SessionID, err)
	}
	return nil
}

// LoadSession rebuilds a full session aggregate including its emotion
// events, transition log, and development plan.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	var row Session
	var events []EmotionEvent
	var transitions []PhaseTransition
	var goals []Goal

	err := withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", sessionID).First(&row).Error; err != nil {
				return err
			}
			if err := tx.Where("session_id = ?", sessionID).Order("timestamp ASC, id ASC").Find(&events).Error; err != nil {
				return err
			}
			if err := tx.Where("session_id = ?", sessionID).Order("transition_time ASC, id ASC").Find(&transitions).Error; err != nil {
				return err
			}
			if err := tx.Where("session_id = ?", sessionID).Order("created_at ASC, id ASC").Find(&goals).Error; err != nil {
				return err
			}
			return nil
		})
	}, 3)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load session %s: %v", domain.ErrPersistenceFailure, sessionID, err)
	}

	state, err := sessionState(row, events, transitions, goals)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", domain.ErrCorruptState, sessionID, err)
	}
	return state, nil
}

// ListSessionsByUser returns a user's sessions newest-first, without the
// per-event side tables. A limit of 0 means no limit.
func (s *Store) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]*domain.SessionState, error) {
	var rows []Session
	err := withRetry(func() error {
		query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("start_time DESC")
		if limit > 0 {
			query = query.Limit(limit)
		}
		return query.Find(&rows).Error
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions for %s: %v", domain.ErrPersistenceFailure, userID, err)
	}

	result := make([]*domain.SessionState, 0, len(rows))
	for _, row := range rows {
		state, err := sessionState(row, nil, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: session %s: %v", domain.ErrCorruptState, row.ID, err)
		}
		result = append(result, state)
	}
	return result, nil
}

// AppendEmotionEvent records one classified emotion window
func (s *Store) AppendEmotionEvent(ctx context.Context, sessionID string, event domain.EmotionEvent) error {
	row := EmotionEvent{
		SessionID:  sessionID,
		Timestamp:  event.Timestamp,
		Emotion:    string(event.Emotion),
		Confidence: event.Confidence,
		Phase:      string(event.Phase),
	}
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Create(&row).Error
	}, 3)
	if err != nil {
		return fmt.Errorf("%w: append emotion event: %v", domain.ErrPersistenceFailure, err)
	}
	return nil
}

// AppendPhaseTransition records one phase change
func (s *Store) AppendPhaseTransition(ctx context.Context, sessionID string, transition domain.PhaseTransition) error {
	row := PhaseTransition{
		SessionID:           sessionID,
		FromPhase:           string(transition.FromPhase),
		ToPhase:             string(transition.ToPhase),
		TransitionTime:      transition.Timestamp,
		Trigger:             string(transition.Trigger),
		TimeInPreviousPhase: transition.TimeInPreviousPhase,
	}
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Create(&row).Error
	}, 3)
	if err != nil {
		return fmt.Errorf("%w: append phase transition: %v", domain.ErrPersistenceFailure, err)
	}
	return nil
}

// AppendGoal persists one development plan goal
func (s *Store) AppendGoal(ctx context.Context, sessionID string, goal domain.Goal) error {
	steps, err := json.Marshal(goal.ActionSteps)
	if err != nil {
		return fmt.Errorf("%w: marshal action steps: %v", domain.ErrPersistenceFailure, err)
	}
	row := Goal{
		ID:                 goal.ID,
		SessionID:          sessionID,
		GoalText:           goal.Text,
		GoalType:           string(goal.Type),
		SpecificBehavior:   goal.SpecificBehavior,
		MeasurableCriteria: goal.MeasurableCriteria,
		TargetDate:         goal.TargetDate,
		ActionSteps:        string(steps),
		IsCompleted:        goal.IsCompleted,
		CompletedAt:        goal.CompletedAt,
		CreatedAt:          goal.CreatedAt,
	}
	err = withRetry(func() error {
		return s.db.WithContext(ctx).Create(&row).Error
	}, 3)
	if err != nil {
		return fmt.Errorf("%w: append goal %s: %v", domain.ErrPersistenceFailure, goal.ID, err)
	}
	return nil
}

// UpdateGoal rewrites the text fields of an existing goal row. The session
// orchestrator calls this when goal refinement rewords a plan at session
// end. Completion state is owned by MarkGoalComplete and left untouched.
func (s *Store) UpdateGoal(ctx context.Context, goal domain.Goal) error {
	steps, err := json.Marshal(goal.ActionSteps)
	if err != nil {
		return fmt.Errorf("%w: marshal action steps: %v", domain.ErrPersistenceFailure, err)
	}
	err = withRetry(func() error {
		result := s.db.WithContext(ctx).Model(&Goal{}).
			Where("id = ?", goal.ID).
			Updates(map[string]interface{}{
				"goal_text":           goal.Text,
				"goal_type":           string(goal.Type),
				"specific_behavior":   goal.SpecificBehavior,
				"measurable_criteria": goal.MeasurableCriteria,
				"target_date":         goal.TargetDate,
				"action_steps":        string(steps),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrGoalNotFound
		}
		return nil
	}, 3)
	if errors.Is(err, domain.ErrGoalNotFound) {
		return fmt.Errorf("goal %s: %w", goal.ID, domain.ErrGoalNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: update goal %s: %v", domain.ErrPersistenceFailure, goal.ID, err)
	}
	return nil
}

// MarkGoalComplete flips a goal to completed. Completion is one-way; a
// goal that is already completed keeps its original completion time.
func (s *Store) MarkGoalComplete(ctx context.Context, goalID string, completedAt time.Time) error {
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&Goal{}).
				Where("id = ? AND is_completed = ?", goalID, false).
				Updates(map[string]interface{}{
					"is_completed": true,
					"completed_at": completedAt,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				var count int64
				if err := tx.Model(&Goal{}).Where("id = ?", goalID).Count(&count).Error; err != nil {
					return err
				}
				if count == 0 {
					return domain.ErrGoalNotFound
				}
				// Already completed, nothing to do
			}
			return nil
		})
	}, 3)
	if errors.Is(err, domain.ErrGoalNotFound) {
		return fmt.Errorf("goal %s: %w", goalID, domain.ErrGoalNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: complete goal %s: %v", domain.ErrPersistenceFailure, goalID, err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withRetry retries operations on SQLITE_BUSY with exponential backoff
func withRetry(fn func() error, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}

		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
			time.Sleep(time.Millisecond * time.Duration(50*(i+1)))
			continue
		}

		return err
	}
	return fmt.Errorf("operation failed after %d retries", maxRetries)
}

// Helper conversion functions
func sessionRow(state *domain.SessionState) (*Session, error) {
	feedback, err := json.Marshal(state.FeedbackData)
	if err != nil {
		return nil, fmt.Errorf("marshal feedback data: %w", err)
	}
	transcript, err := json.Marshal(state.Transcript)
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}

	row := &Session{
		ID:                     state.SessionID,
		UserID:                 state.UserID,
		Status:                 string(state.Status),
		CurrentPhase:           string(state.CurrentPhase),
		StartTime:              state.StartTime,
		PhaseStartTime:         state.PhaseStartTime,
		EndTime:                state.EndTime,
		DefensiveReactionCount: state.DefensiveReactionCount,
		FeedbackData:           string(feedback),
		Transcript:             string(transcript),
	}
	if state.Summary != nil {
		summary, err := json.Marshal(state.Summary)
		if err != nil {
			return nil, fmt.Errorf("marshal summary: %w", err)
		}
		text := string(summary)
		row.Summary = &text
	}
	return row, nil
}

func sessionState(row Session, events []EmotionEvent, transitions []PhaseTransition, goals []Goal) (*domain.SessionState, error) {
	phase := domain.Phase(row.CurrentPhase)
	if !phase.Valid() {
		return nil, fmt.Errorf("unknown phase %q", row.CurrentPhase)
	}

	state := &domain.SessionState{
		SessionID:              row.ID,
		UserID:                 row.UserID,
		Status:                 domain.SessionStatus(row.Status),
		CurrentPhase:           phase,
		StartTime:              row.StartTime,
		PhaseStartTime:         row.PhaseStartTime,
		EndTime:                row.EndTime,
		DefensiveReactionCount: row.DefensiveReactionCount,
	}

	if row.FeedbackData != "" {
		if err := json.Unmarshal([]byte(row.FeedbackData), &state.FeedbackData); err != nil {
			return nil, fmt.Errorf("unmarshal feedback data: %w", err)
		}
	}
	if row.Transcript != "" {
		if err := json.Unmarshal([]byte(row.Transcript), &state.Transcript); err != nil {
			return nil, fmt.Errorf("unmarshal transcript: %w", err)
		}
	}
	if row.Summary != nil && *row.Summary != "" {
		var summary domain.SessionSummary
		if err := json.Unmarshal([]byte(*row.Summary), &summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
		state.Summary = &summary
	}

	for _, e := range events {
		emotion := domain.Emotion(e.Emotion)
		if !emotion.Valid() {
			return nil, fmt.Errorf("unknown emotion %q", e.Emotion)
		}
		state.EmotionHistory = append(state.EmotionHistory, domain.EmotionEvent{
			Timestamp:  e.Timestamp,
			Emotion:    emotion,
			Confidence: e.Confidence,
			Phase:      domain.Phase(e.Phase),
		})
	}

	for _, t := range transitions {
		state.TransitionLog = append(state.TransitionLog, domain.PhaseTransition{
			FromPhase:           domain.Phase(t.FromPhase),
			ToPhase:             domain.Phase(t.ToPhase),
			Timestamp:           t.TransitionTime,
			TimeInPreviousPhase: t.TimeInPreviousPhase,
			Trigger:             domain.TransitionTrigger(t.Trigger),
		})
	}

	for _, g := range goals {
		goal := domain.Goal{
			ID:                 g.ID,
			SessionID:          g.SessionID,
			Text:               g.GoalText,
			Type:               domain.GoalType(g.GoalType),
			SpecificBehavior:   g.SpecificBehavior,
			MeasurableCriteria: g.MeasurableCriteria,
			TargetDate:         g.TargetDate,
			IsCompleted:        g.IsCompleted,
			CompletedAt:        g.CompletedAt,
			CreatedAt:          g.CreatedAt,
		}
		if g.ActionSteps != "" {
			if err := json.Unmarshal([]byte(g.ActionSteps), &goal.ActionSteps); err != nil {
				return nil, fmt.Errorf("unmarshal action steps for goal %s: %w", g.ID, err)
			}
		}
		state.DevelopmentPlan = append(state.DevelopmentPlan, goal)
	}

	return state, nil
}
