package domain

import "errors"

var (
	// ErrInvalidTransition is returned for backward or phase-skipping
	// transition requests. The phase machine never silently clamps.
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrModelUnavailable wraps language-model call failures and timeouts
	ErrModelUnavailable = errors.New("language model unavailable")

	// ErrPersistenceFailure wraps storage failures. In-memory session
	// state stays intact so a retry does not lose conversational context.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrSessionNotFound is returned for unknown session IDs
	ErrSessionNotFound = errors.New("session not found")

	// ErrGoalNotFound is returned for unknown goal IDs
	ErrGoalNotFound = errors.New("goal not found")

	// ErrSessionEnded is returned when a turn arrives after the session
	// has moved past the active state.
	ErrSessionEnded = errors.New("session already ended")

	// ErrCorruptState indicates a session aggregate with values outside
	// the domain enumerations. Processing aborts rather than guessing.
	ErrCorruptState = errors.New("corrupt session state")
)
