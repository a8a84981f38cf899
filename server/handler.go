// Package server exposes the coaching orchestrator over a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openefficiency/empathaicoach/application"
	"github.com/openefficiency/empathaicoach/domain"
	"github.com/openefficiency/empathaicoach/feedback"
	"github.com/openefficiency/empathaicoach/logging"
)

// Handler routes the coaching API
type Handler struct {
	svc *application.SessionService
}

// NewHandler builds the API handler
func NewHandler(svc *application.SessionService) http.Handler {
	h := &Handler{svc: svc}
	mux := http.NewServeMux()

	// /api/sessions           → POST: create, GET: list by user
	mux.HandleFunc("/api/sessions", h.handleSessions)

	// /api/sessions/{id}            →  GET: full session state
	// /api/sessions/{id}/utterances → POST: process one utterance
	// /api/sessions/{id}/advance    → POST: manual phase advance
	// /api/sessions/{id}/end        → POST: end and summarize
	mux.HandleFunc("/api/sessions/", h.handleSessionWithID)

	// /api/goals/{id}/complete → PUT: mark goal completed
	mux.HandleFunc("/api/goals/", h.handleGoalWithID)

	// /api/feedback/parse → POST: parse raw feedback into themes
	mux.HandleFunc("/api/feedback/parse", h.handleParseFeedback)

	return mux
}

type createSessionRequest struct {
	UserID          string               `json:"user_id"`
	Feedback        *domain.FeedbackData `json:"feedback,omitempty"`
	FeedbackContent string               `json:"feedback_content,omitempty"`
	FeedbackType    string               `json:"feedback_type,omitempty"`
}

type utteranceRequest struct {
	Text     string                `json:"text"`
	Features *domain.AudioFeatures `json:"features,omitempty"`
}

type advanceRequest struct {
	ToPhase string `json:"to_phase"`
}

type transitionResponse struct {
	FromPhase           domain.Phase             `json:"from_phase"`
	ToPhase             domain.Phase             `json:"to_phase"`
	Timestamp           time.Time                `json:"timestamp"`
	TimeInPreviousPhase float64                  `json:"time_in_previous_phase"`
	Trigger             domain.TransitionTrigger `json:"trigger"`
}

type sessionResponse struct {
	SessionID              string                 `json:"session_id"`
	UserID                 string                 `json:"user_id"`
	Status                 domain.SessionStatus   `json:"status"`
	CurrentPhase           domain.Phase           `json:"current_phase"`
	StartTime              time.Time              `json:"start_time"`
	PhaseStartTime         time.Time              `json:"phase_start_time"`
	EndTime                *time.Time             `json:"end_time,omitempty"`
	DefensiveReactionCount int                    `json:"defensive_reaction_count"`
	Transcript             []domain.Utterance     `json:"transcript,omitempty"`
	Transitions            []transitionResponse   `json:"transitions,omitempty"`
	DevelopmentPlan        []domain.Goal          `json:"development_plan,omitempty"`
	Summary                *domain.SessionSummary `json:"summary,omitempty"`
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateSession(w, r)
	case http.MethodGet:
		h.handleListSessions(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.handleGetSession(w, r, id)
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "utterances":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			h.handleUtterance(w, r, id)
			return
		case "advance":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			h.handleAdvance(w, r, id)
			return
		case "end":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			h.handleEnd(w, r, id)
			return
		}
	}

	http.NotFound(w, r)
}

func (h *Handler) handleGoalWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/goals/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "complete" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}

	if err := h.svc.CompleteGoal(r.Context(), parts[0]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	var data domain.FeedbackData
	switch {
	case req.Feedback != nil:
		data = *req.Feedback
	case req.FeedbackContent != "":
		parsed, err := feedback.Parse(req.FeedbackContent, req.FeedbackType)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		data = domain.FeedbackData{
			UserID:         req.UserID,
			CollectionDate: time.Now().UTC(),
			Themes:         parsed.Themes,
			RawComments:    parsed.RawComments,
		}
	}
	data.UserID = req.UserID

	state, err := h.svc.StartSession(r.Context(), req.UserID, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(state, true))
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id query parameter is required")
		return
	}

	states, err := h.svc.ListSessions(r.Context(), userID, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]sessionResponse, 0, len(states))
	for _, s := range states {
		out = append(out, toSessionResponse(s, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	state, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(state, true))
}

func (h *Handler) handleUtterance(w http.ResponseWriter, r *http.Request, id string) {
	var req utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" && req.Features == nil {
		badRequest(w, "text or features is required")
		return
	}

	result, err := h.svc.ProcessUtterance(r.Context(), id, req.Text, req.Features)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request, id string) {
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	transition, err := h.svc.AdvancePhase(r.Context(), id, domain.Phase(req.ToPhase))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionResponse(*transition))
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request, id string) {
	summary, err := h.svc.EndSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type parseFeedbackRequest struct {
	Content  string `json:"content"`
	FileType string `json:"file_type,omitempty"`
}

func (h *Handler) handleParseFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req parseFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		badRequest(w, "content is required")
		return
	}

	parsed, err := feedback.Parse(req.Content, req.FileType)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"themes":         parsed.Themes,
		"raw_comments":   parsed.RawComments,
		"total_comments": parsed.TotalComments,
	})
}

func toSessionResponse(s *domain.SessionState, full bool) sessionResponse {
	resp := sessionResponse{
		SessionID:              s.SessionID,
		UserID:                 s.UserID,
		Status:                 s.Status,
		CurrentPhase:           s.CurrentPhase,
		StartTime:              s.StartTime,
		PhaseStartTime:         s.PhaseStartTime,
		EndTime:                s.EndTime,
		DefensiveReactionCount: s.DefensiveReactionCount,
		Summary:                s.Summary,
	}
	if full {
		resp.Transcript = s.Transcript
		resp.DevelopmentPlan = s.DevelopmentPlan
		for _, t := range s.TransitionLog {
			resp.Transitions = append(resp.Transitions, toTransitionResponse(t))
		}
	}
	return resp
}

func toTransitionResponse(t domain.PhaseTransition) transitionResponse {
	return transitionResponse{
		FromPhase:           t.FromPhase,
		ToPhase:             t.ToPhase,
		Timestamp:           t.Timestamp,
		TimeInPreviousPhase: t.TimeInPreviousPhase,
		Trigger:             t.Trigger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

// writeError maps domain sentinels onto HTTP status codes
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrGoalNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrSessionEnded), errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrModelUnavailable):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		logging.Logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
