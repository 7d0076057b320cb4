package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cortezalberto/coderunner1/internal/hierarchy"
	"github.com/cortezalberto/coderunner1/internal/playground"
	"github.com/cortezalberto/coderunner1/internal/submission"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondSessionError maps session errors onto HTTP statuses
func respondSessionError(w http.ResponseWriter, r *http.Request, err error) {
	var serr *submission.Error
	switch {
	case errors.Is(err, playground.ErrNoProblem):
		respondError(w, http.StatusConflict, "no_problem", err.Error())
	case errors.Is(err, hierarchy.ErrNoSubject), errors.Is(err, hierarchy.ErrNoUnit):
		respondError(w, http.StatusConflict, "no_selection", err.Error())
	case errors.Is(err, hierarchy.ErrUnknownSubject),
		errors.Is(err, hierarchy.ErrUnknownUnit),
		errors.Is(err, hierarchy.ErrUnknownProblem):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, submission.ErrSuperseded):
		respondError(w, http.StatusConflict, "superseded", err.Error())
	case errors.As(err, &serr):
		switch serr.Kind {
		case submission.KindValidation:
			respondError(w, http.StatusUnprocessableEntity, "validation_error", serr.Message)
		case submission.KindTransport:
			respondError(w, http.StatusBadGateway, "upstream_unavailable", serr.Message)
		default:
			respondError(w, http.StatusBadGateway, "upstream_error", serr.Message)
		}
	default:
		LoggerFromContext(r.Context()).Error("unhandled session error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	storeStatus := "disabled"
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			LoggerFromContext(r.Context()).Warn("draft store not ready", "error", err)
			respondError(w, http.StatusServiceUnavailable, "not_ready", "draft store unavailable")
			return
		}
		storeStatus = "ok"
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"store":  storeStatus,
	})
}

// State handlers

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleReloadSubjects(w http.ResponseWriter, r *http.Request) {
	s.session.ReloadSubjects()
	respondJSON(w, http.StatusAccepted, s.session.Snapshot().Hierarchy)
}

type selectionLevel string

const (
	levelSubject selectionLevel = "subject"
	levelUnit    selectionLevel = "unit"
	levelProblem selectionLevel = "problem"
)

type selectRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleSelect(level selectionLevel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}

		var err error
		switch level {
		case levelSubject:
			err = s.session.SelectSubject(req.ID)
		case levelUnit:
			err = s.session.SelectUnit(req.ID)
		case levelProblem:
			err = s.session.SelectProblem(req.ID)
		}
		if err != nil {
			respondSessionError(w, r, err)
			return
		}

		LoggerFromContext(r.Context()).Debug("selection changed", "level", string(level), "id", req.ID)
		respondJSON(w, http.StatusOK, s.session.Snapshot().Hierarchy)
	}
}

// Draft handlers

type draftResponse struct {
	ProblemID string `json:"problem_id"`
	Code      string `json:"code"`
	Degraded  bool   `json:"degraded"`
}

type draftRequest struct {
	Code *string `json:"code"`
}

func (s *Server) draftResponse() draftResponse {
	snap := s.session.Snapshot()
	resp := draftResponse{Code: snap.Code, Degraded: snap.DraftDegraded}
	if snap.Problem != nil {
		resp.ProblemID = snap.Problem.ID
	}
	return resp
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	resp := s.draftResponse()
	if resp.ProblemID == "" {
		respondSessionError(w, r, playground.ErrNoProblem)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Code == nil {
		respondError(w, http.StatusBadRequest, "validation_error", "code is required")
		return
	}

	if err := s.session.SetCode(*req.Code); err != nil {
		respondSessionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.draftResponse())
}

func (s *Server) handleResetDraft(w http.ResponseWriter, r *http.Request) {
	if _, err := s.session.ResetCode(); err != nil {
		respondSessionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.draftResponse())
}

// Submission handlers

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Submit(); err != nil {
		respondSessionError(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, s.session.Snapshot().Submission)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.session.Cancel()
	respondJSON(w, http.StatusOK, s.session.Snapshot().Submission)
}

// Hint handlers

func (s *Server) handleShowHint(w http.ResponseWriter, r *http.Request) {
	reveal, err := s.session.ShowHint()
	if err != nil {
		respondSessionError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reveal)
}

// Visibility handlers

type visibilityRequest struct {
	Hidden bool      `json:"hidden"`
	At     time.Time `json:"at,omitempty"`
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	at := req.At
	if at.IsZero() {
		at = s.now()
	}
	s.session.VisibilityChanged(req.Hidden, at)
	respondJSON(w, http.StatusOK, s.session.Snapshot().Visibility)
}
