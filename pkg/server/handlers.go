package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexus-ai/nexus-go/pkg/core"
	"github.com/nexus-ai/nexus-go/pkg/learning"
)

// AskRequest is the body of POST /api/sessions/{id}/ask.
type AskRequest struct {
	Question    string   `json:"question"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// FeedbackRequest is the body of POST /api/sessions/{id}/feedback.
type FeedbackRequest struct {
	Rating *int `json:"rating"`
}

// FeedbackResponse reports what was learned from a rating.
type FeedbackResponse struct {
	Learned bool             `json:"learned"`
	Result  *learning.Result `json:"result"`
}

// HistoryResponse lists the conversation of a session.
type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	Messages  []core.Message `json:"messages"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	a, err := s.factory(r.Context())
	if err != nil {
		s.logger.Error("failed to create session", slog.String("error", err.Error()))
		respondError(w, statusFor(err), "failed to create session: "+err.Error())
		return
	}
	s.addSession(a)
	respondJSON(w, http.StatusCreated, a.Status())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, a.Status())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	a, ok := s.removeSession(chi.URLParam(r, "sessionID"))
	if !ok {
		respondError(w, http.StatusNotFound, ErrSessionNotFound.Error())
		return
	}
	s.closeSession(a.SessionID(), a)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var opts []core.AskOption
	if req.Temperature != nil {
		opts = append(opts, core.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens != nil {
		opts = append(opts, core.WithMaxTokens(*req.MaxTokens))
	}

	reply, err := a.Ask(r.Context(), req.Question, opts...)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rating == nil {
		respondError(w, http.StatusBadRequest, "rating is required")
		return
	}

	result, err := a.Feedback(r.Context(), *req.Rating)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, FeedbackResponse{Learned: true, Result: result})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}
	a.Reset()
	respondJSON(w, http.StatusOK, a.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, HistoryResponse{SessionID: a.SessionID(), Messages: a.History()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		s.logger.Error("failed to read statistics", slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "failed to read statistics")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// lookup resolves the session in the URL and writes a 404 when it is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*core.Assistant, bool) {
	a, err := s.session(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return a, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNoTurn):
		return http.StatusConflict
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrConnectionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
		code = http.StatusInternalServerError
		response = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, ErrorResponse{Error: message})
}
