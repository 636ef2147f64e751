package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"neighborly/internal/ai"
	"neighborly/internal/engine"
	"neighborly/internal/qa"
	"neighborly/internal/store"

	"github.com/gorilla/mux"
)

// QueryHandler exposes the conversational answer engine and the
// summary query.
type QueryHandler struct {
	engine *engine.Engine
}

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type askResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

type summaryResponse struct {
	ContentID string `json:"content_id"`
	Summary   string `json:"summary,omitempty"`
}

func NewQueryHandler(eng *engine.Engine) *QueryHandler {
	return &QueryHandler{engine: eng}
}

func (h *QueryHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question cannot be empty", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id cannot be empty", http.StatusBadRequest)
		return
	}

	result, err := h.engine.AskQuestion(r.Context(), req.Question, req.SessionID)
	if err != nil {
		var genErr *qa.GenerationError
		switch {
		case errors.Is(err, ai.ErrUpstreamTimeout):
			http.Error(w, "Upstream AI call timed out", http.StatusGatewayTimeout)
		case errors.As(err, &genErr):
			http.Error(w, "Failed to generate an answer", http.StatusBadGateway)
		default:
			slog.Error("Failed to answer question", "session_id", req.SessionID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:  result.Answer,
		Sources: result.Sources,
	})
}

func (h *QueryHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	summaryText, err := h.engine.QuerySummary(r.Context(), id)
	if err == store.ErrNotFound {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		// Summarization failure is non-fatal: respond without a summary
		// so the caller falls back to the raw content.
		slog.Warn("Summary unavailable", "content_id", id, "error", err)
	}

	writeJSON(w, http.StatusOK, summaryResponse{ContentID: id, Summary: summaryText})
}
