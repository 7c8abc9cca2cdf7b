package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/alexi/internal/agent"
	"github.com/ashureev/alexi/internal/identity"
	"github.com/ashureev/alexi/internal/store"
)

type nextQuestionRequest struct {
	UserResponse string `json:"user_response"`
}

type setQuestionRequest struct {
	Theme string `json:"theme" validate:"required"`
	Index *int   `json:"index" validate:"required,gte=0"`
}

type progressRequest struct {
	Count *int `json:"count" validate:"required,gte=0"`
}

// RegisterRoutes mounts the question, progress and history routes. limit, if
// non-nil, wraps the routes that call the remote agent.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.GetCatalog)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Use(identity.Middleware)
			r.Get("/questions/current", h.GetCurrentQuestion)
			r.Put("/questions/current", h.SetCurrentQuestion)
			r.With(limit).Post("/questions/next", h.NextQuestion)
			r.Put("/progress", h.UpdateProgress)
			r.With(limit).Post("/progress/track", h.TrackProgress)
			r.Get("/history", h.GetHistory)
			r.Get("/status", h.GetStatus)
		})
	})
}

// GetCatalog returns the ordered question catalog.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	c := h.engine.Catalog()
	JSON(w, http.StatusOK, map[string]interface{}{
		"themes":          c.Snapshot(),
		"total_questions": c.TotalQuestions(),
	})
}

// GetCurrentQuestion returns the user's current question pointer.
func (h *Handler) GetCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	p, err := h.engine.CurrentQuestion(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to read current question", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to read user state")
		return
	}
	if p == nil {
		Error(w, http.StatusNotFound, "no current question")
		return
	}
	JSON(w, http.StatusOK, p)
}

// NextQuestion handles the user's answer and returns the resulting turn.
func (h *Handler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req nextQuestionRequest
	if err := h.decode(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, err := h.agent.Respond(r.Context(), userID, req.UserResponse)
	switch {
	case errors.Is(err, store.ErrVersionConflict):
		h.logger.Warn("Concurrent question advance rejected", "user_id", userID)
		Error(w, http.StatusConflict, "question state changed concurrently, retry")
		return
	case errors.Is(err, agent.ErrAgentUnavailable):
		h.logger.Error("Agent unavailable", "error", err, "user_id", userID)
		Error(w, http.StatusServiceUnavailable, "agent unavailable")
		return
	case err != nil:
		h.logger.Error("Failed to advance question", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to advance question")
		return
	}

	if turn.Kind == agent.TurnExhausted {
		JSON(w, http.StatusNotFound, turn)
		return
	}
	JSON(w, http.StatusOK, turn)
}

// SetCurrentQuestion jumps the user to a specific question.
func (h *Handler) SetCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req setQuestionRequest
	if err := h.decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.engine.SetCurrentQuestion(r.Context(), userID, req.Theme, *req.Index)
	if err != nil {
		h.logger.Error("Failed to set current question", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to set current question")
		return
	}
	if p == nil {
		Error(w, http.StatusNotFound, "question not found in catalog")
		return
	}
	JSON(w, http.StatusOK, p)
}

// UpdateProgress overwrites the user's progress counter.
func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req progressRequest
	if err := h.decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.UpdateProgress(r.Context(), userID, *req.Count); err != nil {
		h.logger.Error("Failed to update progress", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to update progress")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TrackProgress asks the agent to recount progress from the user's history.
func (h *Handler) TrackProgress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	result, err := h.agent.TrackProgress(r.Context(), userID)
	switch {
	case errors.Is(err, agent.ErrNoHistory):
		Error(w, http.StatusNotFound, "no message history")
		return
	case errors.Is(err, agent.ErrAgentUnavailable):
		h.logger.Warn("Progress tracking unavailable", "error", err, "user_id", userID)
		Error(w, http.StatusServiceUnavailable, "agent unavailable")
		return
	case err != nil:
		h.logger.Error("Failed to track progress", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to track progress")
		return
	}
	JSON(w, http.StatusOK, result)
}

// GetHistory returns the user's decrypted message history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	hist, err := h.history.MessageHistory(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to read history", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if hist == nil {
		Error(w, http.StatusNotFound, "user not found")
		return
	}
	JSON(w, http.StatusOK, hist)
}

// GetStatus summarises the user's position in the catalog.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	st, err := h.engine.Status(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to read status", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to read user state")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":     st,
		"ai_enabled": h.agent.Enabled(),
	})
}
