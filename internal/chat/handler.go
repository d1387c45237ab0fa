package chat

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"research-backend/internal/documents"
	"research-backend/internal/retrieval"
	"research-backend/internal/shared/server/middleware"
	"research-backend/internal/shared/server/respond"
)

// Handler serves the streaming chat endpoint.
type Handler struct {
	Svc  *Service
	Docs documents.Repo
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, docs documents.Repo) *Handler {
	return &Handler{Svc: svc, Docs: docs}
}

// RegisterRoutes attaches chat routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/chat", h.ask)
}

type askRequest struct {
	DocumentIDs []string `json:"documentIds"`
	Question    string   `json:"question"`
}

// ask streams the answer as server-sent events: "token" events carry answer
// fragments, a single "error" event terminates a failed stream and "done"
// closes a successful one. Client disconnect cancels the LLM stream.
func (h *Handler) ask(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "question is required", nil)
		return
	}
	if len(req.DocumentIDs) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "documentIds is required", nil)
		return
	}

	// Ownership check: silently drop ids the caller cannot see.
	var docIDs []string
	for _, id := range req.DocumentIDs {
		if _, err := h.Docs.GetByID(c.Request.Context(), userID, id); err == nil {
			docIDs = append(docIDs, id)
		}
	}
	if len(docIDs) == 0 {
		respond.Error(c, http.StatusNotFound, "not_found", "no accessible documents in request", nil)
		return
	}

	stream, err := h.Svc.Ask(c.Request.Context(), docIDs, req.Question)
	if err != nil {
		if errors.Is(err, retrieval.ErrNoChunks) {
			respond.Error(c, http.StatusNotFound, "not_found", "requested documents have no indexed content", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start chat", nil)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	for fragment := range stream {
		if fragment.Err != nil {
			c.SSEvent("error", fragment.Err.Error())
			break
		}
		c.SSEvent("token", fragment.Text)
		if canFlush {
			flusher.Flush()
		}
	}
	c.SSEvent("done", "")
	if canFlush {
		flusher.Flush()
	}
}
