package reviews

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"research-backend/internal/shared/server/middleware"
	"research-backend/internal/shared/server/respond"
)

// Handler wires literature review HTTP handlers.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches review routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reviews", h.start)
	rg.GET("/reviews", h.list)
	rg.GET("/reviews/active", h.active)
	rg.GET("/reviews/:id", h.get)
	rg.DELETE("/reviews/:id", h.delete)
}

type startRequest struct {
	Topic string `json:"topic"`
}

func (h *Handler) start(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	review, err := h.Svc.Start(c.Request.Context(), userID, req.Topic)
	if err != nil {
		if errors.Is(err, ErrEmptyTopic) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "topic is required", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start review", nil)
		return
	}
	c.Set("reviewId", review.ID)
	respond.JSON(c, http.StatusAccepted, review)
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	reviews, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list reviews", nil)
		return
	}
	if reviews == nil {
		reviews = []LiteratureReview{}
	}
	respond.OK(c, gin.H{"reviews": reviews})
}

// active returns the most recent review so reconnecting clients can resume
// polling without restarting the workflow.
func (h *Handler) active(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	review, err := h.Svc.GetActive(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.OK(c, gin.H{"review": nil})
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch review", nil)
		return
	}
	respond.OK(c, gin.H{"review": review})
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	reviewID := c.Param("id")
	c.Set("reviewId", reviewID)

	review, err := h.Svc.Get(c.Request.Context(), userID, reviewID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "review not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch review", nil)
		return
	}
	respond.OK(c, review)
}

func (h *Handler) delete(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	reviewID := c.Param("id")
	c.Set("reviewId", reviewID)

	if err := h.Svc.Delete(c.Request.Context(), userID, reviewID); err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "review not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete review", nil)
		return
	}
	c.Status(http.StatusNoContent)
}
