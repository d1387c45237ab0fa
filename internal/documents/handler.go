package documents

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"research-backend/internal/jobs"
	"research-backend/internal/shared/server/middleware"
	"research-backend/internal/shared/server/respond"
)

const maxUploadSize = 20 << 20 // 20MB

// IngestRunner triggers the ingestion pipeline for a stored document.
type IngestRunner interface {
	Ingest(ctx context.Context, docID string, raw []byte, filename string) error
}

// Handler wires document HTTP handlers.
type Handler struct {
	Repo   Repo
	Ingest IngestRunner
	Pool   *jobs.Pool
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo, ingest IngestRunner, pool *jobs.Pool) *Handler {
	return &Handler{Repo: repo, Ingest: ingest, Pool: pool}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.DELETE("/documents/:id", h.delete)
}

// upload stores a PENDING document and schedules its ingestion. The response
// returns immediately; clients poll the document status.
func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	if strings.TrimSpace(fileHeader.Filename) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "filename is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	if len(raw) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is empty", nil)
		return
	}

	doc := Document{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		Filename:  fileHeader.Filename,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Repo.Create(c.Request.Context(), doc); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store document", nil)
		return
	}
	c.Set("documentId", doc.ID)

	submitted := h.Pool.Submit("ingest", func(jobCtx context.Context) {
		// Errors surface through the document's status.
		_ = h.Ingest.Ingest(jobCtx, doc.ID, raw, doc.Filename)
	})
	if !submitted {
		respond.Error(c, http.StatusServiceUnavailable, "unavailable", "ingestion workers unavailable", nil)
		return
	}

	respond.JSON(c, http.StatusAccepted, doc)
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := h.Repo.ListByOwner(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list documents", nil)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	respond.OK(c, gin.H{"documents": docs})
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	docID := c.Param("id")
	c.Set("documentId", docID)

	doc, err := h.Repo.GetByID(c.Request.Context(), userID, docID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch document", nil)
		return
	}
	respond.OK(c, doc)
}

func (h *Handler) delete(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	docID := c.Param("id")
	c.Set("documentId", docID)

	if err := h.Repo.Delete(c.Request.Context(), userID, docID); err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete document", nil)
		return
	}
	c.Status(http.StatusNoContent)
}
