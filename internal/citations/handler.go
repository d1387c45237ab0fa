package citations

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"research-backend/internal/documents"
	"research-backend/internal/shared/server/middleware"
	"research-backend/internal/shared/server/respond"
)

// Handler serves citation listings and bibliography exports.
type Handler struct {
	Docs      documents.Repo
	Citations documents.CitationsRepo
}

// NewHandler constructs a Handler.
func NewHandler(docs documents.Repo, citations documents.CitationsRepo) *Handler {
	return &Handler{Docs: docs, Citations: citations}
}

// RegisterRoutes attaches citation routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/citations", h.listAll)
	rg.GET("/documents/:id/citations", h.list)
	rg.GET("/documents/:id/citations/export", h.export)
}

// listAll returns every citation extracted across the owner's documents.
func (h *Handler) listAll(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	cits, err := h.Citations.ListForOwner(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch citations", nil)
		return
	}
	if cits == nil {
		cits = []documents.Citation{}
	}
	respond.OK(c, gin.H{"citations": cits})
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	docID := c.Param("id")
	c.Set("documentId", docID)

	if _, err := h.Docs.GetByID(c.Request.Context(), userID, docID); err != nil {
		h.respondLookupError(c, err)
		return
	}

	cits, err := h.Citations.ListForDocument(c.Request.Context(), userID, docID)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	if cits == nil {
		cits = []documents.Citation{}
	}
	respond.OK(c, gin.H{"citations": cits})
}

// export renders a document's citations as a BibTeX bibliography.
func (h *Handler) export(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	docID := c.Param("id")
	c.Set("documentId", docID)

	doc, err := h.Docs.GetByID(c.Request.Context(), userID, docID)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	cits, err := h.Citations.ListForDocument(c.Request.Context(), userID, docID)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="citations.bib"`)
	c.Data(http.StatusOK, "application/x-bibtex", []byte(FormatBibTeX(doc.Filename, cits)))
}

func (h *Handler) respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, documents.ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		return
	}
	respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch citations", nil)
}
