package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"research-backend/internal/chat"
	"research-backend/internal/citations"
	"research-backend/internal/documents"
	"research-backend/internal/reviews"
	"research-backend/internal/shared/config"
	"research-backend/internal/shared/metrics"
	"research-backend/internal/shared/server/middleware"
	"research-backend/internal/shared/server/respond"
)

// Deps carries the handlers the router exposes.
type Deps struct {
	Documents *documents.Handler
	Citations *citations.Handler
	Chat      *chat.Handler
	Reviews   *reviews.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Identity(),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	deps.Documents.RegisterRoutes(api)
	deps.Citations.RegisterRoutes(api)
	deps.Chat.RegisterRoutes(api)
	deps.Reviews.RegisterRoutes(api)

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
