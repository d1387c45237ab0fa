// Package bootstrap wires configuration, storage, providers and handlers
// into a runnable application.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"research-backend/internal/chat"
	"research-backend/internal/chunker"
	"research-backend/internal/citations"
	"research-backend/internal/documents"
	"research-backend/internal/embedding"
	geminiemb "research-backend/internal/embedding/gemini"
	openaiemb "research-backend/internal/embedding/openai"
	"research-backend/internal/extract"
	"research-backend/internal/fetch"
	"research-backend/internal/ingest"
	"research-backend/internal/jobs"
	"research-backend/internal/llm"
	geminillm "research-backend/internal/llm/gemini"
	openaillm "research-backend/internal/llm/openai"
	"research-backend/internal/papers"
	"research-backend/internal/retrieval"
	"research-backend/internal/reviews"
	"research-backend/internal/shared/config"
	"research-backend/internal/shared/server"
	"research-backend/internal/shared/storage/db"
	"research-backend/internal/shared/telemetry"
)

// App is the assembled application.
type App struct {
	Config config.Config
	Router *gin.Engine

	DB         *sql.DB
	IngestPool *jobs.Pool
	ReviewPool *jobs.Pool

	closers []func() error
}

// Build assembles the application from configuration. A missing or
// unreachable database falls back to in-memory storage so local development
// works without Postgres.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}

	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		conn, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			telemetry.Warn("bootstrap.db_unavailable", map[string]any{"error": err.Error()})
		} else if err := db.RunMigrations(ctx, conn); err != nil {
			telemetry.Warn("bootstrap.migrations_failed", map[string]any{"error": err.Error()})
			conn.Close()
		} else {
			sqlDB = conn
			app.closers = append(app.closers, conn.Close)
		}
	}
	app.DB = sqlDB

	var docRepo documents.Repo
	var chunkRepo documents.ChunksRepo
	var citationRepo documents.CitationsRepo
	var reviewRepo reviews.Repo
	if sqlDB != nil {
		docRepo = &documents.PGRepo{DB: sqlDB}
		chunkRepo = &documents.PGChunksRepo{DB: sqlDB}
		citationRepo = &documents.PGCitationsRepo{DB: sqlDB}
		reviewRepo = &reviews.PGRepo{DB: sqlDB}
	} else {
		memDocs := documents.NewMemoryRepo()
		docRepo = memDocs
		chunkRepo = documents.NewMemoryChunksRepo(memDocs)
		citationRepo = documents.NewMemoryCitationsRepo(memDocs)
		reviewRepo = reviews.NewMemoryRepo()
	}

	embedder, err := buildEmbedder(ctx, cfg, app)
	if err != nil {
		return nil, err
	}
	llmClient, err := buildLLM(ctx, cfg, app)
	if err != nil {
		return nil, err
	}

	// Separate pools: review agents block on their papers' ingestion jobs,
	// so sharing one pool could starve those jobs of workers.
	app.IngestPool = jobs.NewPool(cfg.WorkerPoolSize)
	app.ReviewPool = jobs.NewPool(cfg.WorkerPoolSize)

	ingestSvc := &ingest.Service{
		Docs:      docRepo,
		Chunks:    chunkRepo,
		Citations: citationRepo,
		Embedder:  embedder,
		LLM:       llmClient,
		Splitter:  chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		Extract:   extract.Text,
	}
	retrievalSvc := &retrieval.Service{
		Chunks:   chunkRepo,
		Embedder: embedder,
		TopK:     cfg.RetrievalTopK,
	}
	chatSvc := &chat.Service{
		Retriever: retrievalSvc,
		LLM:       llmClient,
		TopK:      cfg.RetrievalTopK,
	}
	agent := &reviews.Agent{
		Reviews:       reviewRepo,
		Docs:          docRepo,
		Search:        papers.NewArxivClient(cfg.ArxivBaseURL),
		Fetcher:       fetch.NewClient(60 * time.Second),
		Ingest:        ingestSvc,
		LLM:           llmClient,
		IngestPool:    app.IngestPool,
		MaxCandidates: cfg.ReviewMaxCandidates,
		PaperTimeout:  cfg.ReviewPaperTimeout,
	}
	reviewSvc := &reviews.Service{
		Reviews: reviewRepo,
		Agent:   agent,
		Pool:    app.ReviewPool,
	}

	app.Router = server.NewRouter(cfg, server.Deps{
		Documents: documents.NewHandler(docRepo, ingestSvc, app.IngestPool),
		Citations: citations.NewHandler(docRepo, citationRepo),
		Chat:      chat.NewHandler(chatSvc, docRepo),
		Reviews:   reviews.NewHandler(reviewSvc),
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":                cfg.Env,
		"storage":            storageKind(sqlDB),
		"llm_provider":       cfg.LLMProvider,
		"embedding_provider": cfg.EmbeddingProvider,
	})
	return app, nil
}

// Shutdown drains the worker pools and releases provider clients.
func (a *App) Shutdown(timeout time.Duration) {
	if a.ReviewPool != nil {
		if err := a.ReviewPool.Shutdown(timeout); err != nil {
			telemetry.Warn("bootstrap.review_pool_shutdown", map[string]any{"error": err.Error()})
		}
	}
	if a.IngestPool != nil {
		if err := a.IngestPool.Shutdown(timeout); err != nil {
			telemetry.Warn("bootstrap.ingest_pool_shutdown", map[string]any{"error": err.Error()})
		}
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			telemetry.Warn("bootstrap.close_failed", map[string]any{"error": err.Error()})
		}
	}
}

func buildEmbedder(ctx context.Context, cfg config.Config, app *App) (embedding.Gateway, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return openaiemb.NewClient(openaiemb.Config{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDim,
		})
	case "gemini":
		client, err := geminiemb.NewClient(ctx, os.Getenv("GEMINI_API_KEY"), cfg.EmbeddingModel, cfg.EmbeddingDim)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, client.Close)
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func buildLLM(ctx context.Context, cfg config.Config, app *App) (llm.Client, error) {
	var base llm.Client
	switch cfg.LLMProvider {
	case "openai":
		client, err := openaillm.NewClient(os.Getenv("OPENAI_API_KEY"), cfg.LLMModel)
		if err != nil {
			return nil, err
		}
		base = client
	case "gemini":
		client, err := geminillm.NewClient(ctx, os.Getenv("GEMINI_API_KEY"), cfg.LLMModel)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, client.Close)
		base = client
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
	return llm.WithRetry(base), nil
}

func storageKind(sqlDB *sql.DB) string {
	if sqlDB != nil {
		return "postgres"
	}
	return "memory"
}
