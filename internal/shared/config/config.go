package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	DatabaseURL     string
	CORSAllowOrigin []string

	LLMProvider string
	LLMModel    string

	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDim      int

	ChunkSize    int
	ChunkOverlap int

	RetrievalTopK int

	ReviewMaxCandidates int
	ReviewPaperTimeout  time.Duration

	WorkerPoolSize int

	ArxivBaseURL string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		DatabaseURL:     dbURL,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),

		LLMProvider: normalizeProvider(getEnv("LLM_PROVIDER", "gemini")),
		LLMModel:    getEnv("LLM_MODEL", ""),

		EmbeddingProvider: normalizeProvider(getEnv("EMBEDDING_PROVIDER", "gemini")),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),
		EmbeddingDim:      getEnvInt("EMBEDDING_DIM", 768),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 750),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 112),

		RetrievalTopK: getEnvInt("RETRIEVAL_TOP_K", 5),

		ReviewMaxCandidates: getEnvInt("REVIEW_MAX_CANDIDATES", 5),
		ReviewPaperTimeout:  time.Duration(getEnvInt("REVIEW_PAPER_TIMEOUT_SECONDS", 300)) * time.Second,

		WorkerPoolSize: getEnvInt("WORKER_POOL_SIZE", 4),

		ArxivBaseURL: getEnv("ARXIV_BASE_URL", "https://export.arxiv.org/api/query"),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	default:
		return "gemini"
	}
}
