// Package config loads runtime configuration from the environment.
// All variables use the QFORGE_ prefix. A .env file in the working
// directory is read first and never overrides variables already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all non-LLM configuration. Backend settings live in
// llm.ConfigFromEnv.
type Config struct {
	DBPath          string
	Database        DatabaseConfig
	Cache           CacheConfig
	PolicyDir       string
	Embedding       EmbeddingConfig
	Retrieval       RetrievalConfig
	SerializeTopics bool
	Log             LogConfig
}

// DatabaseConfig holds PostgreSQL settings. An empty URL disables the
// pgvector content store and Postgres persistence.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis settings. An empty URL disables the retrieval cache.
type CacheConfig struct {
	URL          string
	RetrievalTTL time.Duration
}

// EmbeddingConfig selects the query embedder.
type EmbeddingConfig struct {
	Provider    string // "ollama" or "none"
	OllamaURL   string
	OllamaModel string
	Dimension   int
}

// RetrievalConfig tunes context assembly.
type RetrievalConfig struct {
	MaxChars      int
	WindowSize    int
	MinSimilarity float64
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string // "json" or "console"
	File   string // empty disables file output
}

// Load reads .env (if present) and then the QFORGE_ environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	cfg := &Config{
		DBPath: envStr("QFORGE_DB", ""),
		Database: DatabaseConfig{
			URL:      envStr("QFORGE_DATABASE_URL", ""),
			MaxConns: envInt("QFORGE_DATABASE_MAX_CONNS", 10),
			MinConns: envInt("QFORGE_DATABASE_MIN_CONNS", 1),
		},
		Cache: CacheConfig{
			URL:          envStr("QFORGE_REDIS_URL", ""),
			RetrievalTTL: envDuration("QFORGE_RETRIEVAL_CACHE_TTL", 24*time.Hour),
		},
		PolicyDir: envStr("QFORGE_POLICY_DIR", ""),
		Embedding: EmbeddingConfig{
			Provider:    envStr("QFORGE_EMBEDDER", "ollama"),
			OllamaURL:   envStr("QFORGE_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel: envStr("QFORGE_OLLAMA_MODEL", "nomic-embed-text"),
			Dimension:   envInt("QFORGE_EMBEDDING_DIM", 768),
		},
		Retrieval: RetrievalConfig{
			MaxChars:      envInt("QFORGE_CONTENT_MAX_CHARS", 9000),
			WindowSize:    envInt("QFORGE_WINDOW_SIZE", 2),
			MinSimilarity: envFloat("QFORGE_MIN_SIMILARITY", 0.6),
		},
		SerializeTopics: envBool("QFORGE_SERIALIZE_TOPICS", false),
		Log: LogConfig{
			Level:  envStr("QFORGE_LOG_LEVEL", "info"),
			Format: envStr("QFORGE_LOG_FORMAT", "json"),
			File:   envStr("QFORGE_LOG_FILE", ""),
		},
	}

	return cfg, nil
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "ollama", "none":
	default:
		return fmt.Errorf("QFORGE_EMBEDDER must be 'ollama' or 'none', got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("QFORGE_EMBEDDING_DIM must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Retrieval.MaxChars <= 0 {
		return fmt.Errorf("QFORGE_CONTENT_MAX_CHARS must be positive, got %d", c.Retrieval.MaxChars)
	}
	if c.Retrieval.WindowSize < 0 {
		return fmt.Errorf("QFORGE_WINDOW_SIZE must not be negative, got %d", c.Retrieval.WindowSize)
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("QFORGE_MIN_SIMILARITY must be within [0,1], got %g", c.Retrieval.MinSimilarity)
	}
	if c.Database.MinConns < 0 || c.Database.MaxConns < c.Database.MinConns || c.Database.MaxConns == 0 {
		return fmt.Errorf("invalid database pool size: min %d max %d", c.Database.MinConns, c.Database.MaxConns)
	}
	if c.Cache.RetrievalTTL < 0 {
		return fmt.Errorf("QFORGE_RETRIEVAL_CACHE_TTL must not be negative")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("QFORGE_LOG_FORMAT must be 'json' or 'console', got %q", c.Log.Format)
	}
	return nil
}

// HasDatabase reports whether a PostgreSQL URL is configured.
func (c *Config) HasDatabase() bool { return c.Database.URL != "" }

// HasCache reports whether a Redis URL is configured.
func (c *Config) HasCache() bool { return c.Cache.URL != "" }

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
