// Package config loads service configuration from the environment, with an
// optional YAML file for per-KB-type retrieval default overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// EmbeddingConfig configures the external embedding service.
type EmbeddingConfig struct {
	BaseURL    string
	Path       string
	Model      string
	APIKey     string
	APIHeader  string // "Authorization" or a custom header name
	Dimensions int
	Timeout    time.Duration
	MaxRetries int
}

// LLMConfig configures the synthesis/planner LLM provider.
type LLMConfig struct {
	Provider          string // "anthropic" | "openai" | "google"
	Model             string
	APIKey            string
	BaseURL           string
	Temperature       float64
	MaxOutputTokens   int64
	ContextWindow     int
	RequestTimeout    time.Duration
}

// DatabaseConfig configures the Postgres registry/chunk storage pool.
type DatabaseConfig struct {
	DSN             string
	MinConns        int32
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// VectorConfig selects and configures the per-KB vector backend.
type VectorConfig struct {
	Backend string // "pgvector" | "qdrant"
	Metric  string // "cosine" | "l2" | "ip"
	QdrantDSN string
}

// ChunkingConfig configures the Chunker/Preprocessor defaults.
type ChunkingConfig struct {
	TargetTokens int
	OverlapTokens int
}

// RetrievalDefaults holds the per-kb_type retrieval defaults described in
// SPEC_FULL.md §4.11. Retrieval code is one function parameterized by this
// table; kb_type is data, not a subclass.
type RetrievalDefaults struct {
	UseHybrid   bool
	UseRerank   bool
	UseAgentic  bool
	TopK        int
	MinScore    float64
	RerankTopN  int
}

// EngineCacheConfig bounds the Engine Cache (§4.9).
type EngineCacheConfig struct {
	TTL         time.Duration
	MaxEntries  int
}

// HTTPConfig configures the REST/MCP HTTP surface (§5, §6.3).
type HTTPConfig struct {
	Addr               string
	AllowedOrigins     []string
	RateLimitPerMinute int
	RedisURL           string
}

// Config is the fully resolved service configuration.
type Config struct {
	Embedding   EmbeddingConfig
	LLM         LLMConfig
	Database    DatabaseConfig
	Vector      VectorConfig
	Chunking    ChunkingConfig
	EngineCache EngineCacheConfig
	HTTP        HTTPConfig
	LogLevel    string
	LogPath     string

	RetrievalDefaults map[string]RetrievalDefaults
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	return def
}

func defaultRetrievalDefaults() map[string]RetrievalDefaults {
	return map[string]RetrievalDefaults{
		"generic":       {UseHybrid: false, UseRerank: false, UseAgentic: false, TopK: 15, MinScore: 0.5, RerankTopN: 10},
		"code":          {UseHybrid: true, UseRerank: false, UseAgentic: false, TopK: 15, MinScore: 0.5, RerankTopN: 10},
		"documentation": {UseHybrid: true, UseRerank: false, UseAgentic: false, TopK: 15, MinScore: 0.5, RerankTopN: 10},
		"agent_os":      {UseHybrid: true, UseRerank: false, UseAgentic: true, TopK: 15, MinScore: 0.5, RerankTopN: 10},
	}
}

// Load reads configuration from the environment (optionally a local .env
// via godotenv.Overload), then applies an optional YAML override file named
// by RAG_SPECIALISTS_CONFIG (default: none).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		RetrievalDefaults: defaultRetrievalDefaults(),
	}

	cfg.Database.DSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.Database.MinConns = int32(envInt("DATABASE_MIN_CONNS", 1))
	cfg.Database.MaxConns = int32(envInt("DATABASE_MAX_CONNS", 10))
	cfg.Database.MaxConnLifetime = envDuration("DATABASE_MAX_CONN_LIFETIME", time.Hour)
	cfg.Database.MaxConnIdleTime = envDuration("DATABASE_MAX_CONN_IDLE_TIME", 5*time.Minute)

	cfg.Vector.Backend = strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_BACKEND")), "pgvector"))
	cfg.Vector.Metric = strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_METRIC")), "cosine"))
	cfg.Vector.QdrantDSN = strings.TrimSpace(os.Getenv("QDRANT_URL"))

	cfg.Embedding.BaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL")), "https://api.openai.com")
	cfg.Embedding.Path = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_PATH")), "/v1/embeddings")
	cfg.Embedding.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")), "text-embedding-3-small")
	cfg.Embedding.APIKey = strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY"))
	cfg.Embedding.APIHeader = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_API_HEADER")), "Authorization")
	cfg.Embedding.Dimensions = envInt("EMBEDDING_DIM", 768)
	cfg.Embedding.Timeout = envDuration("EMBEDDING_TIMEOUT", 30*time.Second)
	cfg.Embedding.MaxRetries = envInt("EMBEDDING_MAX_RETRIES", 3)

	cfg.LLM.Provider = strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_PROVIDER")), "anthropic"))
	cfg.LLM.Model = strings.TrimSpace(os.Getenv("LLM_MODEL"))
	cfg.LLM.APIKey = firstNonEmpty(
		strings.TrimSpace(os.Getenv("LLM_API_KEY")),
		strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")),
	)
	cfg.LLM.BaseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	cfg.LLM.Temperature = envFloat("LLM_TEMPERATURE", 0.2)
	cfg.LLM.MaxOutputTokens = int64(envInt("LLM_MAX_OUTPUT_TOKENS", 800))
	cfg.LLM.ContextWindow = envInt("LLM_CONTEXT_WINDOW", 4096)
	cfg.LLM.RequestTimeout = envDuration("LLM_REQUEST_TIMEOUT", 60*time.Second)

	cfg.Chunking.TargetTokens = envInt("CHUNK_SIZE", 1024)
	cfg.Chunking.OverlapTokens = envInt("CHUNK_OVERLAP", 200)

	cfg.EngineCache.TTL = envDuration("ENGINE_CACHE_TTL", 10*time.Minute)
	cfg.EngineCache.MaxEntries = envInt("ENGINE_CACHE_MAX_ENTRIES", 10)

	cfg.HTTP.Addr = firstNonEmpty(strings.TrimSpace(os.Getenv("HTTP_ADDR")), ":8085")
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.HTTP.AllowedOrigins = append(cfg.HTTP.AllowedOrigins, o)
			}
		}
	}
	cfg.HTTP.RateLimitPerMinute = envInt("RATE_LIMIT_PER_MINUTE", 20)
	cfg.HTTP.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")
	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))

	if path := strings.TrimSpace(os.Getenv("RAG_SPECIALISTS_CONFIG")); path != "" {
		if err := loadRetrievalOverrides(path, &cfg); err != nil {
			return cfg, fmt.Errorf("loading specialists config: %w", err)
		}
	}

	if cfg.Database.DSN == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.LLM.APIKey == "" {
		return cfg, fmt.Errorf("an LLM API key is required (LLM_API_KEY, ANTHROPIC_API_KEY, OPENAI_API_KEY, or GOOGLE_API_KEY)")
	}
	switch cfg.LLM.Provider {
	case "anthropic", "openai", "google":
	default:
		return cfg, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLM.Provider)
	}

	return cfg, nil
}

// kbOverridesFile is the on-disk shape of the optional YAML supplement.
type kbOverridesFile struct {
	RetrievalDefaults map[string]struct {
		UseHybrid  *bool    `yaml:"use_hybrid"`
		UseRerank  *bool    `yaml:"use_rerank"`
		UseAgentic *bool    `yaml:"use_agentic"`
		TopK       *int     `yaml:"top_k"`
		MinScore   *float64 `yaml:"min_score"`
		RerankTopN *int     `yaml:"rerank_top_n"`
	} `yaml:"retrieval_defaults"`
}

func loadRetrievalOverrides(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f kbOverridesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for kbType, o := range f.RetrievalDefaults {
		d := cfg.RetrievalDefaults[kbType]
		if o.UseHybrid != nil {
			d.UseHybrid = *o.UseHybrid
		}
		if o.UseRerank != nil {
			d.UseRerank = *o.UseRerank
		}
		if o.UseAgentic != nil {
			d.UseAgentic = *o.UseAgentic
		}
		if o.TopK != nil {
			d.TopK = *o.TopK
		}
		if o.MinScore != nil {
			d.MinScore = *o.MinScore
		}
		if o.RerankTopN != nil {
			d.RerankTopN = *o.RerankTopN
		}
		cfg.RetrievalDefaults[kbType] = d
	}
	return nil
}
