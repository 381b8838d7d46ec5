// Package config loads engine settings from a TOML file, a .env file and
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Environment variable overrides
const (
	EnvDBPath            = "RAG_DB_PATH"
	EnvPGVectorDSN       = "RAG_PGVECTOR_DSN"
	EnvVectorBackend     = "RAG_VECTOR_BACKEND"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvOpenAIBaseURL     = "OPENAI_BASE_URL"
	EnvLLMModel          = "RAG_LLM_MODEL"
	EnvLLMFallbackModel  = "RAG_LLM_FALLBACK_MODEL"
	EnvEmbeddingProvider = "RAG_EMBEDDING_PROVIDER"
	EnvLogLevel          = "RAG_LOG_LEVEL"
	EnvHTTPAddr          = "RAG_HTTP_ADDR"
)

// Vector backends
const (
	VectorBackendSQLite   = "sqlite"
	VectorBackendPGVector = "pgvector"
)

// Component implementations selectable per pipeline stage
const (
	ImplLLM   = "llm"
	ImplRules = "rules"
)

// Duration wraps time.Duration so TOML files can use "30s" style values
type Duration struct {
	time.Duration
}

// D is shorthand for building a Duration
func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the full engine configuration
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Vector    VectorConfig    `toml:"vector"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Search    SearchConfig    `toml:"search"`
	Cache     CacheConfig     `toml:"cache"`
	Router    RouterConfig    `toml:"router"`
	Ingest    IngestConfig    `toml:"ingest"`
	Log       LogConfig       `toml:"log"`
	HTTP      HTTPConfig      `toml:"http"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

type VectorConfig struct {
	Backend   string `toml:"backend"`
	DSN       string `toml:"dsn"`
	Dimension int    `toml:"dimension"`
}

type LLMConfig struct {
	APIKey        string   `toml:"api_key"`
	BaseURL       string   `toml:"base_url"`
	Model         string   `toml:"model"`
	FallbackModel string   `toml:"fallback_model"`
	MaxAttempts   int      `toml:"max_attempts"`
	BaseDelay     Duration `toml:"base_delay"`
	MaxDelay      Duration `toml:"max_delay"`
	Timeout       Duration `toml:"timeout"`
}

type EmbeddingConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	CacheSize int    `toml:"cache_size"`
}

type SearchConfig struct {
	K1            float64 `toml:"k1"`
	B             float64 `toml:"b"`
	Oversample    int     `toml:"oversample"`
	DefaultTopK   int     `toml:"default_top_k"`
	MaxTopK       int     `toml:"max_top_k"`
	HybridRatio   float64 `toml:"hybrid_ratio"`
	RerankTopN    int     `toml:"rerank_top_n"`
	MaxExpansions int     `toml:"max_expansions"`

	// Response cache for repeated searches, purged whenever the corpus changes
	CacheResponses    bool     `toml:"cache_responses"`
	ResponseCacheSize int      `toml:"response_cache_size"`
	ResponseCacheTTL  Duration `toml:"response_cache_ttl"`
}

type CacheConfig struct {
	TTL           Duration `toml:"ttl"`
	HotSize       int      `toml:"hot_size"`
	SweepSchedule string   `toml:"sweep_schedule"`
}

type RouterConfig struct {
	Analyzer         string   `toml:"analyzer"`
	Expander         string   `toml:"expander"`
	Reranker         string   `toml:"reranker"`
	RequestTimeout   Duration `toml:"request_timeout"`
	AnalysisTimeout  Duration `toml:"analysis_timeout"`
	ExpansionTimeout Duration `toml:"expansion_timeout"`
	SearchTimeout    Duration `toml:"search_timeout"`
	RerankTimeout    Duration `toml:"rerank_timeout"`
}

type IngestConfig struct {
	Workers           int      `toml:"workers"`
	BatchSize         int      `toml:"batch_size"`
	BatchDelay        Duration `toml:"batch_delay"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	ChunkWords        int      `toml:"chunk_words"`
	ChunkOverlap      int      `toml:"chunk_overlap"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Path: "ragengine.db"},
		Vector:  VectorConfig{Backend: VectorBackendSQLite, Dimension: 1536},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			MaxAttempts: 3,
			BaseDelay:   D(500 * time.Millisecond),
			MaxDelay:    D(8 * time.Second),
			Timeout:     D(30 * time.Second),
		},
		Embedding: EmbeddingConfig{Provider: "local", Model: "text-embedding-3-small", CacheSize: 10000},
		Search: SearchConfig{
			K1:            1.2,
			B:             0.75,
			Oversample:    4,
			DefaultTopK:   10,
			MaxTopK:       100,
			HybridRatio:   0.5,
			RerankTopN:    10,
			MaxExpansions: 4,

			CacheResponses:    true,
			ResponseCacheSize: 1000,
			ResponseCacheTTL:  D(5 * time.Minute),
		},
		Cache: CacheConfig{
			TTL:           D(24 * time.Hour),
			HotSize:       1000,
			SweepSchedule: "*/15 * * * *",
		},
		Router: RouterConfig{
			Analyzer:         ImplRules,
			Expander:         ImplRules,
			Reranker:         ImplRules,
			RequestTimeout:   D(30 * time.Second),
			AnalysisTimeout:  D(5 * time.Second),
			ExpansionTimeout: D(5 * time.Second),
			SearchTimeout:    D(10 * time.Second),
			RerankTimeout:    D(10 * time.Second),
		},
		Ingest: IngestConfig{
			Workers:           4,
			BatchSize:         20,
			BatchDelay:        D(time.Second),
			RequestsPerSecond: 5,
			Burst:             5,
			ChunkWords:        200,
			ChunkOverlap:      40,
		},
		Log:  LogConfig{Level: "info"},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load builds a Config from defaults, the optional TOML file at path, any
// .env file in the working directory and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as TOML with owner-only permissions
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyEnv() {
	setString(&c.Storage.Path, EnvDBPath)
	setString(&c.Vector.DSN, EnvPGVectorDSN)
	setString(&c.Vector.Backend, EnvVectorBackend)
	setString(&c.LLM.APIKey, EnvOpenAIAPIKey)
	setString(&c.LLM.BaseURL, EnvOpenAIBaseURL)
	setString(&c.LLM.Model, EnvLLMModel)
	setString(&c.LLM.FallbackModel, EnvLLMFallbackModel)
	setString(&c.Embedding.Provider, EnvEmbeddingProvider)
	setString(&c.Log.Level, EnvLogLevel)
	setString(&c.HTTP.Addr, EnvHTTPAddr)

	if c.Vector.DSN != "" && os.Getenv(EnvVectorBackend) == "" && c.Vector.Backend == VectorBackendSQLite {
		c.Vector.Backend = VectorBackendPGVector
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	switch c.Vector.Backend {
	case VectorBackendSQLite:
	case VectorBackendPGVector:
		if c.Vector.DSN == "" {
			errs = append(errs, errors.New("vector.dsn is required for the pgvector backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector.backend %q", c.Vector.Backend))
	}

	s := c.Search
	if s.K1 < 0 || math.IsNaN(s.K1) {
		errs = append(errs, fmt.Errorf("search.k1 must be >= 0, got %v", s.K1))
	}
	if s.B < 0 || s.B > 1 || math.IsNaN(s.B) {
		errs = append(errs, fmt.Errorf("search.b must be in [0,1], got %v", s.B))
	}
	if s.Oversample < 1 {
		errs = append(errs, fmt.Errorf("search.oversample must be >= 1, got %d", s.Oversample))
	}
	if s.DefaultTopK < 1 || s.MaxTopK < s.DefaultTopK {
		errs = append(errs, errors.New("search.default_top_k must be in [1, max_top_k]"))
	}
	if s.HybridRatio < 0 || s.HybridRatio > 1 || math.IsNaN(s.HybridRatio) {
		errs = append(errs, fmt.Errorf("search.hybrid_ratio must be in [0,1], got %v", s.HybridRatio))
	}
	if s.MaxExpansions < 1 {
		errs = append(errs, errors.New("search.max_expansions must be >= 1"))
	}
	if s.CacheResponses && (s.ResponseCacheSize < 1 || s.ResponseCacheTTL.Duration <= 0) {
		errs = append(errs, errors.New("search.response_cache_size and response_cache_ttl must be positive when cache_responses is set"))
	}

	if c.Cache.TTL.Duration <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, errors.New("llm.max_attempts must be >= 1"))
	}

	for name, impl := range map[string]string{
		"router.analyzer": c.Router.Analyzer,
		"router.expander": c.Router.Expander,
		"router.reranker": c.Router.Reranker,
	} {
		if impl != ImplLLM && impl != ImplRules {
			errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", name, ImplLLM, ImplRules, impl))
		}
	}

	if c.Ingest.Workers < 1 || c.Ingest.BatchSize < 1 {
		errs = append(errs, errors.New("ingest.workers and ingest.batch_size must be >= 1"))
	}
	if c.Ingest.ChunkWords < 1 || c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkWords {
		errs = append(errs, errors.New("ingest.chunk_overlap must be in [0, chunk_words)"))
	}

	return errors.Join(errs...)
}
