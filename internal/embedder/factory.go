package embedder

import (
	"fmt"
	"strings"
	"time"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/config"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/retry"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	CacheSize int
	Timeout   time.Duration
	Retry     retry.Config
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg, cache)
	case ProviderLocal, "":
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromConfig builds the embedder selected by the engine configuration.
// The OpenAI provider shares the chat model's key, endpoint and backoff settings.
func NewFromConfig(cfg *config.Config) (Embedder, error) {
	return New(Config{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.Embedding.Model,
		CacheSize: cfg.Embedding.CacheSize,
		Timeout:   cfg.LLM.Timeout.Duration,
		Retry: retry.Config{
			MaxAttempts: cfg.LLM.MaxAttempts,
			BaseDelay:   cfg.LLM.BaseDelay.Duration,
			MaxDelay:    cfg.LLM.MaxDelay.Duration,
			Multiplier:  retry.DefaultMultiplier,
		},
	})
}
