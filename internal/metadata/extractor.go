package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/llm"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/retry"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

const (
	// DefaultFlightTimeout bounds one shared extraction including retries and fallback
	DefaultFlightTimeout = 2 * time.Minute

	// maxPromptRunes caps the document text sent to the model
	maxPromptRunes = 12000

	// malformedRetries is how many extra attempts a malformed reply earns
	malformedRetries = 1
)

const extractionSystemPrompt = `You describe company documents for a retrieval index.
Reply with one JSON object with exactly these fields:
"primaryCategory" (string, a short lower-case topic such as "pricing" or "security"),
"technicalLevel" (integer 1-5, 1 = non-technical, 5 = expert),
"summary" (string, one or two sentences),
"keywords" (array of strings, most important first),
"entities" (array of objects with "name" and "type").`

// Options control a single extraction
type Options struct {
	Model      string // Optional: override the configured model
	UseCaching bool
}

// ExtractorConfig configures an Extractor
type ExtractorConfig struct {
	Model         string
	FallbackModel string
	Retry         retry.Config
	TTL           time.Duration
	FlightTimeout time.Duration
}

// Extractor produces document metadata through the LLM, deduplicating
// concurrent work per content fingerprint and caching successes.
type Extractor struct {
	client llm.Client
	cache  *Cache
	cfg    ExtractorConfig
	group  singleflight.Group
	logger *zap.Logger
}

// NewExtractor creates an extractor. cache may be nil, which disables caching.
func NewExtractor(client llm.Client, cache *Cache, cfg ExtractorConfig, logger *zap.Logger) *Extractor {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.FlightTimeout <= 0 {
		cfg.FlightTimeout = DefaultFlightTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		client: client,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
	}
}

// Extract returns metadata for text. With caching, identical text is
// extracted at most once while its entry is live, and concurrent callers for
// the same text and model share a single in-flight extraction. The cache is
// keyed by content alone, so a model override only applies on a miss.
func (e *Extractor) Extract(ctx context.Context, text, id string, opts Options) (*types.Metadata, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.ErrEmptyContent
	}

	model := opts.Model
	if model == "" {
		model = e.cfg.Model
	}

	if !opts.UseCaching || e.cache == nil {
		return e.extractWithFallback(ctx, text, id, model)
	}

	fingerprint := types.Fingerprint(text)
	if meta, ok := e.cache.Get(ctx, fingerprint); ok {
		e.logger.Debug("metadata cache hit", zap.String("id", id), zap.String("fingerprint", fingerprint))
		return meta, nil
	}

	ch := e.group.DoChan(fingerprint+"\x00"+model, func() (interface{}, error) {
		// The shared flight outlives any single caller's cancellation
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.FlightTimeout)
		defer cancel()

		if meta, ok := e.cache.Get(fctx, fingerprint); ok {
			return meta, nil
		}

		meta, err := e.extractWithFallback(fctx, text, id, model)
		if err != nil {
			return nil, err
		}
		if err := e.cache.Put(fctx, fingerprint, meta, e.cfg.TTL); err != nil {
			e.logger.Warn("failed to cache metadata", zap.String("id", id), zap.Error(err))
		}
		return meta, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.Metadata).Clone(), nil
	}
}

// Invalidate forgets the cached metadata for text so the next extraction
// calls the model again
func (e *Extractor) Invalidate(ctx context.Context, text string) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Invalidate(ctx, types.Fingerprint(text))
}

// extractWithFallback tries the primary model, then the fallback model
func (e *Extractor) extractWithFallback(ctx context.Context, text, id, model string) (*types.Metadata, error) {
	meta, attempts, err := e.extractWithModel(ctx, text, model)
	if err == nil {
		return meta, nil
	}

	fallback := e.cfg.FallbackModel
	if fallback == "" || fallback == model || ctx.Err() != nil {
		return nil, &types.ExtractionError{ID: id, Model: model, Attempts: attempts, Err: err}
	}

	e.logger.Warn("metadata extraction failed, trying fallback model",
		zap.String("id", id),
		zap.String("model", model),
		zap.String("fallback", fallback),
		zap.Error(err))

	meta, more, err := e.extractWithModel(ctx, text, fallback)
	if err != nil {
		return nil, &types.ExtractionError{ID: id, Model: fallback, Attempts: attempts + more, Err: err}
	}
	return meta, nil
}

// extractWithModel calls model with backoff. Transient errors retry up to the
// attempt limit; a malformed reply retries once.
func (e *Extractor) extractWithModel(ctx context.Context, text, model string) (*types.Metadata, int, error) {
	malformed := 0
	retryable := func(err error) bool {
		if errors.Is(err, types.ErrMalformedResponse) {
			malformed++
			return malformed <= malformedRetries
		}
		return types.IsRetryable(err)
	}

	cfg := e.cfg.Retry
	if cfg.MaxAttempts < 1+malformedRetries {
		cfg.MaxAttempts = 1 + malformedRetries
	}

	return retry.Do(ctx, cfg, retryable, func(ctx context.Context) (*types.Metadata, error) {
		resp, err := e.client.Complete(ctx, llm.Request{
			Model:  model,
			System: extractionSystemPrompt,
			Prompt: truncateRunes(text, maxPromptRunes),
			JSON:   true,
		})
		if err != nil {
			return nil, err
		}
		return parseMetadata(resp.Content)
	})
}

// parseMetadata decodes and validates a model reply
func parseMetadata(content string) (*types.Metadata, error) {
	var meta types.Metadata
	if err := llm.DecodeJSON(content, &meta); err != nil {
		return nil, err
	}

	meta.PrimaryCategory = strings.TrimSpace(meta.PrimaryCategory)
	meta.Summary = strings.TrimSpace(meta.Summary)
	keywords := meta.Keywords[:0]
	for _, k := range meta.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	meta.Keywords = keywords

	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrMalformedResponse, err)
	}
	return &meta, nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
