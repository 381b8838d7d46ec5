package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/retry"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

func newOpenAITestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1",
		Timeout: time.Second,
		Retry:   retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2},
	}, NewCache(10))
	require.NoError(t, err)
	return provider
}

// embeddingsHandler answers with one 3-d vector per input, returned in reverse index order
func embeddingsHandler(t *testing.T, calls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i + 1), 0, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}
}

func TestOpenAIProvider_GenerateBatch(t *testing.T) {
	var calls int32
	provider := newOpenAITestProvider(t, embeddingsHandler(t, &calls))
	ctx := context.Background()

	resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"alpha", "beta"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, ProviderOpenAI, resp.Provider)
	assert.Equal(t, DefaultOpenAIModel, resp.Model)

	// Vectors come back in input order and unit length
	for _, emb := range resp.Embeddings {
		assert.InDelta(t, 1.0, emb.Vector[0], 1e-6)
	}
	assert.Equal(t, types.Fingerprint("alpha"), resp.Embeddings[0].Fingerprint)
	assert.Equal(t, types.Fingerprint("beta"), resp.Embeddings[1].Fingerprint)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Cached texts skip the API
	_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"alpha", "gamma"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIProvider_ModelOverrideCachedSeparately(t *testing.T) {
	var calls int32
	provider := newOpenAITestProvider(t, embeddingsHandler(t, &calls))
	ctx := context.Background()

	tests := []struct {
		name      string
		model     string
		wantCalls int32
		wantModel string
	}{
		{name: "default model fetched", wantCalls: 1, wantModel: DefaultOpenAIModel},
		{name: "override fetched under its own key", model: "text-embedding-3-large", wantCalls: 2, wantModel: "text-embedding-3-large"},
		{name: "override served from cache", model: "text-embedding-3-large", wantCalls: 2, wantModel: "text-embedding-3-large"},
		{name: "default still cached", wantCalls: 2, wantModel: DefaultOpenAIModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "alpha", Model: tt.model})
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, emb.Model)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestOpenAIProvider_RetriesTransientFailures(t *testing.T) {
	var attempts, served int32
	ok := embeddingsHandler(t, &served)
	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		ok(w, r)
	})

	emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "retry me"})
	require.NoError(t, err)
	assert.Equal(t, 3, emb.Dimension)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.Equal(t, int32(1), atomic.LoadInt32(&served))
}

func TestOpenAIProvider_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	})

	_, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIProvider_ExhaustedRetriesAreUnavailable(t *testing.T) {
	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.ErrorIs(t, err, types.ErrCollaboratorUnavailable)
}

func TestOpenAIProvider_Validation(t *testing.T) {
	_, err := NewOpenAIProvider(Config{}, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	_, err = NewOpenAIProvider(Config{APIKey: "k", Model: "unknown-model"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedModel)

	provider, err := NewOpenAIProvider(Config{APIKey: "k", Model: "text-embedding-3-large"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3072, provider.Dimension())

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "t"
	}
	_, err = provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestLocalProvider(t *testing.T) {
	provider, err := NewLocalProvider(NewCache(10))
	require.NoError(t, err)
	ctx := context.Background()

	a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "single sign-on with SAML for enterprise plans"})
	require.NoError(t, err)
	assert.Len(t, a.Vector, LocalDimension)
	assert.Equal(t, ProviderLocal, a.Provider)

	again, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "single sign-on with SAML for enterprise plans"})
	require.NoError(t, err)
	assert.Equal(t, a.Vector, again.Vector)

	related, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "enterprise SAML single sign-on setup"})
	require.NoError(t, err)
	unrelated, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "quarterly revenue forecast spreadsheet"})
	require.NoError(t, err)

	// vectors are unit length, so the dot product is their cosine
	assert.Greater(t, dot(a.Vector, related.Vector), dot(a.Vector, unrelated.Vector))
	assert.InDelta(t, 1.0, dot(a.Vector, a.Vector), 1e-5)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestLocalProvider_StopwordOnlyText(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)

	emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "the and of"})
	require.NoError(t, err)

	var norm float64
	for _, v := range emb.Vector {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestLocalProvider_Batch(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)

	resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"one text", "two text"}})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 2)

	_, err = provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestNormalizeVector(t *testing.T) {
	assert.Equal(t, []float32{0.6, 0.8}, NormalizeVector([]float32{3, 4}))
	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}
