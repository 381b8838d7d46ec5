package vectorindex

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

func TestBuildSearchQuery(t *testing.T) {
	after := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		filters   *types.Filters
		wantParts []string
		wantArgs  int
	}{
		{
			name:      "no filters",
			filters:   nil,
			wantParts: []string{"embedding <=> $1 AS distance", "ORDER BY distance ASC, chunk_id ASC LIMIT $2"},
			wantArgs:  2,
		},
		{
			name:      "categories expand and lowercase",
			filters:   &types.Filters{Categories: []string{"Security", "PRICING"}},
			wantParts: []string{"primary_category IN ($2, $3)", "LIMIT $4"},
			wantArgs:  4,
		},
		{
			name:      "level bounds",
			filters:   &types.Filters{MinTechnicalLevel: 2, MaxTechnicalLevel: 4},
			wantParts: []string{"technical_level >= $2", "technical_level <= $3"},
			wantArgs:  4,
		},
		{
			name:      "sources are ORed prefixes",
			filters:   &types.Filters{Sources: []string{"https://a/", "https://b/"}},
			wantParts: []string{"(starts_with(source_url, $2) OR starts_with(source_url, $3))"},
			wantArgs:  4,
		},
		{
			name:      "created after",
			filters:   &types.Filters{CreatedAfter: &after},
			wantParts: []string{"created_at > $2"},
			wantArgs:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := buildSearchQuery([]float32{1, 0, 0}, 5, tt.filters)
			require.NoError(t, err)
			for _, part := range tt.wantParts {
				assert.Contains(t, query, part)
			}
			assert.Len(t, args, tt.wantArgs)
			assert.Equal(t, 5, args[len(args)-1])
		})
	}

	t.Run("category values", func(t *testing.T) {
		_, args, err := buildSearchQuery([]float32{1}, 3, &types.Filters{Categories: []string{"Security"}})
		require.NoError(t, err)
		assert.Equal(t, "security", args[1])
	})
}

func TestNewRejectsBadDimension(t *testing.T) {
	_, err := New(nil, 0)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	conn := &pq.Error{Code: "08006"}
	assert.ErrorIs(t, classify(conn), types.ErrCollaboratorUnavailable)

	syntax := &pq.Error{Code: "42601"}
	assert.NotErrorIs(t, classify(syntax), types.ErrCollaboratorUnavailable)

	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
	assert.NotErrorIs(t, classify(context.Canceled), types.ErrCollaboratorUnavailable)

	assert.ErrorIs(t, classify(fmt.Errorf("dial tcp: refused")), types.ErrCollaboratorUnavailable)
}

// TestPGVectorIntegration runs against a live Postgres with the vector extension
func TestPGVectorIntegration(t *testing.T) {
	dsn := os.Getenv("RAG_TEST_PGVECTOR_DSN")
	if dsn == "" {
		t.Skip("RAG_TEST_PGVECTOR_DSN not set")
	}
	ctx := context.Background()

	idx, err := Open(ctx, dsn, 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	_, err = idx.db.ExecContext(ctx, "TRUNCATE "+tableName)
	require.NoError(t, err)

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	vectors := map[string][]float32{
		"near": {1, 0, 0},
		"mid":  {0.7, 0.7, 0},
		"far":  {0, 0, 1},
	}
	categories := map[string]string{"near": "Security", "mid": "Pricing", "far": "Security"}
	for id, v := range vectors {
		chunk := &types.Chunk{
			ID:        id,
			SourceURL: "https://example.com/" + id,
			CreatedAt: created,
			Metadata:  &types.Metadata{PrimaryCategory: categories[id], TechnicalLevel: 2, Summary: "s"},
		}
		require.NoError(t, idx.Upsert(ctx, chunk, v))
	}

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "near", results[0].ChunkID)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.Equal(t, "far", results[2].ChunkID)

	filtered, err := idx.Search(ctx, []float32{1, 0, 0}, 3, &types.Filters{Categories: []string{"security"}})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "near", filtered[0].ChunkID)
	assert.Equal(t, "far", filtered[1].ChunkID)

	_, err = idx.Search(ctx, []float32{1, 0}, 3, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, idx.Delete(ctx, "near"))
	require.NoError(t, idx.Delete(ctx, "near"))
	results, err = idx.Search(ctx, []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
