package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// searchVector returns the limit nearest chunks by cosine distance
func searchVector(ctx context.Context, q querier, queryVector []float32, limit int, filters *types.Filters) ([]VectorResult, error) {
	if limit <= 0 || len(queryVector) == 0 {
		return []VectorResult{}, nil
	}
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, queryVector, limit, filters)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, q, queryVector, limit, filters)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, q querier, queryVector []float32, limit int, filters *types.Filters) ([]VectorResult, error) {
	query := `
		SELECT
			c.id as chunk_id,
			vec_distance_cosine(e.vector, ?) as distance
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		WHERE e.dimension = ?
	`
	args := []interface{}{serializeVector(queryVector), len(queryVector)}

	query, args = applyChunkFilters(query, args, filters)

	query += " ORDER BY distance ASC, c.id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var result VectorResult
		if err := rows.Scan(&result.ChunkID, &result.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// searchVectorFallback performs vector search using Go-based cosine similarity computation
// This is used when sqlite-vec extension is not available (purego builds)
func searchVectorFallback(ctx context.Context, q querier, queryVector []float32, limit int, filters *types.Filters) ([]VectorResult, error) {
	query := `
		SELECT
			c.id as chunk_id,
			e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		WHERE e.dimension = ?
	`
	args := []interface{}{len(queryVector)}

	query, args = applyChunkFilters(query, args, filters)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeDistances(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)

	return buildVectorResults(candidates, limit), nil
}

// Helper functions

// applyChunkFilters adds WHERE clauses equivalent to types.Filters.Match.
// The chunks table must be aliased as c.
func applyChunkFilters(query string, args []interface{}, filters *types.Filters) (string, []interface{}) {
	if filters.IsEmpty() {
		return query, args
	}

	if len(filters.Categories) > 0 {
		query += " AND c.primary_category IN (" + placeholders(len(filters.Categories)) + ")"
		for _, category := range filters.Categories {
			args = append(args, strings.ToLower(category))
		}
	}

	if filters.MinTechnicalLevel > 0 {
		query += " AND c.technical_level >= ?"
		args = append(args, filters.MinTechnicalLevel)
	}
	if filters.MaxTechnicalLevel > 0 {
		query += " AND c.technical_level <= ?"
		args = append(args, filters.MaxTechnicalLevel)
	}

	if len(filters.Sources) > 0 {
		clauses := make([]string, len(filters.Sources))
		for i, prefix := range filters.Sources {
			clauses[i] = "substr(c.source_url, 1, ?) = ?"
			args = append(args, utf8.RuneCountInString(prefix), prefix)
		}
		query += " AND (" + strings.Join(clauses, " OR ") + ")"
	}

	if filters.CreatedAfter != nil {
		query += " AND c.created_at > ?"
		args = append(args, toUnix(*filters.CreatedAfter))
	}
	if filters.CreatedBefore != nil {
		query += " AND c.created_at < ?"
		args = append(args, toUnix(*filters.CreatedBefore))
	}

	return query, args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// computeDistances processes rows and computes cosine distance
func computeDistances(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 1000)

	for rows.Next() {
		var chunkID string
		var vectorBlob []byte
		if err := rows.Scan(&chunkID, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		candidates = append(candidates, candidate{
			chunkID:  chunkID,
			distance: 1 - cosineSimilarity(queryVector, vector),
		})
	}

	return candidates, rows.Err()
}

// buildVectorResults creates VectorResult slice from the first limit candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			ChunkID:  candidates[i].chunkID,
			Distance: candidates[i].distance,
		}
	}
	return results
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a chunk with its distance to the query
type candidate struct {
	chunkID  string
	distance float64
}

// sortCandidates orders by distance ascending, ties by chunk id
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}
