package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/storage"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

const tableName = "chunk_vectors"

// PGVector stores chunk embeddings in Postgres and answers cosine
// nearest-neighbour queries through the pgvector extension.
type PGVector struct {
	db        *sqlx.DB
	dimension int
}

// Open connects to dsn and ensures the schema exists
func Open(ctx context.Context, dsn string, dimension int) (*PGVector, error) {
	if dsn == "" {
		return nil, errors.New("pgvector dsn is empty")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect pgvector: %v", types.ErrCollaboratorUnavailable, err)
	}
	idx, err := New(db, dimension)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := idx.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// New wraps an existing connection. The schema is not touched.
func New(db *sqlx.DB, dimension int) (*PGVector, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dimension)
	}
	return &PGVector{db: db, dimension: dimension}, nil
}

// Dimension returns the configured vector dimension
func (p *PGVector) Dimension() int {
	return p.dimension
}

// EnsureSchema creates the extension, table and HNSW index if missing
func (p *PGVector) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			chunk_id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			primary_category TEXT NOT NULL DEFAULT '',
			technical_level INTEGER NOT NULL DEFAULT 0,
			source_url TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`, tableName, p.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)`, tableName, tableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_category ON %s (primary_category)`, tableName, tableName),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply pgvector schema: %w", err)
		}
	}
	return nil
}

// Upsert stores the vector for chunk together with its filterable attributes
func (p *PGVector) Upsert(ctx context.Context, chunk *types.Chunk, vector []float32) error {
	if len(vector) != p.dimension {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vector), p.dimension)
	}

	category, level := "", 0
	if chunk.Metadata != nil {
		category = strings.ToLower(chunk.Metadata.PrimaryCategory)
		level = chunk.Metadata.TechnicalLevel
	}

	query := sqlx.Rebind(sqlx.DOLLAR, fmt.Sprintf(`
		INSERT INTO %s (chunk_id, embedding, primary_category, technical_level, source_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (chunk_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			primary_category = EXCLUDED.primary_category,
			technical_level = EXCLUDED.technical_level,
			source_url = EXCLUDED.source_url
	`, tableName))
	_, err := p.db.ExecContext(ctx, query,
		chunk.ID, pgv.NewVector(vector), category, level, chunk.SourceURL, chunk.CreatedAt.UnixNano())
	if err != nil {
		return classify(fmt.Errorf("failed to upsert vector for %s: %w", chunk.ID, err))
	}
	return nil
}

// Delete removes the vector for id. Missing ids are not an error.
func (p *PGVector) Delete(ctx context.Context, id string) error {
	query := sqlx.Rebind(sqlx.DOLLAR, fmt.Sprintf(`DELETE FROM %s WHERE chunk_id = ?`, tableName))
	if _, err := p.db.ExecContext(ctx, query, id); err != nil {
		return classify(fmt.Errorf("failed to delete vector for %s: %w", id, err))
	}
	return nil
}

// Count returns the number of stored vectors
func (p *PGVector) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tableName)); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

type searchRow struct {
	ChunkID  string  `db:"chunk_id"`
	Distance float64 `db:"distance"`
}

// Search returns the k nearest chunks by cosine distance
func (p *PGVector) Search(ctx context.Context, vector []float32, k int, filters *types.Filters) ([]storage.VectorResult, error) {
	if k <= 0 || len(vector) == 0 {
		return []storage.VectorResult{}, nil
	}
	if len(vector) != p.dimension {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vector), p.dimension)
	}

	query, args, err := buildSearchQuery(vector, k, filters)
	if err != nil {
		return nil, err
	}

	var rows []searchRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify(fmt.Errorf("pgvector search failed: %w", err))
	}

	results := make([]storage.VectorResult, len(rows))
	for i, r := range rows {
		results[i] = storage.VectorResult{ChunkID: r.ChunkID, Distance: r.Distance}
	}
	return results, nil
}

// Close closes the connection pool
func (p *PGVector) Close() error {
	return p.db.Close()
}

// buildSearchQuery renders the nearest-neighbour query with the same filter
// semantics as types.Filters.Match
func buildSearchQuery(vector []float32, k int, filters *types.Filters) (string, []interface{}, error) {
	var sb strings.Builder
	args := []interface{}{pgv.NewVector(vector)}

	fmt.Fprintf(&sb, `SELECT chunk_id, embedding <=> ? AS distance FROM %s WHERE TRUE`, tableName)

	if !filters.IsEmpty() {
		if len(filters.Categories) > 0 {
			categories := make([]string, len(filters.Categories))
			for i, c := range filters.Categories {
				categories[i] = strings.ToLower(c)
			}
			sb.WriteString(` AND primary_category IN (?)`)
			args = append(args, categories)
		}
		if filters.MinTechnicalLevel > 0 {
			sb.WriteString(` AND technical_level >= ?`)
			args = append(args, filters.MinTechnicalLevel)
		}
		if filters.MaxTechnicalLevel > 0 {
			sb.WriteString(` AND technical_level <= ?`)
			args = append(args, filters.MaxTechnicalLevel)
		}
		if len(filters.Sources) > 0 {
			clauses := make([]string, len(filters.Sources))
			for i, prefix := range filters.Sources {
				clauses[i] = `starts_with(source_url, ?)`
				args = append(args, prefix)
			}
			sb.WriteString(` AND (` + strings.Join(clauses, " OR ") + `)`)
		}
		if filters.CreatedAfter != nil {
			sb.WriteString(` AND created_at > ?`)
			args = append(args, filters.CreatedAfter.UnixNano())
		}
		if filters.CreatedBefore != nil {
			sb.WriteString(` AND created_at < ?`)
			args = append(args, filters.CreatedBefore.UnixNano())
		}
	}

	sb.WriteString(` ORDER BY distance ASC, chunk_id ASC LIMIT ?`)
	args = append(args, k)

	// expand the category slice, then switch to Postgres placeholders
	query, args, err := sqlx.In(sb.String(), args...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build search query: %w", err)
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args, nil
}

// classify marks connection-level failures as collaborator unavailability
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57": // connection, resources, operator intervention
			return fmt.Errorf("%w: %w", types.ErrCollaboratorUnavailable, err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrCollaboratorUnavailable, err)
}
