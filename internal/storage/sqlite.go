package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidEntry is returned when a cache entry violates expires_at > created_at
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// chunkPageSize bounds how many chunks ForEachChunk holds in memory at once
const chunkPageSize = 500

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// Chunk operations

const chunkColumns = `c.id, c.source_url, c.title, c.text, c.metadata, c.created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*types.Chunk, error) {
	var (
		chunk     types.Chunk
		metadata  sql.NullString
		createdAt int64
	)
	if err := row.Scan(&chunk.ID, &chunk.SourceURL, &chunk.Title, &chunk.Text, &metadata, &createdAt); err != nil {
		return nil, err
	}
	chunk.CreatedAt = fromUnix(createdAt)
	if metadata.Valid && metadata.String != "" {
		var meta types.Metadata
		if err := json.Unmarshal([]byte(metadata.String), &meta); err != nil {
			return nil, fmt.Errorf("decode metadata for chunk %s: %w", chunk.ID, err)
		}
		chunk.Metadata = &meta
	}
	return &chunk, nil
}

// metadataColumns returns the denormalized filter columns and JSON for meta
func metadataColumns(meta *types.Metadata) (category, level, data interface{}, err error) {
	if meta == nil {
		return nil, nil, nil, nil
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	return strings.ToLower(meta.PrimaryCategory), meta.TechnicalLevel, string(encoded), nil
}

// upsertChunkWithQuerier inserts or replaces a chunk. created_at is kept from the first insert.
func (s *SQLiteStorage) upsertChunkWithQuerier(ctx context.Context, q querier, chunk *types.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return err
	}
	category, level, data, err := metadataColumns(chunk.Metadata)
	if err != nil {
		return err
	}

	now := time.Now()
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = now
	}

	query := `
		INSERT INTO chunks (id, source_url, title, text, content_hash, primary_category,
		                    technical_level, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_url = excluded.source_url,
			title = excluded.title,
			text = excluded.text,
			content_hash = excluded.content_hash,
			primary_category = excluded.primary_category,
			technical_level = excluded.technical_level,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		chunk.ID, chunk.SourceURL, chunk.Title, chunk.Text, chunk.Fingerprint(),
		category, level, data, toUnix(chunk.CreatedAt), toUnix(now))
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertChunk(ctx context.Context, chunk *types.Chunk) error {
	return s.upsertChunkWithQuerier(ctx, s.querier(), chunk)
}

func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, id string) (*types.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks c WHERE c.id = ?`
	chunk, err := scanChunk(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), id)
}

// getChunksWithQuerier loads the chunks in ids. Missing ids are absent from the map.
func (s *SQLiteStorage) getChunksWithQuerier(ctx context.Context, q querier, ids []string) (map[string]*types.Chunk, error) {
	result := make(map[string]*types.Chunk, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT ` + chunkColumns + ` FROM chunks c WHERE c.id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		result[chunk.ID] = chunk
	}
	return result, rows.Err()
}

func (s *SQLiteStorage) GetChunks(ctx context.Context, ids []string) (map[string]*types.Chunk, error) {
	return s.getChunksWithQuerier(ctx, s.querier(), ids)
}

func (s *SQLiteStorage) updateChunkMetadataWithQuerier(ctx context.Context, q querier, id string, meta *types.Metadata) error {
	if meta != nil {
		if err := meta.Validate(); err != nil {
			return err
		}
	}
	category, level, data, err := metadataColumns(meta)
	if err != nil {
		return err
	}
	result, err := q.ExecContext(ctx, `
		UPDATE chunks SET primary_category = ?, technical_level = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`, category, level, data, toUnix(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update metadata for chunk %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) UpdateChunkMetadata(ctx context.Context, id string, meta *types.Metadata) error {
	return s.updateChunkMetadataWithQuerier(ctx, s.querier(), id, meta)
}

func (s *SQLiteStorage) deleteChunkWithQuerier(ctx context.Context, q querier, id string) error {
	result, err := q.ExecContext(ctx, "DELETE FROM chunks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete chunk %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteChunk(ctx context.Context, id string) error {
	return s.deleteChunkWithQuerier(ctx, s.querier(), id)
}

// forEachChunkWithQuerier pages through chunks by id. Each page is fully read
// before fn runs, so fn may call back into the store.
func (s *SQLiteStorage) forEachChunkWithQuerier(ctx context.Context, q querier, fn func(*types.Chunk) error) error {
	after := ""
	for {
		page, err := s.chunkPage(ctx, q, after)
		if err != nil {
			return err
		}
		for _, chunk := range page {
			if err := fn(chunk); err != nil {
				return err
			}
		}
		if len(page) < chunkPageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func (s *SQLiteStorage) chunkPage(ctx context.Context, q querier, after string) ([]*types.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks c WHERE c.id > ? ORDER BY c.id LIMIT ?`
	rows, err := q.QueryContext(ctx, query, after, chunkPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	page := make([]*types.Chunk, 0, chunkPageSize)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, chunk)
	}
	return page, rows.Err()
}

func (s *SQLiteStorage) ForEachChunk(ctx context.Context, fn func(*types.Chunk) error) error {
	return s.forEachChunkWithQuerier(ctx, s.querier(), fn)
}

// Embedding operations

func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("embedding for chunk %s is empty", embedding.ChunkID)
	}
	if embedding.Dimension == 0 {
		embedding.Dimension = len(embedding.Vector)
	}
	if embedding.Dimension != len(embedding.Vector) {
		return fmt.Errorf("embedding dimension %d does not match vector length %d", embedding.Dimension, len(embedding.Vector))
	}
	if embedding.CreatedAt.IsZero() {
		embedding.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
	`
	_, err := q.ExecContext(ctx, query,
		embedding.ChunkID, serializeVector(embedding.Vector), embedding.Dimension,
		embedding.Provider, embedding.Model, toUnix(embedding.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for chunk %s: %w", embedding.ChunkID, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, chunkID string) (*Embedding, error) {
	var (
		e         Embedding
		blob      []byte
		createdAt int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings WHERE chunk_id = ?
	`, chunkID).Scan(&e.ChunkID, &blob, &e.Dimension, &e.Provider, &e.Model, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Vector = deserializeVector(blob)
	e.CreatedAt = fromUnix(createdAt)
	return &e, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

func (s *SQLiteStorage) SearchVector(ctx context.Context, vector []float32, limit int, filters *types.Filters) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), vector, limit, filters)
}

// Metadata cache operations

func (s *SQLiteStorage) getCacheEntryWithQuerier(ctx context.Context, q querier, id string) (*CacheEntry, error) {
	var (
		entry                           CacheEntry
		data                            string
		createdAt, updatedAt, expiresAt int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, data, created_at, updated_at, expires_at
		FROM metadata_cache WHERE id = ?
	`, id).Scan(&entry.ID, &data, &createdAt, &updatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &entry.Data); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", id, err)
	}
	entry.CreatedAt = fromUnix(createdAt)
	entry.UpdatedAt = fromUnix(updatedAt)
	entry.ExpiresAt = fromUnix(expiresAt)
	return &entry, nil
}

func (s *SQLiteStorage) GetCacheEntry(ctx context.Context, id string) (*CacheEntry, error) {
	return s.getCacheEntryWithQuerier(ctx, s.querier(), id)
}

// putCacheEntryWithQuerier writes entry. An existing row keeps its created_at;
// data, updated_at and expires_at take the new values.
func (s *SQLiteStorage) putCacheEntryWithQuerier(ctx context.Context, q querier, entry *CacheEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}
	if !entry.ExpiresAt.After(entry.CreatedAt) {
		return fmt.Errorf("%w: expires_at must be after created_at", ErrInvalidEntry)
	}

	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO metadata_cache (id, data, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`, entry.ID, string(data), toUnix(entry.CreatedAt), toUnix(entry.UpdatedAt), toUnix(entry.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to store cache entry %s: %w", entry.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) PutCacheEntry(ctx context.Context, entry *CacheEntry) error {
	return s.putCacheEntryWithQuerier(ctx, s.querier(), entry)
}

func (s *SQLiteStorage) deleteCacheEntryWithQuerier(ctx context.Context, q querier, id string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM metadata_cache WHERE id = ?", id)
	return err
}

func (s *SQLiteStorage) DeleteCacheEntry(ctx context.Context, id string) error {
	return s.deleteCacheEntryWithQuerier(ctx, s.querier(), id)
}

func (s *SQLiteStorage) deleteExpiredWithQuerier(ctx context.Context, q querier, now time.Time) (int64, error) {
	result, err := q.ExecContext(ctx, "DELETE FROM metadata_cache WHERE expires_at <= ?", toUnix(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExpiredCacheEntries removes entries with expires_at <= now and returns how many
func (s *SQLiteStorage) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteExpiredWithQuerier(ctx, s.querier(), now)
}

// Ingest cursor operations

func (s *SQLiteStorage) getCursorWithQuerier(ctx context.Context, q querier, name string) (*Cursor, error) {
	var (
		cursor    Cursor
		updatedAt int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT name, last_id, processed, updated_at FROM ingest_cursors WHERE name = ?
	`, name).Scan(&cursor.Name, &cursor.LastID, &cursor.Processed, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cursor.UpdatedAt = fromUnix(updatedAt)
	return &cursor, nil
}

func (s *SQLiteStorage) GetCursor(ctx context.Context, name string) (*Cursor, error) {
	return s.getCursorWithQuerier(ctx, s.querier(), name)
}

func (s *SQLiteStorage) saveCursorWithQuerier(ctx context.Context, q querier, cursor *Cursor) error {
	cursor.UpdatedAt = time.Now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO ingest_cursors (name, last_id, processed, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_id = excluded.last_id,
			processed = excluded.processed,
			updated_at = excluded.updated_at
	`, cursor.Name, cursor.LastID, cursor.Processed, toUnix(cursor.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save cursor %s: %w", cursor.Name, err)
	}
	return nil
}

func (s *SQLiteStorage) SaveCursor(ctx context.Context, cursor *Cursor) error {
	return s.saveCursorWithQuerier(ctx, s.querier(), cursor)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	status := &Status{Categories: make(map[string]int)}

	counts := []struct {
		query string
		args  []interface{}
		dst   *int
	}{
		{query: "SELECT COUNT(*) FROM chunks", dst: &status.ChunksCount},
		{query: "SELECT COUNT(*) FROM embeddings", dst: &status.EmbeddingsCount},
		{query: "SELECT COUNT(*) FROM metadata_cache", dst: &status.CacheEntries},
		{
			query: "SELECT COUNT(*) FROM metadata_cache WHERE expires_at <= ?",
			args:  []interface{}{toUnix(time.Now())},
			dst:   &status.ExpiredCacheEntries,
		},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query, c.args...).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT primary_category, COUNT(*) FROM chunks
		WHERE primary_category IS NOT NULL
		GROUP BY primary_category
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.Categories[category] = n
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	if v, err := schemaVersion(ctx, q); err == nil {
		status.SchemaVersion = v.String()
	}

	var withMetadata int
	_ = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE metadata IS NOT NULL").Scan(&withMetadata)

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		MetadataAvailable:   withMetadata > 0,
	}
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// Transaction implementations delegate to the storage using the tx querier

func (t *sqliteTx) UpsertChunk(ctx context.Context, chunk *types.Chunk) error {
	return t.storage.upsertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *sqliteTx) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) GetChunks(ctx context.Context, ids []string) (map[string]*types.Chunk, error) {
	return t.storage.getChunksWithQuerier(ctx, t.querier(), ids)
}

func (t *sqliteTx) UpdateChunkMetadata(ctx context.Context, id string, meta *types.Metadata) error {
	return t.storage.updateChunkMetadataWithQuerier(ctx, t.querier(), id, meta)
}

func (t *sqliteTx) DeleteChunk(ctx context.Context, id string) error {
	return t.storage.deleteChunkWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) ForEachChunk(ctx context.Context, fn func(*types.Chunk) error) error {
	return t.storage.forEachChunkWithQuerier(ctx, t.querier(), fn)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, vector []float32, limit int, filters *types.Filters) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), vector, limit, filters)
}

func (t *sqliteTx) GetCacheEntry(ctx context.Context, id string) (*CacheEntry, error) {
	return t.storage.getCacheEntryWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) PutCacheEntry(ctx context.Context, entry *CacheEntry) error {
	return t.storage.putCacheEntryWithQuerier(ctx, t.querier(), entry)
}

func (t *sqliteTx) DeleteCacheEntry(ctx context.Context, id string) error {
	return t.storage.deleteCacheEntryWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	return t.storage.deleteExpiredWithQuerier(ctx, t.querier(), now)
}

func (t *sqliteTx) GetCursor(ctx context.Context, name string) (*Cursor, error) {
	return t.storage.getCursorWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) SaveCursor(ctx context.Context, cursor *Cursor) error {
	return t.storage.saveCursorWithQuerier(ctx, t.querier(), cursor)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	return t.Rollback()
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions are not supported")
}
