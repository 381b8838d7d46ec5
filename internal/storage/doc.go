// Package storage provides SQLite-based persistence for the retrieval corpus.
//
// The storage layer manages:
//   - Chunks of crawled pages with their extracted metadata
//   - Chunk embeddings
//   - The metadata extraction cache, keyed by content fingerprint
//   - Ingest cursors for resumable crawl imports
//
// # Database Schema
//
// Tables:
//   - chunks: chunk text, source, denormalized category and technical level
//   - embeddings: little-endian float32 vectors, one per chunk
//   - metadata_cache: extracted metadata with created/updated/expires timestamps
//   - ingest_cursors: last processed item per named ingest run
//   - schema_version: applied migrations
//
// Timestamps are unix nanoseconds. Category values are stored lower-cased in
// the filter column so category filters are case-insensitive in SQL.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.ragengine/corpus.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.UpsertChunk(ctx, &types.Chunk{ID: "pricing#0", Text: text})
//
// # Transactions
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.UpsertChunk(ctx, chunk)
//	_ = tx.UpsertEmbedding(ctx, embedding)
//	return tx.Commit()
//
// # Vector Search
//
// SearchVector returns cosine distances, lowest first. Build with the
// sqlite_vec tag to evaluate distances inside SQLite; the default pure Go
// build scores candidates in process.
package storage
