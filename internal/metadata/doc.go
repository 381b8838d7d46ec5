// Package metadata extracts structured descriptions of documents with an LLM
// and caches them by content fingerprint.
//
// Cache keeps extractions for a fixed TTL. Reads of an entry whose expiry has
// passed are misses, as are entries swept from the store between calls.
// An LRU hot tier fronts the persistent metadata_cache table.
//
// Extractor wraps the model call:
//
//	meta, err := extractor.Extract(ctx, chunk.Text, chunk.ID, metadata.Options{UseCaching: true})
//
// Concurrent calls for identical text share one extraction. Rate limits and
// outages retry with backoff, a malformed reply retries once, and the
// fallback model is tried before giving up with a *types.ExtractionError.
// Failed extractions are never cached.
package metadata
