// Package vectorindex provides a Postgres pgvector backend for nearest-neighbour
// chunk retrieval.
//
// The embedded SQLite store can answer vector queries on its own. PGVector is
// used when the corpus outgrows a brute-force scan: it keeps an HNSW index
// with cosine operators and pushes the same filters as types.Filters.Match
// into SQL.
package vectorindex
