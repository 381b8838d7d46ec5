// Package analyzer classifies incoming questions by category, query type and
// technical level. The result only parametrizes expansion and reranking, so
// callers treat any error as an unclassified query.
package analyzer
