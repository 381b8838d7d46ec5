// Package corpus maintains corpus-wide term statistics and scores documents
// with BM25.
//
// Statistics is updated as chunks are indexed or removed and is shared by
// every concurrent search. Tokenize is the only tokenizer used for both
// indexing and querying, so query terms always line up with indexed terms.
//
// # Scoring
//
// For a query term t and document d:
//
//	idf(t)   = ln((N - df(t) + 0.5) / (df(t) + 0.5) + 1)
//	score(d) = sum over t of idf(t) * tf*(k1+1) / (tf + k1*(1 - b + b*|d|/avgdl))
//
// k1 and b default to 1.2 and 0.75.
package corpus
