// Package searcher implements hybrid retrieval combining dense-vector similarity and BM25.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, searcher.StoreIndex(store), emb, scorer, searcher.DefaultConfig(), logger)
//
//	results, err := s.PerformHybridSearch(ctx, "okta sso setup", 10, 0.5, &types.Filters{
//	    Categories: []string{"integrations"},
//	})
//
//	for _, r := range results {
//	    fmt.Printf("%s %.3f\n", r.Item.ID, r.Score)
//	}
//
// # Ranking
//
// Both paths fetch Oversample*TopK candidates in parallel. The union is
// hydrated from the chunk store and the filters are applied again, so an
// index that ignores filters cannot leak chunks into the result.
//
//	vector  = 1 - cosineDistance      (missing candidates get the pool minimum)
//	bm25    = BM25(query terms, chunk) over the whole pool
//	each family is min-max normalized; a zero range maps to 0.5
//	score   = r*vector + (1-r)*bm25
//
// Ties are broken by vector score and then by chunk id, so identical
// inputs always produce identical output.
//
// A ratio of 1 skips the lexical path and a ratio of 0 skips the vector
// path. Results then carry only the component that ran.
//
// # Degradation
//
// When one path fails the response is ranked by the other and marked
// Degraded with the failed path in DegradedPaths. Only when both fail does
// Rank return ErrCollaboratorUnavailable.
//
// # Caching
//
// Requests with UseCache consult an LRU response cache. Degraded responses
// are never cached. InvalidateCache must be called after the corpus changes.
package searcher
