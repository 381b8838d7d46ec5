// Package router answers a user query through a staged pipeline:
//
//	ANALYZING -> EXPANDING? -> SEARCHING -> RERANKING? -> DONE | FAILED
//
// Analysis always runs and falls back to an unclassified analysis when the
// analyzer fails. Expansion and reranking run only when requested; when they
// fail the router continues with the original query or the hybrid order and
// marks the result degraded. Search is mandatory: its failure, or expiry of
// the request deadline in any stage, ends the request with a
// *types.StageError and no partial result.
//
// With expansion enabled every variant is ranked concurrently, bounded by
// Config.MaxParallelSearches, and results are merged by chunk id keeping the
// highest score.
//
//	r := router.New(analyzer, expander, searcher, reranker, router.DefaultConfig(), logger)
//	res, err := r.RouteQuery(ctx, "how do I enable okta sso", router.Options{
//	    UseQueryExpansion: true,
//	    UseReranking:      true,
//	})
package router
