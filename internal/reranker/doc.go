// Package reranker reorders the leading hybrid search results with a finer
// signal than the first-stage scores.
//
// Rerankers never add or drop results: ApplyScores reorders the scored
// part of the first N candidates, keeps unscored ones in place after them
// and appends the rest unchanged. The Score field keeps the hybrid value.
package reranker
