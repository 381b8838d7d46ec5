package corpus

import (
	"math"
	"sort"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// BM25 defaults
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// BM25Params holds the BM25 saturation and length-normalization constants
type BM25Params struct {
	K1 float64
	B  float64
}

// DefaultBM25Params returns k1=1.2, b=0.75
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: DefaultK1, B: DefaultB}
}

// Hit is a lexical match for one document
type Hit struct {
	ID    string
	Score float64
}

// Scorer ranks documents with BM25 against shared Statistics
type Scorer struct {
	stats  *Statistics
	params BM25Params
}

// NewScorer creates a BM25 scorer over stats
func NewScorer(stats *Statistics, params BM25Params) *Scorer {
	return &Scorer{stats: stats, params: params}
}

// Statistics returns the underlying corpus statistics
func (s *Scorer) Statistics() *Statistics {
	return s.stats
}

// IDF returns ln((N - df + 0.5)/(df + 0.5) + 1) for term
func (s *Scorer) IDF(term string) float64 {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	return s.idfLocked(term)
}

func (s *Scorer) idfLocked(term string) float64 {
	n := float64(len(s.stats.docs))
	df := float64(s.stats.docFreq[term])
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// Score computes the BM25 score of chunk's text for queryTerms.
// Terms unknown to the statistics contribute 0.
func (s *Scorer) Score(queryTerms []string, chunk *types.Chunk) float64 {
	if chunk == nil {
		return 0
	}
	tokens := Tokenize(chunk.Text)
	counts := TermCounts(tokens)

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	return s.scoreLocked(UniqueTerms(queryTerms), counts, len(tokens))
}

func (s *Scorer) scoreLocked(terms []string, counts map[string]int, docLen int) float64 {
	avgdl := s.stats.avgLenLocked()
	lengthRatio := 1.0
	if avgdl > 0 {
		lengthRatio = float64(docLen) / avgdl
	}
	k1, b := s.params.K1, s.params.B

	var score float64
	for _, term := range terms {
		if s.stats.docFreq[term] == 0 {
			continue
		}
		tf := float64(counts[term])
		if tf == 0 {
			continue
		}
		score += s.idfLocked(term) * (tf * (k1 + 1)) / (tf + k1*(1-b+b*lengthRatio))
	}
	return score
}

// Search returns up to limit documents matching any query term and filters,
// ordered by descending score then ascending id.
func (s *Scorer) Search(queryTerms []string, limit int, filters *types.Filters) ([]Hit, error) {
	terms := UniqueTerms(queryTerms)

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	if s.stats.corrupted != nil {
		return nil, s.stats.corrupted
	}

	candidates := make(map[string]struct{})
	for _, term := range terms {
		for id := range s.stats.postings[term] {
			candidates[id] = struct{}{}
		}
	}

	hits := make([]Hit, 0, len(candidates))
	for id := range candidates {
		entry := s.stats.docs[id]
		if entry == nil || !filters.Match(&entry.attrs) {
			continue
		}
		score := s.scoreLocked(terms, entry.terms, entry.length)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score})
	}

	sortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ScoreDocuments scores each recorded document in ids. Ids that were never
// recorded score 0.
func (s *Scorer) ScoreDocuments(queryTerms []string, ids []string) (map[string]float64, error) {
	terms := UniqueTerms(queryTerms)

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	if s.stats.corrupted != nil {
		return nil, s.stats.corrupted
	}

	scores := make(map[string]float64, len(ids))
	for _, id := range ids {
		entry := s.stats.docs[id]
		if entry == nil {
			scores[id] = 0
			continue
		}
		scores[id] = s.scoreLocked(terms, entry.terms, entry.length)
	}
	return scores, nil
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
