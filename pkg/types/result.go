package types

import (
	"encoding/json"
	"time"
)

// Signals records which retrieval families contributed to a result
type Signals uint8

const (
	SignalVector Signals = 1 << iota
	SignalLexical
)

// Has reports whether s includes every bit of other
func (s Signals) Has(other Signals) bool {
	return s&other == other
}

// SearchResult is a ranked chunk with its combined relevance score
type SearchResult struct {
	Item    Chunk
	Score   float64 // Combined normalized score, always present
	Signals Signals

	vectorScore float64
	bm25Score   float64
}

// NewSearchResult builds a result with no component scores attached
func NewSearchResult(item Chunk, score float64) SearchResult {
	return SearchResult{Item: item, Score: score}
}

// WithVectorScore attaches the normalized vector component
func (r SearchResult) WithVectorScore(v float64) SearchResult {
	r.vectorScore = v
	r.Signals |= SignalVector
	return r
}

// WithBM25Score attaches the normalized lexical component
func (r SearchResult) WithBM25Score(v float64) SearchResult {
	r.bm25Score = v
	r.Signals |= SignalLexical
	return r
}

// VectorScore returns the normalized vector component if it contributed
func (r SearchResult) VectorScore() (float64, bool) {
	return r.vectorScore, r.Signals.Has(SignalVector)
}

// BM25Score returns the normalized lexical component if it contributed
func (r SearchResult) BM25Score() (float64, bool) {
	return r.bm25Score, r.Signals.Has(SignalLexical)
}

type searchResultJSON struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Title       string    `json:"title,omitempty"`
	SourceURL   string    `json:"sourceUrl,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Score       float64   `json:"score"`
	VectorScore *float64  `json:"vectorScore,omitempty"`
	BM25Score   *float64  `json:"bm25Score,omitempty"`
}

// MarshalJSON omits component scores that did not contribute
func (r SearchResult) MarshalJSON() ([]byte, error) {
	out := searchResultJSON{
		ID:        r.Item.ID,
		Text:      r.Item.Text,
		Title:     r.Item.Title,
		SourceURL: r.Item.SourceURL,
		Metadata:  r.Item.Metadata,
		CreatedAt: r.Item.CreatedAt,
		Score:     r.Score,
	}
	if v, ok := r.VectorScore(); ok {
		out.VectorScore = &v
	}
	if v, ok := r.BM25Score(); ok {
		out.BM25Score = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a result produced by MarshalJSON
func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var in searchResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	res := NewSearchResult(Chunk{
		ID:        in.ID,
		Text:      in.Text,
		Title:     in.Title,
		SourceURL: in.SourceURL,
		Metadata:  in.Metadata,
		CreatedAt: in.CreatedAt,
	}, in.Score)
	if in.VectorScore != nil {
		res = res.WithVectorScore(*in.VectorScore)
	}
	if in.BM25Score != nil {
		res = res.WithBM25Score(*in.BM25Score)
	}
	*r = res
	return nil
}

// Query types produced by analysis
const (
	QueryTypeFactual      = "factual"
	QueryTypeComparison   = "comparison"
	QueryTypeHowTo        = "how_to"
	QueryTypeTroubleshoot = "troubleshooting"
	QueryTypeExploratory  = "exploratory"
	QueryTypeUnclassified = "unclassified"
)

// Fallback analysis values
const (
	CategoryUnclassified  = "general"
	DefaultTechnicalLevel = 2
)

// QueryAnalysis classifies a user query
type QueryAnalysis struct {
	PrimaryCategory string `json:"primaryCategory"`
	QueryType       string `json:"queryType"`
	TechnicalLevel  int    `json:"technicalLevel"`
}

// UnclassifiedAnalysis is used when analysis fails or is unavailable
func UnclassifiedAnalysis() QueryAnalysis {
	return QueryAnalysis{
		PrimaryCategory: CategoryUnclassified,
		QueryType:       QueryTypeUnclassified,
		TechnicalLevel:  DefaultTechnicalLevel,
	}
}

// ProcessingTime holds per-stage elapsed milliseconds.
// Optional stages are nil when they did not run.
type ProcessingTime struct {
	Analysis  float64  `json:"analysis"`
	Expansion *float64 `json:"expansion,omitempty"`
	Search    float64  `json:"search"`
	Reranking *float64 `json:"reranking,omitempty"`
	Total     float64  `json:"total"`
}

// RouteDebug carries intermediate pipeline state when requested
type RouteDebug struct {
	RequestID      string   `json:"requestId"`
	ExpandedQuery  []string `json:"expandedQueries,omitempty"`
	CandidateCount int      `json:"candidateCount"`
	DegradedStages []string `json:"degradedStages,omitempty"`
	States         []string `json:"states"`
}

// RouteResult is the outcome of a routed query
type RouteResult struct {
	QueryAnalysis  QueryAnalysis  `json:"queryAnalysis"`
	Results        []SearchResult `json:"results"`
	ProcessingTime ProcessingTime `json:"processingTime"`
	Degraded       bool           `json:"degraded"`
	Debug          *RouteDebug    `json:"debug,omitempty"`
}

// Milliseconds converts a duration into fractional milliseconds
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
