package reranker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/corpus"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/llm"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// DefaultTopN is how many leading candidates are reordered
const DefaultTopN = 10

// Reranker reorders search results. Implementations only reorder the first
// N candidates and return every candidate exactly once. analysis is the
// classification of query; an unclassified analysis carries no signal.
type Reranker interface {
	Rerank(ctx context.Context, query string, analysis types.QueryAnalysis, candidates []types.SearchResult) ([]types.SearchResult, error)
}

func classified(analysis types.QueryAnalysis) bool {
	return analysis.PrimaryCategory != "" && analysis.PrimaryCategory != types.CategoryUnclassified
}

// ApplyScores reorders the first topN candidates by descending score.
// Candidates without a score keep their relative order after the scored
// ones, the tail beyond topN is appended untouched, and ids in scores that
// are not among the candidates are ignored.
func ApplyScores(candidates []types.SearchResult, topN int, scores map[string]float64) []types.SearchResult {
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}
	head, tail := candidates[:topN], candidates[topN:]

	scored := make([]types.SearchResult, 0, len(head))
	unscored := make([]types.SearchResult, 0, len(head))
	for _, c := range head {
		if s, ok := scores[c.Item.ID]; ok && !math.IsNaN(s) {
			scored = append(scored, c)
		} else {
			unscored = append(unscored, c)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scores[scored[i].Item.ID] > scores[scored[j].Item.ID]
	})

	out := make([]types.SearchResult, 0, len(candidates))
	out = append(out, scored...)
	out = append(out, unscored...)
	out = append(out, tail...)
	return out
}

// SameCandidates reports whether reranked holds exactly the ids of original
func SameCandidates(original, reranked []types.SearchResult) bool {
	if len(original) != len(reranked) {
		return false
	}
	want := make(map[string]int, len(original))
	for _, r := range original {
		want[r.Item.ID]++
	}
	for _, r := range reranked {
		if want[r.Item.ID] == 0 {
			return false
		}
		want[r.Item.ID]--
	}
	return true
}

// KeywordReranker scores candidates by overlap between query terms and the
// chunk's metadata keywords, summary and title. A classified query also
// favors chunks of its category and technical level.
type KeywordReranker struct {
	topN int
}

// NewKeywordReranker creates a keyword reranker
func NewKeywordReranker(topN int) *KeywordReranker {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &KeywordReranker{topN: topN}
}

// Field weights for keyword overlap
const (
	keywordWeight = 0.5
	summaryWeight = 0.3
	titleWeight   = 0.2

	// share of the final score kept from the hybrid ranking
	priorWeight = 0.25

	// added on top of the overlap for a classified query
	categoryBoost = 0.3
	levelBoost    = 0.1
)

// Rerank reorders the top candidates by metadata overlap
func (r *KeywordReranker) Rerank(ctx context.Context, query string, analysis types.QueryAnalysis, candidates []types.SearchResult) ([]types.SearchResult, error) {
	terms := corpus.UniqueTerms(corpus.Tokenize(query))
	useAnalysis := classified(analysis)
	if (len(terms) == 0 && !useAnalysis) || len(candidates) == 0 {
		return candidates, nil
	}

	n := min(r.topN, len(candidates))
	scores := make(map[string]float64, n)
	for _, c := range candidates[:n] {
		if c.Item.Metadata == nil && c.Item.Title == "" {
			continue
		}
		var keywords []string
		summary := ""
		if m := c.Item.Metadata; m != nil {
			keywords = m.Keywords
			summary = m.Summary
		}
		overlap := keywordWeight*coverage(terms, corpus.Tokenize(strings.Join(keywords, " "))) +
			summaryWeight*coverage(terms, corpus.Tokenize(summary)) +
			titleWeight*coverage(terms, corpus.Tokenize(c.Item.Title))
		if useAnalysis {
			overlap += analysisFit(analysis, c.Item.Metadata)
		}
		scores[c.Item.ID] = (1-priorWeight)*overlap + priorWeight*c.Score
	}

	return ApplyScores(candidates, n, scores), nil
}

// analysisFit rewards a chunk whose category matches the query and whose
// technical level is close to the one the query asks for
func analysisFit(analysis types.QueryAnalysis, m *types.Metadata) float64 {
	if m == nil {
		return 0
	}
	fit := 0.0
	if strings.EqualFold(m.PrimaryCategory, analysis.PrimaryCategory) {
		fit += categoryBoost
	}
	if m.TechnicalLevel >= types.MinTechnicalLevel && analysis.TechnicalLevel >= types.MinTechnicalLevel {
		span := float64(types.MaxTechnicalLevel - types.MinTechnicalLevel)
		gap := math.Abs(float64(m.TechnicalLevel - analysis.TechnicalLevel))
		fit += levelBoost * math.Max(0, 1-gap/span)
	}
	return fit
}

// coverage is the fraction of query terms present in field
func coverage(terms, field []string) float64 {
	if len(terms) == 0 || len(field) == 0 {
		return 0
	}
	present := make(map[string]struct{}, len(field))
	for _, f := range field {
		present[f] = struct{}{}
	}
	hits := 0
	for _, t := range terms {
		if _, ok := present[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

const (
	rerankSystemPrompt = `You judge how well passages answer a question.
Reply with one JSON object {"scores": [{"id": "...", "score": 0-10}, ...]}
with one entry per passage id, 10 meaning the passage fully answers the question.`

	maxPassageRunes = 600
)

// LLMReranker scores the top candidates with a single JSON completion
type LLMReranker struct {
	client llm.Client
	model  string
	topN   int
	logger *zap.Logger
}

// NewLLMReranker creates an LLM-backed reranker
func NewLLMReranker(client llm.Client, model string, topN int, logger *zap.Logger) *LLMReranker {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMReranker{client: client, model: model, topN: topN, logger: logger}
}

type rerankReply struct {
	Scores []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"scores"`
}

// Rerank asks the model to score the top candidates
func (r *LLMReranker) Rerank(ctx context.Context, query string, analysis types.QueryAnalysis, candidates []types.SearchResult) ([]types.SearchResult, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	n := min(r.topN, len(candidates))

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question: %s\n", query)
	if classified(analysis) {
		fmt.Fprintf(&prompt, "Topic: %s, technical level %d of %d\n",
			analysis.PrimaryCategory, analysis.TechnicalLevel, types.MaxTechnicalLevel)
	}
	prompt.WriteString("\n")
	for _, c := range candidates[:n] {
		fmt.Fprintf(&prompt, "[id=%s]\n", c.Item.ID)
		if c.Item.Title != "" {
			fmt.Fprintf(&prompt, "Title: %s\n", c.Item.Title)
		}
		fmt.Fprintf(&prompt, "%s\n\n", truncateRunes(c.Item.Text, maxPassageRunes))
	}

	resp, err := r.client.Complete(ctx, llm.Request{
		Model:  r.model,
		System: rerankSystemPrompt,
		Prompt: prompt.String(),
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("rerank failed: %w", err)
	}

	var reply rerankReply
	if err := llm.DecodeJSON(resp.Content, &reply); err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(reply.Scores))
	for _, s := range reply.Scores {
		if s.ID == "" {
			continue
		}
		scores[s.ID] = s.Score
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: no scores in rerank reply", types.ErrMalformedResponse)
	}

	r.logger.Debug("candidates reranked", zap.Int("candidates", n), zap.Int("scored", len(scores)))
	return ApplyScores(candidates, n, scores), nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
