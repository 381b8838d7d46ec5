package corpus

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "lowercase and punctuation", text: "SSO, SAML & OAuth!", want: []string{"sso", "saml", "oauth"}},
		{name: "stopwords dropped", text: "What is the price of the plan", want: []string{"price", "plan"}},
		{name: "single characters dropped", text: "a b c api", want: []string{"api"}},
		{name: "digits kept", text: "Version 2024 release", want: []string{"version", "2024", "release"}},
		{name: "duplicates kept", text: "cache cache miss", want: []string{"cache", "cache", "miss"}},
		{name: "empty", text: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestStatisticsRecordAndRemove(t *testing.T) {
	stats := NewStatistics()

	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "a", Text: "pricing plans pricing"}))
	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "b", Text: "security plans"}))

	assert.Equal(t, 2, stats.TotalDocuments())
	assert.Equal(t, 1, stats.DocumentFrequency("pricing"), "unique terms count once per document")
	assert.Equal(t, 2, stats.TermFrequency("a", "pricing"))
	assert.Equal(t, 2, stats.DocumentFrequency("plans"))
	assert.InDelta(t, 2.5, stats.AverageDocumentLength(), 1e-9)

	assert.True(t, stats.RemoveDocument("a"))
	assert.False(t, stats.RemoveDocument("a"), "second removal is a no-op")
	assert.Equal(t, 1, stats.TotalDocuments())
	assert.Equal(t, 0, stats.DocumentFrequency("pricing"))
	assert.Equal(t, 1, stats.DocumentFrequency("plans"))
	assert.NoError(t, stats.Validate())

	assert.True(t, stats.RemoveDocument("b"))
	snap := stats.Snapshot()
	assert.Equal(t, 0, snap.TotalDocuments)
	assert.Equal(t, int64(0), snap.TotalTermCount)
	assert.Equal(t, 0, snap.VocabularySize)
	assert.Equal(t, 0.0, stats.AverageDocumentLength())
}

func TestStatisticsRerecordReplaces(t *testing.T) {
	stats := NewStatistics()
	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "a", Text: "alpha beta"}))
	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "a", Text: "gamma"}))

	assert.Equal(t, 1, stats.TotalDocuments())
	assert.Equal(t, 0, stats.DocumentFrequency("alpha"))
	assert.Equal(t, 1, stats.DocumentFrequency("gamma"))
	assert.NoError(t, stats.Validate())
}

func TestStatisticsTermCount(t *testing.T) {
	stats := NewStatistics()
	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "a", Text: "pricing plans pricing"}))
	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "b", Text: "pricing security"}))

	tests := []struct {
		name   string
		mutate func()
		term   string
		want   int
	}{
		{name: "all occurrences summed", term: "pricing", want: 3},
		{name: "single occurrence", term: "security", want: 1},
		{name: "unknown term", term: "okta", want: 0},
		{name: "removal subtracts", mutate: func() { stats.RemoveDocument("a") }, term: "pricing", want: 1},
		{name: "removed term disappears", term: "plans", want: 0},
		{name: "rerecord replaces", mutate: func() {
			_ = stats.RecordDocument(&types.Chunk{ID: "b", Text: "security security"})
		}, term: "security", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mutate != nil {
				tt.mutate()
			}
			assert.Equal(t, tt.want, stats.TermCount(tt.term))
			assert.NoError(t, stats.Validate())
		})
	}

	stats.mu.Lock()
	stats.termTotals["security"] = 9
	stats.mu.Unlock()
	assert.ErrorIs(t, stats.Validate(), types.ErrCorruptStatistics)
}

func TestStatisticsRejectsMissingID(t *testing.T) {
	assert.Error(t, NewStatistics().RecordDocument(&types.Chunk{Text: "x"}))
	assert.Error(t, NewStatistics().RecordDocument(nil))
}

func TestStatisticsConcurrentUpdates(t *testing.T) {
	stats := NewStatistics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("doc-%d", i)
			_ = stats.RecordDocument(&types.Chunk{ID: id, Text: "shared term unique" + id})
			if i%2 == 0 {
				stats.RemoveDocument(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, stats.TotalDocuments())
	assert.Equal(t, 25, stats.DocumentFrequency("shared"))
	assert.NoError(t, stats.Validate())
}

func TestStatisticsValidateDetectsCorruption(t *testing.T) {
	stats := NewStatistics()
	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "a", Text: "alpha"}))

	stats.mu.Lock()
	stats.docFreq["alpha"] = 7
	stats.mu.Unlock()

	err := stats.Validate()
	assert.ErrorIs(t, err, types.ErrCorruptStatistics)
	assert.ErrorIs(t, stats.Err(), types.ErrCorruptStatistics)

	_, err = NewScorer(stats, DefaultBM25Params()).Search([]string{"alpha"}, 10, nil)
	assert.ErrorIs(t, err, types.ErrCorruptStatistics)

	stats.Reset()
	assert.NoError(t, stats.Validate())
}

func TestIDF(t *testing.T) {
	stats := NewStatistics()
	for i := 0; i < 4; i++ {
		require.NoError(t, stats.RecordDocument(&types.Chunk{ID: fmt.Sprintf("d%d", i), Text: "common"}))
	}
	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "rare", Text: "common rare"}))

	scorer := NewScorer(stats, DefaultBM25Params())
	// N=5, df=1
	assert.InDelta(t, math.Log((5-1+0.5)/(1+0.5)+1), scorer.IDF("rare"), 1e-12)
	// N=5, df=5
	assert.InDelta(t, math.Log((0.5)/(5.5)+1), scorer.IDF("common"), 1e-12)
	assert.Greater(t, scorer.IDF("rare"), scorer.IDF("common"))
	assert.Greater(t, scorer.IDF("unknown"), 0.0)
}

func TestScoreFormula(t *testing.T) {
	stats := NewStatistics()
	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "a", Text: "refund policy refund"}))
	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "b", Text: "shipping times"}))

	scorer := NewScorer(stats, DefaultBM25Params())
	chunk := &types.Chunk{ID: "a", Text: "refund policy refund"}

	// N=2, df(refund)=1, tf=2, |d|=3, avgdl=2.5
	idf := math.Log((2-1+0.5)/(1+0.5) + 1)
	tf := 2.0
	want := idf * (tf * 2.2) / (tf + 1.2*(1-0.75+0.75*3/2.5))

	assert.InDelta(t, want, scorer.Score([]string{"refund"}, chunk), 1e-12)
	assert.Equal(t, 0.0, scorer.Score([]string{"unknownterm"}, chunk))
	assert.Equal(t, 0.0, scorer.Score([]string{"refund"}, nil))
}

func TestSearchOrderingAndFilters(t *testing.T) {
	stats := NewStatistics()
	docs := []*types.Chunk{
		{ID: "b", Text: "sso login", Metadata: &types.Metadata{PrimaryCategory: "security", TechnicalLevel: 3, Summary: "s"}},
		{ID: "a", Text: "sso login", Metadata: &types.Metadata{PrimaryCategory: "security", TechnicalLevel: 1, Summary: "s"}},
		{ID: "c", Text: "sso sso sso setup guide", Metadata: &types.Metadata{PrimaryCategory: "setup", TechnicalLevel: 4, Summary: "s"}},
		{ID: "d", Text: "pricing tiers"},
	}
	for _, d := range docs {
		require.NoError(t, stats.RecordDocument(d))
	}
	scorer := NewScorer(stats, DefaultBM25Params())

	hits, err := scorer.Search(Tokenize("SSO login"), 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].ID, "equal scores tie-break by ascending id")
	assert.Equal(t, "b", hits[1].ID)
	assert.Equal(t, hits[0].Score, hits[1].Score)

	hits, err = scorer.Search(Tokenize("sso"), 1, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = scorer.Search(Tokenize("sso"), 10, &types.Filters{Categories: []string{"setup"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c", hits[0].ID)

	hits, err = scorer.Search(Tokenize("sso"), 10, &types.Filters{MaxTechnicalLevel: 2})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)

	hits, err = scorer.Search(Tokenize("nothing matches"), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestScoreDocuments(t *testing.T) {
	stats := NewStatistics()
	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "a", Text: "refund policy"}))
	require.NoError(t, stats.RecordDocument(&types.Chunk{ID: "b", Text: "shipping"}))
	scorer := NewScorer(stats, DefaultBM25Params())

	scores, err := scorer.ScoreDocuments([]string{"refund"}, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Greater(t, scores["a"], 0.0)
	assert.Equal(t, 0.0, scores["b"])
	assert.Equal(t, 0.0, scores["missing"])
}
