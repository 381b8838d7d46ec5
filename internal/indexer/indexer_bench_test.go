package indexer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/chunker"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/corpus"
)

var benchVocabulary = []string{
	"pricing", "plan", "seat", "okta", "sso", "saml", "webhook", "api", "dashboard",
	"report", "export", "invoice", "support", "ticket", "integration", "workflow",
}

func benchDocs(pages, wordsPerPage int) []chunker.Document {
	docs := make([]chunker.Document, pages)
	for p := range docs {
		words := make([]string, wordsPerPage)
		for w := range words {
			words[w] = benchVocabulary[(p*7+w)%len(benchVocabulary)]
		}
		docs[p] = chunker.Document{
			URL:   fmt.Sprintf("https://acme.test/page-%04d", p),
			Title: fmt.Sprintf("Page %d", p),
			Text:  strings.Join(words, " "),
		}
	}
	return docs
}

func BenchmarkIndexDocuments(b *testing.B) {
	docs := benchDocs(50, 600)
	splitter := chunker.New(chunker.DefaultWindowWords, chunker.DefaultOverlapWords)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		idx := New(setupTestStorage(b), &mockEmbedder{}, corpus.NewStatistics(), Config{Workers: 4, BatchSize: 10})
		b.StartTimer()

		_, err := idx.IndexDocuments(context.Background(), docs, splitter, IndexOptions{})
		require.NoError(b, err)
	}
}

func BenchmarkWorkerCounts(b *testing.B) {
	docs := benchDocs(40, 400)
	splitter := chunker.New(chunker.DefaultWindowWords, chunker.DefaultOverlapWords)

	for _, workers := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				idx := New(setupTestStorage(b), &mockEmbedder{}, corpus.NewStatistics(), Config{Workers: workers, BatchSize: 10})
				b.StartTimer()

				_, err := idx.IndexDocuments(context.Background(), docs, splitter, IndexOptions{})
				require.NoError(b, err)
			}
		})
	}
}

func BenchmarkBatchSizes(b *testing.B) {
	docs := benchDocs(40, 400)
	splitter := chunker.New(chunker.DefaultWindowWords, chunker.DefaultOverlapWords)

	for _, size := range []int{1, 5, 20, 40} {
		b.Run(fmt.Sprintf("batch=%d", size), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				idx := New(setupTestStorage(b), &mockEmbedder{}, corpus.NewStatistics(), Config{Workers: 4, BatchSize: size})
				b.StartTimer()

				_, err := idx.IndexDocuments(context.Background(), docs, splitter, IndexOptions{})
				require.NoError(b, err)
			}
		})
	}
}

func BenchmarkRebuild(b *testing.B) {
	store := setupTestStorage(b)
	_, err := New(store, &mockEmbedder{}, corpus.NewStatistics(), Config{Workers: 4}).
		IndexDocuments(context.Background(), benchDocs(100, 400), nil, IndexOptions{})
	require.NoError(b, err)

	idx := New(store, &mockEmbedder{}, corpus.NewStatistics(), Config{})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := idx.Rebuild(context.Background())
		require.NoError(b, err)
	}
}
