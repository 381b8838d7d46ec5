package corpus

import (
	"fmt"
	"sync"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// docEntry is the per-document contribution to corpus statistics.
// attrs holds filterable fields only; text is not retained.
type docEntry struct {
	length int
	terms  map[string]int
	attrs  types.Chunk
}

// Statistics holds document and term counts for lexical scoring.
// A single lock covers every counter, so document count and term
// frequencies always change together.
type Statistics struct {
	mu         sync.RWMutex
	docs       map[string]*docEntry
	docFreq    map[string]int
	postings   map[string]map[string]struct{}
	termTotals map[string]int // occurrences of each term across all documents
	totalTerms int64
	corrupted  error
}

// Snapshot is a point-in-time summary of the statistics
type Snapshot struct {
	TotalDocuments        int     `json:"totalDocuments"`
	AverageDocumentLength float64 `json:"averageDocumentLength"`
	TotalTermCount        int64   `json:"totalTermCount"`
	VocabularySize        int     `json:"vocabularySize"`
}

// NewStatistics creates empty statistics
func NewStatistics() *Statistics {
	return &Statistics{
		docs:       make(map[string]*docEntry),
		docFreq:    make(map[string]int),
		postings:   make(map[string]map[string]struct{}),
		termTotals: make(map[string]int),
	}
}

// RecordDocument adds chunk to the statistics. Recording an id that is
// already present replaces its previous contribution.
func (s *Statistics) RecordDocument(chunk *types.Chunk) error {
	if chunk == nil || chunk.ID == "" {
		return fmt.Errorf("record document: chunk id is required")
	}
	tokens := Tokenize(chunk.Text)
	entry := &docEntry{
		length: len(tokens),
		terms:  TermCounts(tokens),
		attrs: types.Chunk{
			ID:        chunk.ID,
			SourceURL: chunk.SourceURL,
			Title:     chunk.Title,
			Metadata:  chunk.Metadata.Clone(),
			CreatedAt: chunk.CreatedAt,
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[chunk.ID]; exists {
		s.removeLocked(chunk.ID)
	}

	s.docs[chunk.ID] = entry
	s.totalTerms += int64(entry.length)
	for term, count := range entry.terms {
		s.docFreq[term]++
		s.termTotals[term] += count
		ids, ok := s.postings[term]
		if !ok {
			ids = make(map[string]struct{})
			s.postings[term] = ids
		}
		ids[chunk.ID] = struct{}{}
	}
	return nil
}

// RemoveDocument reverses RecordDocument. It reports whether id was present.
func (s *Statistics) RemoveDocument(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Statistics) removeLocked(id string) bool {
	entry, ok := s.docs[id]
	if !ok {
		return false
	}
	delete(s.docs, id)

	s.totalTerms -= int64(entry.length)
	if s.totalTerms < 0 {
		s.totalTerms = 0
		s.markCorruptLocked("total term count went negative removing %s", id)
	}

	for term, count := range entry.terms {
		switch total := s.termTotals[term] - count; {
		case total > 0:
			s.termTotals[term] = total
		case total == 0:
			delete(s.termTotals, term)
		default:
			delete(s.termTotals, term)
			s.markCorruptLocked("term count for %q went negative", term)
		}

		df := s.docFreq[term] - 1
		switch {
		case df > 0:
			s.docFreq[term] = df
		case df == 0:
			delete(s.docFreq, term)
		default:
			delete(s.docFreq, term)
			s.markCorruptLocked("document frequency for %q went negative", term)
		}
		if ids, ok := s.postings[term]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(s.postings, term)
			}
		}
	}
	return true
}

func (s *Statistics) markCorruptLocked(format string, args ...any) {
	if s.corrupted == nil {
		s.corrupted = fmt.Errorf("%w: %s", types.ErrCorruptStatistics, fmt.Sprintf(format, args...))
	}
}

// Reset discards all recorded documents
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]*docEntry)
	s.docFreq = make(map[string]int)
	s.postings = make(map[string]map[string]struct{})
	s.termTotals = make(map[string]int)
	s.totalTerms = 0
	s.corrupted = nil
}

// TotalDocuments returns the number of recorded documents
func (s *Statistics) TotalDocuments() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// DocumentFrequency returns how many documents contain term
func (s *Statistics) DocumentFrequency(term string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docFreq[term]
}

// TermCount returns how often term occurs across the whole corpus
func (s *Statistics) TermCount(term string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.termTotals[term]
}

// TermFrequency returns how often term occurs in document id
func (s *Statistics) TermFrequency(id, term string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.docs[id]; ok {
		return entry.terms[term]
	}
	return 0
}

// DocumentLength returns the token count of document id
func (s *Statistics) DocumentLength(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.docs[id]
	if !ok {
		return 0, false
	}
	return entry.length, true
}

// AverageDocumentLength returns the mean token count, or 0 for an empty corpus
func (s *Statistics) AverageDocumentLength() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.avgLenLocked()
}

func (s *Statistics) avgLenLocked() float64 {
	if len(s.docs) == 0 {
		return 0
	}
	return float64(s.totalTerms) / float64(len(s.docs))
}

// Contains reports whether id has been recorded
func (s *Statistics) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[id]
	return ok
}

// Snapshot returns summary counters
func (s *Statistics) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		TotalDocuments:        len(s.docs),
		AverageDocumentLength: s.avgLenLocked(),
		TotalTermCount:        s.totalTerms,
		VocabularySize:        len(s.docFreq),
	}
}

// Validate cross-checks every counter and returns ErrCorruptStatistics on mismatch
func (s *Statistics) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.corrupted != nil {
		return s.corrupted
	}

	var total int64
	expected := make(map[string]int)
	occurrences := make(map[string]int)
	for _, entry := range s.docs {
		total += int64(entry.length)
		for term, count := range entry.terms {
			expected[term]++
			occurrences[term] += count
		}
	}

	if total != s.totalTerms {
		s.markCorruptLocked("total term count %d, documents sum to %d", s.totalTerms, total)
		return s.corrupted
	}
	if len(expected) != len(s.docFreq) {
		s.markCorruptLocked("vocabulary size %d, documents contain %d terms", len(s.docFreq), len(expected))
		return s.corrupted
	}
	for term, df := range s.docFreq {
		if df < 0 || df > len(s.docs) || expected[term] != df || len(s.postings[term]) != df {
			s.markCorruptLocked("document frequency for %q is %d, expected %d", term, df, expected[term])
			return s.corrupted
		}
	}
	if len(occurrences) != len(s.termTotals) {
		s.markCorruptLocked("%d terms counted, documents contain %d", len(s.termTotals), len(occurrences))
		return s.corrupted
	}
	for term, count := range s.termTotals {
		if occurrences[term] != count {
			s.markCorruptLocked("term count for %q is %d, expected %d", term, count, occurrences[term])
			return s.corrupted
		}
	}
	return nil
}

// Err returns the corruption detected so far, if any
func (s *Statistics) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corrupted
}
