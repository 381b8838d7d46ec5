package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

const (
	// DefaultWindowWords is the target word count per chunk
	DefaultWindowWords = 200

	// DefaultOverlapWords is how many trailing words the next chunk repeats
	DefaultOverlapWords = 40

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Document is one crawled page ready for chunking
type Document struct {
	URL       string
	Title     string
	Text      string
	CreatedAt time.Time
}

// Chunker splits page text into overlapping fixed word windows
type Chunker struct {
	window  int
	overlap int
}

// New creates a chunker. Non-positive values use the defaults and an
// overlap that would stall the window is clamped.
func New(window, overlap int) *Chunker {
	if window <= 0 {
		window = DefaultWindowWords
	}
	if overlap < 0 {
		overlap = DefaultOverlapWords
	}
	if overlap >= window {
		overlap = window / 5
	}
	return &Chunker{window: window, overlap: overlap}
}

// Window returns the configured window and overlap sizes
func (c *Chunker) Window() (words, overlap int) {
	return c.window, c.overlap
}

// Split divides doc into chunks. Whitespace is collapsed; an empty page
// yields no chunks. Every chunk carries the page URL, title and creation time.
func (c *Chunker) Split(doc Document) []*types.Chunk {
	words := strings.Fields(doc.Text)
	if len(words) == 0 {
		return nil
	}

	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	step := c.window - c.overlap
	chunks := make([]*types.Chunk, 0, len(words)/step+1)
	for start, index := 0, 0; ; start, index = start+step, index+1 {
		end := min(start+c.window, len(words))
		chunks = append(chunks, &types.Chunk{
			ID:        ChunkID(doc.URL, index),
			SourceURL: doc.URL,
			Title:     doc.Title,
			Text:      strings.Join(words[start:end], " "),
			CreatedAt: created,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}

// ChunkID derives a stable chunk id from the page URL and window index
func ChunkID(url string, index int) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s-%04d", hex.EncodeToString(sum[:8]), index)
}

// EstimateTokenCount estimates the token count for text
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}
