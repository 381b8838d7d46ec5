package indexer

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/chunker"
)

// StatusSuccess marks a crawled page whose text was extracted
const StatusSuccess = "success"

// CrawlPage is one entry of the crawler's output, keyed by URL
type CrawlPage struct {
	Status           string `json:"status"`
	Title            string `json:"title"`
	Text             string `json:"text"`
	ExtractionMethod string `json:"extraction_method,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
}

// placeholder title the crawler writes when a page has none
const missingTitle = "No Title Found"

// LoadCrawl decodes crawler output and returns the successfully extracted
// pages in URL order. Residual markup is stripped from text and titles.
func LoadCrawl(r io.Reader, crawledAt time.Time) ([]chunker.Document, error) {
	var pages map[string]CrawlPage
	if err := json.NewDecoder(r).Decode(&pages); err != nil {
		return nil, fmt.Errorf("failed to decode crawl data: %w", err)
	}

	policy := bluemonday.StrictPolicy()
	docs := make([]chunker.Document, 0, len(pages))
	for url, page := range pages {
		if page.Status != StatusSuccess {
			continue
		}
		text := clean(policy, page.Text)
		if text == "" {
			continue
		}
		title := clean(policy, page.Title)
		if title == missingTitle {
			title = ""
		}
		docs = append(docs, chunker.Document{
			URL:       url,
			Title:     title,
			Text:      text,
			CreatedAt: crawledAt,
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].URL < docs[j].URL })
	return docs, nil
}

// LoadCrawlFile reads crawler output from path. The file modification time
// stamps every page.
func LoadCrawlFile(path string) ([]chunker.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return LoadCrawl(f, info.ModTime().UTC())
}

// clean strips tags and collapses whitespace. The strict policy escapes
// entities, so they are decoded again afterwards.
func clean(policy *bluemonday.Policy, s string) string {
	s = html.UnescapeString(policy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}
