// Package chunker divides crawled page text into overlapping word windows
// for embedding and lexical indexing.
//
// # Basic Usage
//
//	c := chunker.New(200, 40)
//	chunks := c.Split(chunker.Document{
//	    URL:   "https://example.com/pricing",
//	    Title: "Pricing",
//	    Text:  pageText,
//	})
//
// # Windows
//
// Each chunk holds up to the window size in words; consecutive chunks share
// the overlap so a sentence cut at a boundary still appears whole in one of
// them. The last window is shorter when the text does not divide evenly.
//
// Chunk ids are derived from the page URL and window index, so re-ingesting
// the same page replaces its chunks instead of duplicating them.
package chunker
