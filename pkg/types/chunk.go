package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Technical level bounds for extracted metadata
const (
	MinTechnicalLevel = 1
	MaxTechnicalLevel = 5
)

// Chunk is a bounded slice of a crawled document, indexed for retrieval
type Chunk struct {
	// Identification
	ID        string
	SourceURL string
	Title     string

	// Content
	Text string

	// Enrichment
	Metadata  *Metadata // Nullable until extraction has run
	Embedding []float32

	CreatedAt time.Time
}

// Fingerprint returns the content hash used to key extracted metadata
func (c *Chunk) Fingerprint() string {
	return Fingerprint(c.Text)
}

// Fingerprint computes the hex SHA-256 of text
func Fingerprint(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Validate checks the chunk can be indexed
func (c *Chunk) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("chunk id cannot be empty")
	}
	if strings.TrimSpace(c.Text) == "" {
		return ErrEmptyContent
	}
	if c.Metadata != nil {
		if err := c.Metadata.Validate(); err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// Entity is a named thing mentioned in a chunk
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Metadata is the structured description an LLM derives from chunk text
type Metadata struct {
	PrimaryCategory string   `json:"primaryCategory"`
	TechnicalLevel  int      `json:"technicalLevel"`
	Summary         string   `json:"summary"`
	Keywords        []string `json:"keywords"`
	Entities        []Entity `json:"entities"`
}

// Validate rejects metadata missing required fields or out of range
func (m *Metadata) Validate() error {
	if strings.TrimSpace(m.PrimaryCategory) == "" {
		return fmt.Errorf("%w: primaryCategory is required", ErrInvalidMetadata)
	}
	if m.TechnicalLevel < MinTechnicalLevel || m.TechnicalLevel > MaxTechnicalLevel {
		return fmt.Errorf("%w: technicalLevel %d outside [%d,%d]",
			ErrInvalidMetadata, m.TechnicalLevel, MinTechnicalLevel, MaxTechnicalLevel)
	}
	if strings.TrimSpace(m.Summary) == "" {
		return fmt.Errorf("%w: summary is required", ErrInvalidMetadata)
	}
	for i, e := range m.Entities {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("%w: entity %d has no name", ErrInvalidMetadata, i)
		}
	}
	return nil
}

// Clone returns a deep copy so cached values are never shared with callers
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	dst := *m
	dst.Keywords = append([]string(nil), m.Keywords...)
	dst.Entities = append([]Entity(nil), m.Entities...)
	return &dst
}

// UnmarshalJSON decodes metadata, rejecting scalar keywords or entities
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw struct {
		PrimaryCategory string          `json:"primaryCategory"`
		TechnicalLevel  json.Number     `json:"technicalLevel"`
		Summary         string          `json:"summary"`
		Keywords        json.RawMessage `json:"keywords"`
		Entities        json.RawMessage `json:"entities"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	level := 0
	if raw.TechnicalLevel != "" {
		f, err := raw.TechnicalLevel.Float64()
		if err != nil {
			return fmt.Errorf("technicalLevel: %w", err)
		}
		level = int(f)
	}

	var keywords []string
	if len(raw.Keywords) > 0 && string(raw.Keywords) != "null" {
		if err := json.Unmarshal(raw.Keywords, &keywords); err != nil {
			return fmt.Errorf("keywords must be an array of strings: %w", err)
		}
	}

	var entities []Entity
	if len(raw.Entities) > 0 && string(raw.Entities) != "null" {
		if err := json.Unmarshal(raw.Entities, &entities); err != nil {
			return fmt.Errorf("entities must be an array of objects: %w", err)
		}
	}

	*m = Metadata{
		PrimaryCategory: raw.PrimaryCategory,
		TechnicalLevel:  level,
		Summary:         raw.Summary,
		Keywords:        keywords,
		Entities:        entities,
	}
	return nil
}

// Filters narrows retrieval. All populated fields must match (conjunctive).
type Filters struct {
	Categories        []string   `json:"categories,omitempty"`
	MinTechnicalLevel int        `json:"minTechnicalLevel,omitempty"`
	MaxTechnicalLevel int        `json:"maxTechnicalLevel,omitempty"`
	Sources           []string   `json:"sources,omitempty"` // SourceURL prefixes
	CreatedAfter      *time.Time `json:"createdAfter,omitempty"`
	CreatedBefore     *time.Time `json:"createdBefore,omitempty"`
}

// IsEmpty reports whether no constraint is set
func (f *Filters) IsEmpty() bool {
	return f == nil || (len(f.Categories) == 0 && f.MinTechnicalLevel == 0 &&
		f.MaxTechnicalLevel == 0 && len(f.Sources) == 0 &&
		f.CreatedAfter == nil && f.CreatedBefore == nil)
}

// Validate rejects malformed filters
func (f *Filters) Validate() error {
	if f == nil {
		return nil
	}
	if f.MinTechnicalLevel < 0 || f.MinTechnicalLevel > MaxTechnicalLevel {
		return fmt.Errorf("%w: minTechnicalLevel %d out of range", ErrInvalidQuery, f.MinTechnicalLevel)
	}
	if f.MaxTechnicalLevel < 0 || f.MaxTechnicalLevel > MaxTechnicalLevel {
		return fmt.Errorf("%w: maxTechnicalLevel %d out of range", ErrInvalidQuery, f.MaxTechnicalLevel)
	}
	if f.MaxTechnicalLevel > 0 && f.MinTechnicalLevel > f.MaxTechnicalLevel {
		return fmt.Errorf("%w: minTechnicalLevel exceeds maxTechnicalLevel", ErrInvalidQuery)
	}
	if f.CreatedAfter != nil && f.CreatedBefore != nil && !f.CreatedAfter.Before(*f.CreatedBefore) {
		return fmt.Errorf("%w: createdAfter must precede createdBefore", ErrInvalidQuery)
	}
	for _, c := range f.Categories {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: empty category", ErrInvalidQuery)
		}
	}
	return nil
}

// Match reports whether chunk satisfies every populated constraint.
// Chunks without metadata fail category and level constraints.
func (f *Filters) Match(c *Chunk) bool {
	if f.IsEmpty() {
		return true
	}
	if c == nil {
		return false
	}

	if len(f.Categories) > 0 {
		if c.Metadata == nil || !containsFold(f.Categories, c.Metadata.PrimaryCategory) {
			return false
		}
	}
	if f.MinTechnicalLevel > 0 || f.MaxTechnicalLevel > 0 {
		if c.Metadata == nil {
			return false
		}
		if f.MinTechnicalLevel > 0 && c.Metadata.TechnicalLevel < f.MinTechnicalLevel {
			return false
		}
		if f.MaxTechnicalLevel > 0 && c.Metadata.TechnicalLevel > f.MaxTechnicalLevel {
			return false
		}
	}
	if len(f.Sources) > 0 {
		matched := false
		for _, prefix := range f.Sources {
			if strings.HasPrefix(c.SourceURL, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.CreatedAfter != nil && !c.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !c.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
