package expander

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/corpus"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/llm"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// DefaultMaxVariants caps the expanded list including the original query
const DefaultMaxVariants = 4

// Expander produces alternate phrasings of a query. The original query is
// always the first element.
type Expander interface {
	Expand(ctx context.Context, query string, analysis types.QueryAnalysis) ([]string, error)
}

// Normalize puts query first, drops empty and case-insensitive duplicate
// variants and caps the result at limit entries
func Normalize(query string, variants []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxVariants
	}
	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, len(variants)+1)

	add := func(v string) {
		v = strings.Join(strings.Fields(v), " ")
		if v == "" || len(out) >= limit {
			return
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}

	add(query)
	for _, v := range variants {
		add(v)
	}
	return out
}

// DefaultSynonyms maps a query term to an alternate term
var DefaultSynonyms = map[string]string{
	"price":     "cost",
	"pricing":   "cost",
	"cost":      "price",
	"sso":       "single sign-on",
	"setup":     "configure",
	"configure": "set up",
	"cancel":    "terminate",
	"integrate": "connect",
	"customer":  "client",
	"refund":    "reimbursement",
	"login":     "sign in",
	"mfa":       "two-factor authentication",
}

// RuleExpander builds variants without I/O: the keyword-only form, the
// keyword form augmented with the analyzed category, and a synonym swap
type RuleExpander struct {
	maxVariants int
	synonyms    map[string]string
}

// NewRuleExpander creates a rule expander. A nil synonym map uses DefaultSynonyms.
func NewRuleExpander(maxVariants int, synonyms map[string]string) *RuleExpander {
	if synonyms == nil {
		synonyms = DefaultSynonyms
	}
	return &RuleExpander{maxVariants: maxVariants, synonyms: synonyms}
}

// Expand returns the original query followed by rule variants
func (e *RuleExpander) Expand(ctx context.Context, query string, analysis types.QueryAnalysis) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", types.ErrInvalidQuery)
	}

	terms := corpus.Tokenize(query)
	variants := make([]string, 0, 3)

	keywords := strings.Join(terms, " ")
	variants = append(variants, keywords)

	category := analysis.PrimaryCategory
	if keywords != "" && category != "" && category != types.CategoryUnclassified && !containsTerm(terms, category) {
		variants = append(variants, keywords+" "+category)
	}

	for i, t := range terms {
		alt, ok := e.synonyms[t]
		if !ok {
			continue
		}
		swapped := append([]string(nil), terms...)
		swapped[i] = alt
		variants = append(variants, strings.Join(swapped, " "))
		break
	}

	return Normalize(query, variants, e.maxVariants), nil
}

func containsTerm(terms []string, term string) bool {
	term = strings.ToLower(term)
	for _, t := range terms {
		if t == term {
			return true
		}
	}
	return false
}

const expansionSystemPrompt = `You rewrite questions for a company knowledge search engine.
Reply with one JSON object {"queries": [...]} holding up to %d alternative
phrasings or focused sub-questions of the user's question. Do not repeat the
original question. Keep each under 20 words.`

// LLMExpander asks the model for alternate phrasings
type LLMExpander struct {
	client      llm.Client
	model       string
	maxVariants int
	logger      *zap.Logger
}

// NewLLMExpander creates an LLM-backed expander
func NewLLMExpander(client llm.Client, model string, maxVariants int, logger *zap.Logger) *LLMExpander {
	if maxVariants <= 0 {
		maxVariants = DefaultMaxVariants
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExpander{client: client, model: model, maxVariants: maxVariants, logger: logger}
}

type expansionReply struct {
	Queries []string `json:"queries"`
}

// Expand returns the original query followed by model variants
func (e *LLMExpander) Expand(ctx context.Context, query string, analysis types.QueryAnalysis) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", types.ErrInvalidQuery)
	}
	if e.maxVariants == 1 {
		return []string{query}, nil
	}

	prompt := query
	if analysis.PrimaryCategory != "" && analysis.PrimaryCategory != types.CategoryUnclassified {
		prompt = fmt.Sprintf("Topic: %s\nQuestion: %s", analysis.PrimaryCategory, query)
	}

	resp, err := e.client.Complete(ctx, llm.Request{
		Model:  e.model,
		System: fmt.Sprintf(expansionSystemPrompt, e.maxVariants-1),
		Prompt: prompt,
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("query expansion failed: %w", err)
	}

	var reply expansionReply
	if err := llm.DecodeJSON(resp.Content, &reply); err != nil {
		return nil, err
	}

	variants := Normalize(query, reply.Queries, e.maxVariants)
	e.logger.Debug("query expanded", zap.Int("variants", len(variants)))
	return variants, nil
}
