package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/corpus"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/llm"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// Analyzer classifies a user query
type Analyzer interface {
	Analyze(ctx context.Context, query string) (types.QueryAnalysis, error)
}

// DefaultCategories maps each category to the query terms that signal it
var DefaultCategories = map[string][]string{
	"pricing":      {"price", "pricing", "cost", "costs", "plan", "plans", "billing", "invoice", "discount", "subscription", "seat", "seats", "trial", "quote"},
	"security":     {"security", "secure", "sso", "saml", "encryption", "encrypted", "compliance", "soc", "gdpr", "hipaa", "audit", "mfa", "password", "permissions", "privacy"},
	"integrations": {"integration", "integrations", "integrate", "api", "webhook", "webhooks", "connector", "slack", "salesforce", "hubspot", "okta", "zapier", "sdk"},
	"product":      {"feature", "features", "dashboard", "workflow", "workflows", "report", "reports", "analytics", "roadmap", "release"},
	"support":      {"support", "help", "ticket", "contact", "sla", "outage", "onboarding", "training"},
	"company":      {"company", "team", "founder", "founders", "mission", "career", "careers", "hiring", "customers", "investors"},
}

var technicalTerms = map[string]bool{
	"api": true, "sdk": true, "webhook": true, "webhooks": true, "oauth": true, "saml": true,
	"json": true, "endpoint": true, "endpoints": true, "latency": true, "schema": true,
	"token": true, "tokens": true, "encryption": true, "kubernetes": true, "terraform": true,
	"cli": true, "payload": true, "scim": true, "ldap": true, "tls": true, "rest": true,
	"graphql": true, "sql": true, "idempotency": true, "throughput": true, "regex": true,
}

var queryTypePatterns = []struct {
	queryType string
	patterns  []string
}{
	{types.QueryTypeComparison, []string{"compare", "comparison", "versus", " vs ", " vs.", "difference between", "better than", "which is better"}},
	{types.QueryTypeTroubleshoot, []string{"error", "not working", "doesn't work", "fails", "failing", "failed", "issue", "problem", "broken", "troubleshoot", "fix "}},
	{types.QueryTypeHowTo, []string{"how do i", "how to", "how can i", "steps to", "set up", "setup", "configure", "install", "enable"}},
	{types.QueryTypeFactual, []string{"what is", "what's", "what are", "who ", "when ", "where ", "which ", "does ", "is there", "how much", "how many", "do you"}},
}

// RuleAnalyzer classifies queries with keyword heuristics and no I/O
type RuleAnalyzer struct {
	categories map[string]map[string]bool
}

// NewRuleAnalyzer creates a rule analyzer. A nil map uses DefaultCategories.
func NewRuleAnalyzer(categories map[string][]string) *RuleAnalyzer {
	if categories == nil {
		categories = DefaultCategories
	}
	index := make(map[string]map[string]bool, len(categories))
	for category, terms := range categories {
		set := make(map[string]bool, len(terms))
		for _, t := range terms {
			set[strings.ToLower(t)] = true
		}
		index[strings.ToLower(category)] = set
	}
	return &RuleAnalyzer{categories: index}
}

// Analyze classifies query
func (a *RuleAnalyzer) Analyze(ctx context.Context, query string) (types.QueryAnalysis, error) {
	if strings.TrimSpace(query) == "" {
		return types.QueryAnalysis{}, fmt.Errorf("%w: query cannot be empty", types.ErrInvalidQuery)
	}

	terms := corpus.Tokenize(query)
	queryType := classifyType(query)

	return types.QueryAnalysis{
		PrimaryCategory: a.classifyCategory(terms),
		QueryType:       queryType,
		TechnicalLevel:  technicalLevel(terms, queryType),
	}, nil
}

// classifyCategory picks the category with the most matching terms,
// ties broken alphabetically
func (a *RuleAnalyzer) classifyCategory(terms []string) string {
	best, bestHits := types.CategoryUnclassified, 0

	names := make([]string, 0, len(a.categories))
	for name := range a.categories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		set := a.categories[name]
		hits := 0
		for _, t := range terms {
			if set[t] || set[strings.TrimSuffix(t, "s")] {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = name, hits
		}
	}
	return best
}

func classifyType(query string) string {
	q := " " + strings.ToLower(strings.TrimSpace(query)) + " "
	for _, group := range queryTypePatterns {
		for _, p := range group.patterns {
			if strings.Contains(q, p) {
				return group.queryType
			}
		}
	}
	return types.QueryTypeExploratory
}

func technicalLevel(terms []string, queryType string) int {
	n := 0
	for _, t := range terms {
		if technicalTerms[t] {
			n++
		}
	}
	switch {
	case n >= 3:
		return types.MaxTechnicalLevel
	case n > 0:
		return 2 + n
	case queryType == types.QueryTypeHowTo || queryType == types.QueryTypeTroubleshoot:
		return types.DefaultTechnicalLevel
	default:
		return types.MinTechnicalLevel
	}
}

const analysisSystemPrompt = `You classify questions asked to a company knowledge assistant.
Reply with one JSON object with exactly these fields:
"primaryCategory" (string, one of: %s, or "general"),
"queryType" (string, one of: factual, comparison, how_to, troubleshooting, exploratory),
"technicalLevel" (integer 1-5, 1 = non-technical, 5 = expert).`

// LLMAnalyzer classifies queries with one JSON completion
type LLMAnalyzer struct {
	client     llm.Client
	model      string
	categories []string
	logger     *zap.Logger
}

// NewLLMAnalyzer creates an LLM-backed analyzer. categories lists the
// labels the model may choose from; nil uses the DefaultCategories keys.
func NewLLMAnalyzer(client llm.Client, model string, categories []string, logger *zap.Logger) *LLMAnalyzer {
	if categories == nil {
		for name := range DefaultCategories {
			categories = append(categories, name)
		}
	} else {
		categories = append([]string(nil), categories...)
	}
	sort.Strings(categories)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMAnalyzer{client: client, model: model, categories: categories, logger: logger}
}

// Analyze asks the model to classify query
func (a *LLMAnalyzer) Analyze(ctx context.Context, query string) (types.QueryAnalysis, error) {
	if strings.TrimSpace(query) == "" {
		return types.QueryAnalysis{}, fmt.Errorf("%w: query cannot be empty", types.ErrInvalidQuery)
	}

	resp, err := a.client.Complete(ctx, llm.Request{
		Model:  a.model,
		System: fmt.Sprintf(analysisSystemPrompt, strings.Join(a.categories, ", ")),
		Prompt: query,
		JSON:   true,
	})
	if err != nil {
		return types.QueryAnalysis{}, fmt.Errorf("query analysis failed: %w", err)
	}

	var analysis types.QueryAnalysis
	if err := llm.DecodeJSON(resp.Content, &analysis); err != nil {
		return types.QueryAnalysis{}, err
	}
	if err := normalizeAnalysis(&analysis); err != nil {
		return types.QueryAnalysis{}, err
	}

	a.logger.Debug("query analyzed",
		zap.String("category", analysis.PrimaryCategory),
		zap.String("query_type", analysis.QueryType),
		zap.Int("technical_level", analysis.TechnicalLevel))
	return analysis, nil
}

var knownQueryTypes = map[string]bool{
	types.QueryTypeFactual:      true,
	types.QueryTypeComparison:   true,
	types.QueryTypeHowTo:        true,
	types.QueryTypeTroubleshoot: true,
	types.QueryTypeExploratory:  true,
}

// normalizeAnalysis lowercases labels and rejects values outside the schema
func normalizeAnalysis(a *types.QueryAnalysis) error {
	a.PrimaryCategory = strings.ToLower(strings.TrimSpace(a.PrimaryCategory))
	a.QueryType = strings.ToLower(strings.TrimSpace(a.QueryType))

	if a.PrimaryCategory == "" {
		return fmt.Errorf("%w: primaryCategory is empty", types.ErrMalformedResponse)
	}
	if !knownQueryTypes[a.QueryType] {
		return fmt.Errorf("%w: unknown queryType %q", types.ErrMalformedResponse, a.QueryType)
	}
	if a.TechnicalLevel < types.MinTechnicalLevel || a.TechnicalLevel > types.MaxTechnicalLevel {
		return fmt.Errorf("%w: technicalLevel %d out of range", types.ErrMalformedResponse, a.TechnicalLevel)
	}
	return nil
}
