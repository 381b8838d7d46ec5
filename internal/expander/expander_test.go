package expander

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/llm"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		variants []string
		limit    int
		want     []string
	}{
		{
			name:     "original first",
			query:    "SSO setup",
			variants: []string{"configure single sign-on"},
			limit:    4,
			want:     []string{"SSO setup", "configure single sign-on"},
		},
		{
			name:     "case-insensitive dedup",
			query:    "SSO Setup",
			variants: []string{"sso setup", "SSO  SETUP", "okta sso"},
			limit:    4,
			want:     []string{"SSO Setup", "okta sso"},
		},
		{
			name:     "empty variants dropped",
			query:    "pricing",
			variants: []string{"", "   ", "plan cost"},
			limit:    4,
			want:     []string{"pricing", "plan cost"},
		},
		{
			name:     "capped",
			query:    "q",
			variants: []string{"a", "b", "c", "d", "e"},
			limit:    3,
			want:     []string{"q", "a", "b"},
		},
		{
			name:     "default cap",
			query:    "q",
			variants: []string{"a", "b", "c", "d", "e"},
			limit:    0,
			want:     []string{"q", "a", "b", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.query, tt.variants, tt.limit))
		})
	}
}

func TestRuleExpander(t *testing.T) {
	e := NewRuleExpander(DefaultMaxVariants, nil)

	t.Run("keyword, category and synonym variants", func(t *testing.T) {
		analysis := types.QueryAnalysis{PrimaryCategory: "security", QueryType: types.QueryTypeHowTo, TechnicalLevel: 2}
		got, err := e.Expand(context.Background(), "How do I enable SSO for my team?", analysis)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"How do I enable SSO for my team?",
			"enable sso team",
			"enable sso team security",
			"enable single sign-on team",
		}, got)
	})

	t.Run("unclassified adds no category variant", func(t *testing.T) {
		got, err := e.Expand(context.Background(), "quarterly roadmap review", types.UnclassifiedAnalysis())
		require.NoError(t, err)
		assert.Equal(t, []string{"quarterly roadmap review"}, got, "keyword form equals the query")
	})

	t.Run("category already present", func(t *testing.T) {
		analysis := types.QueryAnalysis{PrimaryCategory: "pricing"}
		got, err := e.Expand(context.Background(), "pricing tiers", analysis)
		require.NoError(t, err)
		assert.Equal(t, []string{"pricing tiers", "cost tiers"}, got)
	})

	t.Run("respects max variants", func(t *testing.T) {
		small := NewRuleExpander(2, nil)
		analysis := types.QueryAnalysis{PrimaryCategory: "security"}
		got, err := small.Expand(context.Background(), "How do I enable SSO?", analysis)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, "How do I enable SSO?", got[0])
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := e.Expand(context.Background(), " ", types.UnclassifiedAnalysis())
		assert.ErrorIs(t, err, types.ErrInvalidQuery)
	})
}

func TestLLMExpander(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		replyErr error
		want     []string
		wantErr  error
	}{
		{
			name:  "variants after original",
			reply: `{"queries": ["single sign-on configuration", "okta saml setup"]}`,
			want:  []string{"enable sso", "single sign-on configuration", "okta saml setup"},
		},
		{
			name:  "model repeats the question",
			reply: `{"queries": ["Enable SSO", "okta saml setup"]}`,
			want:  []string{"enable sso", "okta saml setup"},
		},
		{
			name:  "too many variants",
			reply: `{"queries": ["a", "b", "c", "d", "e"]}`,
			want:  []string{"enable sso", "a", "b", "c"},
		},
		{
			name:    "scalar queries",
			reply:   `{"queries": "just one"}`,
			wantErr: types.ErrMalformedResponse,
		},
		{
			name:     "collaborator down",
			replyErr: types.ErrCollaboratorUnavailable,
			wantErr:  types.ErrCollaboratorUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got llm.Request
			client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
				got = req
				if tt.replyErr != nil {
					return nil, tt.replyErr
				}
				return &llm.Response{Content: tt.reply}, nil
			})

			e := NewLLMExpander(client, "test-model", 4, nil)
			variants, err := e.Expand(context.Background(), "enable sso", types.QueryAnalysis{PrimaryCategory: "security"})

			assert.Contains(t, got.Prompt, "Topic: security")
			assert.Contains(t, got.System, "up to 3")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, variants)
		})
	}
}

func TestLLMExpander_SingleVariantSkipsModel(t *testing.T) {
	calls := 0
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		calls++
		return &llm.Response{}, nil
	})
	got, err := NewLLMExpander(client, "", 1, nil).Expand(context.Background(), "enable sso", types.UnclassifiedAnalysis())
	require.NoError(t, err)
	assert.Equal(t, []string{"enable sso"}, got)
	assert.Zero(t, calls)
}
