// Package llm wraps the chat-completion model used for analysis, expansion,
// reranking and metadata extraction.
//
// Errors returned by a Client are classified against the types sentinels:
// types.ErrRateLimited for throttling, types.ErrCollaboratorUnavailable for
// outages, timeouts and transport failures, and types.ErrMalformedResponse
// when the reply cannot be used.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// ErrNotConfigured is returned when a client is requested without credentials
var ErrNotConfigured = errors.New("llm client not configured")

// Request is a single-turn completion request
type Request struct {
	Model       string // Optional: override the client default
	System      string
	Prompt      string
	JSON        bool // Ask for a JSON object reply
	Temperature float32
	MaxTokens   int
}

// Response is the model reply
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client completes prompts
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc adapts a function to the Client interface
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// DecodeJSON unmarshals a model reply into v. Markdown code fences and text
// around the outermost JSON value are tolerated.
func DecodeJSON(content string, v interface{}) error {
	body := extractJSON(content)
	if body == "" {
		return fmt.Errorf("%w: no JSON in reply", types.ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}
	return nil
}

func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}
