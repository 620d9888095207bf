package providers

import (
	"context"
	"fmt"
	"strings"
)

// Provider identifies one of the supported AI backends.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// All returns every supported provider, in default order. The first entry is
// the default active provider for new identities.
func All() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini}
}

// Default is the active provider for identities that never picked one.
func Default() Provider {
	return ProviderOpenAI
}

// Parse resolves a provider id (case-insensitive) to a Provider.
func Parse(id string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case string(ProviderOpenAI):
		return ProviderOpenAI, nil
	case string(ProviderAnthropic):
		return ProviderAnthropic, nil
	case string(ProviderGemini):
		return ProviderGemini, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, id)
}

// ID returns the stable identifier string.
func (p Provider) ID() string {
	return string(p)
}

// DisplayName returns the human-readable provider name.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderAnthropic:
		return "Anthropic"
	case ProviderGemini:
		return "Google Gemini"
	}
	return string(p)
}

// DefaultModel returns the model used when the identity has no override.
func (p Provider) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-haiku-4-5"
	case ProviderGemini:
		return "gemini-2.0-flash"
	}
	return ""
}

// SuggestedModels returns models worth offering in completion UIs.
func (p Provider) SuggestedModels() []string {
	switch p {
	case ProviderOpenAI:
		return []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "o1-mini"}
	case ProviderAnthropic:
		return []string{"claude-sonnet-4-5", "claude-haiku-4-5"}
	case ProviderGemini:
		return []string{"gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash"}
	}
	return nil
}

// Message roles used in ChatRequest. Adapters translate these into each
// backend's own role vocabulary.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one (role, content) pair in a normalized request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is the provider-agnostic request shape all clients accept.
type ChatRequest struct {
	Model        string
	Messages     []ChatMessage
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// ChatResponse is the provider-agnostic response shape. Token counters are
// zero when the backend omits usage data.
type ChatResponse struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	FinishReason     string
}

// Client is implemented by each concrete provider backend. Chat issues one
// single-shot completion request; the API key is supplied per call and never
// retained by the client.
type Client interface {
	Chat(ctx context.Context, req ChatRequest, apiKey string) (*ChatResponse, error)
}
