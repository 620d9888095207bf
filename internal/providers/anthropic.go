package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicClient implements Client for the Anthropic messages API.
type AnthropicClient struct {
	client  *http.Client
	baseURL string
}

// NewAnthropicClient creates an Anthropic client. baseURL overrides the
// production endpoint when non-empty (used by tests).
func NewAnthropicClient(client *http.Client, baseURL string) *AnthropicClient {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &AnthropicClient{client: client, baseURL: baseURL}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason *string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends a messages request to Anthropic. The system prompt goes in the
// top-level system field; system-role messages are excluded from the message
// list to avoid double submission.
func (c *AnthropicClient) Chat(ctx context.Context, req ChatRequest, apiKey string) (*ChatResponse, error) {
	payload := anthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		System:    req.SystemPrompt,
	}
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			continue
		}
		payload.Messages = append(payload.Messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, transportError(ProviderAnthropic)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, transportError(ProviderAnthropic)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ProviderAnthropic)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusError(ProviderAnthropic, resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ProviderAnthropic)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Content) == 0 {
		return nil, malformedError(ProviderAnthropic)
	}

	// Anthropic returns the answer as a sequence of content blocks.
	var text bytes.Buffer
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	stopReason := "unknown"
	if parsed.StopReason != nil {
		stopReason = *parsed.StopReason
	}

	return &ChatResponse{
		Text:             text.String(),
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		FinishReason:     stopReason,
	}, nil
}
