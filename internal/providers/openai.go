package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

const openAIDefaultBaseURL = "https://api.openai.com"

// OpenAIClient implements Client for the OpenAI chat completions API.
type OpenAIClient struct {
	client  *http.Client
	baseURL string
}

// NewOpenAIClient creates an OpenAI client. baseURL overrides the production
// endpoint when non-empty (used by tests).
func NewOpenAIClient(client *http.Client, baseURL string) *OpenAIClient {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	return &OpenAIClient{client: client, baseURL: baseURL}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Messages    []openAIMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request to OpenAI. The system prompt is
// injected as a leading system-role message.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest, apiKey string) (*ChatResponse, error) {
	payload := openAIRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.SystemPrompt != "" {
		payload.Messages = append(payload.Messages, openAIMessage{Role: RoleSystem, Content: req.SystemPrompt})
	}
	for _, msg := range req.Messages {
		payload.Messages = append(payload.Messages, openAIMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, transportError(ProviderOpenAI)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, transportError(ProviderOpenAI)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ProviderOpenAI)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusError(ProviderOpenAI, resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ProviderOpenAI)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Choices) == 0 {
		return nil, malformedError(ProviderOpenAI)
	}

	choice := parsed.Choices[0]
	finishReason := "unknown"
	if choice.FinishReason != nil {
		finishReason = *choice.FinishReason
	}

	return &ChatResponse{
		Text:             choice.Message.Content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		FinishReason:     finishReason,
	}, nil
}
