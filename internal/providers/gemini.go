package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiClient implements Client for the Google Gemini generateContent API.
type GeminiClient struct {
	client  *http.Client
	baseURL string
}

// NewGeminiClient creates a Gemini client. baseURL overrides the production
// endpoint when non-empty (used by tests).
func NewGeminiClient(client *http.Client, baseURL string) *GeminiClient {
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	return &GeminiClient{client: client, baseURL: baseURL}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Chat sends a generateContent request to Gemini. The model is part of the
// URL path, the system prompt goes in systemInstruction, and the assistant
// role is renamed to Gemini's "model" role.
func (c *GeminiClient) Chat(ctx context.Context, req ChatRequest, apiKey string) (*ChatResponse, error) {
	payload := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}
	if req.SystemPrompt != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			continue
		}
		role := msg.Role
		if role == RoleAssistant {
			role = "model"
		}
		payload.Contents = append(payload.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, transportError(ProviderGemini)
	}

	endpoint := c.baseURL + "/v1beta/models/" + url.PathEscape(req.Model) + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, transportError(ProviderGemini)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ProviderGemini)
	}
	defer resp.Body.Close()

	// Gemini reports a bad model name or malformed key as 400.
	if resp.StatusCode == 400 {
		return nil, &Error{
			Provider:   ProviderGemini,
			Kind:       KindUpstream,
			StatusCode: resp.StatusCode,
			Message:    "Google Gemini rejected the request. Check your model name and API key.",
		}
	}
	if resp.StatusCode >= 400 {
		return nil, statusError(ProviderGemini, resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ProviderGemini)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Candidates) == 0 {
		return nil, malformedError(ProviderGemini)
	}

	candidate := parsed.Candidates[0]
	var text bytes.Buffer
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}

	finishReason := candidate.FinishReason
	if finishReason == "" {
		finishReason = "UNKNOWN"
	}

	return &ChatResponse{
		Text:             text.String(),
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
		FinishReason:     finishReason,
	}, nil
}
