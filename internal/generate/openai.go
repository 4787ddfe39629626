package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIGenerator generates output through an OpenAI-compatible chat
// completions API. Any endpoint speaking that protocol works (OpenAI,
// vLLM, LM Studio, gateway proxies).
type OpenAIGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIGenerator creates a generator against an OpenAI-compatible API.
// baseURL defaults to the OpenAI endpoint when empty.
func NewOpenAIGenerator(baseURL, apiKey, model string) *OpenAIGenerator {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIGenerator{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Name identifies the backend.
func (g *OpenAIGenerator) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate calls the chat completions endpoint with bounded retries.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	return withRetry(ctx, func() (Result, error) {
		return g.generateOnce(ctx, req)
	})
}

func (g *OpenAIGenerator) generateOnce(ctx context.Context, req Request) (Result, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}
	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPreamble},
			{Role: "user", Content: composeUser(req.PromptText, req.InputText)},
		},
	}
	if t, ok := floatParam(req.Params, "temperature"); ok {
		body.Temperature = &t
	}
	if n, ok := intParam(req.Params, "max_tokens"); ok {
		body.MaxTokens = &n
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("generate: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return Result{}, fmt.Errorf("generate: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("generate: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("generate: read response: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Result{}, fmt.Errorf("generate: unmarshal response: %w", err)
	}
	if result.Error != nil {
		return Result{}, fmt.Errorf("generate: api error: %s: %s", result.Error.Type, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("generate: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if len(result.Choices) == 0 {
		return Result{}, fmt.Errorf("generate: empty choices in response")
	}

	outModel := result.Model
	if outModel == "" {
		outModel = model
	}
	return Result{OutputText: result.Choices[0].Message.Content, Model: outModel}, nil
}

func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
