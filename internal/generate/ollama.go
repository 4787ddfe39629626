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

// OllamaGenerator generates output using a local Ollama server. This is the
// on-premises option: no external API costs, and prompt text never leaves
// the operator's network.
type OllamaGenerator struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaGenerator creates a generator that calls Ollama's chat API.
func NewOllamaGenerator(baseURL, model string) *OllamaGenerator {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaGenerator{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Name identifies the backend.
func (g *OllamaGenerator) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
}

// Generate calls the Ollama chat endpoint with bounded retries.
func (g *OllamaGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	return withRetry(ctx, func() (Result, error) {
		return g.generateOnce(ctx, req)
	})
}

func (g *OllamaGenerator) generateOnce(ctx context.Context, req Request) (Result, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}
	reqBody, err := json.Marshal(ollamaChatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPreamble},
			{Role: "user", Content: composeUser(req.PromptText, req.InputText)},
		},
		Stream:  false,
		Options: req.Params,
	})
	if err != nil {
		return Result{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return Result{}, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("ollama: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Result{}, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("ollama: decode response: %w", err)
	}
	if result.Message.Content == "" {
		return Result{}, fmt.Errorf("ollama: empty message returned")
	}

	outModel := result.Model
	if outModel == "" {
		outModel = model
	}
	return Result{OutputText: result.Message.Content, Model: outModel}, nil
}
