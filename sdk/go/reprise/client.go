package reprise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Reprise server (e.g. "http://localhost:8080").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Reprise prompt versioning API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reprise: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// ---------------------------------------------------------------------------
// Prompts
// ---------------------------------------------------------------------------

// CreatePrompt creates a prompt. The initial text (possibly empty) becomes
// the bootstrap event at sequence 1.
func (c *Client) CreatePrompt(ctx context.Context, req CreatePromptRequest) (*Prompt, error) {
	var resp Prompt
	if err := c.post(ctx, "/v1/prompts", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPrompts returns the most recently created prompts.
func (c *Client) ListPrompts(ctx context.Context, limit int) ([]Prompt, error) {
	path := "/v1/prompts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp []Prompt
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetPrompt retrieves a prompt with its current text and head sequence.
func (c *Client) GetPrompt(ctx context.Context, promptID uuid.UUID) (*Prompt, error) {
	var resp Prompt
	if err := c.get(ctx, "/v1/prompts/"+promptID.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetText retrieves the prompt text as of event sequence `at`.
// Pass 0 for the current text.
func (c *Client) GetText(ctx context.Context, promptID uuid.UUID, at int64) (*TextProjection, error) {
	path := "/v1/prompts/" + promptID.String() + "/text"
	if at > 0 {
		path += "?at=" + strconv.FormatInt(at, 10)
	}
	var resp TextProjection
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListEvents returns a prompt's full event history in sequence order.
func (c *Client) ListEvents(ctx context.Context, promptID uuid.UUID) ([]Event, error) {
	var resp []Event
	if err := c.get(ctx, "/v1/prompts/"+promptID.String()+"/events", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetEvent retrieves a single event by sequence number.
func (c *Client) GetEvent(ctx context.Context, promptID uuid.UUID, seq int64) (*Event, error) {
	var resp Event
	path := "/v1/prompts/" + promptID.String() + "/events/" + strconv.FormatInt(seq, 10)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AppendText appends a new full-text revision to the prompt's history and
// returns the created event.
func (c *Client) AppendText(ctx context.Context, promptID uuid.UUID, text, note string) (*Event, error) {
	body := map[string]any{"kind": EventSetFullText, "text": text}
	if note != "" {
		body["note"] = note
	}
	var resp Event
	if err := c.post(ctx, "/v1/prompts/"+promptID.String()+"/events", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rollback restores the prompt text that was current at targetSeq by
// appending a rollback event. History is never rewritten.
func (c *Client) Rollback(ctx context.Context, promptID uuid.UUID, targetSeq int64, note string) (*Event, error) {
	body := map[string]any{"target_event_seq": targetSeq}
	if note != "" {
		body["note"] = note
	}
	var resp Event
	if err := c.post(ctx, "/v1/prompts/"+promptID.String()+"/rollback", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyIntegrity recomputes the prompt's event hash chain and reports
// whether it is intact.
func (c *Client) VerifyIntegrity(ctx context.Context, promptID uuid.UUID) (*IntegrityReport, error) {
	var resp IntegrityReport
	if err := c.get(ctx, "/v1/prompts/"+promptID.String()+"/integrity", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Criteria
// ---------------------------------------------------------------------------

// SaveCriteria stores a new immutable criteria version for the prompt and
// returns the created snapshot. Earlier versions remain readable.
func (c *Client) SaveCriteria(ctx context.Context, promptID uuid.UUID, items []CriterionItem) (*CriteriaSnapshot, error) {
	body := map[string]any{"items": items}
	var resp CriteriaSnapshot
	if err := c.put(ctx, "/v1/prompts/"+promptID.String()+"/criteria", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetCriteria retrieves the current (highest-version) criteria snapshot.
func (c *Client) GetCriteria(ctx context.Context, promptID uuid.UUID) (*CriteriaSnapshot, error) {
	var resp CriteriaSnapshot
	if err := c.get(ctx, "/v1/prompts/"+promptID.String()+"/criteria", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListCriteriaVersions returns all criteria snapshots in version order.
func (c *Client) ListCriteriaVersions(ctx context.Context, promptID uuid.UUID) ([]CriteriaSnapshot, error) {
	var resp []CriteriaSnapshot
	if err := c.get(ctx, "/v1/prompts/"+promptID.String()+"/criteria/versions", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetCriteriaVersion retrieves a specific criteria version.
func (c *Client) GetCriteriaVersion(ctx context.Context, promptID uuid.UUID, version int) (*CriteriaSnapshot, error) {
	var resp CriteriaSnapshot
	path := "/v1/prompts/" + promptID.String() + "/criteria/versions/" + strconv.Itoa(version)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Runs and evaluations
// ---------------------------------------------------------------------------

// CreateRun executes the prompt against input text. Generation is
// synchronous; the returned run carries the output and the provenance
// fields binding it to a prompt version and criteria version.
func (c *Client) CreateRun(ctx context.Context, req CreateRunRequest) (*Run, error) {
	var resp Run
	if err := c.post(ctx, "/v1/runs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRun retrieves a run by ID.
func (c *Client) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var resp Run
	if err := c.get(ctx, "/v1/runs/"+runID.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRuns returns a prompt's runs, newest first.
func (c *Client) ListRuns(ctx context.Context, promptID uuid.UUID, limit int) ([]Run, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/prompts/" + promptID.String() + "/runs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp []Run
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// EvaluateRun scores a completed run against the criteria version it was
// bound to when it started.
func (c *Client) EvaluateRun(ctx context.Context, runID uuid.UUID) (*Evaluation, error) {
	var resp Evaluation
	if err := c.post(ctx, "/v1/runs/"+runID.String()+"/evaluations", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListEvaluations returns all evaluations recorded for a run.
func (c *Client) ListEvaluations(ctx context.Context, runID uuid.UUID) ([]Evaluation, error) {
	var resp []Evaluation
	if err := c.get(ctx, "/v1/runs/"+runID.String()+"/evaluations", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ReviewRun asks the server's model backend for guidance on improving the
// prompt, grounded in the run's output and its latest evaluation.
func (c *Client) ReviewRun(ctx context.Context, runID uuid.UUID) (*Review, error) {
	var resp Review
	if err := c.post(ctx, "/v1/runs/"+runID.String()+"/review", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server's health status.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	return c.send(ctx, http.MethodPost, path, body, dest)
}

func (c *Client) put(ctx context.Context, path string, body any, dest any) error {
	return c.send(ctx, http.MethodPut, path, body, dest)
}

func (c *Client) send(ctx context.Context, method, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("reprise: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("reprise: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("reprise: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("reprise: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reprise: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("reprise: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
