package reprise

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// mockServer creates an httptest server that mimics the Reprise API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	if err == nil {
		t.Fatal("expected error for empty BaseURL")
	}
}

func TestNewClientTrimsTrailingSlash(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://localhost:8080/"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trimmed base URL, got %q", c.baseURL)
	}
}

func TestCreatePrompt(t *testing.T) {
	promptID := uuid.New()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/prompts": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["name"] != "summarizer" {
				t.Errorf("expected name 'summarizer', got %v", body["name"])
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": Prompt{
					ID:        promptID,
					Name:      "summarizer",
					Text:      "Summarize the input.",
					LatestSeq: 1,
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	p, err := client.CreatePrompt(context.Background(), CreatePromptRequest{
		Name: "summarizer",
		Text: "Summarize the input.",
	})
	if err != nil {
		t.Fatalf("CreatePrompt failed: %v", err)
	}
	if p.ID != promptID {
		t.Errorf("expected prompt ID %s, got %s", promptID, p.ID)
	}
	if p.LatestSeq != 1 {
		t.Errorf("expected latest_seq 1, got %d", p.LatestSeq)
	}
}

func TestGetTextAtSequence(t *testing.T) {
	promptID := uuid.New()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/prompts/{prompt_id}/text": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("at") != "2" {
				t.Errorf("expected at=2, got %q", r.URL.Query().Get("at"))
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": TextProjection{PromptID: promptID, Text: "v2", AsOfSeq: 2},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	proj, err := client.GetText(context.Background(), promptID, 2)
	if err != nil {
		t.Fatalf("GetText failed: %v", err)
	}
	if proj.Text != "v2" {
		t.Errorf("expected text 'v2', got %q", proj.Text)
	}
	if proj.AsOfSeq != 2 {
		t.Errorf("expected as_of_seq 2, got %d", proj.AsOfSeq)
	}
}

func TestAppendTextSendsKindAndNote(t *testing.T) {
	promptID := uuid.New()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/prompts/{prompt_id}/events": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["kind"] != string(EventSetFullText) {
				t.Errorf("expected kind SET_FULL_TEXT, got %v", body["kind"])
			}
			if body["note"] != "tighten wording" {
				t.Errorf("expected note, got %v", body["note"])
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": Event{
					PromptID:    promptID,
					Seq:         2,
					Kind:        EventSetFullText,
					Text:        "v2",
					Note:        "tighten wording",
					ContentHash: "abc123",
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	e, err := client.AppendText(context.Background(), promptID, "v2", "tighten wording")
	if err != nil {
		t.Fatalf("AppendText failed: %v", err)
	}
	if e.Seq != 2 {
		t.Errorf("expected seq 2, got %d", e.Seq)
	}
	if e.ContentHash == "" {
		t.Error("expected content hash to be set")
	}
}

func TestRollback(t *testing.T) {
	promptID := uuid.New()
	target := int64(1)

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/prompts/{prompt_id}/rollback": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["target_event_seq"] != float64(1) {
				t.Errorf("expected target_event_seq 1, got %v", body["target_event_seq"])
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": Event{
					PromptID:  promptID,
					Seq:       3,
					Kind:      EventRollback,
					Text:      "v1",
					TargetSeq: &target,
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	e, err := client.Rollback(context.Background(), promptID, 1, "")
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if e.Kind != EventRollback {
		t.Errorf("expected ROLLBACK event, got %s", e.Kind)
	}
	if e.TargetSeq == nil || *e.TargetSeq != 1 {
		t.Errorf("expected target_seq 1, got %v", e.TargetSeq)
	}
}

func TestVerifyIntegrityBrokenChain(t *testing.T) {
	promptID := uuid.New()
	broken := int64(3)

	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/prompts/{prompt_id}/integrity": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": IntegrityReport{
					PromptID:  promptID,
					Events:    4,
					ChainOK:   false,
					BrokenSeq: &broken,
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	report, err := client.VerifyIntegrity(context.Background(), promptID)
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if report.ChainOK {
		t.Error("expected chain_ok false")
	}
	if report.BrokenSeq == nil || *report.BrokenSeq != 3 {
		t.Errorf("expected broken_seq 3, got %v", report.BrokenSeq)
	}
}

func TestSaveCriteriaUsesPut(t *testing.T) {
	promptID := uuid.New()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"PUT /v1/prompts/{prompt_id}/criteria": func(w http.ResponseWriter, r *http.Request) {
			var body map[string][]CriterionItem
			_ = json.NewDecoder(r.Body).Decode(&body)
			if len(body["items"]) != 1 || body["items"][0].Key != "concise" {
				t.Errorf("unexpected items: %+v", body["items"])
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": CriteriaSnapshot{
					ID:       uuid.New(),
					PromptID: promptID,
					Version:  1,
					Items:    body["items"],
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	snap, err := client.SaveCriteria(context.Background(), promptID, []CriterionItem{
		{Key: "concise", Desc: "Output is concise", Type: CriterionBoolean, Weight: 1},
	})
	if err != nil {
		t.Fatalf("SaveCriteria failed: %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("expected version 1, got %d", snap.Version)
	}
}

func TestCreateRunCarriesProvenance(t *testing.T) {
	promptID := uuid.New()
	runID := uuid.New()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/runs": func(w http.ResponseWriter, r *http.Request) {
			var body CreateRunRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.PromptID != promptID {
				t.Errorf("expected prompt ID %s, got %s", promptID, body.PromptID)
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": Run{
					ID:              runID,
					PromptID:        promptID,
					PromptEventSeq:  2,
					CriteriaVersion: 1,
					InputText:       "hello",
					OutputText:      "result",
					Status:          RunCompleted,
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	run, err := client.CreateRun(context.Background(), CreateRunRequest{
		PromptID:  promptID,
		InputText: "hello",
	})
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.PromptEventSeq != 2 {
		t.Errorf("expected prompt_event_seq 2, got %d", run.PromptEventSeq)
	}
	if run.CriteriaVersion != 1 {
		t.Errorf("expected criteria_version 1, got %d", run.CriteriaVersion)
	}
	if run.Status != RunCompleted {
		t.Errorf("expected completed status, got %s", run.Status)
	}
}

func TestEvaluateRun(t *testing.T) {
	runID := uuid.New()
	passed := true

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/runs/{run_id}/evaluations": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": Evaluation{
					ID:              uuid.New(),
					RunID:           runID,
					CriteriaVersion: 1,
					Aggregate:       1.0,
					Status:          "completed",
					PerCriterion: []CriterionResult{
						{Key: "concise", Type: CriterionBoolean, Passed: &passed, Weight: 1},
					},
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	e, err := client.EvaluateRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("EvaluateRun failed: %v", err)
	}
	if e.Aggregate != 1.0 {
		t.Errorf("expected aggregate 1.0, got %f", e.Aggregate)
	}
	if len(e.PerCriterion) != 1 || e.PerCriterion[0].Passed == nil || !*e.PerCriterion[0].Passed {
		t.Errorf("unexpected per_criterion: %+v", e.PerCriterion)
	}
}

func TestErrorParsing(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/prompts/{prompt_id}": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"code": "NOT_FOUND", "message": "prompt not found"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetPrompt(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound, got %v", err)
	}
	var apiErr *Error
	if !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected code in error string, got %q", err.Error())
	}
	if !asError(err, &apiErr) || apiErr.Message != "prompt not found" {
		t.Errorf("expected server message, got %+v", apiErr)
	}
}

func TestErrorParsingNonEnvelopeBody(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream exploded"))
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Health(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsBackendFailure(err) {
		t.Errorf("expected IsBackendFailure, got %v", err)
	}
	var apiErr *Error
	if !asError(err, &apiErr) || apiErr.Message != "upstream exploded" {
		t.Errorf("expected raw body as message, got %+v", apiErr)
	}
}

func TestRateLimited(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/runs": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": map[string]any{"code": "RATE_LIMITED", "message": "run rate limit exceeded"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.CreateRun(context.Background(), CreateRunRequest{PromptID: uuid.New(), InputText: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRateLimited(err) {
		t.Errorf("expected IsRateLimited, got %v", err)
	}
}

func TestUnwrappedResponseFallback(t *testing.T) {
	// Responses without the data envelope decode directly.
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, Health{Status: "healthy", Generator: "static"})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	h, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if h.Status != "healthy" {
		t.Errorf("expected healthy, got %q", h.Status)
	}
}

// asError wraps errors.As so tests read like assertions.
func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
