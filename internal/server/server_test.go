package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reprise-ai/reprise/internal/generate"
	"github.com/reprise-ai/reprise/internal/judge"
	"github.com/reprise-ai/reprise/internal/model"
	"github.com/reprise-ai/reprise/internal/server"
	"github.com/reprise-ai/reprise/internal/service/eval"
	"github.com/reprise-ai/reprise/internal/service/prompts"
	"github.com/reprise-ai/reprise/internal/service/runs"
	"github.com/reprise-ai/reprise/internal/testutil"
)

// echoGenerator is a deterministic backend for handler tests.
type echoGenerator struct {
	err error
}

func (g *echoGenerator) Generate(_ context.Context, req generate.Request) (generate.Result, error) {
	if g.err != nil {
		return generate.Result{}, g.err
	}
	return generate.Result{OutputText: "- echoed: " + req.InputText, Model: "echo"}, nil
}

func (g *echoGenerator) Name() string { return "echo" }

type testEnv struct {
	handler http.Handler
	store   *testutil.MemStore
}

func newTestEnv(t *testing.T, gen generate.Generator) *testEnv {
	t.Helper()
	logger := testutil.TestLogger()
	store := testutil.NewMemStore()
	if gen == nil {
		gen = &echoGenerator{}
	}

	handlers := server.NewHandlers(server.HandlersDeps{
		PromptSvc:           prompts.New(store, logger),
		RunSvc:              runs.New(store, gen, logger),
		EvalSvc:             eval.New(store, judge.NewRuleJudge(), logger),
		Generator:           gen,
		Logger:              logger,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	})
	srv := server.New(server.ServerConfig{Handlers: handlers, Logger: logger})
	return &testEnv{handler: srv.Handler(), store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// decodeData unmarshals the data field of the standard envelope.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	var env struct {
		Data json.RawMessage    `json:"data"`
		Meta model.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.NotEmpty(t, env.Meta.RequestID)
	require.NoError(t, json.Unmarshal(env.Data, target))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorDetail {
	t.Helper()
	var env model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func (e *testEnv) createPrompt(t *testing.T, name, text string) model.PromptResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/prompts", model.CreatePromptRequest{Name: name, Text: text})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp model.PromptResponse
	decodeData(t, rec, &resp)
	return resp
}

func TestCreateAndGetPrompt(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	created := env.createPrompt(t, "summarizer", "Summarize the input.")
	assert.Equal(t, "summarizer", created.Name)
	assert.Equal(t, int64(1), created.LatestSeq)

	rec := env.do(t, http.MethodGet, "/v1/prompts/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.PromptResponse
	decodeData(t, rec, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Summarize the input.", got.Text)
}

func TestCreatePromptValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/v1/prompts", model.CreatePromptRequest{Name: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/v1/prompts", map[string]any{"name": "x", "unknown": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPromptNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/v1/prompts/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.ErrCodeNotFound, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodGet, "/v1/prompts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAppendAndProjectText(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	p := env.createPrompt(t, "p", "v1")

	rec := env.do(t, http.MethodPost, "/v1/prompts/"+p.ID.String()+"/events",
		model.AppendEventRequest{Kind: model.KindSetFullText, Text: "v2", Note: "rework"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e model.Event
	decodeData(t, rec, &e)
	assert.Equal(t, int64(2), e.Seq)

	// Historical projection via ?at=.
	rec = env.do(t, http.MethodGet, "/v1/prompts/"+p.ID.String()+"/text?at=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var text struct {
		Text    string `json:"text"`
		AsOfSeq int64  `json:"as_of_seq"`
	}
	decodeData(t, rec, &text)
	assert.Equal(t, "v1", text.Text)
	assert.Equal(t, int64(1), text.AsOfSeq)

	rec = env.do(t, http.MethodGet, "/v1/prompts/"+p.ID.String()+"/text?at=9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppendRejectsRollbackKind(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	p := env.createPrompt(t, "p", "v1")

	rec := env.do(t, http.MethodPost, "/v1/prompts/"+p.ID.String()+"/events",
		model.AppendEventRequest{Kind: model.KindRollback, Text: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRollbackEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	p := env.createPrompt(t, "p", "v1")
	rec := env.do(t, http.MethodPost, "/v1/prompts/"+p.ID.String()+"/events",
		model.AppendEventRequest{Text: "v2"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/prompts/"+p.ID.String()+"/rollback",
		model.RollbackRequest{TargetEventSeq: 1, Note: "revert"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e model.Event
	decodeData(t, rec, &e)
	assert.Equal(t, model.KindRollback, e.Kind)
	assert.Equal(t, int64(3), e.Seq)

	rec = env.do(t, http.MethodGet, "/v1/prompts/"+p.ID.String()+"/text", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var text struct {
		Text string `json:"text"`
	}
	decodeData(t, rec, &text)
	assert.Equal(t, "v1", text.Text)

	// Rolling back to the head is rejected.
	rec = env.do(t, http.MethodPost, "/v1/prompts/"+p.ID.String()+"/rollback",
		model.RollbackRequest{TargetEventSeq: 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntegrityEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	p := env.createPrompt(t, "p", "v1")

	rec := env.do(t, http.MethodGet, "/v1/prompts/"+p.ID.String()+"/integrity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.IntegrityResponse
	decodeData(t, rec, &resp)
	assert.True(t, resp.ChainOK)
	assert.Equal(t, 1, resp.Events)
}

func TestCriteriaEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	p := env.createPrompt(t, "p", "v1")
	base := "/v1/prompts/" + p.ID.String() + "/criteria"

	rec := env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, base, model.SaveCriteriaRequest{Items: []model.CriterionItem{
		{Key: "format", Desc: "uses bullet points", Type: model.CriterionBoolean, Weight: 1},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var snap model.CriteriaSnapshot
	decodeData(t, rec, &snap)
	assert.Equal(t, 1, snap.Version)

	rec = env.do(t, http.MethodPut, base, model.SaveCriteriaRequest{Items: []model.CriterionItem{
		{Key: "format", Desc: "uses bullet points", Type: model.CriterionBoolean, Weight: 1},
		{Key: "quality", Desc: "overall quality", Type: model.CriterionScore, Weight: 2},
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	decodeData(t, rec, &snap)
	assert.Equal(t, 2, snap.Version)

	// Bad weight rejects the whole set.
	rec = env.do(t, http.MethodPut, base, model.SaveCriteriaRequest{Items: []model.CriterionItem{
		{Key: "bad", Desc: "zero", Type: model.CriterionScore, Weight: 0},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, base+"/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var versions []model.CriteriaSnapshot
	decodeData(t, rec, &versions)
	assert.Len(t, versions, 2)

	rec = env.do(t, http.MethodGet, base+"/versions/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &snap)
	assert.Equal(t, 1, snap.Version)
	assert.Len(t, snap.Items, 1)
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	p := env.createPrompt(t, "p", "Answer in bullets.")
	rec := env.do(t, http.MethodPut, "/v1/prompts/"+p.ID.String()+"/criteria",
		model.SaveCriteriaRequest{Items: []model.CriterionItem{
			{Key: "format", Desc: "uses bullet points", Type: model.CriterionBoolean, Weight: 1},
		}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/runs", model.CreateRunRequest{
		PromptID:  p.ID,
		InputText: "what is Go?",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var run model.Run
	decodeData(t, rec, &run)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, int64(1), run.PromptEventSeq)
	assert.Equal(t, 1, run.CriteriaVersion)

	rec = env.do(t, http.MethodGet, "/v1/runs/"+run.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/prompts/"+p.ID.String()+"/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Run
	decodeData(t, rec, &list)
	assert.Len(t, list, 1)

	// Evaluate against the bound criteria.
	rec = env.do(t, http.MethodPost, "/v1/runs/"+run.ID.String()+"/evaluations", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ev model.Evaluation
	decodeData(t, rec, &ev)
	assert.Equal(t, model.EvaluationStatusCompleted, ev.Status)
	assert.InDelta(t, 1.0, ev.Aggregate, 1e-9)

	rec = env.do(t, http.MethodGet, "/v1/runs/"+run.ID.String()+"/evaluations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var evals []model.Evaluation
	decodeData(t, rec, &evals)
	assert.Len(t, evals, 1)

	// Meta-review grounded in the evaluation.
	rec = env.do(t, http.MethodPost, "/v1/runs/"+run.ID.String()+"/review", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var review model.ReviewResponse
	decodeData(t, rec, &review)
	assert.Equal(t, run.ID, review.RunID)
	assert.NotEmpty(t, review.Guidance)
}

func TestRunValidationErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	p := env.createPrompt(t, "p", "v1")

	rec := env.do(t, http.MethodPost, "/v1/runs", model.CreateRunRequest{PromptID: p.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/runs", model.CreateRunRequest{
		PromptID: uuid.New(), InputText: "in",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunGenerationFailureMapsTo502(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &echoGenerator{err: errors.New("backend down")})
	p := env.createPrompt(t, "p", "v1")

	rec := env.do(t, http.MethodPost, "/v1/runs", model.CreateRunRequest{
		PromptID: p.ID, InputText: "in",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, model.ErrCodeGeneration, decodeError(t, rec).Code)
}

func TestEvaluateBeforeCriteriaMapsTo400(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	p := env.createPrompt(t, "p", "v1")

	rec := env.do(t, http.MethodPost, "/v1/runs", model.CreateRunRequest{
		PromptID: p.ID, InputText: "in",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var run model.Run
	decodeData(t, rec, &run)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/runs/%s/evaluations", run.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var h model.HealthResponse
	decodeData(t, rec, &h)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "echo", h.Generator)
}

func TestRequestIDPropagates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
