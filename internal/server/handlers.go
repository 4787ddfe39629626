package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/reprise-ai/reprise/internal/generate"
	"github.com/reprise-ai/reprise/internal/model"
	"github.com/reprise-ai/reprise/internal/service/eval"
	"github.com/reprise-ai/reprise/internal/service/prompts"
	"github.com/reprise-ai/reprise/internal/service/runs"
	"github.com/reprise-ai/reprise/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	promptSvc           *prompts.Service
	runSvc              *runs.Service
	evalSvc             *eval.Service
	gen                 generate.Generator
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// DB may be nil in tests that exercise handlers through service fakes.
type HandlersDeps struct {
	DB                  *storage.DB
	PromptSvc           *prompts.Service
	RunSvc              *runs.Service
	EvalSvc             *eval.Service
	Generator           generate.Generator
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		promptSvc:           d.PromptSvc,
		runSvc:              d.RunSvc,
		evalSvc:             d.EvalSvc,
		gen:                 d.Generator,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			pgStatus = "disconnected"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	resp := model.HealthResponse{
		Status:    status,
		Version:   h.version,
		Postgres:  pgStatus,
		Generator: h.gen.Name(),
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	}
	writeJSON(w, r, httpStatus, resp)
}
