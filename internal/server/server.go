package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/reprise-ai/reprise/internal/ratelimit"
)

// Server is the Reprise HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// MCPServer is optional (nil = disabled).
type ServerConfig struct {
	Handlers  *Handlers
	Logger    *slog.Logger
	MCPServer *mcpserver.MCPServer

	// RunLimiter throttles run execution per client IP (nil = disabled).
	RunLimiter ratelimit.Limiter

	// HTTP server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := cfg.Handlers
	mux := http.NewServeMux()

	// Prompt lifecycle and event log.
	mux.HandleFunc("POST /v1/prompts", h.HandleCreatePrompt)
	mux.HandleFunc("GET /v1/prompts", h.HandleListPrompts)
	mux.HandleFunc("GET /v1/prompts/{prompt_id}", h.HandleGetPrompt)
	mux.HandleFunc("GET /v1/prompts/{prompt_id}/text", h.HandleGetText)
	mux.HandleFunc("GET /v1/prompts/{prompt_id}/events", h.HandleListEvents)
	mux.HandleFunc("POST /v1/prompts/{prompt_id}/events", h.HandleAppendEvent)
	mux.HandleFunc("GET /v1/prompts/{prompt_id}/events/{seq}", h.HandleGetEvent)
	mux.HandleFunc("POST /v1/prompts/{prompt_id}/rollback", h.HandleRollback)
	mux.HandleFunc("GET /v1/prompts/{prompt_id}/integrity", h.HandleIntegrity)

	// Criteria snapshots.
	mux.HandleFunc("PUT /v1/prompts/{prompt_id}/criteria", h.HandleSaveCriteria)
	mux.HandleFunc("GET /v1/prompts/{prompt_id}/criteria", h.HandleGetCriteria)
	mux.HandleFunc("GET /v1/prompts/{prompt_id}/criteria/versions", h.HandleListCriteriaVersions)
	mux.HandleFunc("GET /v1/prompts/{prompt_id}/criteria/versions/{version}", h.HandleGetCriteriaVersion)

	// Runs and evaluations. Run creation hits the generation backend, so it
	// carries its own throttle ahead of the common chain.
	runLimit := ratelimit.Middleware(cfg.RunLimiter, ratelimit.IPKeyFunc, func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	})
	mux.Handle("POST /v1/runs", runLimit(http.HandlerFunc(h.HandleCreateRun)))
	mux.HandleFunc("GET /v1/runs/{run_id}", h.HandleGetRun)
	mux.HandleFunc("GET /v1/prompts/{prompt_id}/runs", h.HandleListRuns)
	mux.HandleFunc("POST /v1/runs/{run_id}/evaluations", h.HandleEvaluateRun)
	mux.HandleFunc("GET /v1/runs/{run_id}/evaluations", h.HandleListEvaluations)
	mux.HandleFunc("POST /v1/runs/{run_id}/review", h.HandleReviewRun)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health and API description.
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
