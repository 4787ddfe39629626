package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reprise-ai/reprise/api"
	"github.com/reprise-ai/reprise/internal/config"
	"github.com/reprise-ai/reprise/internal/generate"
	"github.com/reprise-ai/reprise/internal/judge"
	"github.com/reprise-ai/reprise/internal/mcp"
	"github.com/reprise-ai/reprise/internal/ratelimit"
	"github.com/reprise-ai/reprise/internal/server"
	"github.com/reprise-ai/reprise/internal/service/eval"
	"github.com/reprise-ai/reprise/internal/service/prompts"
	"github.com/reprise-ai/reprise/internal/service/runs"
	"github.com/reprise-ai/reprise/internal/storage"
	"github.com/reprise-ai/reprise/internal/telemetry"
	"github.com/reprise-ai/reprise/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("REPRISE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("reprise starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	// Run embedded migrations. RunMigrations tracks applied files in
	// schema_migrations and skips duplicates, so errors here indicate
	// real failures (not "already exists").
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Create generation backend and judge.
	gen := newGenerator(cfg, logger)
	jdg := newJudge(cfg, gen, logger)

	// Create services (shared by HTTP and MCP handlers).
	promptSvc := prompts.New(db, logger)
	runSvc := runs.New(db, gen, logger)
	evalSvc := eval.New(db, jdg, logger)

	// Create MCP server.
	mcpSrv := mcp.New(promptSvc, runSvc, evalSvc, logger)

	// Throttle run execution; generation backends are the expensive path.
	var runLimiter ratelimit.Limiter
	if cfg.RunRateLimit > 0 {
		mem := ratelimit.NewMemoryLimiter(cfg.RunRateLimit, cfg.RunRateBurst)
		defer func() { _ = mem.Close() }()
		runLimiter = mem
	}

	// Create and start HTTP server (MCP mounted at /mcp).
	handlers := server.NewHandlers(server.HandlersDeps{
		DB:                  db,
		PromptSvc:           promptSvc,
		RunSvc:              runSvc,
		EvalSvc:             evalSvc,
		Generator:           gen,
		Logger:              logger,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})
	srv := server.New(server.ServerConfig{
		Handlers:     handlers,
		Logger:       logger,
		MCPServer:    mcpSrv.MCPServer(),
		RunLimiter:   runLimiter,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown: stop accepting new requests and drain in-flight ones.
	slog.Info("reprise shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("reprise stopped")
	return nil
}

// newGenerator creates a generation backend based on configuration.
// Provider selection: "ollama", "openai", "static", or "auto" (default).
// Auto mode tries Ollama if reachable, then OpenAI if key present, else static.
// Ollama is preferred: prompt text stays on-premises with no external API costs.
func newGenerator(cfg config.Config, logger *slog.Logger) generate.Generator {
	switch cfg.GenProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBase == "" {
			logger.Error("OPENAI_API_KEY required when REPRISE_GEN_PROVIDER=openai")
			return generate.NewStaticGenerator()
		}
		logger.Info("generator: openai", "model", cfg.GenModel)
		return generate.NewOpenAIGenerator(cfg.OpenAIBase, cfg.OpenAIAPIKey, cfg.GenModel)

	case "ollama":
		logger.Info("generator: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return generate.NewOllamaGenerator(cfg.OllamaURL, cfg.OllamaModel)

	case "static":
		logger.Info("generator: static (no model backend)")
		return generate.NewStaticGenerator()

	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("generator: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
			return generate.NewOllamaGenerator(cfg.OllamaURL, cfg.OllamaModel)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("generator: openai (auto-detected)", "model", cfg.GenModel)
			return generate.NewOpenAIGenerator(cfg.OpenAIBase, cfg.OpenAIAPIKey, cfg.GenModel)
		}
		logger.Warn("no generation backend available, using static generator")
		return generate.NewStaticGenerator()
	}
}

// newJudge creates the per-criterion judge based on configuration.
func newJudge(cfg config.Config, gen generate.Generator, logger *slog.Logger) judge.Judge {
	if cfg.JudgeProvider == "model" {
		logger.Info("judge: model-backed", "generator", gen.Name())
		return judge.NewModelJudge(gen)
	}
	logger.Info("judge: rule-based")
	return judge.NewRuleJudge()
}

// ollamaReachable checks if an Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
