// Package reprise is the public API for embedding the Reprise prompt
// versioning server.
//
// Consumers import this package to construct and extend the server without
// forking it:
//
//	app, err := reprise.New(
//	    reprise.WithVersion(version),
//	    reprise.WithLogger(logger),
//	    reprise.WithGenerator(myBackend),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: reprise (root) imports
// internal/*, but internal/* never imports reprise (root). The public
// Generator and Judge interfaces are standalone; adapters between them and
// their internal counterparts live here because this is the only file that
// sees both sides of the boundary.
package reprise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
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

// App is the Reprise server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	limiter      *ratelimit.MemoryLimiter // nil when throttling is disabled
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Reprise server. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("reprise starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	// Generation backend — external override takes priority over config.
	var gen generate.Generator
	if o.generator != nil {
		gen = &generatorAdapter{g: o.generator}
	} else {
		gen = newGenerator(cfg, logger)
	}

	// Judge — external override takes priority over config.
	var jdg judge.Judge
	if o.judge != nil {
		jdg = &judgeAdapter{j: o.judge}
	} else if cfg.JudgeProvider == "model" {
		jdg = judge.NewModelJudge(gen)
	} else {
		jdg = judge.NewRuleJudge()
	}

	promptSvc := prompts.New(db, logger)
	runSvc := runs.New(db, gen, logger)
	evalSvc := eval.New(db, jdg, logger)
	mcpSrv := mcp.New(promptSvc, runSvc, evalSvc, logger)

	var limiter *ratelimit.MemoryLimiter
	var runLimiter ratelimit.Limiter
	if cfg.RunRateLimit > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RunRateLimit, cfg.RunRateBurst)
		runLimiter = limiter
	}

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

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. On cancellation it drains in-flight requests and releases resources.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.close()
		return err
	}

	a.logger.Info("reprise shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	a.close()
	a.logger.Info("reprise stopped")
	return nil
}

// Handler returns the root HTTP handler, for mounting the App inside a
// larger server or exercising it in tests without a listener.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

func (a *App) close() {
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	a.db.Close()
	_ = a.otelShutdown(context.Background())
}

// newGenerator creates a generation backend based on configuration.
// Auto mode tries Ollama if reachable, then OpenAI if a key is present,
// else static.
func newGenerator(cfg config.Config, logger *slog.Logger) generate.Generator {
	switch cfg.GenProvider {
	case "openai":
		logger.Info("generator: openai", "model", cfg.GenModel)
		return generate.NewOpenAIGenerator(cfg.OpenAIBase, cfg.OpenAIAPIKey, cfg.GenModel)
	case "ollama":
		logger.Info("generator: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return generate.NewOllamaGenerator(cfg.OllamaURL, cfg.OllamaModel)
	case "static":
		logger.Info("generator: static (no model backend)")
		return generate.NewStaticGenerator()
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("generator: ollama (auto-detected)", "url", cfg.OllamaURL)
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

// generatorAdapter bridges the public Generator interface to the internal one.
type generatorAdapter struct {
	g Generator
}

func (a *generatorAdapter) Generate(ctx context.Context, req generate.Request) (generate.Result, error) {
	res, err := a.g.Generate(ctx, GenerationRequest{
		PromptText: req.PromptText,
		InputText:  req.InputText,
		Model:      req.Model,
		Params:     req.Params,
	})
	if err != nil {
		return generate.Result{}, err
	}
	return generate.Result{OutputText: res.OutputText, Model: res.Model}, nil
}

func (a *generatorAdapter) Name() string { return a.g.Name() }

// judgeAdapter bridges the public Judge interface to the internal one.
type judgeAdapter struct {
	j Judge
}

func (a *judgeAdapter) Judge(ctx context.Context, in judge.Input) (judge.Verdict, error) {
	v, err := a.j.Judge(ctx, JudgeInput{
		Key:        in.Key,
		Desc:       in.Desc,
		Boolean:    in.Boolean,
		Reference:  in.Reference,
		PromptText: in.PromptText,
		InputText:  in.InputText,
		OutputText: in.OutputText,
	})
	if err != nil {
		return judge.Verdict{}, err
	}
	return judge.Verdict{Passed: v.Passed, Score: v.Score, Reason: v.Reason}, nil
}

func (a *judgeAdapter) Name() string { return a.j.Name() }
