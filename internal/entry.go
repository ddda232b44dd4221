// Package internal provides the main application initialization and
// runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/halver/muninn/internal/api"
	"github.com/halver/muninn/internal/engine"
	"github.com/halver/muninn/internal/llm"
	"github.com/halver/muninn/internal/models"
	"github.com/halver/muninn/internal/registry"
	"github.com/halver/muninn/internal/sse"
	"github.com/halver/muninn/internal/storage"
	"github.com/halver/muninn/internal/watch"
	"github.com/halver/muninn/internal/workflow"
)

// Run starts the daemon with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("registry_path", cfg.Registry.Path),
		slog.String("watch_mode", cfg.Watch.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	roots := make([]registry.Root, len(cfg.Roots))
	rules := make([]engine.Rule, len(cfg.Roots))
	for i, r := range cfg.Roots {
		roots[i] = registry.Root{
			Path:        r.Path,
			Workflow:    r.Workflow,
			FolderType:  models.FolderType(r.FolderType),
			Categorized: r.Categorized,
		}
		rules[i] = engine.Rule{Root: r.Path, Workflow: r.Workflow}
	}

	reg, err := registry.Open(cfg.Registry.Path, roots)
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	defer reg.Close()

	broker := sse.NewBroker()
	defer broker.Close()

	summarizer := app.summarizer
	model := cfg.LLM.Model
	if model == "" {
		model = llm.DefaultModel
	}
	if summarizer == nil {
		apiKey := cfg.LLM.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		summarizer = llm.NewOpenAI(apiKey, cfg.LLM.BaseURL, model, logger)
	}

	locks := engine.NewLockManager(nil)
	queue := engine.NewQueue(locks, engine.NoteKeyFunc(reg), 0, logger)
	classifier := engine.NewClassifier(rules)
	linker := engine.NewLinker(store, reg, logger)
	detector := engine.NewDetector(reg, logger)
	synth := workflow.NewSynthesizer(reg, summarizer, model, cfg.Workflow.Retries, cfg.Workflow.RetryDelay(), logger)
	sm := engine.NewStateMachine(cfg.Workflow.WordDeltaThreshold)
	regen := workflow.NewRegenerator(store, reg, sm, linker, synth, broker, logger)
	importer := workflow.NewImporter(store, reg, detector, linker, synth, regen, broker, cfg.QuarantineRoot(), logger)
	storageHandler := workflow.NewStorageHandler(reg, importer, regen, logger)

	dispatcher := engine.NewDispatcher(engine.DispatcherConfig{
		Queue:      queue,
		Locks:      locks,
		Classifier: classifier,
		Registry:   reg,
		Store:      store,
		Linker:     linker,
		Handlers: map[string]engine.Handler{
			engine.WorkflowImport:  importer,
			engine.WorkflowStorage: storageHandler,
		},
		Publisher:     broker,
		Logger:        logger,
		LockTimeout:   cfg.Locks.Timeout(),
		SweepInterval: cfg.Locks.SweepInterval(),
	})

	// Pick up anything that changed while the daemon was down.
	dispatcher.Reconcile()

	var source watch.Source
	sink := func(ev models.Event) { queue.Enqueue(ev) }
	switch cfg.Watch.Mode {
	case WatchModeNative:
		source = watch.NewNative(cfg.Vault.Path, sink, logger)
	default:
		source = watch.NewPoller(store, cfg.Watch.Interval(), sink, logger)
	}

	svc := api.NewService(store, reg, locks)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Daemon starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return source.Run(gCtx)
	})

	g.Go(func() error {
		return dispatcher.Run(gCtx)
	})

	g.Go(func() error {
		return dispatcher.Maintenance(gCtx)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Daemon stopped successfully")
	return nil
}
