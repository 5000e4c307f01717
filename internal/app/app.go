package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"hackrx/backend/features/qa"
	"hackrx/backend/features/registry"
	"hackrx/backend/features/stats"
	"hackrx/backend/internal/adapter/gemini"
	"hackrx/backend/internal/adapter/local"
	"hackrx/backend/internal/adapter/openai"
	"hackrx/backend/internal/adapter/reranker"
	wstore "hackrx/backend/internal/adapter/weaviate"
	"hackrx/backend/internal/config"
	"hackrx/backend/internal/document"
	"hackrx/backend/internal/index"
	"hackrx/backend/internal/middleware"
	"hackrx/backend/internal/retrieval"
	"hackrx/backend/internal/text"
	"hackrx/backend/internal/worker"
)

type App struct {
	Handler   http.Handler
	QA        *qa.Service
	Registry  *registry.Service
	Store     index.Store
	Scheduler worker.Scheduler

	cfg      *config.Config
	consumer *nsq.Consumer
	closers  []io.Closer
}

// New wires every feature against deps. Members of deps left nil fall back
// to their in-process equivalents.
func New(ctx context.Context, cfg *config.Config, deps *Dependencies) (*App, error) {
	if deps == nil {
		deps = &Dependencies{}
	}
	a := &App{cfg: cfg}

	embedder, err := a.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg, deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	// Feature: Registry
	var repo registry.Repository = registry.NewMemoryRepo()
	if deps.DB != nil {
		repo = registry.NewPostgresRepo(deps.DB)
	}
	a.Registry = registry.NewService(repo)
	registryHandler := registry.NewHandler(a.Registry)

	// Background indexing
	indexer := worker.NewIndexer(embedder, store, a.Registry, cfg.EmbedBatchSize)
	switch {
	case cfg.IndexQueue == config.QueueNSQ && deps.NSQProducer != nil:
		a.Scheduler = worker.NewNSQScheduler(deps.NSQProducer, worker.NewInProcessScheduler(indexer), cfg.NSQMaxMessageBytes)
		if err := a.startConsumer(indexer); err != nil {
			a.Close()
			return nil, err
		}
	default:
		a.Scheduler = worker.NewInProcessScheduler(indexer)
	}

	// Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	var rr retrieval.Reranker
	if rc := reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey); rc.Enabled() {
		rr = rc
	}
	searcher := retrieval.NewService(embedder, store, rr, queryLogger)

	// Feature: QA
	chat := openai.NewChatClient(openai.ChatConfig{
		APIKey:       cfg.OpenRouterAPIKey,
		BaseURL:      cfg.LLMBaseURL,
		Model:        cfg.LLMModel,
		SystemPrompt: cfg.LLMSystemPrompt,
		Timeout:      time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
	})

	splitter, err := text.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := document.NewFetcher(cfg.WorkDir,
		time.Duration(cfg.DownloadTimeoutSeconds)*time.Second,
		cfg.MaxDocumentSizeMB<<20)

	a.QA = qa.NewService(qa.Deps{
		Fetcher:   fetcher,
		Index:     store,
		Searcher:  searcher,
		Answerer:  chat,
		Builder:   indexer,
		Scheduler: a.Scheduler,
		Recorder:  a.Registry,
	}, qa.Options{
		Splitter:     splitter,
		TopK:         cfg.TopK,
		PrefixChunks: cfg.PrefixChunks,
		HashLength:   cfg.DocHashLength,
		Background:   cfg.IndexMode == config.IndexModeBackground,
	})
	qaHandler := qa.NewHandler(a.QA, cfg.MaxUploadSizeMB<<20)

	// Feature: Stats
	statsHandler := stats.NewHandler(a.Registry, store)

	// Routes. Each path also answers OPTIONS so browser preflights reach CORS.
	mux := http.NewServeMux()
	route := func(method, path string, h http.HandlerFunc) {
		wrapped := middleware.CorrelationID(middleware.CORS(h))
		mux.Handle(method+" "+path, wrapped)
		mux.Handle(http.MethodOptions+" "+path, wrapped)
	}

	route(http.MethodPost, "/api/v1/hackrx/run", qaHandler.Run)

	route(http.MethodGet, "/api/v1/documents", registryHandler.List)
	route(http.MethodGet, "/api/v1/documents/{hash}", registryHandler.Get)

	route(http.MethodGet, "/stats", statsHandler.GetStats)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	a.Handler = mux

	slog.Info("app wired",
		"embedder", cfg.EmbedderProvider,
		"vector_backend", cfg.VectorBackend,
		"index_mode", cfg.IndexMode,
		"index_queue", cfg.IndexQueue,
		"registry", registryKind(deps),
		"reranker", rr != nil,
	)
	return a, nil
}

func (a *App) newEmbedder(ctx context.Context) (index.Embedder, error) {
	cfg := a.cfg
	switch cfg.EmbedderProvider {
	case config.EmbedderGemini:
		e, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("gemini embedder error: %w", err)
		}
		a.closers = append(a.closers, e)
		return e, nil
	case config.EmbedderOpenAI:
		return openai.NewEmbedder(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel, nil), nil
	default:
		return local.NewEmbedder(cfg.LocalEmbeddingDim), nil
	}
}

func newStore(cfg *config.Config, deps *Dependencies) (index.Store, error) {
	switch cfg.VectorBackend {
	case config.BackendWeaviate:
		if deps.Weaviate == nil {
			return nil, errors.New("weaviate backend selected but no client was bootstrapped")
		}
		return wstore.NewStore(deps.Weaviate), nil
	case config.BackendMemory:
		return index.NewMemoryStore(), nil
	default:
		disk, err := index.NewDiskStore(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("index cache error: %w", err)
		}
		return disk, nil
	}
}

func (a *App) startConsumer(indexer *worker.Indexer) error {
	consumer, err := nsq.NewConsumer(config.TopicIndexBuild, config.ChannelIndexer, nsq.NewConfig())
	if err != nil {
		return fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(worker.NewIndexConsumer(indexer))

	if a.cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return fmt.Errorf("nsq consumer connect error: %w", err)
	}

	a.consumer = consumer
	slog.Info("NSQ index consumer connected", "topic", config.TopicIndexBuild)
	return nil
}

func registryKind(deps *Dependencies) string {
	if deps.DB != nil {
		return "postgres"
	}
	return "memory"
}

// Run serves HTTP on the configured port until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.ServerPort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	slog.Info("server starting", "port", a.cfg.ServerPort)
	return a.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is cancelled. In-flight requests
// finish before background work is drained and adapters are closed.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Serve returns as soon as Shutdown starts; done closes once it has
	// waited out the active connections.
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done

	a.Close()
	return nil
}

// Close waits for in-process builds and releases adapters.
func (a *App) Close() {
	if s, ok := a.Scheduler.(interface{ Wait() }); ok {
		s.Wait()
	}
	if a.consumer != nil {
		a.consumer.Stop()
		<-a.consumer.StopChan
		a.consumer = nil
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close adapter", "error", err)
		}
	}
	a.closers = nil
}
