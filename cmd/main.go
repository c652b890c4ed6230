package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"enlitens/internal/adapters/ai"
	"enlitens/internal/adapters/config"
	"enlitens/internal/adapters/embeddings"
	"enlitens/internal/adapters/errors/noop"
	"enlitens/internal/adapters/errors/sentry"
	"enlitens/internal/adapters/kafka"
	"enlitens/internal/adapters/postgres"
	"enlitens/internal/adapters/redis"
	"enlitens/internal/adapters/websearch"
	"enlitens/internal/agents"
	"enlitens/internal/api/health"
	"enlitens/internal/metrics"
	"enlitens/internal/ml"
	"enlitens/internal/observability"
	"enlitens/internal/pipeline"
	"enlitens/internal/retrieval"
	"enlitens/internal/validation"
	"enlitens/internal/workflow"
	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

const version = "1.0.0"

const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 || os.Args[1] != "process-corpus" {
		fmt.Fprintln(os.Stderr, "usage: enlitens process-corpus --input-dir DIR --output-file PATH [--context-report PATH]")
		return exitFatal
	}

	flags := flag.NewFlagSet("process-corpus", flag.ContinueOnError)
	inputDir := flags.String("input-dir", "", "directory of source documents")
	outputFile := flags.String("output-file", "", "knowledge base output path")
	contextReport := flags.String("context-report", "", "optional context report path")
	if err := flags.Parse(os.Args[2:]); err != nil {
		return exitFatal
	}
	if *inputDir == "" || *outputFile == "" {
		fmt.Fprintln(os.Stderr, "process-corpus: --input-dir and --output-file are required")
		return exitFatal
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return exitFatal
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		return exitFatal
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	emitter := initEmitter(cfg)
	healthHandler := health.New(cfg.App.Name, version)

	degraded := &degradedModes{}
	driver, err := buildDriver(ctx, cfg, emitter, healthHandler, degraded, *inputDir, *outputFile, *contextReport)
	if err != nil {
		log.Errorf("Pipeline initialization failed: %v", err)
		emitter.Alert(ctx, observability.SeverityCritical, "", "", "pipeline initialization failed: "+err.Error())
		if serr := pipeline.WriteStatusSidecar(*outputFile, err.Error(), nil); serr != nil {
			log.Errorf("Failed to write status sidecar: %v", serr)
		}
		return exitFatal
	}

	startHTTPServer(cfg, healthHandler, log)

	result, err := driver.Run(ctx)
	if errorTracker != nil {
		if ferr := errorTracker.Flush(context.Background()); ferr != nil {
			log.Warnf("Failed to flush error tracker: %v", ferr)
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) && result != nil {
			log.Warnf("Interrupted: %d documents completed before shutdown", len(result.Processed))
			return exitPartial
		}
		log.Errorf("Corpus processing failed: %v", err)
		return exitFatal
	}
	if result.Partial() {
		log.Warnf("Completed with %d failed documents", len(result.Failed))
		for _, f := range result.Failed {
			log.Warnf("  %s: %s", f.DocumentID, f.Reason)
		}
		return exitPartial
	}

	log.Infof("Corpus processed: %d documents (%d resumed)", len(result.Processed)+len(result.Resumed), len(result.Resumed))
	return exitOK
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// startHTTPServer exposes metrics and health endpoints when an address is
// configured.
func startHTTPServer(cfg *config.Config, healthHandler *health.Handler, log *logger.Logger) {
	addr := cfg.Observability.MetricsAddr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/health/live", healthHandler.HandleLiveness)
	mux.HandleFunc("/health/ready", healthHandler.HandleReadiness)
	go func() {
		log.Infof("Metrics and health listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("HTTP server stopped: %v", err)
		}
	}()
}

// initEmitter wires the observability sinks. Kafka and the broadcast URL
// are both optional.
func initEmitter(cfg *config.Config) *observability.Emitter {
	var producer observability.Publisher
	if len(cfg.Observability.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Observability.KafkaBrokers})
	}
	return observability.NewEmitter(producer, cfg.Observability.BroadcastURL)
}

// degradedModes collects degraded-mode flags raised during the run so they
// can be stamped into entry metadata.
type degradedModes struct {
	mu    sync.Mutex
	modes []string
}

func (d *degradedModes) add(mode string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.modes {
		if m == mode {
			return
		}
	}
	d.modes = append(d.modes, mode)
}

func (d *degradedModes) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.modes))
	copy(out, d.modes)
	return out
}

// buildDriver constructs the full processing stack: vector store, retriever,
// agent registry, validation engine, orchestrator and corpus driver.
func buildDriver(ctx context.Context, cfg *config.Config, emitter *observability.Emitter, healthHandler *health.Handler, degraded *degradedModes, inputDir, outputFile, contextReport string) (*pipeline.Driver, error) {
	log := logger.Get()

	chat, err := ai.NewChatProvider(ctx, ai.FactoryConfig{
		Provider:  ai.ProviderName(cfg.AI.DefaultProvider),
		OpenAIKey: cfg.AI.OpenAIKey,
		GeminiKey: cfg.AI.GeminiKey,
		Timeout:   cfg.AI.RequestTimeout,
		RPS:       cfg.AI.RateLimitRPS,
		Burst:     2,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init chat provider")
	}

	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider: embeddings.ProviderOpenAI,
		APIKey:   cfg.AI.OpenAIKey,
		Model:    cfg.AI.EmbeddingModel,
		Timeout:  cfg.AI.RequestTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init embedding provider")
	}

	store := initVectorStore(ctx, cfg, embedder.Dimensions(), emitter, degraded, log)
	healthHandler.Register("vector_store", func(ctx context.Context) error {
		if !store.Healthy(ctx) {
			return errors.ErrVectorStoreUnavailable
		}
		return nil
	})

	reranker, err := ml.LoadCrossEncoder(cfg.Retrieval.RerankerModel, cfg.Retrieval.RerankerVocab)
	if err != nil {
		return nil, errors.Wrap(err, "load cross encoder")
	}
	if !reranker.Available() {
		degraded.add("reranker_disabled")
	}

	retriever := retrieval.NewHybridRetriever(store, embedder, reranker, retrieval.HybridRetrieverOptions{
		DenseTopK:   cfg.Retrieval.DenseLimit,
		SparseTopK:  cfg.Retrieval.RerankLimit,
		FinalTopK:   cfg.Retrieval.FinalK,
		RRFConstant: cfg.Retrieval.FusionConstantK,
	})

	var cache agents.OutputCache
	if cfg.Redis.Enabled() {
		redisClient, rerr := redis.NewClient(cfg.Redis)
		if rerr != nil {
			log.Warnf("Redis unavailable, agent output cache disabled: %v", rerr)
		} else {
			cache = agents.NewRedisOutputCache(redisClient, 0)
			healthHandler.Register("redis", func(ctx context.Context) error {
				return redisClient.Client().Ping(ctx).Err()
			})
		}
	}

	webCfg, err := config.LoadWebSearch()
	if err != nil {
		return nil, err
	}
	var searcher websearch.Searcher
	var scraper websearch.Scraper
	if s := websearch.NewHTTPSearcher(*webCfg); s != nil {
		searcher = s
		scraper = websearch.NewHTTPScraper(webCfg.Timeout)
	}

	registry, err := agents.BuildRegistry(ctx, &agents.Services{
		Chat:      chat,
		ChatModel: cfg.AI.ChatModel,
		Retriever: retriever,
		Searcher:  searcher,
		Cache:     cache,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build agent registry")
	}

	runner := agents.NewRunner(agents.RunnerConfig{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		BaseDelay:     cfg.Retry.BaseDelay,
		BackoffFactor: cfg.Retry.BackoffFactor,
		AgentTimeout:  cfg.Concurrency.AgentTimeout,
		CachePrefix:   cfg.App.Name,
	}, cache)

	engine := validation.NewEngine(validation.EngineOptions{
		Config:    cfg.Validation,
		Chat:      chat,
		ChatModel: cfg.AI.JudgeModel,
		Embedder:  embedder,
		Searcher:  searcher,
		Scraper:   scraper,
	})

	orchestrator := workflow.New(workflow.Config{
		Registry:         registry,
		Runner:           runner,
		Engine:           engine,
		Emitter:          emitter,
		Graph:            workflow.DefaultGraph(),
		ConsistencyVotes: cfg.Validation.SelfConsistencyVotes,
	})

	extractor := pipeline.NewRetryingExtractor(
		[]pipeline.PDFExtractor{pipeline.NewMarkdownExtractor(cfg.Extraction.MarkdownCacheDir)},
		cfg.Extraction.RetryAttempts,
		cfg.Retry.BaseDelay,
		cfg.Retry.BackoffFactor,
	)

	var entities pipeline.EntityExtractor
	if e := pipeline.NewHTTPEntityExtractor(cfg.Extraction.EntityEndpoint, cfg.Extraction.EntityTimeout); e != nil {
		entities = e
	}

	return pipeline.New(pipeline.Config{
		InputDir:      inputDir,
		OutputFile:    outputFile,
		ContextReport: contextReport,
		Extractor:     extractor,
		Entities:      entities,
		Chunker: retrieval.NewChunker(retrieval.ChunkerOptions{
			ChunkSizeTokens:   cfg.Chunking.ChunkSizeTokens,
			ChunkOverlapRatio: cfg.Chunking.ChunkOverlapRatio,
		}),
		Indexer:       retriever,
		Processor:     orchestrator,
		Emitter:       emitter,
		MaxConcurrent: cfg.Concurrency.MaxConcurrentDocuments,
		CleanupEvery:  cfg.Concurrency.CleanupInterval,
		Degraded:      degraded.snapshot,
	})
}

// initVectorStore connects the pgvector backend when reachable and wraps it
// with the in-memory fallback either way.
func initVectorStore(ctx context.Context, cfg *config.Config, dims int, emitter *observability.Emitter, degraded *degradedModes, log *logger.Logger) retrieval.VectorStore {
	onDegraded := func(reason string) {
		degraded.add("vector_store_memory_fallback")
		emitter.Alert(ctx, observability.SeverityCritical, "", "vector_store",
			"vector store degraded to in-memory fallback: "+reason)
	}

	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Warnf("PostgreSQL unavailable: %v", err)
		return retrieval.NewResilientVectorStore(nil, onDegraded)
	}
	if err := pgClient.EnsureSchema(ctx, dims); err != nil {
		log.Warnf("Failed to ensure pgvector schema: %v", err)
		return retrieval.NewResilientVectorStore(nil, onDegraded)
	}
	return retrieval.NewResilientVectorStore(retrieval.NewPgVectorStore(pgClient.DB()), onDegraded)
}
