// Command registry is the composition root: it loads configuration, wires
// every component (store, embedding client, vector index, retrieval
// engine, LLM gateway, summarizer, execution router, discovery service,
// MCP facade) and serves the HTTP API until an interrupt signal arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolgateway/registry/pkg/api"
	"github.com/toolgateway/registry/pkg/audit"
	"github.com/toolgateway/registry/pkg/config"
	"github.com/toolgateway/registry/pkg/discovery"
	"github.com/toolgateway/registry/pkg/embedding"
	"github.com/toolgateway/registry/pkg/llmgateway"
	"github.com/toolgateway/registry/pkg/logger"
	"github.com/toolgateway/registry/pkg/mcpfacade"
	"github.com/toolgateway/registry/pkg/registry"
	"github.com/toolgateway/registry/pkg/retrieval"
	"github.com/toolgateway/registry/pkg/router"
	"github.com/toolgateway/registry/pkg/summarizer"
	"github.com/toolgateway/registry/pkg/telemetry"
	"github.com/toolgateway/registry/pkg/vectorstore"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (REGISTRY_* env vars take precedence over its values)")
	stdio := flag.Bool("mcp-stdio", false, "serve the MCP facade over stdio instead of HTTP")
	flag.Parse()

	if err := run(*configPath, *stdio); err != nil {
		logger.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

// storeHealth adapts *registry.Store's Ping to the api.HealthChecker shape
// the /ready probe expects.
type storeHealth struct{ store *registry.Store }

func (h storeHealth) Ready(ctx context.Context) error { return h.store.Ping(ctx) }

func run(configPath string, stdio bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder, err := buildRecorder(cfg.Telemetry)
	if err != nil {
		return err
	}

	store, err := registry.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder := embedding.New(embedding.Config{
		Endpoint:  cfg.Embedding.Endpoint,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
		CacheSize: cfg.Embedding.CacheSize,
	}, recorder)

	vectorStore, err := vectorstore.New(vectorstore.Config{
		URL:       cfg.VectorStore.URL,
		APIKey:    cfg.VectorStore.APIKey,
		ClassName: cfg.VectorStore.ClassName,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return err
	}
	if err := vectorStore.EnsureSchema(ctx); err != nil {
		return err
	}

	registrySvc := registry.NewService(store, embedder, vectorStore, recorder, true)

	retrievalEngine := retrieval.NewEngine(embedder, vectorStore, store, recorder, retrieval.Config{
		HybridAlpha: cfg.Retrieval.HybridAlpha,
	})

	gateway := llmgateway.New(llmgateway.Config{
		URL:          cfg.LLMGateway.URL,
		APIKey:       cfg.LLMGateway.APIKey,
		DefaultModel: cfg.LLMGateway.DefaultModel,
		Timeout:      cfg.LLMGateway.Timeout,
	})

	summ := summarizer.New(gateway, summarizer.Config{
		Enabled:       cfg.Summarization.Enabled,
		Model:         cfg.Summarization.Model,
		MaxInputChars: cfg.Summarization.MaxInputChars,
	})

	dispatcher := router.New(
		registrySvc,
		retrievalEngine,
		router.Config{
			DefaultCallTimeout: cfg.Execution.DefaultCallTimeout,
			MaxCallTimeout:     cfg.Execution.MaxCallTimeout,
			WorkerPoolSize:     cfg.Execution.WorkerPoolSize,
		},
		router.NewPythonExecutor(cfg.Python.Enabled, nil, cfg.Python.AllowPrefixes, cfg.Python.DenyPrefixes),
		router.NewHTTPExecutor(""),
		router.NewMCPExecutor(),
		router.NewGatewayExecutor(gateway),
		router.NewCommandExecutor(cfg.Execution.WorkerPoolSize),
	)

	var gatewaySource *config.MCPSource
	if cfg.Discovery.IncludeGateway {
		src := discovery.GatewaySource(cfg.LLMGateway.URL)
		gatewaySource = &src
	}
	discoverySvc := discovery.New(registrySvc, discovery.NewMCPFetcher(), cfg.Discovery.Sources, gatewaySource)
	if cfg.Discovery.AutoSyncOnStartup {
		for _, summary := range discoverySvc.SyncAll(ctx) {
			logger.Infow("startup discovery sync", "source", summary.Source, "created", summary.Created, "updated", summary.Updated, "errors", summary.Errors)
		}
	}

	facade := mcpfacade.New(registrySvc, retrievalEngine, dispatcher, summ, mcpfacade.Config{
		DefaultFindLimit:     cfg.Retrieval.DefaultLimit,
		DefaultFindThreshold: cfg.Retrieval.DefaultThreshold,
		DefaultSummaryTokens: cfg.Summarization.DefaultMaxTokens,
	})

	if stdio {
		mcpServer := mcpfacade.NewServer(facade, "tool-registry", "1.0.0")
		return mcpServer.ServeStdio(ctx)
	}

	auditCfg := audit.DefaultConfig()
	auditor := audit.NewAuditor(auditCfg)

	httpRouter := api.NewRouter(api.Deps{
		Facade:    facade,
		Tools:     registrySvc,
		Discovery: discoverySvc,
		Health:    storeHealth{store: store},
		Auditor:   auditor,
		Config:    *cfg,
	})

	mux := http.NewServeMux()
	mux.Handle("/", httpRouter)
	if cfg.Telemetry.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mcpServer := mcpfacade.NewServer(facade, "tool-registry", "1.0.0")
	mux.Handle("/mcp-rpc/", mcpServer.HTTPHandler(ctx, "/mcp-rpc"))

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func buildRecorder(cfg config.TelemetryConfig) (telemetry.Recorder, error) {
	if !cfg.Enabled {
		return telemetry.NoOp{}, nil
	}
	otelRecorder, err := telemetry.NewOTel()
	if err != nil {
		return nil, err
	}
	return otelRecorder, nil
}
