package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kestrelworks/queryd/internal/agent"
	"github.com/kestrelworks/queryd/internal/cache"
	"github.com/kestrelworks/queryd/internal/config"
	"github.com/kestrelworks/queryd/internal/events"
	"github.com/kestrelworks/queryd/internal/httpapi"
	"github.com/kestrelworks/queryd/internal/knowledge"
	"github.com/kestrelworks/queryd/internal/logging"
	"github.com/kestrelworks/queryd/internal/pipeline"
	"github.com/kestrelworks/queryd/internal/pool"
	"github.com/kestrelworks/queryd/internal/query"
	"github.com/kestrelworks/queryd/internal/services"
	"github.com/kestrelworks/queryd/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the queryd daemon",
	Long: `Start the queryd daemon: HTTP API, agent pool, result cache and
the query pipeline. Configuration is read from the --config file and
overridden by environment variables (SERVER_PORT, CACHE_DEFAULT_TTL, ...).`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return run(ctx)
}

// run wires every service and blocks until the context is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logger, err := newLogger(cfg, tel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting queryd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("telemetry", cfg.Telemetry.Enabled))

	// Knowledge store backs the local retrieval agents. Startup
	// continues without it; retrieval then uses the stub corpus.
	var corpus agent.CorpusSearcher
	store, err := knowledge.NewStore(knowledge.Config{
		Path:       cfg.Knowledge.Path,
		Collection: cfg.Knowledge.Collection,
		Compress:   cfg.Knowledge.Compress,
	}, logger)
	if err != nil {
		logger.Warn(ctx, "knowledge store unavailable", zap.Error(err))
	} else {
		if store.Count() == 0 {
			if err := store.Seed(ctx, seedDocuments); err != nil {
				logger.Warn(ctx, "seeding knowledge store failed", zap.Error(err))
			}
		}
		corpus = store
		logger.Info(ctx, "knowledge store ready",
			zap.String("path", cfg.Knowledge.Path),
			zap.Int("documents", store.Count()))
	}

	agentPool, err := pool.NewCoordinator(agent.NewLocalFactory(corpus), pool.Config{
		IdleThreshold:   cfg.Pool.IdleThreshold.Duration(),
		CleanupInterval: cfg.Pool.CleanupInterval.Duration(),
		MaxPerType:      cfg.Pool.MaxPerType,
	}, logger)
	if err != nil {
		return err
	}
	agentPool.StartCleanup(ctx)
	agentPool.RegisterMetrics()

	resultCache := cache.New()
	resultCache.StartSweep(ctx, cfg.Cache.SweepInterval.Duration())
	resultCache.RegisterMetrics(logger)

	var pipeOpts []pipeline.Option
	if cfg.Pipeline.RetrievalServiceURL != "" {
		pipeOpts = append(pipeOpts,
			pipeline.WithRetrievalClient(pipeline.NewHTTPRetrievalClient(cfg.Pipeline.RetrievalServiceURL)))
		logger.Info(ctx, "external retrieval service configured",
			zap.String("url", cfg.Pipeline.RetrievalServiceURL))
	}
	if cfg.Pipeline.SynthesisServiceURL != "" {
		pipeOpts = append(pipeOpts,
			pipeline.WithSynthesisClient(pipeline.NewHTTPSynthesisClient(cfg.Pipeline.SynthesisServiceURL)))
		logger.Info(ctx, "external synthesis service configured",
			zap.String("url", cfg.Pipeline.SynthesisServiceURL))
	}

	exec, err := pipeline.NewExecutor(agentPool, pipeline.Config{
		StageTimeout:    cfg.Pipeline.StageTimeout.Duration(),
		ExternalTimeout: cfg.Pipeline.ExternalTimeout.Duration(),
		PreferExternal:  cfg.Pipeline.PreferExternal,
		MaxAlternatives: cfg.Pipeline.MaxAlternatives,
	}, logger, pipeOpts...)
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.Enabled {
		natsPub, err := events.Connect(cfg.Events.URL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			logger.Warn(ctx, "event publisher unavailable", zap.Error(err))
		} else {
			publisher = natsPub
		}
	}
	defer publisher.Close()

	orch, err := query.NewOrchestrator(query.Options{
		Cache:     resultCache,
		Pipeline:  exec,
		Validator: query.NewValidator(),
		Metrics:   query.NewMetrics(logger),
		Events:    publisher,
		CacheTTL:  cfg.Cache.DefaultTTL.Duration(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	registry := services.NewRegistry(services.Options{
		Cache:        resultCache,
		Pool:         agentPool,
		Orchestrator: orch,
		Knowledge:    store,
		Events:       publisher,
	})

	srv, err := httpapi.NewServer(registry, cfg.Server, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info(ctx, "shutdown complete")
	return nil
}

// telemetryConfig maps the daemon config onto the telemetry package
// defaults.
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.ServiceVersion = version
	if cfg.Telemetry.ServiceName != "" {
		tc.ServiceName = cfg.Telemetry.ServiceName
	}
	if cfg.Telemetry.Endpoint != "" {
		tc.Endpoint = cfg.Telemetry.Endpoint
	}
	switch cfg.Telemetry.Protocol {
	case "http":
		tc.Protocol = "http/protobuf"
	case "":
	default:
		tc.Protocol = cfg.Telemetry.Protocol
	}
	tc.Insecure = cfg.Telemetry.Insecure
	if cfg.Telemetry.SampleRatio > 0 {
		tc.SampleRatio = cfg.Telemetry.SampleRatio
	}
	return tc
}

func newLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc := logging.NewDefaultConfig()
	lc.Level = level
	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}
	lc.Output.OTEL = cfg.Telemetry.Enabled
	return logging.NewLogger(lc, tel.LoggerProvider())
}
