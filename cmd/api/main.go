package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"brandhub/backend/internal/archive"
	"brandhub/backend/internal/brave"
	"brandhub/backend/internal/cache"
	"brandhub/backend/internal/config"
	"brandhub/backend/internal/db"
	"brandhub/backend/internal/httpapi"
	"brandhub/backend/internal/openrouter"
	"brandhub/backend/internal/research"
	"brandhub/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// the logger level comes from config, so this one failure goes to stderr
		_, _ = os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		_, _ = os.Stderr.WriteString("build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	researchCfg, err := loadResearchConfig(cfg)
	if err != nil {
		logger.Fatal("load research config", zap.Error(err))
	}

	database, err := db.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer database.Close()
	if err := db.EnsureSchema(ctx, database); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	resultCache := cache.NewNoop()
	if cfg.RedisURL != "" && cfg.ResultCacheTTL > 0 {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.ResultCacheTTL)
		if err != nil {
			logger.Warn("result cache disabled", zap.Error(err))
		} else {
			resultCache = redisCache
		}
	}

	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		logger.Fatal("configure archive", zap.Error(err))
	}

	openRouterClient := openrouter.NewClient(cfg, nil)
	researchCfg = priceFromCatalogue(ctx, logger, openRouterClient, cfg, researchCfg)

	var (
		planner     research.Planner
		synthesizer research.Synthesizer
	)
	if responder := httpapi.NewOpenRouterResponder(openRouterClient, cfg.ResearchModel, cfg.ResearchReasoningEffort); responder != nil {
		planner = research.NewLLMPlanner(responder, researchCfg)
		synthesizer = research.NewLLMSynthesizer(responder, researchCfg)
	}
	searcher := research.NewRateLimitedSearcher(brave.NewClient(cfg, nil), cfg.BraveMinInterval)
	orchestrator := research.NewOrchestrator(researchCfg, planner, searcher, synthesizer, logger.Named("research"))

	fetcher := research.NewContextFetcher(research.FetcherConfig{RequestTimeout: cfg.ContextFetchTimeout}, nil)

	handler := httpapi.NewRouter(cfg, httpapi.Dependencies{
		Orchestrator: orchestrator,
		Fetcher:      fetcher,
		Sessions:     store.NewStore(database),
		Cache:        resultCache,
		Archiver:     archiver,
		Logger:       logger.Named("http"),
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: researchCfg.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			zap.String("addr", cfg.ListenAddress()),
			zap.String("model", cfg.ResearchModel),
			zap.String("cache", resultCache.Backend()),
			zap.String("archive", archiver.Backend()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = level
	}
	return zapCfg.Build()
}

// loadResearchConfig resolves the YAML overlay, then applies the research
// environment variables that were set explicitly.
func loadResearchConfig(cfg config.Config) (research.Config, error) {
	researchCfg := research.DefaultConfig()
	if cfg.ResearchConfigPath != "" {
		loaded, err := research.LoadConfigFile(cfg.ResearchConfigPath)
		if err != nil {
			return research.Config{}, err
		}
		researchCfg = loaded
	}

	if envSet("RESEARCH_TIMEOUT_SECONDS") {
		researchCfg.Timeout = time.Duration(cfg.ResearchTimeoutSeconds) * time.Second
	}
	if envSet("RESEARCH_MAX_TOTAL_COST_USD") {
		researchCfg.MaxTotalCost = cfg.ResearchMaxTotalCostUSD
	}
	if cfg.ResearchMaxRounds > 0 {
		researchCfg.MaxRounds = cfg.ResearchMaxRounds
	}
	if envSet("FAILED_SEARCH_COST_POLICY") {
		researchCfg.FailedSearchCost = research.FailedSearchCostPolicy(cfg.FailedSearchCostPolicy)
	}
	return research.ResolveConfig(researchCfg), nil
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func newArchiver(ctx context.Context, cfg config.Config) (*archive.Archiver, error) {
	switch {
	case cfg.ArchiveGCSBucket != "":
		objectStore, err := archive.NewGCSObjectStore(ctx, cfg.ArchiveGCSBucket)
		if err != nil {
			return nil, err
		}
		return archive.NewArchiver(objectStore, cfg.ArchivePrefix), nil
	case cfg.ArchiveLocalDir != "":
		objectStore, err := archive.NewLocalObjectStore(cfg.ArchiveLocalDir)
		if err != nil {
			return nil, err
		}
		return archive.NewArchiver(objectStore, cfg.ArchivePrefix), nil
	default:
		return archive.NewArchiver(nil, cfg.ArchivePrefix), nil
	}
}

// priceFromCatalogue prices LLM calls from the provider's model list when it
// is reachable; otherwise the configured pricing stays.
func priceFromCatalogue(ctx context.Context, logger *zap.Logger, client openrouter.Client, cfg config.Config, researchCfg research.Config) research.Config {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	models, err := client.ListModels(listCtx)
	if err != nil {
		logger.Warn("model catalogue unavailable; using configured llm pricing", zap.Error(err))
		return researchCfg
	}
	model, ok := openrouter.FindModel(models, cfg.ResearchModel)
	if !ok {
		logger.Warn("research model not in catalogue; using configured llm pricing", zap.String("model", cfg.ResearchModel))
		return researchCfg
	}
	if cfg.ResearchReasoningEffort != "" && !model.SupportsReasoning {
		logger.Warn("research model ignores reasoning effort", zap.String("model", model.ID))
	}
	return researchCfg.WithLLMPricing(model.PromptPriceMicrosUSD, model.CompletionPriceMicrosUSD)
}
