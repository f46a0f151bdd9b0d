// Command ragserver is the multi-tenant RAG service entrypoint: it loads
// configuration, opens the Postgres registry pool, and serves both the REST
// API (§6.2) and the MCP JSON-RPC dispatcher (§4.10) behind one HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intelligencedev/ragserver/internal/config"
	"github.com/intelligencedev/ragserver/internal/enginecache"
	"github.com/intelligencedev/ragserver/internal/httpapi"
	"github.com/intelligencedev/ragserver/internal/llm/providers"
	"github.com/intelligencedev/ragserver/internal/mcpserver"
	"github.com/intelligencedev/ragserver/internal/observability"
	"github.com/intelligencedev/ragserver/internal/persistence/databases"
	"github.com/intelligencedev/ragserver/internal/planner"
	"github.com/intelligencedev/ragserver/internal/rag/embedder"
	"github.com/intelligencedev/ragserver/internal/rag/service"
	"github.com/intelligencedev/ragserver/internal/ratelimit"
	"github.com/intelligencedev/ragserver/internal/registry"
	"github.com/intelligencedev/ragserver/internal/synth"
)

func main() {
	observability.InitLogger(os.Getenv("LOG_PATH"), firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := observability.InitOTel(context.Background(), "ragserver", endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := databases.OpenPool(ctx, cfg.Database.DSN, cfg.Database.MinConns, cfg.Database.MaxConns, cfg.Database.MaxConnLifetime, cfg.Database.MaxConnIdleTime)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database pool")
	}
	defer pool.Close()

	reg, err := registry.NewPostgres(ctx, pool, cfg.Vector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init registry")
	}

	httpClient := observability.NewHTTPClient(nil)
	provider, err := providers.Build(ctx, cfg.LLM, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init llm provider")
	}
	emb := embedder.NewClient(cfg.Embedding, cfg.Embedding.Dimensions)

	cache := enginecache.New(cfg.EngineCache.TTL, cfg.EngineCache.MaxEntries, func(ctx context.Context, kb registry.KB) (enginecache.Entry, error) {
		mgr, err := databases.NewManager(ctx, pool, cfg.Vector, registry.TableName(kb.Slug), kb.EmbedDim)
		if err != nil {
			return enginecache.Entry{}, fmt.Errorf("build storage for kb %q: %w", kb.Name, err)
		}
		svc := service.New(mgr, service.WithEmbedder(emb))
		s := synth.New(provider, cfg.LLM)
		p := planner.New(provider, cfg.LLM.Model, svc, s)
		return enginecache.Entry{KB: kb, Manager: mgr, Service: svc, Synth: s, Planner: p}, nil
	})

	limiter, err := ratelimit.New(cfg.HTTP.RedisURL, cfg.HTTP.RateLimitPerMinute)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init rate limiter")
	}

	defaults := make(map[string]httpapi.RetrievalDefaults, len(cfg.RetrievalDefaults))
	mcpDefaults := make(map[string]mcpserver.RetrievalDefaults, len(cfg.RetrievalDefaults))
	for kbType, d := range cfg.RetrievalDefaults {
		defaults[kbType] = httpapi.RetrievalDefaults{
			UseHybrid: d.UseHybrid, UseRerank: d.UseRerank, UseAgentic: d.UseAgentic,
			TopK: d.TopK, MinScore: d.MinScore, RerankTopN: d.RerankTopN,
		}
		mcpDefaults[kbType] = mcpserver.RetrievalDefaults{
			UseHybrid: d.UseHybrid, UseRerank: d.UseRerank, UseAgentic: d.UseAgentic,
			TopK: d.TopK, MinScore: d.MinScore, RerankTopN: d.RerankTopN,
		}
	}

	rest := httpapi.NewServer(reg, cache, limiter, cfg.Embedding.Dimensions, defaults)
	mcp := mcpserver.NewServer(reg, cache, mcpDefaults, cfg.Embedding.Dimensions)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp)
	mux.Handle("/mcp/", mcp)
	mux.Handle("/", rest)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("ragserver listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
