package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	rlhttp "github.com/ragline/ragline/internal/adapter/http"
	"github.com/ragline/ragline/internal/adapter/indexnats"
	"github.com/ragline/ragline/internal/adapter/litellm"
	rlnats "github.com/ragline/ragline/internal/adapter/nats"
	"github.com/ragline/ragline/internal/adapter/otel"
	"github.com/ragline/ragline/internal/adapter/postgres"
	"github.com/ragline/ragline/internal/adapter/ristretto"
	"github.com/ragline/ragline/internal/adapter/ws"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/domain/pricing"
	"github.com/ragline/ragline/internal/logger"
	"github.com/ragline/ragline/internal/middleware"
	"github.com/ragline/ragline/internal/resilience"
	"github.com/ragline/ragline/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hashkey" {
		if err := runHashKey(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"agent_model", cfg.Agent.Model,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownMetrics, err := otel.InitMetrics(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdownMetrics(context.Background()) }()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := rlnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	cacheAdapter, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cacheAdapter.Close()

	// --- Adapters ---
	llmClient := litellm.NewClient(cfg.LLM.URL, cfg.LLM.APIKey)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	index := indexnats.New(queue, cfg.Retrieval.SearchTimeout)
	cancelSubs, err := index.StartSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("index subscribers: %w", err)
	}
	defer func() {
		for _, cancel := range cancelSubs {
			cancel()
		}
	}()

	store := postgres.NewStore(pool)
	hub := ws.NewHub()

	// --- Services ---
	retriever := service.NewRetriever(index, cacheAdapter, cfg.Retrieval)

	relevance := service.NewRelevanceWorker(llmClient, cfg.Retrieval.RelevanceModel, cfg.Retrieval.MinRelevanceScore)
	defer relevance.Close()

	agent := service.NewAgent(llmClient, retriever, cfg.Agent, cfg.Retrieval.TopK, pricing.Cost)
	agent.SetPlanner(service.NewPlanner(llmClient, cfg.Retrieval.PlannerModel))
	agent.SetRelevanceWorker(relevance)
	agent.SetMetrics(metrics)
	agent.SetBroadcaster(hub)

	conversations := service.NewConversations(store, agent, queue, cfg.Agent.HistoryWindow)

	// --- HTTP ---
	handlers := rlhttp.NewHandlers(conversations, index, hub)

	r := chi.NewRouter()
	r.Use(rlhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rlhttp.SecurityHeaders)
	r.Use(rlhttp.Logger)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.APIKey(cfg.Auth.APIKeyHash))
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))

	rlhttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      300 * time.Second, // turns can run many model calls
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
