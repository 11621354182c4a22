// Package main provides the entry point for the paper analysis service.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paperlens/analysis-service/internal/analysis"
	"github.com/paperlens/analysis-service/internal/authors"
	"github.com/paperlens/analysis-service/internal/citegraph"
	"github.com/paperlens/analysis-service/internal/config"
	"github.com/paperlens/analysis-service/internal/embedding"
	"github.com/paperlens/analysis-service/internal/llm"
	"github.com/paperlens/analysis-service/internal/observability"
	"github.com/paperlens/analysis-service/internal/papersources"
	"github.com/paperlens/analysis-service/internal/papersources/openalex"
	"github.com/paperlens/analysis-service/internal/papersources/semanticscholar"
	"github.com/paperlens/analysis-service/internal/rank"
	"github.com/paperlens/analysis-service/internal/resolver"
	httpserver "github.com/paperlens/analysis-service/internal/server/http"
	"github.com/paperlens/analysis-service/internal/verify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("analysis-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("paperlens")
	}

	// Register paper sources. Registration order is provider priority:
	// OpenAlex is primary, Semantic Scholar is the fallback.
	registry := papersources.NewRegistry()
	openAlexClient := openalex.New(openalex.Config{
		BaseURL:    cfg.PaperSources.OpenAlex.BaseURL,
		Email:      cfg.PaperSources.OpenAlex.Email,
		Timeout:    cfg.PaperSources.OpenAlex.Timeout,
		RateLimit:  cfg.PaperSources.OpenAlex.RateLimit,
		MaxResults: cfg.PaperSources.OpenAlex.MaxResults,
		Enabled:    cfg.PaperSources.OpenAlex.Enabled,
	})
	registry.Register(openAlexClient)
	registry.Register(semanticscholar.NewClient(semanticscholar.Config{
		BaseURL:    cfg.PaperSources.SemanticScholar.BaseURL,
		APIKey:     cfg.PaperSources.SemanticScholar.APIKey,
		Timeout:    cfg.PaperSources.SemanticScholar.Timeout,
		RateLimit:  cfg.PaperSources.SemanticScholar.RateLimit,
		MaxResults: cfg.PaperSources.SemanticScholar.MaxResults,
		Enabled:    cfg.PaperSources.SemanticScholar.Enabled,
	}, nil))

	// Assemble the pipeline stages.
	res := resolver.New(registry, resolver.Config{
		MaxCandidates: cfg.Pipeline.SearchMaxCandidates,
	}, logger, metrics)

	scorer := verify.NewScorer(verify.Config{
		VerifiedThreshold:  cfg.Verify.VerifiedThreshold,
		UncertainThreshold: cfg.Verify.UncertainThreshold,
		TitleWeight:        cfg.Verify.TitleWeight,
		AuthorWeight:       cfg.Verify.AuthorWeight,
		YearWeight:         cfg.Verify.YearWeight,
	})

	// OpenAlex also serves citation links and author statistics.
	builder := citegraph.NewBuilder(openAlexClient, citegraph.Config{
		NeighborLimit: cfg.Pipeline.CitationNeighborLimit,
	}, logger, metrics)

	embedClient := llm.NewEmbeddingsClient(llm.EmbeddingsConfig{
		APIKey:     cfg.Embeddings.APIKey,
		BaseURL:    cfg.Embeddings.BaseURL,
		Model:      cfg.Embeddings.Model,
		Timeout:    cfg.Embeddings.Timeout,
		MaxRetries: cfg.Embeddings.MaxRetries,
		RetryDelay: cfg.Embeddings.RetryDelay,
	})
	cachedEmbedder, err := embedding.NewCachedEmbedder(embedClient, cfg.Embeddings.CacheSize, logger, metrics)
	if err != nil {
		return fmt.Errorf("create embedding cache: %w", err)
	}

	ranker := rank.New(rank.Config{
		GraphWeight:    cfg.Rank.GraphWeight,
		SemanticWeight: cfg.Rank.SemanticWeight,
		MaxResults:     cfg.Pipeline.MaxRecommendations,
	}, logger, metrics)

	aggregator := authors.New(openAlexClient, authors.Config{
		MaxInFlight: int64(cfg.Pipeline.MaxInFlight),
	}, logger, metrics)

	pipeline := analysis.New(
		res,
		scorer,
		builder,
		cachedEmbedder,
		embedClient,
		ranker,
		aggregator,
		analysis.Config{
			MaxInFlight:     int64(cfg.Pipeline.MaxInFlight),
			AnalysisTimeout: cfg.Pipeline.AnalysisTimeout,
		},
		logger,
		metrics,
	)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	httpSrv := httpserver.NewServer(httpCfg, pipeline, logger)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("analysis-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down analysis-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("analysis-service shutdown complete")
	return nil
}
