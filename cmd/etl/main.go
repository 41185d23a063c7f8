package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	amqpadapter "github.com/couchcryptid/tweet-collection-etl/internal/adapter/amqp"
	"github.com/couchcryptid/tweet-collection-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/tweet-collection-etl/internal/adapter/kafka"
	"github.com/couchcryptid/tweet-collection-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/tweet-collection-etl/internal/collection"
	"github.com/couchcryptid/tweet-collection-etl/internal/config"
	"github.com/couchcryptid/tweet-collection-etl/internal/domain"
	"github.com/couchcryptid/tweet-collection-etl/internal/observability"
	"github.com/couchcryptid/tweet-collection-etl/internal/pipeline"
)

// loader is a pipeline sink that owns a connection.
type loader interface {
	pipeline.BatchLoader
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	root, paths, format, err := resolveCollection(cfg)
	if err != nil {
		logger.Error("failed to resolve collection", "error", err)
		os.Exit(1)
	}
	logger.Info("collection resolved", "root", root, "segments", len(paths), "format", format)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	sink, err := newLoader(cfg, logger)
	if err != nil {
		logger.Error("failed to create sink", "sink", cfg.Sink, "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	runID := pipeline.NewRunID(clock)
	logger = logger.With("run_id", runID)

	extractor := collection.NewExtractor(paths, format, logger, metrics)
	transformer := pipeline.NewTransformer(geocoder, clock, runID, logger)
	p := pipeline.New(extractor, transformer, sink, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, func() httpadapter.Status {
		return httpadapter.Status{
			RunID:      runID,
			Collection: root,
			Segments:   len(paths),
			Done:       p.Done(),
			Sink:       cfg.Sink,
			Include:    cfg.CollectionInclude,
		}
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline. The process exits once the collection is exhausted.
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-finished:
		logger.Info("collection processed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	stop()
	closeExtractor(shutdownCtx, finished, extractor, logger)
	if err := sink.Close(); err != nil {
		logger.Error("sink close error", "sink", cfg.Sink, "error", err)
	}

	logger.Info("shutdown complete")
}

// closeExtractor closes the extractor once the pipeline goroutine has
// returned. If ctx expires first the extractor is left open; the pipeline may
// still be reading from it.
func closeExtractor(ctx context.Context, finished <-chan struct{}, extractor io.Closer, logger *slog.Logger) bool {
	select {
	case <-finished:
	case <-ctx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout, leaving extractor open")
		return false
	}
	if err := extractor.Close(); err != nil {
		logger.Error("extractor close error", "error", err)
	}
	return true
}

// resolveCollection returns the collection root and the files to read, from
// the manifest when one is configured and from COLLECTION_PATH otherwise.
func resolveCollection(cfg *config.Config) (string, []string, collection.Format, error) {
	if cfg.CollectionManifest != "" {
		m, err := collection.LoadManifest(cfg.CollectionManifest)
		if err != nil {
			return "", nil, "", err
		}
		paths, err := m.Segments()
		return m.Root, paths, m.Format, err
	}

	format, err := collection.ParseFormat(cfg.CollectionFormat)
	if err != nil {
		return "", nil, "", err
	}
	paths, err := collection.Discover(cfg.CollectionPath, cfg.CollectionInclude)
	return cfg.CollectionPath, paths, format, err
}

func newLoader(cfg *config.Config, logger *slog.Logger) (loader, error) {
	switch cfg.Sink {
	case config.SinkKafka:
		return kafkaadapter.NewWriter(cfg, logger), nil
	case config.SinkAMQP:
		return amqpadapter.NewPublisher(cfg.AMQPURL, cfg.AMQPQueue, logger)
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}
