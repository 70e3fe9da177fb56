package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/storm-dsd-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-dsd-etl/internal/adapter/kafka"
	"github.com/couchcryptid/storm-dsd-etl/internal/adapter/mapbox"
	sqliteadapter "github.com/couchcryptid/storm-dsd-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-dsd-etl/internal/config"
	"github.com/couchcryptid/storm-dsd-etl/internal/domain"
	"github.com/couchcryptid/storm-dsd-etl/internal/observability"
	"github.com/couchcryptid/storm-dsd-etl/internal/pipeline"
)

// sink is a BatchLoader that owns a connection.
type sink interface {
	pipeline.BatchLoader
	io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	writer, err := openSink(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Error("failed to open sink", "sink", cfg.Sink, "error", err)
		os.Exit(1)
	}

	opts := domain.DefaultProcessOptions()
	opts.DropMinMM = cfg.DropMinMM
	opts.DropMaxMM = cfg.DropMaxMM
	opts.AirPressureMb = cfg.AirPressureMb

	reader := kafkaadapter.NewReader(cfg, logger)
	transformer := pipeline.NewTransformer(geocoder, opts, metrics, logger)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, transformer, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}

	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("sink close error", "sink", cfg.Sink, "error", err)
	}

	logger.Info("shutdown complete")
}

func openSink(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (sink, error) {
	switch cfg.Sink {
	case config.SinkSQLite:
		w, err := sqliteadapter.NewWriter(ctx, cfg.SQLitePath, metrics, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		logger.Info("kafka sink", "topic", cfg.KafkaSinkTopic, "format", cfg.SinkFormat)
		return kafkaadapter.NewWriter(cfg, logger), nil
	}
}
