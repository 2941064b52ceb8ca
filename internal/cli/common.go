package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"csvingest/internal/config"
	"csvingest/internal/datasource"
	"csvingest/internal/datasource/file"
	"csvingest/internal/datasource/s3"
	"csvingest/internal/metrics"
	"csvingest/internal/metrics/datadog"
	"csvingest/internal/storage"
)

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	st, err := storage.Open(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageConfig().Kind, err)
	}
	return st, nil
}

// discover lists the CSV sources under cfg.InputDir, a local directory or an
// s3://bucket/prefix URL.
func discover(ctx context.Context, cfg *config.Config) ([]datasource.Source, error) {
	if !s3.IsURL(cfg.InputDir) {
		return file.Discover(cfg.InputDir)
	}
	bucket, prefix, err := s3.ParseURL(cfg.InputDir)
	if err != nil {
		return nil, err
	}
	client, err := s3.NewClient(ctx, s3.Config{
		Region:       cfg.S3.Region,
		Endpoint:     cfg.S3.Endpoint,
		UsePathStyle: cfg.S3.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return s3.Discover(ctx, client, bucket, prefix)
}

// startMetrics installs the configured metrics backend. The returned stop
// function flushes and releases it; it is never nil.
func startMetrics(ctx context.Context, cfg *config.Config, logger *log.Logger) func() {
	backend := strings.ToLower(cfg.Metrics.Backend)
	switch backend {
	case "datadog":
		flushEvery, _ := cfg.FlushInterval()
		// Extra tags may also come from METRICS_TAGS.
		tags := append([]string(nil), cfg.Metrics.Tags...)
		tags = append(tags, datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    cfg.Metrics.Job,
			Tags:       tags,
			FlushEvery: flushEvery,
		})
		if err != nil {
			logger.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		logger.Printf("metrics: backend=%s job_name=%s tags=%v", backend, cfg.Metrics.Job, tags)
		metrics.SetBackend(b)
		return func() {
			// Close stops the periodic flush loop and performs a final Flush.
			if err := b.Close(); err != nil {
				logger.Printf("metrics: datadog close/flush error: %v", err)
			}
			metrics.SetBackend(nil)
		}

	case "", "none":
		logger.Printf("metrics: disabled (backend=%q)", backend)
	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", backend)
	}
	return func() {
		if err := metrics.Flush(); err != nil {
			logger.Printf("metrics: flush error: %v", err)
		}
	}
}
