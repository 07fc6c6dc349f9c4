package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"sona/internal/adapter/repo"
	"sona/internal/audio"
	"sona/internal/infra"
	"sona/internal/infra/credentials"
	"sona/internal/providers/stableaudio"
	"sona/internal/storage"
	"sona/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := infra.LoadConfig()
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	if strings.TrimSpace(cfg.StableAudioAPIKey) == "" {
		credStore := credentials.NewStore(runner)
		key, err := credStore.StableAudioAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load stable audio api key from store")
		} else {
			cfg.StableAudioAPIKey = key
		}
	}
	if err := cfg.ValidateWorker(); err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid configuration")
	}

	jobs := repo.NewJobRepository(runner)

	artifacts, err := buildArtifactStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	client, err := stableaudio.NewClient(stableaudio.Options{
		APIKey:     cfg.StableAudioAPIKey,
		BaseURL:    cfg.StableAudioAPIURL,
		Logger:     &logger,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure stable audio client")
	}

	scheduler, err := worker.New(worker.Options{
		Store:             jobs,
		Generator:         client,
		Artifacts:         artifacts,
		Processor:         audio.NewProcessor(nil, logger),
		Logger:            logger,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		PollInterval:      cfg.PollInterval,
		JobTimeout:        cfg.JobTimeout,
		PathPrefix:        cfg.StoragePathPrefix,
		ShutdownGrace:     cfg.ShutdownGrace,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure scheduler")
	}

	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// buildArtifactStore prefers the S3-compatible object store and falls back
// to the local filesystem when no endpoint is configured.
func buildArtifactStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (storage.Store, error) {
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		obj, err := storage.NewObjectStore(storage.ObjectStoreOptions{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.StorageBucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := obj.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		logger.Info().Str("bucket", cfg.StorageBucket).Msg("worker: using object storage")
		return obj, nil
	}

	path := cfg.StoragePath
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	fs, err := storage.NewFileStore(path, cfg.StorageBaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("path", path).Msg("worker: using filesystem storage")
	return fs, nil
}
