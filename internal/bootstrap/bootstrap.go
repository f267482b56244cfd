// Package bootstrap provides dependency initialization for the CoverLoop API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/coverloop/coverloop-api/internal/animation"
	"github.com/coverloop/coverloop-api/internal/background"
	"github.com/coverloop/coverloop-api/internal/config"
	"github.com/coverloop/coverloop-api/internal/media"
	"github.com/coverloop/coverloop-api/internal/pipeline"
	"github.com/coverloop/coverloop-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	PipelineService *pipeline.Service
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize the background synthesizer
	synth := background.NewGeminiSynthesizer(
		background.WithAPIKey(cfg.GeminiAPIKey),
		background.WithLogger(logger),
	)

	// Initialize the fal animation client
	animClient, err := animation.NewClient(animation.WithAPIKey(cfg.FalKey))
	if err != nil {
		return nil, fmt.Errorf("create animation client: %w", err)
	}

	// Composite images are hosted on S3 when configured, otherwise on fal
	// storage via the animation client itself.
	var host animation.ImageHost = animClient
	if s3Store, ok := store.(*storage.S3Storage); ok {
		host = s3Store
	}

	// Initialize the ffmpeg processor
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath, store.TempDir())

	// Initialize run repository
	repo := pipeline.NewMemoryRepository()

	opts := pipeline.DefaultOptions()
	opts.CompositeScale = cfg.CompositeCoverScale
	opts.OverlayScale = cfg.OverlayCoverScale
	opts.AudioLimitSec = cfg.AudioLimitSec
	opts.Submit.NumFrames = cfg.VideoNumFrames
	opts.Submit.FramesPerSecond = cfg.VideoFPS

	svc := pipeline.NewService(
		repo,
		synth,
		animClient,
		host,
		processor,
		store,
		pipeline.NewLogSink(logger),
		logger,
		opts,
	)

	return &Dependencies{
		PipelineService: svc,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
