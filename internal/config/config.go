// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the application.
//
// The two API credentials (GEMINI_API_KEY, FAL_KEY) are intentionally not
// required at load time: a missing credential fails the stage that needs it
// with a configuration error instead of preventing startup.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// External service credentials
	GeminiAPIKey string `env:"GEMINI_API_KEY" json:"-"` // Masked in JSON
	FalKey       string `env:"FAL_KEY" json:"-"`        // Masked in JSON

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/coverloop" json:"temp_dir"`

	// Rendering settings
	CompositeCoverScale float64 `env:"COMPOSITE_COVER_SCALE, default=0.2" json:"composite_cover_scale"`
	OverlayCoverScale   float64 `env:"OVERLAY_COVER_SCALE, default=0.45" json:"overlay_cover_scale"`

	// Animation settings
	VideoNumFrames int `env:"VIDEO_NUM_FRAMES, default=81" json:"video_num_frames"`
	VideoFPS       int `env:"VIDEO_FPS, default=16" json:"video_fps"`

	// Audio mux settings. A value <= 0 disables the hard cap.
	AudioLimitSec int `env:"AUDIO_LIMIT_SEC, default=20" json:"audio_limit_sec"`

	// Transcoding engine settings
	FFmpegPath  string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	FFprobePath string `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"`

	// Optional S3 settings (used to host composite images for the
	// video-generation service instead of fal storage)
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// ClipDurationSec returns the duration in seconds of a generated clip,
// derived from the animation service's fixed frame count and frame rate.
func (c *Config) ClipDurationSec() float64 {
	if c.VideoFPS <= 0 {
		return 0
	}
	return float64(c.VideoNumFrames) / float64(c.VideoFPS)
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, CompositeCoverScale: %.2f, OverlayCoverScale: %.2f, VideoNumFrames: %d, VideoFPS: %d, AudioLimitSec: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.CompositeCoverScale,
		c.OverlayCoverScale,
		c.VideoNumFrames,
		c.VideoFPS,
		c.AudioLimitSec,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
