package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /runs", h.CreateRun)
	mux.HandleFunc("GET /runs/{id}", h.GetRun)
	mux.HandleFunc("POST /runs/{id}/image", h.ReplaceImage)
	mux.HandleFunc("POST /runs/{id}/background", h.GenerateBackground)
	mux.HandleFunc("POST /runs/{id}/video", h.GenerateVideo)
	mux.HandleFunc("POST /runs/{id}/audio", h.AttachAudio)
	mux.HandleFunc("POST /runs/{id}/final", h.ProcessAudio)
	mux.HandleFunc("POST /runs/{id}/retry", h.Retry)
	mux.HandleFunc("GET /runs/{id}/export", h.Export)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
