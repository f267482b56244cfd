package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/coverloop/coverloop-api/internal/pipeline"
)

// Handlers contains the HTTP handlers for the API. Pipeline stages run
// synchronously within the request: the design assumes a single active run
// driven by one caller, so there is no job queue behind these endpoints.
type Handlers struct {
	service   *pipeline.Service
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *pipeline.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateRun handles POST /runs requests: upload an album cover and start a
// fresh pipeline run.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid base64 image data", "INVALID_BASE64")
		return
	}

	run, err := h.service.CreateRun(r.Context(), image, req.MimeType)
	if err != nil {
		h.logger.Error("failed to create run",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create run", "RUN_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, toRunResponse(run))
}

// ReplaceImage handles POST /runs/{id}/image requests: swap the source
// cover on an existing run. Downstream artifacts are invalidated; attached
// audio is kept.
func (h *Handlers) ReplaceImage(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run ID is required", "MISSING_RUN_ID")
		return
	}

	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid base64 image data", "INVALID_BASE64")
		return
	}

	run, err := h.service.ReplaceSource(r.Context(), runID, image, req.MimeType)
	if err != nil {
		h.writeServiceError(w, runID, err)
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// GetRun handles GET /runs/{id} requests.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run ID is required", "MISSING_RUN_ID")
		return
	}

	run, err := h.service.GetRun(r.Context(), runID)
	if err != nil {
		h.writeServiceError(w, runID, err)
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// GenerateBackground handles POST /runs/{id}/background requests: describe
// the cover, generate a background image and composite the cover onto it.
// A synthesis failure does not fail the request; the degraded run state is
// returned with the recorded error.
func (h *Handlers) GenerateBackground(w http.ResponseWriter, r *http.Request) {
	h.runStage(w, r, h.service.GenerateBackground)
}

// GenerateVideo handles POST /runs/{id}/video requests: host the composite,
// animate it and apply the cover overlay pass.
func (h *Handlers) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	h.runStage(w, r, h.service.GenerateVideo)
}

// ProcessAudio handles POST /runs/{id}/final requests: loop the clip and
// mux it with the attached audio track.
func (h *Handlers) ProcessAudio(w http.ResponseWriter, r *http.Request) {
	h.runStage(w, r, h.service.ProcessAudio)
}

// runStage invokes one synchronous pipeline stage and writes the resulting
// run state.
func (h *Handlers) runStage(w http.ResponseWriter, r *http.Request, stage func(ctx context.Context, runID string) (*pipeline.Run, error)) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run ID is required", "MISSING_RUN_ID")
		return
	}

	run, err := stage(r.Context(), runID)
	if err != nil {
		h.writeServiceError(w, runID, err)
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// AttachAudio handles POST /runs/{id}/audio requests.
func (h *Handlers) AttachAudio(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run ID is required", "MISSING_RUN_ID")
		return
	}

	var req AttachAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid base64 audio data", "INVALID_BASE64")
		return
	}

	run, err := h.service.AttachAudio(r.Context(), runID, audio, req.MimeType)
	if err != nil {
		h.writeServiceError(w, runID, err)
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// Retry handles POST /runs/{id}/retry requests: re-invoke a failed stage.
// Only the retried stage's artifacts and error are cleared.
func (h *Handlers) Retry(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run ID is required", "MISSING_RUN_ID")
		return
	}

	// The body is optional; an empty body retries the recorded failure.
	var req RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	run, err := h.service.Retry(r.Context(), runID, pipeline.Stage(req.Stage))
	if err != nil {
		h.writeServiceError(w, runID, err)
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// Export handles GET /runs/{id}/export requests: serve the most-downstream
// available artifact as a download.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run ID is required", "MISSING_RUN_ID")
		return
	}

	export, err := h.service.ExportRun(r.Context(), runID)
	if err != nil {
		h.writeServiceError(w, runID, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(export.Data); err != nil {
		h.logger.Error("failed to write export body",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
}

// writeServiceError maps pipeline service errors to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, runID string, err error) {
	switch {
	case errors.Is(err, pipeline.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run not found", "RUN_NOT_FOUND")
	case errors.Is(err, pipeline.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "stage not allowed in current state", "INVALID_STATE")
	case errors.Is(err, pipeline.ErrCompositeRequired):
		writeError(w, http.StatusConflict, "no composite image to animate", "COMPOSITE_REQUIRED")
	case errors.Is(err, pipeline.ErrAudioRequired):
		writeError(w, http.StatusConflict, "no audio track attached", "AUDIO_REQUIRED")
	case errors.Is(err, pipeline.ErrAudioNotAccepted):
		writeError(w, http.StatusConflict, "audio can only be attached once a video is ready", "AUDIO_NOT_ACCEPTED")
	case errors.Is(err, pipeline.ErrNothingToRetry):
		writeError(w, http.StatusConflict, "no failed stage to retry", "NOTHING_TO_RETRY")
	case errors.Is(err, pipeline.ErrNoExportableArtifact):
		writeError(w, http.StatusNotFound, "no exportable artifact", "NO_ARTIFACT")
	case errors.Is(err, pipeline.ErrSourceRequired):
		writeError(w, http.StatusBadRequest, "source image is required", "SOURCE_REQUIRED")
	default:
		h.logger.Error("pipeline stage failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
