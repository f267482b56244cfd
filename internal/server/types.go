// Package server provides the HTTP server for the CoverLoop API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/coverloop/coverloop-api/internal/pipeline"
)

// CreateRunRequest is the HTTP request body for creating a run or replacing
// its album cover.
type CreateRunRequest struct {
	// ImageBase64 is the base64-encoded album cover.
	ImageBase64 string `json:"image_base64" validate:"required,base64"`
	// MimeType is the cover's content type. Only JPEG and PNG are accepted.
	MimeType string `json:"mime_type" validate:"required,oneof=image/jpeg image/png"`
}

// AttachAudioRequest is the HTTP request body for attaching an audio track.
type AttachAudioRequest struct {
	// AudioBase64 is the base64-encoded audio track.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// MimeType is the track's content type.
	MimeType string `json:"mime_type" validate:"required,oneof=audio/mpeg audio/mp3 audio/wav audio/ogg"`
}

// RetryRequest is the HTTP request body for retrying a failed stage. When
// Stage is empty, the stage of the run's recorded error is retried.
type RetryRequest struct {
	Stage string `json:"stage" validate:"omitempty,oneof=background video overlay audio"`
}

// StageErrorResponse describes a recorded stage failure.
type StageErrorResponse struct {
	// Stage is the pipeline stage that failed.
	Stage string `json:"stage"`
	// Kind classifies the failure.
	Kind string `json:"kind"`
	// Message is the human-readable error description.
	Message string `json:"message"`
}

// RunResponse is the HTTP representation of a pipeline run. Artifact bytes
// are never inlined; the export endpoint serves the best available one.
type RunResponse struct {
	// ID is the unique identifier for the run.
	ID string `json:"id"`
	// State is the run's position in the staged flow.
	State string `json:"state"`
	// Description is the scene description extracted from the cover.
	Description string `json:"description,omitempty"`
	// VideoURL is the remote reference to the generated clip.
	VideoURL string `json:"video_url,omitempty"`

	// Artifact presence flags.
	HasBackground     bool `json:"has_background"`
	HasComposite      bool `json:"has_composite"`
	HasVideo          bool `json:"has_video"`
	HasProcessedVideo bool `json:"has_processed_video"`
	HasAudio          bool `json:"has_audio"`
	HasFinalVideo     bool `json:"has_final_video"`

	// BackgroundPlaceholder is set when the background stage degraded to
	// a display placeholder.
	BackgroundPlaceholder bool `json:"background_placeholder,omitempty"`
	// StaticFallback is set when video generation failed and the static
	// composite stands in.
	StaticFallback bool `json:"static_fallback,omitempty"`
	// OverlayWarning carries the soft warning from a failed overlay pass.
	OverlayWarning string `json:"overlay_warning,omitempty"`
	// Error is the most recent stage failure, if any.
	Error *StageErrorResponse `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// toRunResponse maps a run to its HTTP representation.
func toRunResponse(run *pipeline.Run) RunResponse {
	resp := RunResponse{
		ID:                    run.ID,
		State:                 string(run.State),
		Description:           run.Description,
		VideoURL:              run.VideoURL,
		HasBackground:         run.Background.Present(),
		HasComposite:          run.Composite.Present(),
		HasVideo:              run.GeneratedVideo.Present(),
		HasProcessedVideo:     run.ProcessedVideo.Present(),
		HasAudio:              run.Audio.Present(),
		HasFinalVideo:         run.FinalVideo.Present(),
		BackgroundPlaceholder: run.BackgroundPlaceholder,
		StaticFallback:        run.StaticFallback,
		OverlayWarning:        run.OverlayWarning,
		CreatedAt:             run.CreatedAt,
		UpdatedAt:             run.UpdatedAt,
	}
	if run.Err != nil {
		resp.Error = &StageErrorResponse{
			Stage:   string(run.Err.Stage),
			Kind:    string(run.Err.Kind),
			Message: run.Err.Message,
		}
	}
	return resp
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
