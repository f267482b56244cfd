package pipeline

import "fmt"

// Stage identifies the pipeline stage that produced an error or artifact.
type Stage string

const (
	// StageUpload is the source image upload stage.
	StageUpload Stage = "upload"
	// StageBackground is the background synthesis and composite stage.
	StageBackground Stage = "background"
	// StageVideo is the animation (image-to-video) stage.
	StageVideo Stage = "video"
	// StageOverlay is the cover overlay transcoding stage.
	StageOverlay Stage = "overlay"
	// StageAudio is the audio mux stage.
	StageAudio Stage = "audio"
)

// IsValid returns true if the stage is one that can be re-invoked.
func (s Stage) IsValid() bool {
	switch s {
	case StageBackground, StageVideo, StageOverlay, StageAudio:
		return true
	}
	return false
}

// ErrorKind classifies a stage failure.
type ErrorKind string

const (
	// KindDescription indicates the description service returned no text.
	KindDescription ErrorKind = "description_error"
	// KindGeneration indicates the image-generation service returned no image.
	KindGeneration ErrorKind = "generation_error"
	// KindUpload indicates hosting the composite for the animation service failed.
	KindUpload ErrorKind = "upload_error"
	// KindAnimation indicates the video-generation service failed.
	KindAnimation ErrorKind = "animation_error"
	// KindTranscode indicates a transcoding pass failed.
	KindTranscode ErrorKind = "transcode_error"
	// KindConfiguration indicates a required credential is missing.
	KindConfiguration ErrorKind = "configuration_error"
	// KindRender indicates the composite renderer failed to decode an input.
	KindRender ErrorKind = "render_error"
)

// StageError is a stage-tagged pipeline error. Failures never cross stage
// boundaries unhandled: each stage converts its own failure into a
// StageError recorded on the run, leaving upstream artifacts untouched.
type StageError struct {
	// Stage is the pipeline stage that failed.
	Stage Stage
	// Kind classifies the failure.
	Kind ErrorKind
	// Message is the human-readable error description.
	Message string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %s: %s", e.Stage, e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// newStageError builds a StageError from an underlying error.
func newStageError(stage Stage, kind ErrorKind, err error) *StageError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &StageError{Stage: stage, Kind: kind, Message: msg, Err: err}
}
