// Package pipeline provides the Run aggregate and the orchestration service
// for turning an album cover into a looping visualizer video. A Run holds the
// state machine for the staged flow (upload, background synthesis, composite,
// animation, cover overlay, audio mux) together with every artifact produced
// along the way and the failure/fallback bookkeeping for each stage.
package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/coverloop/coverloop-api/internal/pipeline/id"
)

// State represents the current position of a Run in the staged flow.
type State string

const (
	// StateIdle indicates no source image has been uploaded yet.
	StateIdle State = "IDLE"
	// StateImageUploaded indicates the source image is set and background
	// synthesis may start.
	StateImageUploaded State = "IMAGE_UPLOADED"
	// StateBackgroundGenerating indicates background synthesis is running.
	StateBackgroundGenerating State = "BACKGROUND_GENERATING"
	// StateBackgroundReady indicates the background stage settled. When
	// synthesis failed, the run still reaches this state with a
	// display placeholder instead of a real background artifact.
	StateBackgroundReady State = "BACKGROUND_READY"
	// StateVideoGenerating indicates the animation service is working.
	StateVideoGenerating State = "VIDEO_GENERATING"
	// StateVideoProcessing indicates the generated clip is downloaded and
	// the cover overlay pass is running.
	StateVideoProcessing State = "VIDEO_PROCESSING"
	// StateVideoReady indicates a playable clip exists. When the overlay
	// pass failed, the raw generated clip remains the active artifact and
	// a soft warning is recorded.
	StateVideoReady State = "VIDEO_READY"
	// StateAudioProcessing indicates the audio mux pass is running.
	StateAudioProcessing State = "AUDIO_PROCESSING"
	// StateFinalReady indicates the muxed final video exists.
	StateFinalReady State = "FINAL_READY"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("pipeline: invalid state transition")

// ErrAudioRequired is returned when the audio mux stage starts without an
// attached audio track.
var ErrAudioRequired = errors.New("pipeline: no audio track attached")

// ErrAudioNotAccepted is returned when audio is attached before a playable
// clip exists.
var ErrAudioNotAccepted = errors.New("pipeline: audio can only be attached once a video is ready")

// validTransitions defines which state transitions are allowed. Uploading a
// new source image restarts the run, so IMAGE_UPLOADED is reachable from
// every state.
var validTransitions = map[State][]State{
	StateIdle:                 {StateImageUploaded},
	StateImageUploaded:        {StateImageUploaded, StateBackgroundGenerating},
	StateBackgroundGenerating: {StateImageUploaded, StateBackgroundReady},
	StateBackgroundReady:      {StateImageUploaded, StateBackgroundGenerating, StateVideoGenerating},
	StateVideoGenerating:      {StateImageUploaded, StateBackgroundReady, StateVideoProcessing},
	StateVideoProcessing:      {StateImageUploaded, StateVideoReady},
	StateVideoReady:           {StateImageUploaded, StateBackgroundGenerating, StateVideoGenerating, StateVideoProcessing, StateAudioProcessing},
	StateAudioProcessing:      {StateImageUploaded, StateVideoReady, StateFinalReady},
	StateFinalReady:           {StateImageUploaded, StateVideoReady, StateVideoGenerating, StateAudioProcessing},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Artifact is one immutable media output of a pipeline stage.
type Artifact struct {
	// Data is the raw bytes of the artifact.
	Data []byte
	// MimeType is the artifact's content type.
	MimeType string
}

// Present returns true if the artifact holds data.
func (a Artifact) Present() bool {
	return len(a.Data) > 0
}

// clone returns a deep copy of the artifact.
func (a Artifact) clone() Artifact {
	if a.Data == nil {
		return Artifact{MimeType: a.MimeType}
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return Artifact{Data: data, MimeType: a.MimeType}
}

// Run represents one album-cover-to-video pipeline run. It is the aggregate
// root: all artifact and flag mutations go through its methods, which guard
// the state machine and keep the invalidation rules in one place.
type Run struct {
	mu sync.RWMutex

	// ID is the unique identifier for this run.
	ID string
	// State is the current position in the staged flow.
	State State

	// SourceImage is the user's uploaded album cover.
	SourceImage Artifact
	// Description is the scene description extracted from the cover.
	Description string
	// Background is the generated background image.
	Background Artifact
	// Composite is the background with the cover centered on top.
	Composite Artifact
	// VideoURL is the remote reference to the generated clip.
	VideoURL string
	// RequestID is the animation service's queue request ID.
	RequestID string
	// GeneratedVideo is the downloaded raw clip.
	GeneratedVideo Artifact
	// ProcessedVideo is the clip after the cover overlay pass.
	ProcessedVideo Artifact
	// Audio is the user's uploaded audio track, optional.
	Audio Artifact
	// FinalVideo is the looped clip muxed with the audio track.
	FinalVideo Artifact

	// BackgroundPlaceholder is set when background synthesis failed and
	// the run advanced with a display placeholder instead.
	BackgroundPlaceholder bool
	// StaticFallback is set when video generation failed and the static
	// composite stands in for the animation.
	StaticFallback bool
	// OverlayWarning carries the soft warning recorded when the overlay
	// pass failed and the raw clip stayed active.
	OverlayWarning string

	// Err is the most recent stage-tagged error, cleared when the failed
	// stage is re-invoked.
	Err *StageError

	// CreatedAt is when the run was created.
	CreatedAt time.Time
	// UpdatedAt is when the run was last updated.
	UpdatedAt time.Time
}

// NewRun creates a new Run with a generated ID in the IDLE state.
func NewRun() *Run {
	now := time.Now()
	return &Run{
		ID:        id.Generate(),
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewRunWithID creates a new Run with the specified ID and IDLE state.
// Useful for testing or when the ID needs to be externally generated.
func NewRunWithID(runID string) *Run {
	now := time.Now()
	return &Run{
		ID:        runID,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// transitionTo changes the run state. Callers must hold the write lock.
func (r *Run) transitionTo(state State) error {
	if !canTransition(r.State, state) {
		return ErrInvalidTransition
	}
	r.State = state
	r.UpdatedAt = time.Now()
	return nil
}

// SetSource stores a newly uploaded album cover and invalidates every
// downstream artifact. The attached audio track survives a re-upload.
func (r *Run) SetSource(data []byte, mimeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionTo(StateImageUploaded); err != nil {
		return err
	}

	r.SourceImage = Artifact{Data: data, MimeType: mimeType}
	r.Description = ""
	r.Background = Artifact{}
	r.Composite = Artifact{}
	r.VideoURL = ""
	r.RequestID = ""
	r.GeneratedVideo = Artifact{}
	r.ProcessedVideo = Artifact{}
	r.FinalVideo = Artifact{}
	r.BackgroundPlaceholder = false
	r.StaticFallback = false
	r.OverlayWarning = ""
	r.Err = nil
	return nil
}

// StartBackground enters the background synthesis stage, clearing the
// previous background artifacts and any recorded error for the stage.
func (r *Run) StartBackground() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionTo(StateBackgroundGenerating); err != nil {
		return err
	}

	r.Description = ""
	r.Background = Artifact{}
	r.Composite = Artifact{}
	r.BackgroundPlaceholder = false
	r.Err = nil
	return nil
}

// CompleteBackground records the synthesized description, background and
// composite, and settles the background stage.
func (r *Run) CompleteBackground(description string, background, composite Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionTo(StateBackgroundReady); err != nil {
		return err
	}

	r.Description = description
	r.Background = background
	r.Composite = composite
	r.BackgroundPlaceholder = false
	r.Err = nil
	return nil
}

// FailBackground records a background stage failure. The run still settles
// in BACKGROUND_READY so a placeholder can be shown; no background or
// composite artifact is produced.
func (r *Run) FailBackground(stageErr *StageError) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionTo(StateBackgroundReady); err != nil {
		return err
	}

	r.Background = Artifact{}
	r.Composite = Artifact{}
	r.BackgroundPlaceholder = true
	r.Err = stageErr
	return nil
}

// StartVideo enters the video generation stage, clearing the previous clip
// artifacts and any recorded error for the stage.
func (r *Run) StartVideo() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionTo(StateVideoGenerating); err != nil {
		return err
	}

	r.VideoURL = ""
	r.RequestID = ""
	r.GeneratedVideo = Artifact{}
	r.ProcessedVideo = Artifact{}
	r.FinalVideo = Artifact{}
	r.StaticFallback = false
	r.OverlayWarning = ""
	r.Err = nil
	return nil
}

// SetVideoGenerated records the generated clip and moves the run into the
// overlay processing stage.
func (r *Run) SetVideoGenerated(videoURL, requestID string, video Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionTo(StateVideoProcessing); err != nil {
		return err
	}

	r.VideoURL = videoURL
	r.RequestID = requestID
	r.GeneratedVideo = video
	return nil
}

// FailVideo records a video generation failure and falls back to the
// background stage with the static composite standing in for the animation.
func (r *Run) FailVideo(stageErr *StageError) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionTo(StateBackgroundReady); err != nil {
		return err
	}

	r.StaticFallback = true
	r.Err = stageErr
	return nil
}

// StartOverlay re-enters the overlay processing stage for an existing
// generated clip, clearing the previous overlay result and warning.
func (r *Run) StartOverlay() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.GeneratedVideo.Present() {
		return ErrInvalidTransition
	}
	if err := r.transitionTo(StateVideoProcessing); err != nil {
		return err
	}

	r.ProcessedVideo = Artifact{}
	r.OverlayWarning = ""
	r.Err = nil
	return nil
}

// CompleteOverlay records the overlaid clip and settles the video stage.
func (r *Run) CompleteOverlay(processed Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionTo(StateVideoReady); err != nil {
		return err
	}

	r.ProcessedVideo = processed
	r.OverlayWarning = ""
	r.Err = nil
	return nil
}

// DegradeOverlay settles the video stage without an overlay result: the raw
// generated clip stays active and a soft warning is recorded. Unlike the
// other stage failures this does not set Err; the clip is still usable.
func (r *Run) DegradeOverlay(warning string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionTo(StateVideoReady); err != nil {
		return err
	}

	r.ProcessedVideo = Artifact{}
	r.OverlayWarning = warning
	return nil
}

// SetAudio attaches an audio track. The run state is unchanged except that a
// previously muxed final video is invalidated, dropping FINAL_READY back to
// VIDEO_READY.
func (r *Run) SetAudio(data []byte, mimeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.State {
	case StateVideoReady, StateAudioProcessing:
	case StateFinalReady:
		if err := r.transitionTo(StateVideoReady); err != nil {
			return err
		}
	default:
		return ErrAudioNotAccepted
	}

	r.Audio = Artifact{Data: data, MimeType: mimeType}
	r.FinalVideo = Artifact{}
	r.UpdatedAt = time.Now()
	return nil
}

// StartAudio enters the audio mux stage. An audio track must be attached.
func (r *Run) StartAudio() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Audio.Present() {
		return ErrAudioRequired
	}
	if err := r.transitionTo(StateAudioProcessing); err != nil {
		return err
	}

	r.FinalVideo = Artifact{}
	r.Err = nil
	return nil
}

// CompleteAudio records the muxed final video.
func (r *Run) CompleteAudio(final Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionTo(StateFinalReady); err != nil {
		return err
	}

	r.FinalVideo = final
	r.Err = nil
	return nil
}

// FailAudio records an audio mux failure. The run falls back to VIDEO_READY;
// the processed video remains exportable.
func (r *Run) FailAudio(stageErr *StageError) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionTo(StateVideoReady); err != nil {
		return err
	}

	r.FinalVideo = Artifact{}
	r.Err = stageErr
	return nil
}

// GetState returns the current run state (thread-safe).
func (r *Run) GetState() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.State
}

// LastError returns the most recent stage-tagged error, or nil.
func (r *Run) LastError() *StageError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Err
}

// Clone creates a deep copy of the run for safe reads.
func (r *Run) Clone() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := &Run{
		ID:                    r.ID,
		State:                 r.State,
		SourceImage:           r.SourceImage.clone(),
		Description:           r.Description,
		Background:            r.Background.clone(),
		Composite:             r.Composite.clone(),
		VideoURL:              r.VideoURL,
		RequestID:             r.RequestID,
		GeneratedVideo:        r.GeneratedVideo.clone(),
		ProcessedVideo:        r.ProcessedVideo.clone(),
		Audio:                 r.Audio.clone(),
		FinalVideo:            r.FinalVideo.clone(),
		BackgroundPlaceholder: r.BackgroundPlaceholder,
		StaticFallback:        r.StaticFallback,
		OverlayWarning:        r.OverlayWarning,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
	if r.Err != nil {
		errCopy := *r.Err
		clone.Err = &errCopy
	}
	return clone
}
