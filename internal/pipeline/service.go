package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coverloop/coverloop-api/internal/animation"
	"github.com/coverloop/coverloop-api/internal/background"
	"github.com/coverloop/coverloop-api/internal/compose"
	"github.com/coverloop/coverloop-api/internal/media"
	"github.com/coverloop/coverloop-api/internal/storage"
)

// ErrSourceRequired is returned when a run is created without image data.
var ErrSourceRequired = errors.New("pipeline: source image is required")

// ErrCompositeRequired is returned when video generation starts without a
// composite image, e.g. after the background stage degraded to a placeholder.
var ErrCompositeRequired = errors.New("pipeline: no composite image to animate")

// ErrNothingToRetry is returned when a retry is requested but no failed
// stage can be determined.
var ErrNothingToRetry = errors.New("pipeline: no failed stage to retry")

// Options configures the pipeline service.
type Options struct {
	// CompositeScale is the cover size as a fraction of the background's
	// smaller dimension in the still composite.
	CompositeScale float64
	// OverlayScale is the cover size as a fraction of the frame in the
	// in-video overlay pass.
	OverlayScale float64
	// AudioLimitSec hard-caps the muxed output duration. Zero disables
	// the cap.
	AudioLimitSec int
	// PollInterval is how often the animation queue is polled.
	PollInterval time.Duration
	// Submit carries the animation generation parameters.
	Submit animation.SubmitOptions
}

// DefaultOptions returns the service defaults.
func DefaultOptions() Options {
	return Options{
		CompositeScale: 0.2,
		OverlayScale:   0.45,
		AudioLimitSec:  20,
		PollInterval:   animation.DefaultPollInterval,
		Submit:         animation.DefaultSubmitOptions(),
	}
}

// Service orchestrates the pipeline: it sequences background synthesis,
// compositing, animation, overlay transcoding and audio muxing against a
// Run, applying the per-stage failure policy. Stage failures are recorded
// on the run rather than returned; a non-nil error from a stage method
// means the stage could not start (unknown run, invalid state, missing
// input), not that it ran and failed.
type Service struct {
	repo   Repository
	synth  background.Synthesizer
	anim   animation.Client
	host   animation.ImageHost
	proc   media.Processor
	store  storage.Storage
	sink   EventSink
	logger *slog.Logger
	opts   Options
}

// NewService creates a new pipeline Service.
func NewService(
	repo Repository,
	synth background.Synthesizer,
	anim animation.Client,
	host animation.ImageHost,
	proc media.Processor,
	store storage.Storage,
	sink EventSink,
	logger *slog.Logger,
	opts Options,
) *Service {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CompositeScale <= 0 {
		opts.CompositeScale = 0.2
	}
	if opts.OverlayScale <= 0 {
		opts.OverlayScale = 0.45
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = animation.DefaultPollInterval
	}
	if opts.Submit.NumFrames <= 0 {
		opts.Submit = animation.DefaultSubmitOptions()
	}
	return &Service{
		repo:   repo,
		synth:  synth,
		anim:   anim,
		host:   host,
		proc:   proc,
		store:  store,
		sink:   sink,
		logger: logger,
		opts:   opts,
	}
}

// CreateRun creates a new run from an uploaded album cover and persists it.
func (s *Service) CreateRun(ctx context.Context, image []byte, mimeType string) (*Run, error) {
	if len(image) == 0 {
		return nil, ErrSourceRequired
	}

	run := NewRun()
	if err := run.SetSource(image, mimeType); err != nil {
		return nil, err
	}

	s.logger.Info("run created",
		slog.String("run_id", run.ID),
		slog.String("mime_type", mimeType),
		slog.Int("image_bytes", len(image)),
	)

	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ReplaceSource uploads a new album cover into an existing run, invalidating
// every downstream artifact while keeping the attached audio track.
func (s *Service) ReplaceSource(ctx context.Context, runID string, image []byte, mimeType string) (*Run, error) {
	if len(image) == 0 {
		return nil, ErrSourceRequired
	}

	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := run.SetSource(image, mimeType); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *Service) GetRun(ctx context.Context, runID string) (*Run, error) {
	return s.repo.FindByID(ctx, runID)
}

// GenerateBackground runs the background synthesis stage: describe the cover,
// generate a background from the description, and composite the cover on top.
// On failure the run settles with a display placeholder instead of blocking.
func (s *Service) GenerateBackground(ctx context.Context, runID string) (*Run, error) {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := run.StartBackground(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}

	s.sink.RunEvent(run.ID, StageBackground, "synthesizing background")

	result, err := s.synth.Synthesize(ctx, run.SourceImage.Data, run.SourceImage.MimeType)
	if err != nil {
		return s.failBackground(ctx, run, newStageError(StageBackground, backgroundErrorKind(err), err))
	}

	composite, err := compose.ComposePNG(result.ImageData, run.SourceImage.Data, s.opts.CompositeScale)
	if err != nil {
		return s.failBackground(ctx, run, newStageError(StageBackground, KindRender, err))
	}

	if err := run.CompleteBackground(
		result.Description,
		Artifact{Data: result.ImageData, MimeType: result.MimeType},
		Artifact{Data: composite, MimeType: "image/png"},
	); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}

	s.sink.RunEvent(run.ID, StageBackground, "background ready")
	return run, nil
}

// failBackground records a background stage failure and persists the run.
func (s *Service) failBackground(ctx context.Context, run *Run, stageErr *StageError) (*Run, error) {
	s.logger.Warn("background stage failed, advancing with placeholder",
		slog.String("run_id", run.ID),
		slog.String("error", stageErr.Message),
	)
	if err := run.FailBackground(stageErr); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}
	s.sink.RunEvent(run.ID, StageBackground, "background failed: "+stageErr.Message)
	return run, nil
}

// backgroundErrorKind classifies a synthesis failure.
func backgroundErrorKind(err error) ErrorKind {
	switch {
	case errors.Is(err, background.ErrAPIKeyNotSet):
		return KindConfiguration
	case errors.Is(err, background.ErrNoDescription):
		return KindDescription
	default:
		return KindGeneration
	}
}

// GenerateVideo runs the animation stage: host the composite, submit it to
// the video-generation queue, stream progress events, download the resulting
// clip, and apply the cover overlay pass. A generation failure falls back to
// the static composite; an overlay failure keeps the raw clip with a soft
// warning.
func (s *Service) GenerateVideo(ctx context.Context, runID string) (*Run, error) {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Composite.Present() {
		return nil, ErrCompositeRequired
	}
	if err := run.StartVideo(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}

	hostedURL, err := s.host.HostImage(ctx, "composite-"+run.ID+".png", "image/png", run.Composite.Data)
	if err != nil {
		return s.failVideo(ctx, run, newStageError(StageVideo, KindUpload, err))
	}
	s.sink.RunEvent(run.ID, StageVideo, "composite hosted")

	requestID, err := s.anim.Submit(ctx, hostedURL, s.opts.Submit)
	if err != nil {
		return s.failVideo(ctx, run, newStageError(StageVideo, animationErrorKind(err), err))
	}

	s.logger.Info("animation request submitted",
		slog.String("run_id", run.ID),
		slog.String("request_id", requestID),
	)

	var result animation.VideoResult
	for event := range animation.Watch(ctx, s.anim, requestID, s.opts.PollInterval) {
		switch event.Type {
		case animation.EventQueued:
			s.sink.RunEvent(run.ID, StageVideo, fmt.Sprintf("queue position %d", event.QueuePosition))
		case animation.EventLog:
			s.sink.RunEvent(run.ID, StageVideo, event.Message)
		case animation.EventFailed:
			failErr := event.Err
			if failErr == nil {
				failErr = fmt.Errorf("%w: %s", animation.ErrRequestFailed, event.Message)
			}
			return s.failVideo(ctx, run, newStageError(StageVideo, KindAnimation, failErr))
		case animation.EventCompleted:
			result = event.Video
		}
	}
	if result.VideoURL == "" {
		return s.failVideo(ctx, run, newStageError(StageVideo, KindAnimation, animation.ErrNoVideoURL))
	}

	clip, err := s.anim.Download(ctx, result.VideoURL)
	if err != nil {
		return s.failVideo(ctx, run, newStageError(StageVideo, KindAnimation, err))
	}
	if err := run.SetVideoGenerated(result.VideoURL, requestID, Artifact{Data: clip, MimeType: "video/mp4"}); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}
	s.sink.RunEvent(run.ID, StageVideo, "clip downloaded")

	return s.overlay(ctx, run)
}

// RetryOverlay re-runs only the cover overlay pass against the already
// generated clip.
func (s *Service) RetryOverlay(ctx context.Context, runID string) (*Run, error) {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := run.StartOverlay(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}
	return s.overlay(ctx, run)
}

// overlay applies the cover overlay pass to the run's generated clip. The
// run must be in VIDEO_PROCESSING. A transcode failure degrades softly.
func (s *Service) overlay(ctx context.Context, run *Run) (*Run, error) {
	processed, err := s.proc.OverlayCover(ctx, run.GeneratedVideo.Data, run.SourceImage.Data, media.OverlayOpts{
		CoverScale:      s.opts.OverlayScale,
		ClipDurationSec: s.opts.Submit.ClipDurationSec(),
	})
	if err != nil {
		s.logger.Warn("overlay pass failed, keeping raw clip",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
		if degradeErr := run.DegradeOverlay(err.Error()); degradeErr != nil {
			return nil, degradeErr
		}
		if saveErr := s.repo.Save(ctx, run); saveErr != nil {
			return nil, saveErr
		}
		s.sink.RunEvent(run.ID, StageOverlay, "overlay failed, raw clip kept: "+err.Error())
		return run, nil
	}

	if err := run.CompleteOverlay(Artifact{Data: processed, MimeType: "video/mp4"}); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}
	s.sink.RunEvent(run.ID, StageOverlay, "video ready")
	return run, nil
}

// failVideo records a video generation failure and persists the run. The
// static composite stands in for the animation.
func (s *Service) failVideo(ctx context.Context, run *Run, stageErr *StageError) (*Run, error) {
	s.logger.Warn("video stage failed, static fallback in effect",
		slog.String("run_id", run.ID),
		slog.String("error", stageErr.Message),
	)
	if err := run.FailVideo(stageErr); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}
	s.sink.RunEvent(run.ID, StageVideo, "video failed: "+stageErr.Message)
	return run, nil
}

// animationErrorKind classifies a video-generation failure.
func animationErrorKind(err error) ErrorKind {
	switch {
	case errors.Is(err, animation.ErrAPIKeyNotSet):
		return KindConfiguration
	case errors.Is(err, animation.ErrUploadFailed):
		return KindUpload
	default:
		return KindAnimation
	}
}

// AttachAudio stores an uploaded audio track on the run. A previously muxed
// final video is invalidated; everything else is preserved.
func (s *Service) AttachAudio(ctx context.Context, runID string, audio []byte, mimeType string) (*Run, error) {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := run.SetAudio(audio, mimeType); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ProcessAudio runs the audio mux stage: loop the best available clip, pair
// it with the attached audio track, and cap the result. On failure the
// processed video remains exportable.
func (s *Service) ProcessAudio(ctx context.Context, runID string) (*Run, error) {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := run.StartAudio(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}

	// Mux against the overlaid clip when it exists, otherwise the raw one.
	clip := run.ProcessedVideo
	if !clip.Present() {
		clip = run.GeneratedVideo
	}

	s.sink.RunEvent(run.ID, StageAudio, "muxing audio")

	final, err := s.proc.MuxAudio(ctx, clip.Data, run.Audio.Data, s.opts.AudioLimitSec)
	if err != nil {
		s.logger.Warn("audio mux failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
		stageErr := newStageError(StageAudio, KindTranscode, err)
		if failErr := run.FailAudio(stageErr); failErr != nil {
			return nil, failErr
		}
		if saveErr := s.repo.Save(ctx, run); saveErr != nil {
			return nil, saveErr
		}
		s.sink.RunEvent(run.ID, StageAudio, "audio mux failed: "+stageErr.Message)
		return run, nil
	}

	if err := run.CompleteAudio(Artifact{Data: final, MimeType: "video/mp4"}); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, err
	}
	s.sink.RunEvent(run.ID, StageAudio, "final video ready")
	return run, nil
}

// Retry re-invokes a failed stage. When stage is empty, the stage of the
// run's recorded error is retried. Upstream artifacts are retained; only
// the retried stage's artifacts and error are cleared.
func (s *Service) Retry(ctx context.Context, runID string, stage Stage) (*Run, error) {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if stage == "" {
		if run.Err == nil {
			return nil, ErrNothingToRetry
		}
		stage = run.Err.Stage
	}

	switch stage {
	case StageBackground:
		return s.GenerateBackground(ctx, runID)
	case StageVideo:
		return s.GenerateVideo(ctx, runID)
	case StageOverlay:
		return s.RetryOverlay(ctx, runID)
	case StageAudio:
		return s.ProcessAudio(ctx, runID)
	}
	return nil, ErrNothingToRetry
}

// ExportRun selects the best available artifact of a run and stages it under
// its download filename. Being in an error state never blocks export.
func (s *Service) ExportRun(ctx context.Context, runID string) (*Export, error) {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	artifact, stage, err := run.BestArtifact()
	if err != nil {
		return nil, err
	}

	filename := ExportFilename(stage, artifact.MimeType, time.Now())

	// Stage a copy on disk so the export survives the response write.
	path, err := s.store.SaveTemp(ctx, filename, bytes.NewReader(artifact.Data))
	if err != nil {
		s.logger.Warn("export staging failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("export staged",
			slog.String("run_id", run.ID),
			slog.String("path", path),
		)
	}

	return &Export{
		Stage:       stage,
		Filename:    filename,
		ContentType: artifact.MimeType,
		Data:        artifact.Data,
	}, nil
}
