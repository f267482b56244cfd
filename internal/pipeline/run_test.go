package pipeline

import (
	"errors"
	"testing"
)

// advanceTo walks a fresh run through the happy path until it reaches the
// wanted state.
func advanceTo(t *testing.T, state State) *Run {
	t.Helper()

	run := NewRunWithID("test")
	steps := []func() error{
		func() error { return run.SetSource([]byte("cover"), "image/png") },
		func() error { return run.StartBackground() },
		func() error {
			return run.CompleteBackground("desc",
				Artifact{Data: []byte("bg"), MimeType: "image/png"},
				Artifact{Data: []byte("composite"), MimeType: "image/png"},
			)
		},
		func() error { return run.StartVideo() },
		func() error {
			return run.SetVideoGenerated("https://cdn/video.mp4", "req-1",
				Artifact{Data: []byte("clip"), MimeType: "video/mp4"})
		},
		func() error {
			return run.CompleteOverlay(Artifact{Data: []byte("processed"), MimeType: "video/mp4"})
		},
		func() error { return run.SetAudio([]byte("audio"), "audio/mpeg") },
		func() error { return run.StartAudio() },
		func() error {
			return run.CompleteAudio(Artifact{Data: []byte("final"), MimeType: "video/mp4"})
		},
	}

	for _, step := range steps {
		if run.State == state {
			return run
		}
		if err := step(); err != nil {
			t.Fatalf("advancing to %s: %v", state, err)
		}
	}
	if run.State != state {
		t.Fatalf("could not advance to %s, stuck at %s", state, run.State)
	}
	return run
}

func TestNewRun(t *testing.T) {
	run := NewRun()

	if run.ID == "" {
		t.Error("expected run to have an ID")
	}
	if run.State != StateIdle {
		t.Errorf("expected state %s, got %s", StateIdle, run.State)
	}
	if run.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if run.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

func TestNewRunWithID(t *testing.T) {
	run := NewRunWithID("test-run-123")

	if run.ID != "test-run-123" {
		t.Errorf("expected ID test-run-123, got %s", run.ID)
	}
	if run.State != StateIdle {
		t.Errorf("expected state %s, got %s", StateIdle, run.State)
	}
}

func TestRun_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		wantErr bool
	}{
		{"IDLE to IMAGE_UPLOADED", StateIdle, StateImageUploaded, false},
		{"IMAGE_UPLOADED to BACKGROUND_GENERATING", StateImageUploaded, StateBackgroundGenerating, false},
		{"BACKGROUND_GENERATING to BACKGROUND_READY", StateBackgroundGenerating, StateBackgroundReady, false},
		{"BACKGROUND_READY to VIDEO_GENERATING", StateBackgroundReady, StateVideoGenerating, false},
		{"BACKGROUND_READY retry", StateBackgroundReady, StateBackgroundGenerating, false},
		{"VIDEO_GENERATING to VIDEO_PROCESSING", StateVideoGenerating, StateVideoProcessing, false},
		{"VIDEO_GENERATING failure fallback", StateVideoGenerating, StateBackgroundReady, false},
		{"VIDEO_PROCESSING to VIDEO_READY", StateVideoProcessing, StateVideoReady, false},
		{"VIDEO_READY to AUDIO_PROCESSING", StateVideoReady, StateAudioProcessing, false},
		{"VIDEO_READY video retry", StateVideoReady, StateVideoGenerating, false},
		{"AUDIO_PROCESSING to FINAL_READY", StateAudioProcessing, StateFinalReady, false},
		{"AUDIO_PROCESSING failure fallback", StateAudioProcessing, StateVideoReady, false},
		{"FINAL_READY audio invalidation", StateFinalReady, StateVideoReady, false},
		// Re-upload restarts the run from anywhere
		{"FINAL_READY to IMAGE_UPLOADED", StateFinalReady, StateImageUploaded, false},
		{"VIDEO_GENERATING to IMAGE_UPLOADED", StateVideoGenerating, StateImageUploaded, false},
		// Invalid jumps
		{"IDLE to BACKGROUND_READY", StateIdle, StateBackgroundReady, true},
		{"IMAGE_UPLOADED to VIDEO_GENERATING", StateImageUploaded, StateVideoGenerating, true},
		{"BACKGROUND_READY to FINAL_READY", StateBackgroundReady, StateFinalReady, true},
		{"IDLE to FINAL_READY", StateIdle, StateFinalReady, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := NewRunWithID("test")
			run.State = tt.from

			run.mu.Lock()
			err := run.transitionTo(tt.to)
			run.mu.Unlock()

			if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition for %s -> %s, got %v", tt.from, tt.to, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestRun_SetSource_InvalidatesDownstream(t *testing.T) {
	run := advanceTo(t, StateFinalReady)

	if err := run.SetSource([]byte("new-cover"), "image/jpeg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.State != StateImageUploaded {
		t.Errorf("expected state %s, got %s", StateImageUploaded, run.State)
	}
	if string(run.SourceImage.Data) != "new-cover" {
		t.Error("expected new source image")
	}
	if run.Description != "" {
		t.Error("expected description to be cleared")
	}
	if run.Background.Present() || run.Composite.Present() {
		t.Error("expected background artifacts to be cleared")
	}
	if run.GeneratedVideo.Present() || run.ProcessedVideo.Present() || run.FinalVideo.Present() {
		t.Error("expected video artifacts to be cleared")
	}
	if run.VideoURL != "" || run.RequestID != "" {
		t.Error("expected video references to be cleared")
	}
	// The audio track survives a re-upload
	if !run.Audio.Present() {
		t.Error("expected audio to be preserved")
	}
}

func TestRun_SetAudio_InvalidatesFinalOnly(t *testing.T) {
	run := advanceTo(t, StateFinalReady)

	if err := run.SetAudio([]byte("new-audio"), "audio/mpeg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.State != StateVideoReady {
		t.Errorf("expected state %s, got %s", StateVideoReady, run.State)
	}
	if run.FinalVideo.Present() {
		t.Error("expected final video to be cleared")
	}
	if !run.ProcessedVideo.Present() {
		t.Error("expected processed video to be preserved")
	}
	if !run.GeneratedVideo.Present() {
		t.Error("expected generated video to be preserved")
	}
	if string(run.Audio.Data) != "new-audio" {
		t.Error("expected new audio to be set")
	}
}

func TestRun_SetAudio_BeforeVideoReady(t *testing.T) {
	run := advanceTo(t, StateBackgroundReady)

	err := run.SetAudio([]byte("audio"), "audio/mpeg")
	if !errors.Is(err, ErrAudioNotAccepted) {
		t.Errorf("expected ErrAudioNotAccepted, got %v", err)
	}
}

func TestRun_FailBackground_Placeholder(t *testing.T) {
	run := advanceTo(t, StateImageUploaded)
	if err := run.StartBackground(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stageErr := &StageError{Stage: StageBackground, Kind: KindGeneration, Message: "no image"}
	if err := run.FailBackground(stageErr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The run still settles so a placeholder can be shown
	if run.State != StateBackgroundReady {
		t.Errorf("expected state %s, got %s", StateBackgroundReady, run.State)
	}
	if !run.BackgroundPlaceholder {
		t.Error("expected placeholder flag to be set")
	}
	// The placeholder is display-only: no real artifacts exist
	if run.Background.Present() {
		t.Error("expected background to stay unset")
	}
	if run.Composite.Present() {
		t.Error("expected composite to stay unset")
	}
	if run.Err == nil || run.Err.Stage != StageBackground {
		t.Errorf("expected background stage error, got %v", run.Err)
	}
}

func TestRun_FailVideo_StaticFallback(t *testing.T) {
	run := advanceTo(t, StateBackgroundReady)
	if err := run.StartVideo(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stageErr := &StageError{Stage: StageVideo, Kind: KindAnimation, Message: "generation failed"}
	if err := run.FailVideo(stageErr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.State != StateBackgroundReady {
		t.Errorf("expected state %s, got %s", StateBackgroundReady, run.State)
	}
	if !run.StaticFallback {
		t.Error("expected static fallback flag to be set")
	}
	// Upstream artifacts survive the failure
	if !run.Composite.Present() {
		t.Error("expected composite to be preserved")
	}
}

func TestRun_DegradeOverlay_KeepsRawClip(t *testing.T) {
	run := advanceTo(t, StateVideoProcessing)

	if err := run.DegradeOverlay("filter graph error"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.State != StateVideoReady {
		t.Errorf("expected state %s, got %s", StateVideoReady, run.State)
	}
	if run.ProcessedVideo.Present() {
		t.Error("expected processed video to stay unset")
	}
	if !run.GeneratedVideo.Present() {
		t.Error("expected generated video to remain the active artifact")
	}
	if run.OverlayWarning == "" {
		t.Error("expected a soft warning to be recorded")
	}
	// Soft degrade: no stage error is recorded
	if run.Err != nil {
		t.Errorf("expected no stage error, got %v", run.Err)
	}
}

func TestRun_FailAudio_KeepsProcessedVideo(t *testing.T) {
	run := advanceTo(t, StateVideoReady)
	if err := run.SetAudio([]byte("audio"), "audio/mpeg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := run.StartAudio(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stageErr := &StageError{Stage: StageAudio, Kind: KindTranscode, Message: "mux failed"}
	if err := run.FailAudio(stageErr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.State != StateVideoReady {
		t.Errorf("expected state %s, got %s", StateVideoReady, run.State)
	}
	if run.FinalVideo.Present() {
		t.Error("expected final video to stay unset")
	}
	if !run.ProcessedVideo.Present() {
		t.Error("expected processed video to remain exportable")
	}
}

func TestRun_StartAudio_RequiresAudio(t *testing.T) {
	run := advanceTo(t, StateVideoReady)

	err := run.StartAudio()
	if !errors.Is(err, ErrAudioRequired) {
		t.Errorf("expected ErrAudioRequired, got %v", err)
	}
}

func TestRun_StartBackground_ClearsStageOnly(t *testing.T) {
	run := advanceTo(t, StateImageUploaded)
	if err := run.StartBackground(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stageErr := &StageError{Stage: StageBackground, Kind: KindGeneration, Message: "boom"}
	if err := run.FailBackground(stageErr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Retry clears the recorded error and placeholder flag
	if err := run.StartBackground(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Err != nil {
		t.Error("expected error to be cleared on retry")
	}
	if run.BackgroundPlaceholder {
		t.Error("expected placeholder flag to be cleared on retry")
	}
	if !run.SourceImage.Present() {
		t.Error("expected source image to be preserved")
	}
}

func TestRun_StartOverlay_RequiresClip(t *testing.T) {
	run := advanceTo(t, StateBackgroundReady)
	run.State = StateVideoReady

	err := run.StartOverlay()
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition without a clip, got %v", err)
	}
}

func TestRun_Clone(t *testing.T) {
	run := advanceTo(t, StateVideoReady)
	run.Err = &StageError{Stage: StageVideo, Kind: KindAnimation, Message: "boom"}

	clone := run.Clone()

	if clone.ID != run.ID {
		t.Errorf("expected ID %s, got %s", run.ID, clone.ID)
	}
	if clone.State != run.State {
		t.Errorf("expected state %s, got %s", run.State, clone.State)
	}
	if string(clone.ProcessedVideo.Data) != string(run.ProcessedVideo.Data) {
		t.Error("expected processed video to be copied")
	}

	// Verify clone is independent
	clone.State = StateFinalReady
	if run.State == StateFinalReady {
		t.Error("modifying clone should not affect original")
	}
	clone.ProcessedVideo.Data[0] = 'X'
	if run.ProcessedVideo.Data[0] == 'X' {
		t.Error("modifying clone artifact should not affect original")
	}
	clone.Err.Message = "changed"
	if run.Err.Message == "changed" {
		t.Error("modifying clone error should not affect original")
	}
}

func TestRun_GetState_ThreadSafe(t *testing.T) {
	run := NewRun()

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			_ = run.GetState()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = run.SetSource([]byte("cover"), "image/png")
		}
		done <- true
	}()

	<-done
	<-done
	// If no race conditions, test passes
}
