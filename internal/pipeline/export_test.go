package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBestArtifact_Precedence(t *testing.T) {
	// With every artifact present the final video wins
	run := advanceTo(t, StateFinalReady)

	artifact, stage, err := run.BestArtifact()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stage != StageAudio {
		t.Errorf("expected stage %s, got %s", StageAudio, stage)
	}
	if string(artifact.Data) != "final" {
		t.Errorf("expected final video bytes, got %q", artifact.Data)
	}

	// Dropping the final video falls back to the processed clip
	run.FinalVideo = Artifact{}
	_, stage, _ = run.BestArtifact()
	if stage != StageOverlay {
		t.Errorf("expected stage %s, got %s", StageOverlay, stage)
	}

	// Then the raw generated clip
	run.ProcessedVideo = Artifact{}
	_, stage, _ = run.BestArtifact()
	if stage != StageVideo {
		t.Errorf("expected stage %s, got %s", StageVideo, stage)
	}

	// Then the still composite
	run.GeneratedVideo = Artifact{}
	artifact, stage, _ = run.BestArtifact()
	if stage != StageBackground {
		t.Errorf("expected stage %s, got %s", StageBackground, stage)
	}
	if artifact.MimeType != "image/png" {
		t.Errorf("expected image/png, got %s", artifact.MimeType)
	}

	// Nothing left
	run.Composite = Artifact{}
	_, _, err = run.BestArtifact()
	if !errors.Is(err, ErrNoExportableArtifact) {
		t.Errorf("expected ErrNoExportableArtifact, got %v", err)
	}
}

func TestBestArtifact_OnlyComposite(t *testing.T) {
	run := advanceTo(t, StateBackgroundReady)

	artifact, stage, err := run.BestArtifact()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stage != StageBackground {
		t.Errorf("expected stage %s, got %s", StageBackground, stage)
	}
	if string(artifact.Data) != "composite" {
		t.Errorf("expected composite bytes, got %q", artifact.Data)
	}
}

func TestBestArtifact_ErrorStateDoesNotBlock(t *testing.T) {
	run := advanceTo(t, StateVideoProcessing)
	if err := run.DegradeOverlay("filter graph error"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, stage, err := run.BestArtifact()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stage != StageVideo {
		t.Errorf("expected raw clip export after overlay degrade, got %s", stage)
	}
}

func TestExportFilename(t *testing.T) {
	at := time.Unix(1701432000, 0)

	tests := []struct {
		stage    Stage
		mimeType string
		want     string
	}{
		{StageAudio, "video/mp4", "coverloop-final-1701432000.mp4"},
		{StageOverlay, "video/mp4", "coverloop-video-1701432000.mp4"},
		{StageVideo, "video/mp4", "coverloop-animation-1701432000.mp4"},
		{StageBackground, "image/png", "coverloop-composite-1701432000.png"},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			got := ExportFilename(tt.stage, tt.mimeType, at)
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if !strings.HasPrefix(got, "coverloop-") {
				t.Errorf("expected coverloop- prefix, got %s", got)
			}
		})
	}
}
