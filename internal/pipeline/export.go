package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoExportableArtifact is returned when a run has produced nothing that
// can be exported yet.
var ErrNoExportableArtifact = errors.New("pipeline: no exportable artifact")

// Export is the best available artifact of a run, ready for download.
type Export struct {
	// Stage labels which pipeline output is being exported.
	Stage Stage
	// Filename follows the pattern coverloop-<stage>-<timestamp>.<ext>.
	Filename string
	// ContentType is the artifact's MIME type.
	ContentType string
	// Data is the artifact bytes.
	Data []byte
}

// BestArtifact selects the most-downstream artifact of the run:
// FinalVideo > ProcessedVideo > GeneratedVideo > Composite. It returns
// ErrNoExportableArtifact when none exists. An error state never blocks
// export as long as a usable artifact survives.
func (r *Run) BestArtifact() (Artifact, Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch {
	case r.FinalVideo.Present():
		return r.FinalVideo.clone(), StageAudio, nil
	case r.ProcessedVideo.Present():
		return r.ProcessedVideo.clone(), StageOverlay, nil
	case r.GeneratedVideo.Present():
		return r.GeneratedVideo.clone(), StageVideo, nil
	case r.Composite.Present():
		return r.Composite.clone(), StageBackground, nil
	}
	return Artifact{}, "", ErrNoExportableArtifact
}

// exportLabel maps a producing stage to the label used in export filenames.
func exportLabel(stage Stage) string {
	switch stage {
	case StageAudio:
		return "final"
	case StageOverlay:
		return "video"
	case StageVideo:
		return "animation"
	case StageBackground:
		return "composite"
	}
	return string(stage)
}

// exportExt maps an artifact MIME type to a file extension.
func exportExt(mimeType string) string {
	if mimeType == "image/png" {
		return "png"
	}
	return "mp4"
}

// ExportFilename builds the download filename for an exported artifact.
func ExportFilename(stage Stage, mimeType string, at time.Time) string {
	return fmt.Sprintf("coverloop-%s-%d.%s", exportLabel(stage), at.Unix(), exportExt(mimeType))
}
