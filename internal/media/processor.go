// Package media provides the transcoding operations applied to generated
// clips: the loop-masking cover overlay pass and the audio mux pass.
package media

import "context"

// OverlayOpts parameterizes the cover overlay pass.
type OverlayOpts struct {
	// CoverScale is the cover size as a fraction of the frame size.
	// Defaults to 0.45 when zero.
	CoverScale float64
	// ClipDurationSec is the clip's known fixed duration. It is only a
	// fallback: the pass probes the actual decoded duration first so a
	// change in the generation service's output length cannot
	// desynchronize the fade offsets.
	ClipDurationSec float64
	// FadeDurationSec is the length of the fade masking the loop seam.
	// Defaults to 0.5 when zero.
	FadeDurationSec float64
}

// Processor defines the interface for the transcoding operations.
// Implementations wrap an external engine; calls against one instance are
// serialized because the engine stages inputs under fixed names.
type Processor interface {
	// OverlayCover fades the clip in and out so the loop seam is masked,
	// composites the cover image centered over every frame, and trims the
	// output to the original clip duration. Any audio stream is passed
	// through unmodified.
	OverlayCover(ctx context.Context, video, cover []byte, opts OverlayOpts) ([]byte, error)

	// MuxAudio loops the input video indefinitely, pairs it with the audio
	// track, and truncates the result to the shorter of the two. A
	// positive limitSeconds additionally hard-caps the output duration.
	// The first video stream and first audio stream are selected.
	MuxAudio(ctx context.Context, video, audio []byte, limitSeconds int) ([]byte, error)
}
