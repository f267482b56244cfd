package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Static errors for media operations.
var (
	// ErrEmptyVideo is returned when no video bytes are provided.
	ErrEmptyVideo = errors.New("media: video data is empty")
	// ErrEmptyCover is returned when no cover image bytes are provided.
	ErrEmptyCover = errors.New("media: cover data is empty")
	// ErrEmptyAudio is returned when no audio bytes are provided.
	ErrEmptyAudio = errors.New("media: audio data is empty")
	// ErrUnknownDuration is returned when the clip duration can neither be
	// probed nor derived from a known value.
	ErrUnknownDuration = errors.New("media: clip duration unknown")
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("media: ffprobe execution failed")
)

// Default overlay parameters.
const (
	defaultCoverScale = 0.45
	defaultFadeSec    = 0.5
)

// Staging filenames inside each call's private working directory. The
// names themselves are fixed, but every call gets its own directory so
// concurrent use cannot interfere across calls.
const (
	stageVideo  = "input_video.mp4"
	stageCover  = "album_cover.png"
	stageAudio  = "input_audio.mp3"
	stageOutput = "output_video.mp4"
)

// FFmpegProcessor implements Processor using the ffmpeg CLI.
// The mutex serializes filter passes: the engine performs them strictly
// sequentially, and a second call must wait for the first to finish.
type FFmpegProcessor struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
	mu          sync.Mutex
}

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)

// NewFFmpegProcessor creates a new FFmpegProcessor. Empty paths default to
// "ffmpeg" and "ffprobe" (found via PATH); an empty workDir defaults to
// the system temp directory.
func NewFFmpegProcessor(ffmpegPath, ffprobePath, workDir string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &FFmpegProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		workDir:     workDir,
	}
}

// OverlayCover applies the loop-masking fades and the centered cover
// overlay, trimming the output to the clip duration.
func (p *FFmpegProcessor) OverlayCover(ctx context.Context, video, cover []byte, opts OverlayOpts) ([]byte, error) {
	if len(video) == 0 {
		return nil, ErrEmptyVideo
	}
	if len(cover) == 0 {
		return nil, ErrEmptyCover
	}

	if opts.CoverScale <= 0 {
		opts.CoverScale = defaultCoverScale
	}
	if opts.FadeDurationSec <= 0 {
		opts.FadeDurationSec = defaultFadeSec
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dir, cleanup, err := p.stage(map[string][]byte{
		stageVideo: video,
		stageCover: cover,
	})
	if err != nil {
		return nil, err
	}
	defer cleanup()

	duration, err := p.probeDuration(ctx, filepath.Join(dir, stageVideo))
	if err != nil {
		// Fall back to the known fixed duration from the generation
		// service's frame count and frame rate.
		if opts.ClipDurationSec <= 0 {
			return nil, fmt.Errorf("%w: %w", ErrUnknownDuration, err)
		}
		duration = opts.ClipDurationSec
	}

	filter := overlayFilter(duration, opts.FadeDurationSec, opts.CoverScale)

	args := []string{
		"-i", stageVideo,
		"-i", stageCover,
		"-filter_complex", filter,
		"-c:a", "copy", // Pass audio through unmodified
		"-t", formatSeconds(duration), // Trim to the original clip duration
		"-y",
		stageOutput,
	}

	if err := p.runFFmpeg(ctx, dir, args); err != nil {
		return nil, err
	}

	return p.readOutput(dir)
}

// MuxAudio loops the video indefinitely, muxes the audio track, and stops
// at the shorter of the two, honoring an optional hard cap.
func (p *FFmpegProcessor) MuxAudio(ctx context.Context, video, audio []byte, limitSeconds int) ([]byte, error) {
	if len(video) == 0 {
		return nil, ErrEmptyVideo
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dir, cleanup, err := p.stage(map[string][]byte{
		stageVideo: video,
		stageAudio: audio,
	})
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := p.runFFmpeg(ctx, dir, muxArgs(limitSeconds)); err != nil {
		return nil, err
	}

	return p.readOutput(dir)
}

// overlayFilter builds the filter graph for the overlay pass: fade in at
// the head, fade out ending exactly at the clip's true end, cover scaled
// to a fraction of the frame and composited centered. The fade offsets
// are derived from the actual duration rather than hard-coded.
func overlayFilter(durationSec, fadeSec, coverScale float64) string {
	// A fade longer than the clip would start before zero; keep the two
	// fades inside the clip.
	if 2*fadeSec >= durationSec {
		fadeSec = durationSec / 4
	}
	fadeOutStart := durationSec - fadeSec

	return fmt.Sprintf(
		"[0:v]fade=t=in:st=0:d=%s,fade=t=out:st=%s:d=%s[faded];[1:v]scale=iw*%.2f:ih*%.2f[cover];[faded][cover]overlay=(W-w)/2:(H-h)/2,format=yuv420p",
		formatSeconds(fadeSec),
		formatSeconds(fadeOutStart),
		formatSeconds(fadeSec),
		coverScale,
		coverScale,
	)
}

// muxArgs builds the argument list for the audio mux pass.
func muxArgs(limitSeconds int) []string {
	args := []string{
		"-stream_loop", "-1", // Loop the video indefinitely
		"-i", stageVideo,
		"-i", stageAudio,
		"-map", "0:v:0", // First video stream only
		"-map", "1:a:0", // First audio stream only
		"-shortest", // Stop when the shorter input ends
	}
	if limitSeconds > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", limitSeconds))
	}
	args = append(args, "-y", stageOutput)
	return args
}

// OutputDurationSec returns the expected duration of the mux pass output:
// the shorter of the looped video and the audio, capped by limitSeconds
// when positive.
func OutputDurationSec(loopedVideoSec, audioSec float64, limitSeconds int) float64 {
	d := loopedVideoSec
	if audioSec < d {
		d = audioSec
	}
	if limitSeconds > 0 && float64(limitSeconds) < d {
		d = float64(limitSeconds)
	}
	return d
}

// stage creates a private working directory and writes the named inputs
// into it. The returned cleanup removes the whole directory.
func (p *FFmpegProcessor) stage(files map[string][]byte) (string, func(), error) {
	dir, err := os.MkdirTemp(p.workDir, "codec-*")
	if err != nil {
		return "", nil, fmt.Errorf("media: create working directory: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("media: stage %s: %w", name, err)
		}
	}

	return dir, cleanup, nil
}

// readOutput reads the pass output from the working directory.
func (p *FFmpegProcessor) readOutput(dir string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, stageOutput)) // #nosec G304 - dir is created by this process
	if err != nil {
		return nil, fmt.Errorf("media: read output: %w", err)
	}
	return data, nil
}

// runFFmpeg executes ffmpeg inside dir and surfaces stderr on failure.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, dir string, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("media: ffmpeg cancelled: %w", ctx.Err())
		}
		return &TranscodeError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// probeDuration returns the duration in seconds of a media file.
func (p *FFmpegProcessor) probeDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("media: ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	_, err = fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration)
	if err != nil {
		return 0, fmt.Errorf("media: parse duration: %w", err)
	}

	return duration, nil
}

// formatSeconds renders a duration for ffmpeg arguments.
func formatSeconds(sec float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", sec), "0"), ".")
}

// TranscodeError represents a failed engine invocation, including the
// engine's log output. Callers decide whether to fall back to the
// untransformed upstream artifact.
type TranscodeError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("media: transcode error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}
