// Package animation provides an HTTP client for the fal.ai queue-based
// image-to-video generation API.
package animation

// Status represents the status of a fal queue request.
type Status string

// Queue statuses aligned with the fal API.
const (
	StatusInQueue    Status = "IN_QUEUE"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Fixed generation constants. The clip duration downstream fade/trim math
// depends on is num_frames / frames_per_second.
const (
	DefaultNumFrames       = 81
	DefaultFramesPerSecond = 16
	DefaultResolution      = "480p"
	DefaultAspectRatio     = "16:9"
)

// MotionPrompt is the fixed prompt describing the desired animation: a
// static centered cover over a slowly pulsing background, subtle camera
// drift, and a seamless loop with no abrupt brightness changes.
const MotionPrompt = "The album cover rests static at the center, steady and commanding. The background slowly comes alive, pulsing like waves of sound, creating a sense of rhythm and atmosphere. The camera subtly breathes with the scene, moving closer or slightly circling, while the album cover itself doesn't make any movements. The animation flows in a seamless cycle, with the ending aligning perfectly with the beginning, creating a hypnotic, infinite loop that feels natural and continuous, like music made visible. Avoid any dramatic flare-ups, sudden shifts in brightness, or noticeable repeating patterns that would disrupt continuous playback. The goal is a calming, subtly animated visual perfect for a continuously looping screensaver."

// NegativePrompt is the fixed negative prompt excluding artifacts,
// deformities, painting-like styles, and crowded backgrounds.
const NegativePrompt = "bright colors, overexposed, static, blurred details, subtitles, style, artwork, painting, picture, still, overall gray, worst quality, low quality, JPEG compression residue, ugly, incomplete, extra fingers, poorly drawn hands, poorly drawn faces, deformed, disfigured, malformed limbs, fused fingers, still picture, cluttered background, three legs, many people in the background, walking backwards"

// SubmitOptions contains parameters for submitting a generation request.
type SubmitOptions struct {
	Prompt          string // Motion prompt (default: MotionPrompt)
	NegativePrompt  string // Negative prompt (default: NegativePrompt)
	NumFrames       int    // Frame count (default: 81)
	FramesPerSecond int    // Frame rate (default: 16)
	Resolution      string // Output resolution (default: "480p")
	AspectRatio     string // Output aspect ratio (default: "16:9")
}

// DefaultSubmitOptions returns the fixed defaults used by the pipeline.
func DefaultSubmitOptions() SubmitOptions {
	return SubmitOptions{
		Prompt:          MotionPrompt,
		NegativePrompt:  NegativePrompt,
		NumFrames:       DefaultNumFrames,
		FramesPerSecond: DefaultFramesPerSecond,
		Resolution:      DefaultResolution,
		AspectRatio:     DefaultAspectRatio,
	}
}

// ClipDurationSec returns the fixed duration of the generated clip in
// seconds (frames / fps). Downstream fade offsets depend on this value
// when the clip cannot be probed.
func (o SubmitOptions) ClipDurationSec() float64 {
	if o.FramesPerSecond <= 0 {
		return 0
	}
	return float64(o.NumFrames) / float64(o.FramesPerSecond)
}

// submitRequest is the request body for the fal queue submit endpoint.
type submitRequest struct {
	Prompt          string `json:"prompt"`
	NegativePrompt  string `json:"negative_prompt"`
	ImageURL        string `json:"image_url"`
	NumFrames       int    `json:"num_frames"`
	FramesPerSecond int    `json:"frames_per_second"`
	Resolution      string `json:"resolution"`
	AspectRatio     string `json:"aspect_ratio"`
}

// submitResponse is the response from the fal queue submit endpoint.
type submitResponse struct {
	RequestID string `json:"request_id"`
	Detail    string `json:"detail,omitempty"`
}

// statusResponse is the response from the fal queue status endpoint.
type statusResponse struct {
	Status        string     `json:"status"`
	QueuePosition int        `json:"queue_position"`
	Logs          []logEntry `json:"logs"`
	Error         string     `json:"error,omitempty"`
}

// logEntry is one in-progress log line.
type logEntry struct {
	Message string `json:"message"`
}

// resultResponse is the response from the fal queue result endpoint.
type resultResponse struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
	Detail string `json:"detail,omitempty"`
}

// uploadInitiateRequest starts a fal storage upload.
type uploadInitiateRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// uploadInitiateResponse carries the signed upload URL and the hosted file URL.
type uploadInitiateResponse struct {
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

// StatusResult contains the result of polling a request's status.
type StatusResult struct {
	Status        Status
	QueuePosition int      // Only meaningful while IN_QUEUE
	Logs          []string // Cumulative in-progress log lines, in emission order
	Error         string   // Only set when Status is StatusFailed
}

// VideoResult contains the playable reference to a generated clip.
type VideoResult struct {
	VideoURL  string
	RequestID string
}
