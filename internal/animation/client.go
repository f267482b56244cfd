package animation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Static errors for animation client operations.
var (
	// ErrAPIKeyNotSet is returned when no fal API key is configured.
	ErrAPIKeyNotSet = errors.New("animation: FAL_KEY is not set")
	// ErrImageURLRequired is returned when the hosted image URL is not provided.
	ErrImageURLRequired = errors.New("animation: image URL is required")
	// ErrRequestIDRequired is returned when the request ID is not provided.
	ErrRequestIDRequired = errors.New("animation: request ID is required")
	// ErrNoRequestID is returned when the submit response contains no request ID.
	ErrNoRequestID = errors.New("animation: submit failed: no request ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("animation: submit failed")
	// ErrRequestFailed is returned when a request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("animation: request failed")
	// ErrNoVideoURL is returned when a completed request has no video URL.
	ErrNoVideoURL = errors.New("animation: no video URL in result")
	// ErrUploadFailed is returned when hosting an image for generation fails.
	ErrUploadFailed = errors.New("animation: image upload failed")
)

// ImageHost stages an image somewhere fetchable by URL. The generation
// service requires a hosted URL rather than inline bytes.
type ImageHost interface {
	HostImage(ctx context.Context, fileName, contentType string, data []byte) (url string, err error)
}

// Client defines the interface for interacting with the fal queue API.
type Client interface {
	// Submit enqueues a generation request for a hosted image and returns
	// the request ID.
	Submit(ctx context.Context, imageURL string, opts SubmitOptions) (requestID string, err error)

	// Status checks the queue status of a request, including any
	// in-progress log lines.
	Status(ctx context.Context, requestID string) (StatusResult, error)

	// Result fetches the final output of a completed request.
	Result(ctx context.Context, requestID string) (VideoResult, error)

	// Download fetches the generated clip's bytes from its URL.
	Download(ctx context.Context, videoURL string) ([]byte, error)
}

// HTTPClient is the HTTP implementation of Client. It also implements
// ImageHost via fal storage uploads.
type HTTPClient struct {
	apiKey      string
	endpoint    string
	queueURL    string
	storageURL  string
	httpClient  *http.Client
}

// Compile-time interface checks.
var (
	_ Client    = (*HTTPClient)(nil)
	_ ImageHost = (*HTTPClient)(nil)
)

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithQueueURL sets a custom base URL for the fal queue API.
func WithQueueURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.queueURL = url
	}
}

// WithStorageURL sets a custom base URL for the fal storage API.
func WithStorageURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.storageURL = url
	}
}

// WithEndpoint sets the model endpoint (default "fal-ai/wan-i2v").
func WithEndpoint(endpoint string) ClientOption {
	return func(hc *HTTPClient) {
		hc.endpoint = endpoint
	}
}

// NewClient creates a new fal HTTP client. The API key can be set via the
// WithAPIKey option; if not provided it is read from FAL_KEY. A missing key
// is not an error here: each call fails with ErrAPIKeyNotSet before any
// network request is attempted, so only the stages that need the key are
// affected.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		endpoint:   "fal-ai/wan-i2v",
		queueURL:   "https://queue.fal.run",
		storageURL: "https://rest.alpha.fal.ai",
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("FAL_KEY")
	}

	return c, nil
}

// Submit enqueues a generation request and returns the request ID.
func (c *HTTPClient) Submit(ctx context.Context, imageURL string, opts SubmitOptions) (string, error) {
	if imageURL == "" {
		return "", ErrImageURLRequired
	}

	// Apply defaults if not set
	if opts.Prompt == "" {
		opts.Prompt = MotionPrompt
	}
	if opts.NegativePrompt == "" {
		opts.NegativePrompt = NegativePrompt
	}
	if opts.NumFrames == 0 {
		opts.NumFrames = DefaultNumFrames
	}
	if opts.FramesPerSecond == 0 {
		opts.FramesPerSecond = DefaultFramesPerSecond
	}
	if opts.Resolution == "" {
		opts.Resolution = DefaultResolution
	}
	if opts.AspectRatio == "" {
		opts.AspectRatio = DefaultAspectRatio
	}

	reqBody := submitRequest{
		Prompt:          opts.Prompt,
		NegativePrompt:  opts.NegativePrompt,
		ImageURL:        imageURL,
		NumFrames:       opts.NumFrames,
		FramesPerSecond: opts.FramesPerSecond,
		Resolution:      opts.Resolution,
		AspectRatio:     opts.AspectRatio,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("animation: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.queueURL, c.endpoint)

	var resp submitResponse
	if err := c.doRequest(ctx, http.MethodPost, url, bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.RequestID == "" {
		if resp.Detail != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Detail)
		}
		return "", ErrNoRequestID
	}

	return resp.RequestID, nil
}

// Status checks the queue status of a request.
func (c *HTTPClient) Status(ctx context.Context, requestID string) (StatusResult, error) {
	if requestID == "" {
		return StatusResult{}, ErrRequestIDRequired
	}

	url := fmt.Sprintf("%s/%s/requests/%s/status?logs=1", c.queueURL, c.endpoint, requestID)

	var resp statusResponse
	if err := c.doRequest(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return StatusResult{}, err
	}

	var mapped Status
	switch resp.Status {
	case "IN_QUEUE":
		mapped = StatusInQueue
	case "IN_PROGRESS":
		mapped = StatusInProgress
	case "COMPLETED", "COMPLETE":
		mapped = StatusCompleted
	case "FAILED", "ERROR":
		mapped = StatusFailed
	default:
		mapped = Status(resp.Status)
	}

	result := StatusResult{
		Status:        mapped,
		QueuePosition: resp.QueuePosition,
	}

	for _, entry := range resp.Logs {
		if entry.Message != "" {
			result.Logs = append(result.Logs, entry.Message)
		}
	}

	if result.Status == StatusFailed {
		result.Error = resp.Error
	}

	return result, nil
}

// Result fetches the final output of a completed request.
func (c *HTTPClient) Result(ctx context.Context, requestID string) (VideoResult, error) {
	if requestID == "" {
		return VideoResult{}, ErrRequestIDRequired
	}

	url := fmt.Sprintf("%s/%s/requests/%s", c.queueURL, c.endpoint, requestID)

	var resp resultResponse
	if err := c.doRequest(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return VideoResult{}, err
	}

	if resp.Video.URL == "" {
		return VideoResult{}, ErrNoVideoURL
	}

	return VideoResult{
		VideoURL:  resp.Video.URL,
		RequestID: requestID,
	}, nil
}

// Download fetches the generated clip's bytes from its URL.
func (c *HTTPClient) Download(ctx context.Context, videoURL string) ([]byte, error) {
	if videoURL == "" {
		return nil, ErrNoVideoURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("animation: create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("animation: download request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w with status %d", ErrRequestFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("animation: read download data: %w", err)
	}

	return data, nil
}

// HostImage uploads an image to fal storage and returns its hosted URL.
// It first initiates the upload to obtain a signed URL, then PUTs the
// bytes to it.
func (c *HTTPClient) HostImage(ctx context.Context, fileName, contentType string, data []byte) (string, error) {
	initBody, err := json.Marshal(uploadInitiateRequest{
		FileName:    fileName,
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("animation: marshal upload request: %w", err)
	}

	url := c.storageURL + "/storage/upload/initiate"

	var initResp uploadInitiateResponse
	if err := c.doRequest(ctx, http.MethodPost, url, initBody, &initResp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	if initResp.UploadURL == "" || initResp.FileURL == "" {
		return "", fmt.Errorf("%w: missing upload or file URL", ErrUploadFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, initResp.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("animation: create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrUploadFailed, resp.StatusCode, string(body))
	}

	return initResp.FileURL, nil
}

// doRequest performs a single HTTP request against the fal API. Failures
// surface once; the pipeline's manual retry is a fresh invocation, so no
// automatic backoff happens here.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) error {
	if c.apiKey == "" {
		return ErrAPIKeyNotSet
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("animation: create request: %w", err)
	}

	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("animation: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("animation: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("animation: unmarshal response: %w", err)
		}
	}

	return nil
}
