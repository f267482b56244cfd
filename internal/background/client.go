// Package background wraps the describe-then-generate round trip that
// produces a visualizer background for an uploaded album cover: the cover
// is described by a vision model, then the description alone is fed to an
// image-generation model.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/genai"
)

// Static errors for background synthesis operations.
var (
	// ErrAPIKeyNotSet is returned when no Gemini API key is configured.
	ErrAPIKeyNotSet = errors.New("background: GEMINI_API_KEY is not set")
	// ErrImageRequired is returned when the source image is empty.
	ErrImageRequired = errors.New("background: source image is required")
	// ErrNoDescription is returned when the description model returns no text.
	ErrNoDescription = errors.New("background: no description returned")
	// ErrNoImage is returned when the generation response contains no image payload.
	ErrNoImage = errors.New("background: no image payload in generation response")
)

// Model names for the two round-trip steps.
const (
	describeModel = "gemini-2.0-flash"
	generateModel = "gemini-2.5-flash-image-preview"
)

// describeInstruction asks for style/theme/vibe/palette only, excluding the
// cover's subject, since the cover itself is composited on top later.
const describeInstruction = "Describe this image in a way that you extract its overall style, theme, vibe, color palette. This with the objective of creating a cool background for a music visualizer, which means i want to post on youtube the album cover at the center with an added background that relates to it but also can serve as an animated visualizer. it shouldn't include the subject itself or the main element since the album cover already has those details and we want the background to serve more like a visualizer. Respond only a direct description and keep it safe for work."

// Result is the outcome of a successful synthesis round trip.
type Result struct {
	// Description is the scene description extracted from the source image.
	Description string
	// ImageData is the raw generated background image.
	ImageData []byte
	// MimeType is the MIME type of ImageData.
	MimeType string
}

// Synthesizer is the port consumed by the pipeline orchestrator.
type Synthesizer interface {
	// Synthesize describes the source image and generates a matching
	// background. No state is retained between the two calls beyond the
	// description being passed forward.
	Synthesize(ctx context.Context, image []byte, mimeType string) (Result, error)
}

// GeminiSynthesizer implements Synthesizer against the Gemini API.
type GeminiSynthesizer struct {
	apiKey string
	logger *slog.Logger

	// newClient is swappable for tests.
	newClient func(ctx context.Context, apiKey string) (contentGenerator, error)
}

// contentGenerator is the slice of the genai client the synthesizer uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// genaiModels adapts *genai.Client to contentGenerator.
type genaiModels struct {
	client *genai.Client
}

func (g genaiModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return g.client.Models.GenerateContent(ctx, model, contents, config)
}

// Option configures a GeminiSynthesizer.
type Option func(*GeminiSynthesizer)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) Option {
	return func(s *GeminiSynthesizer) {
		s.apiKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *GeminiSynthesizer) {
		s.logger = logger
	}
}

// NewGeminiSynthesizer creates a synthesizer. The API key can be set via
// WithAPIKey; if not provided it is read from GEMINI_API_KEY. A missing key
// is not an error here: the key is checked on each call so the stage fails
// with a configuration error instead of the service failing to start.
func NewGeminiSynthesizer(opts ...Option) *GeminiSynthesizer {
	s := &GeminiSynthesizer{
		logger: slog.Default(),
		newClient: func(ctx context.Context, apiKey string) (contentGenerator, error) {
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return nil, fmt.Errorf("background: create genai client: %w", err)
			}
			return genaiModels{client: client}, nil
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.apiKey == "" {
		s.apiKey = os.Getenv("GEMINI_API_KEY")
	}

	return s
}

// Synthesize runs the two-step round trip: describe the cover, then
// generate a background image from the description text alone.
func (s *GeminiSynthesizer) Synthesize(ctx context.Context, image []byte, mimeType string) (Result, error) {
	if s.apiKey == "" {
		return Result{}, ErrAPIKeyNotSet
	}
	if len(image) == 0 {
		return Result{}, ErrImageRequired
	}

	client, err := s.newClient(ctx, s.apiKey)
	if err != nil {
		return Result{}, err
	}

	description, err := s.describe(ctx, client, image, mimeType)
	if err != nil {
		return Result{}, err
	}

	s.logger.Debug("background description generated",
		slog.Int("length", len(description)),
	)

	imageData, imageMime, err := s.generate(ctx, client, description)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Description: description,
		ImageData:   imageData,
		MimeType:    imageMime,
	}, nil
}

// describe sends the source image plus the fixed instruction to the
// description model and returns the text response.
func (s *GeminiSynthesizer) describe(ctx context.Context, client contentGenerator, image []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(describeInstruction),
		}, genai.RoleUser),
	}

	resp, err := client.GenerateContent(ctx, describeModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("background: describe request: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrNoDescription
	}

	return text, nil
}

// generate sends the description text (no image) to the image-generation
// model and returns the first inline image part of the response.
func (s *GeminiSynthesizer) generate(ctx context.Context, client contentGenerator, description string) ([]byte, string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(description),
		}, genai.RoleUser),
	}

	resp, err := client.GenerateContent(ctx, generateModel, contents, nil)
	if err != nil {
		return nil, "", fmt.Errorf("background: generate request: %w", err)
	}

	data, mime, ok := firstInlineImage(resp, s.logger)
	if !ok {
		return nil, "", ErrNoImage
	}

	return data, mime, nil
}

// firstInlineImage scans the response parts for an inline image payload.
// Text-only parts are logged and skipped.
func firstInlineImage(resp *genai.GenerateContentResponse, logger *slog.Logger) ([]byte, string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, "", false
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return nil, "", false
	}

	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			logger.Debug("skipping text part in image response",
				slog.Int("length", len(part.Text)),
			)
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, part.InlineData.MIMEType, true
		}
	}

	return nil, "", false
}
