package background

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"google.golang.org/genai"
)

// fakeGenerator returns canned responses per model name.
type fakeGenerator struct {
	responses map[string]*genai.GenerateContentResponse
	errs      map[string]error
	calls     []string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls = append(f.calls, model)
	if err, ok := f.errs[model]; ok {
		return nil, err
	}
	return f.responses[model], nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func imageResponse(data []byte, mime string, leadingText string) *genai.GenerateContentResponse {
	parts := []*genai.Part{}
	if leadingText != "" {
		parts = append(parts, &genai.Part{Text: leadingText})
	}
	parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mime}})
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: parts}},
		},
	}
}

func newTestSynthesizer(fake *fakeGenerator) *GeminiSynthesizer {
	s := NewGeminiSynthesizer(WithAPIKey("test-key"))
	s.newClient = func(context.Context, string) (contentGenerator, error) {
		return fake, nil
	}
	return s
}

func TestSynthesize_Success(t *testing.T) {
	fake := &fakeGenerator{
		responses: map[string]*genai.GenerateContentResponse{
			describeModel: textResponse("moody neon cityscape, violet palette"),
			generateModel: imageResponse([]byte{0x89, 0x50}, "image/png", "here is the background"),
		},
	}
	s := newTestSynthesizer(fake)

	result, err := s.Synthesize(context.Background(), []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Description != "moody neon cityscape, violet palette" {
		t.Errorf("unexpected description: %q", result.Description)
	}
	if len(result.ImageData) != 2 {
		t.Errorf("unexpected image data: %v", result.ImageData)
	}
	if result.MimeType != "image/png" {
		t.Errorf("unexpected mime type: %q", result.MimeType)
	}
	if len(fake.calls) != 2 || fake.calls[0] != describeModel || fake.calls[1] != generateModel {
		t.Errorf("unexpected call sequence: %v", fake.calls)
	}
}

func TestSynthesize_EmptyDescriptionSkipsGeneration(t *testing.T) {
	fake := &fakeGenerator{
		responses: map[string]*genai.GenerateContentResponse{
			describeModel: textResponse(""),
		},
	}
	s := newTestSynthesizer(fake)

	_, err := s.Synthesize(context.Background(), []byte("img"), "image/png")
	if !errors.Is(err, ErrNoDescription) {
		t.Fatalf("expected ErrNoDescription, got %v", err)
	}

	// The image-generation call must never have been attempted.
	if len(fake.calls) != 1 {
		t.Errorf("expected a single describe call, got %v", fake.calls)
	}
}

func TestSynthesize_TextOnlyGenerationResponse(t *testing.T) {
	fake := &fakeGenerator{
		responses: map[string]*genai.GenerateContentResponse{
			describeModel: textResponse("desc"),
			generateModel: textResponse("sorry, I can only answer in text"),
		},
	}
	s := newTestSynthesizer(fake)

	_, err := s.Synthesize(context.Background(), []byte("img"), "image/png")
	if !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestSynthesize_DescribeRequestError(t *testing.T) {
	fake := &fakeGenerator{
		errs: map[string]error{describeModel: errors.New("boom")},
	}
	s := newTestSynthesizer(fake)

	_, err := s.Synthesize(context.Background(), []byte("img"), "image/png")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 1 {
		t.Errorf("expected a single call, got %v", fake.calls)
	}
}

func TestSynthesize_MissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	s := NewGeminiSynthesizer(WithAPIKey(""))

	_, err := s.Synthesize(context.Background(), []byte("img"), "image/png")
	if !errors.Is(err, ErrAPIKeyNotSet) {
		t.Fatalf("expected ErrAPIKeyNotSet, got %v", err)
	}
}

func TestSynthesize_EmptyImage(t *testing.T) {
	s := NewGeminiSynthesizer(WithAPIKey("test-key"))

	_, err := s.Synthesize(context.Background(), nil, "image/png")
	if !errors.Is(err, ErrImageRequired) {
		t.Fatalf("expected ErrImageRequired, got %v", err)
	}
}

func TestFirstInlineImage(t *testing.T) {
	logger := slog.Default()

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		ok   bool
	}{
		{"nil response", nil, false},
		{"no candidates", &genai.GenerateContentResponse{}, false},
		{"text only", textResponse("just text"), false},
		{"image after text", imageResponse([]byte{1}, "image/png", "note"), true},
		{"image only", imageResponse([]byte{1, 2, 3}, "image/png", ""), true},
		{
			"empty inline data",
			&genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{Content: &genai.Content{Parts: []*genai.Part{
						{InlineData: &genai.Blob{MIMEType: "image/png"}},
					}}},
				},
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := firstInlineImage(tt.resp, logger)
			if ok != tt.ok {
				t.Errorf("firstInlineImage() ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}
