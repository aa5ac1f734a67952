package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"receiptsnap/internal/capture"
)

const geminiTimeout = 30 * time.Second

// Gemini implements Extractor using Google Gemini vision models.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini extractor. The API key is required.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Extract submits the image and the extraction prompt in a single request.
func (g *Gemini) Extract(ctx context.Context, image *capture.RawImage) Result {
	ctx, cancel := context.WithTimeout(ctx, geminiTimeout)
	defer cancel()

	pngData, err := prepareImage(image.Data, image.ContentType)
	if err != nil {
		return failure(fmt.Sprintf("preparing image: %v", err))
	}

	// genai.ImageData takes the format suffix, not the MIME type; after
	// prepareImage the data is always PNG.
	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(extractionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return failure(fmt.Sprintf("calling gemini: %v", err))
	}

	text, err := geminiResponseText(resp)
	if err != nil {
		return failure(err.Error())
	}

	result, err := parseExtraction(text)
	if err != nil {
		return failure(fmt.Sprintf("parsing gemini response: %v", err))
	}
	return result
}

// geminiResponseText concatenates the text parts of the first candidate.
// Safety-blocked responses come back with a candidate but nil Content.
func geminiResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no text content in gemini response")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	return responseText.String(), nil
}

// Close closes the underlying Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
