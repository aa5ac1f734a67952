package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"receiptsnap/internal/capture"
)

// Vision models are noticeably slower than text models, especially local ones.
const ollamaTimeout = 120 * time.Second

// Ollama implements Extractor against a local Ollama server. Vision-capable
// models such as llava or qwen2-vl work best for receipts.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama extractor.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		client:  &http.Client{Timeout: ollamaTimeout},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Images   []string        `json:"images,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Extract sends the image through Ollama's chat API.
func (o *Ollama) Extract(ctx context.Context, image *capture.RawImage) Result {
	ctx, cancel := context.WithTimeout(ctx, ollamaTimeout)
	defer cancel()

	pngData, err := prepareImage(image.Data, image.ContentType)
	if err != nil {
		return failure(fmt.Sprintf("preparing image: %v", err))
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading and extracting information from receipts and invoices. You must carefully read all text in images and extract accurate information.",
			},
			{
				Role:    "user",
				Content: extractionPrompt,
			},
		},
		Images: []string{base64.StdEncoding.EncodeToString(pngData)},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return failure(fmt.Sprintf("marshaling request: %v", err))
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return failure(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return failure(fmt.Sprintf("calling ollama API: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return failure(fmt.Sprintf("ollama API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return failure(fmt.Sprintf("decoding response: %v", err))
	}

	result, err := parseExtraction(chatResp.Message.Content)
	if err != nil {
		return failure(fmt.Sprintf("parsing ollama response: %v", err))
	}
	return result
}

// Close is a no-op for the HTTP client.
func (o *Ollama) Close() error {
	return nil
}
