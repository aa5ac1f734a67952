package extraction

import (
	"context"

	"receiptsnap/internal/capture"
)

// Confidence is the model's self-reported confidence in an extraction.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is one of the three known levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Result is the outcome of a single extraction attempt. When Succeeded is
// false the data fields carry no meaning and must not be used for pre-fill.
type Result struct {
	StoreName     string     `json:"storeName"`
	Amount        float64    `json:"amount"`
	Confidence    Confidence `json:"confidence"`
	ExtractedText string     `json:"extractedText"`
	Succeeded     bool       `json:"succeeded"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
}

// Extractor submits a receipt image to a vision model and returns what it
// could read. A single attempt per call, no internal retry; transport and
// parse errors surface as a failed Result, never as a panic or raw error.
type Extractor interface {
	Extract(ctx context.Context, image *capture.RawImage) Result
	Close() error
}

// failure builds a failed Result with a human-readable message.
func failure(message string) Result {
	return Result{Succeeded: false, ErrorMessage: message}
}

// extractionPrompt is the shared instruction text sent alongside the image.
// The model must answer with exactly one four-key JSON object.
const extractionPrompt = `Analyze this receipt image and extract the following information in JSON format:

{
  "storeName": "Name of the business/store (main business name only)",
  "amount": "Total amount as a number (final total after tax, like 12.45)",
  "confidence": "Your confidence level: high, medium, or low",
  "extractedText": "All text you can clearly read from the receipt"
}

Rules:
- Extract only the final total amount (after tax)
- Store name should be the main business name, not taglines
- Amount should be a number without currency symbols
- If the receipt is unclear, set confidence to 'low'
- Return only valid JSON format`
