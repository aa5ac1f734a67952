package extraction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// rawPayload mirrors the JSON object the model is asked to produce. Pointer
// fields distinguish a missing key from a present-but-zero value, and amount
// stays raw because models occasionally quote it as a string.
type rawPayload struct {
	StoreName     *string         `json:"storeName"`
	Amount        json.RawMessage `json:"amount"`
	Confidence    *string         `json:"confidence"`
	ExtractedText *string         `json:"extractedText"`
}

// parseExtraction parses a model response into a successful Result.
// Malformed JSON is a hard failure for the whole call; individually missing
// keys are backfilled with safe defaults instead (partial extraction is an
// accepted low-confidence outcome, not a call failure).
func parseExtraction(text string) (Result, error) {
	text = stripCodeFences(text)

	// The model sometimes pads the object with prose; take the outermost
	// braces.
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return Result{}, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return Result{}, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var payload rawPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Result{}, fmt.Errorf("unmarshaling extraction json: %w", err)
	}

	result := Result{
		StoreName:     "Unknown Store",
		Amount:        0,
		Confidence:    ConfidenceLow,
		ExtractedText: "",
		Succeeded:     true,
	}

	if payload.StoreName != nil && strings.TrimSpace(*payload.StoreName) != "" {
		result.StoreName = strings.TrimSpace(*payload.StoreName)
	}
	if amount, ok := coerceAmount(payload.Amount); ok {
		result.Amount = amount
	}
	if payload.Confidence != nil {
		if c := Confidence(strings.ToLower(strings.TrimSpace(*payload.Confidence))); c.Valid() {
			result.Confidence = c
		}
	}
	if payload.ExtractedText != nil {
		result.ExtractedText = *payload.ExtractedText
	}

	return result, nil
}

// stripCodeFences removes markdown code fences the model may wrap the JSON in.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// coerceAmount accepts an amount as either a JSON number or a quoted numeric
// string. Null, missing or unparseable amounts report !ok so the default
// applies.
func coerceAmount(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, true
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(strings.TrimPrefix(text, "$"))
		if parsed, err := strconv.ParseFloat(text, 64); err == nil {
			return parsed, true
		}
	}

	return 0, false
}
