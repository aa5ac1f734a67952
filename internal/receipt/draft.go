package receipt

import (
	"math"
	"strconv"
	"strings"
	"time"

	"receiptsnap/internal/extraction"
)

const (
	// MaxAmount is the largest accepted receipt total, in dollars.
	MaxAmount = 999999.99

	dateLayout = "2006-01-02"
)

// DraftForm is in-progress, unpersisted form data for a single receipt.
// Amount and Date stay as entered text until validation parses them.
type DraftForm struct {
	StoreName string `json:"storeName"`
	Amount    string `json:"amount"`
	Date      string `json:"date"`
}

// Provenance tags draft fields that were pre-filled from extraction with the
// model's confidence, for per-field badges in the UI. Fields the user typed
// themselves are absent.
type Provenance map[string]extraction.Confidence

// Reconcile overlays a successful extraction onto draft defaults. An absent
// or failed result leaves the defaults untouched (manual entry path). Only
// fields the model actually populated are overlaid, and the date never is:
// the model is not asked for one. Reconcile is pure and idempotent.
func Reconcile(defaults DraftForm, result *extraction.Result) (DraftForm, Provenance) {
	draft := defaults
	provenance := Provenance{}

	if result == nil || !result.Succeeded {
		return draft, provenance
	}

	if strings.TrimSpace(result.StoreName) != "" {
		draft.StoreName = result.StoreName
		provenance["storeName"] = result.Confidence
	}
	if result.Amount > 0 {
		draft.Amount = strconv.FormatFloat(result.Amount, 'f', -1, 64)
		provenance["amount"] = result.Confidence
	}

	return draft, provenance
}

// Validate checks the whole draft against the form invariants. It returns
// nil for a valid draft, or a ValidationError carrying one message per bad
// field. Validation is always local and synchronous.
func (f DraftForm) Validate(now time.Time) *ValidationError {
	fields := make(map[string]string)

	if msg := validateStoreName(f.StoreName); msg != "" {
		fields["storeName"] = msg
	}
	if msg := validateAmount(f.Amount); msg != "" {
		fields["amount"] = msg
	}
	if msg := validateDate(f.Date, now); msg != "" {
		fields["date"] = msg
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidateField checks a single field, for per-field feedback on blur.
// An empty message means the field is valid.
func (f DraftForm) ValidateField(field string, now time.Time) string {
	switch field {
	case "storeName":
		return validateStoreName(f.StoreName)
	case "amount":
		return validateAmount(f.Amount)
	case "date":
		return validateDate(f.Date, now)
	}
	return ""
}

func validateStoreName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "Store name is required"
	}
	if len(trimmed) < 2 {
		return "Store name must be at least 2 characters"
	}
	return ""
}

func validateAmount(amount string) string {
	if strings.TrimSpace(amount) == "" {
		return "Amount is required"
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return "Amount must be a valid number"
	}
	if value <= 0 {
		return "Amount must be greater than 0"
	}
	if value > MaxAmount {
		return "Amount cannot exceed $999,999.99"
	}
	return ""
}

func validateDate(date string, now time.Time) string {
	if date == "" {
		return "Date is required"
	}
	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return "Date must be a valid date in YYYY-MM-DD format"
	}

	today := midnightUTC(now)
	oneYearAgo := midnightUTC(now.AddDate(-1, 0, 0))
	if parsed.After(today) {
		return "Date cannot be in the future"
	}
	if parsed.Before(oneYearAgo) {
		return "Date cannot be more than a year ago"
	}
	return ""
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// amountValue parses the draft amount. Only meaningful after Validate.
func (f DraftForm) amountValue() float64 {
	value, _ := strconv.ParseFloat(strings.TrimSpace(f.Amount), 64)
	return value
}

// dateValue parses the draft date. Only meaningful after Validate.
func (f DraftForm) dateValue() time.Time {
	value, _ := time.Parse(dateLayout, f.Date)
	return value
}
