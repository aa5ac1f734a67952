package receipt

import (
	"time"

	"receiptsnap/internal/extraction"
)

// ProcessingStatus tracks how far a receipt made it through the extraction
// pipeline before being persisted.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Receipt is the persisted record for a captured receipt. The store is the
// sole owner of the canonical copy; ID, CreatedAt and UpdatedAt are assigned
// at creation.
type Receipt struct {
	ID               string                `json:"id"`
	ImageURL         string                `json:"imageUrl"`
	ImageBase64      string                `json:"imageBase64,omitempty"`
	StoreName        string                `json:"storeName"`
	Amount           float64               `json:"amount"` // dollars, >= 0
	Date             time.Time             `json:"date"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	Confidence       extraction.Confidence `json:"confidence,omitempty"`
	ExtractedText    string                `json:"extractedText,omitempty"`
	ProcessingStatus ProcessingStatus      `json:"processingStatus,omitempty"`
}

// Patch carries the fields of a partial update. Nil means "leave unchanged";
// only explicitly provided fields are merged onto the stored record.
type Patch struct {
	ImageURL    *string    `json:"imageUrl"`
	ImageBase64 *string    `json:"imageBase64"`
	StoreName   *string    `json:"storeName"`
	Amount      *float64   `json:"amount"`
	Date        *time.Time `json:"date"`
}

// Empty reports whether the patch provides no fields at all.
func (p Patch) Empty() bool {
	return p.ImageURL == nil && p.ImageBase64 == nil && p.StoreName == nil &&
		p.Amount == nil && p.Date == nil
}

// Summary aggregates the receipt list for the dashboard.
type Summary struct {
	TotalAmount   float64 `json:"totalAmount"`
	ReceiptCount  int     `json:"receiptCount"`
	AverageAmount float64 `json:"averageAmount"`
}
