package extraction

import (
	"context"

	"receiptsnap/internal/capture"
)

// Disabled is an Extractor for deployments without a vision model. Every
// call reports failure, which sends the form down the manual-entry path.
type Disabled struct{}

// NewDisabled creates a Disabled extractor.
func NewDisabled() *Disabled {
	return &Disabled{}
}

func (d *Disabled) Extract(_ context.Context, _ *capture.RawImage) Result {
	return failure("extraction is disabled; enter receipt details manually")
}

func (d *Disabled) Close() error {
	return nil
}
