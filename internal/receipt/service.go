package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"receiptsnap/internal/capture"
	"receiptsnap/internal/extraction"
)

// IDGenerator generates unique IDs for receipts.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service orchestrates the capture-to-persistence pipeline and the receipt
// CRUD operations.
type Service struct {
	db          DB
	blobs       BlobStore
	extractor   extraction.Extractor
	cache       *Cache
	idGenerator IDGenerator
	timeSource  TimeSource

	// Guards against re-entrant submission while a submit is in flight.
	submitting atomic.Bool
}

// NewService creates a Service with UUID IDs and wall-clock time.
func NewService(db DB, blobs BlobStore, extractor extraction.Extractor) *Service {
	return NewServiceWithDeps(db, blobs, extractor, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(db DB, blobs BlobStore, extractor extraction.Extractor, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		blobs:       blobs,
		extractor:   extractor,
		cache:       NewCache(),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Analyze submits a captured image to the vision model. Extraction failure
// is reported in-band on the Result; it never blocks the rest of the
// pipeline, the user just fills the form manually.
func (s *Service) Analyze(ctx context.Context, image *capture.RawImage) extraction.Result {
	result := s.extractor.Extract(ctx, image)
	if !result.Succeeded {
		slog.Warn("Extraction failed, falling back to manual entry",
			"content_type", image.ContentType,
			"image_size", len(image.Data),
			"error", result.ErrorMessage,
		)
	}
	return result
}

// Submit runs the persistence submission flow for a validated draft:
//
//  1. validate the draft locally; a violation fails before any storage call
//  2. upload the image when present; upload failure degrades to the
//     placeholder URL and never aborts the submission
//  3. assemble the record, copying confidence and extracted text only from
//     a successful extraction
//  4. create in the record store; a store failure aborts with no local
//     cache mutation
//  5. append the canonical record to the list cache
//
// A single attempt, no internal retry. Re-entrant calls while a submission
// is in flight return ErrSubmitInFlight.
func (s *Service) Submit(ctx context.Context, draft DraftForm, image *capture.RawImage, result *extraction.Result) (*Receipt, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmitInFlight
	}
	defer s.submitting.Store(false)

	now := s.timeSource.Now()
	if verr := draft.Validate(now); verr != nil {
		return nil, verr
	}

	imageURL := PlaceholderImageURL
	if image != nil {
		url, err := s.blobs.Upload(image.Data, image.ContentType)
		if err != nil {
			// Non-fatal: the record is still worth keeping without its image.
			slog.Warn("Image upload failed, using placeholder",
				"content_type", image.ContentType,
				"image_size", len(image.Data),
				"error", err,
			)
		} else {
			imageURL = url
		}
	}

	receipt := &Receipt{
		ID:        s.idGenerator.Generate(),
		ImageURL:  imageURL,
		StoreName: strings.TrimSpace(draft.StoreName),
		Amount:    draft.amountValue(),
		Date:      draft.dateValue(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if result != nil && result.Succeeded {
		receipt.Confidence = result.Confidence
		receipt.ExtractedText = result.ExtractedText
		receipt.ProcessingStatus = StatusCompleted
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}

	s.cache.Add(receipt)
	return receipt, nil
}

// Get retrieves a receipt by ID.
func (s *Service) Get(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// List returns one page of receipts plus the total match count. An
// unfiltered query refreshes the list cache wholesale from the full store
// contents, even when the response itself is paged; filtered queries leave
// the cache alone so a narrowed view never poisons the aggregates.
func (s *Service) List(query ListQuery) ([]*Receipt, int, error) {
	receipts, total, err := s.db.ListReceipts(query)
	if err != nil {
		return nil, 0, fmt.Errorf("listing receipts: %w", err)
	}
	if query.StoreName == "" && query.MinAmount == nil && query.MaxAmount == nil &&
		query.StartDate == nil && query.EndDate == nil {
		if query.Limit <= 0 {
			s.cache.Set(receipts)
		} else if all, _, err := s.db.ListReceipts(ListQuery{}); err == nil {
			s.cache.Set(all)
		}
	}
	return receipts, total, nil
}

// Update merges only the provided patch fields onto the stored receipt,
// after revalidating the record invariants.
func (s *Service) Update(id string, patch Patch) (*Receipt, error) {
	if verr := validatePatch(patch); verr != nil {
		return nil, verr
	}

	updated, err := s.db.UpdateReceipt(id, patch, s.timeSource.Now())
	if err != nil {
		return nil, fmt.Errorf("updating receipt: %w", err)
	}

	s.cache.Update(updated)
	return updated, nil
}

// Delete removes a receipt and its stored image, returning the deleted
// record. A missing image file is logged and otherwise ignored.
func (s *Service) Delete(id string) (*Receipt, error) {
	deleted, err := s.db.DeleteReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("deleting receipt: %w", err)
	}

	if name, ok := strings.CutPrefix(deleted.ImageURL, "/api/files/"); ok {
		if err := s.blobs.Delete(name); err != nil {
			slog.Warn("Failed to delete receipt image", "name", name, "error", err)
		}
	}

	s.cache.Remove(id)
	return deleted, nil
}

// Summary refreshes the cache from the store and returns the aggregates.
func (s *Service) Summary() (Summary, error) {
	receipts, _, err := s.db.ListReceipts(ListQuery{})
	if err != nil {
		return Summary{}, fmt.Errorf("listing receipts: %w", err)
	}
	s.cache.Set(receipts)
	return s.cache.Summary(), nil
}

// GetFile retrieves a stored receipt image for serving.
func (s *Service) GetFile(name string) ([]byte, string, error) {
	return s.blobs.Get(name)
}

// validatePatch checks the record invariants on the provided fields only.
func validatePatch(patch Patch) *ValidationError {
	fields := make(map[string]string)

	if patch.Empty() {
		fields["patch"] = "No valid fields provided for update"
	}
	if patch.StoreName != nil && strings.TrimSpace(*patch.StoreName) == "" {
		fields["storeName"] = "Store name cannot be empty"
	}
	if patch.Amount != nil {
		if math.IsNaN(*patch.Amount) || math.IsInf(*patch.Amount, 0) || *patch.Amount < 0 {
			fields["amount"] = "Amount must be a positive number"
		}
	}
	if patch.Date != nil && patch.Date.IsZero() {
		fields["date"] = "Invalid date format"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
