package receipt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "receipts"

// SortOrder is the direction of a list sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListQuery selects, orders and pages the receipt list. Zero values mean
// "no constraint". Amount and date bounds are inclusive; StoreName is a
// case-insensitive substring match.
type ListQuery struct {
	StoreName string
	MinAmount *float64
	MaxAmount *float64
	StartDate *time.Time
	EndDate   *time.Time
	SortBy    string // date, amount, storeName, createdAt
	SortOrder SortOrder
	Page      int
	Limit     int
}

// DB defines the record store boundary.
type DB interface {
	// SaveReceipt creates or overwrites a receipt.
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID. Missing IDs wrap ErrNotFound.
	GetReceipt(id string) (*Receipt, error)

	// UpdateReceipt merges the provided patch fields onto the stored
	// receipt and returns the updated record.
	UpdateReceipt(id string, patch Patch, now time.Time) (*Receipt, error)

	// DeleteReceipt removes a receipt and returns the deleted record.
	DeleteReceipt(id string) (*Receipt, error)

	// ListReceipts returns one page of matching receipts plus the total
	// match count across all pages.
	ListReceipts(query ListQuery) ([]*Receipt, int, error)

	// Close closes the database.
	Close() error
}

// BoltDB implements DB on a single-file BoltDB database.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (creating if needed) the database file.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveReceipt creates or overwrites a receipt.
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		return bucket.Put([]byte(receipt.ID), data)
	})
}

// GetReceipt retrieves a receipt by ID.
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// UpdateReceipt merges only the explicitly provided patch fields onto the
// stored receipt, bumps UpdatedAt, and returns the updated record.
func (b *BoltDB) UpdateReceipt(id string, patch Patch, now time.Time) (*Receipt, error) {
	var updated *Receipt
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		var receipt Receipt
		if err := json.Unmarshal(data, &receipt); err != nil {
			return fmt.Errorf("unmarshaling receipt: %w", err)
		}

		if patch.ImageURL != nil {
			receipt.ImageURL = *patch.ImageURL
		}
		if patch.ImageBase64 != nil {
			receipt.ImageBase64 = *patch.ImageBase64
		}
		if patch.StoreName != nil {
			receipt.StoreName = strings.TrimSpace(*patch.StoreName)
		}
		if patch.Amount != nil {
			receipt.Amount = *patch.Amount
		}
		if patch.Date != nil {
			receipt.Date = *patch.Date
		}
		receipt.UpdatedAt = now

		out, err := json.Marshal(&receipt)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		if err := bucket.Put([]byte(id), out); err != nil {
			return err
		}
		updated = &receipt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteReceipt removes a receipt and returns the deleted record.
func (b *BoltDB) DeleteReceipt(id string) (*Receipt, error) {
	var deleted *Receipt
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := json.Unmarshal(data, &deleted); err != nil {
			return fmt.Errorf("unmarshaling receipt: %w", err)
		}
		return bucket.Delete([]byte(id))
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// ListReceipts loads all receipts, then filters, sorts and pages in memory.
// Bolt has no query layer; receipt counts for a single user stay small
// enough that a full scan is the simplest correct approach.
func (b *BoltDB) ListReceipts(query ListQuery) ([]*Receipt, int, error) {
	all := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			all = append(all, &receipt)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	matched := filterReceipts(all, query)
	sortReceipts(matched, query.SortBy, query.SortOrder)
	total := len(matched)

	return pageReceipts(matched, query.Page, query.Limit), total, nil
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func filterReceipts(receipts []*Receipt, query ListQuery) []*Receipt {
	matched := make([]*Receipt, 0, len(receipts))
	needle := strings.ToLower(strings.TrimSpace(query.StoreName))

	for _, r := range receipts {
		if needle != "" && !strings.Contains(strings.ToLower(r.StoreName), needle) {
			continue
		}
		if query.MinAmount != nil && r.Amount < *query.MinAmount {
			continue
		}
		if query.MaxAmount != nil && r.Amount > *query.MaxAmount {
			continue
		}
		if query.StartDate != nil && r.Date.Before(*query.StartDate) {
			continue
		}
		if query.EndDate != nil && r.Date.After(*query.EndDate) {
			continue
		}
		matched = append(matched, r)
	}
	return matched
}

func sortReceipts(receipts []*Receipt, sortBy string, order SortOrder) {
	if sortBy == "" {
		sortBy = "date"
	}
	if order == "" {
		order = SortDesc
	}

	less := func(a, b *Receipt) bool {
		switch sortBy {
		case "amount":
			return a.Amount < b.Amount
		case "storeName":
			return strings.ToLower(a.StoreName) < strings.ToLower(b.StoreName)
		case "createdAt":
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.Date.Before(b.Date)
		}
	}

	sort.SliceStable(receipts, func(i, j int) bool {
		if order == SortDesc {
			return less(receipts[j], receipts[i])
		}
		return less(receipts[i], receipts[j])
	})
}

func pageReceipts(receipts []*Receipt, page, limit int) []*Receipt {
	if limit <= 0 {
		return receipts
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(receipts) {
		return []*Receipt{}
	}
	end := start + limit
	if end > len(receipts) {
		end = len(receipts)
	}
	return receipts[start:end]
}
