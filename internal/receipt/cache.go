package receipt

import "sync"

// Cache is the single-owner working copy of the receipt list. Every
// mutation goes through its API; it is reconciled after each successful
// create, update, delete and list against the store. Last write wins.
type Cache struct {
	mu       sync.Mutex
	receipts []*Receipt
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{receipts: make([]*Receipt, 0)}
}

// Set replaces the cached list wholesale.
func (c *Cache) Set(receipts []*Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts = make([]*Receipt, len(receipts))
	copy(c.receipts, receipts)
}

// Add appends a newly created receipt.
func (c *Cache) Add(receipt *Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts = append(c.receipts, receipt)
}

// Update replaces the cached copy of an updated receipt. Missing IDs are
// ignored; the next list refresh reconciles.
func (c *Cache) Update(updated *Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.receipts {
		if r.ID == updated.ID {
			c.receipts[i] = updated
			return
		}
	}
}

// Remove drops a deleted receipt from the cache.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.receipts {
		if r.ID == id {
			c.receipts = append(c.receipts[:i], c.receipts[i+1:]...)
			return
		}
	}
}

// All returns a copy of the cached list.
func (c *Cache) All() []*Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Receipt, len(c.receipts))
	copy(out, c.receipts)
	return out
}

// Summary computes the dashboard aggregates over the cached list.
func (c *Cache) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := Summary{ReceiptCount: len(c.receipts)}
	for _, r := range c.receipts {
		summary.TotalAmount += r.Amount
	}
	if summary.ReceiptCount > 0 {
		summary.AverageAmount = summary.TotalAmount / float64(summary.ReceiptCount)
	}
	return summary
}
