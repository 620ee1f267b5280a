package vector

import (
	"context"
	"errors"
	"time"
)

// ErrNotIndexed is returned by vector lookups for items absent from the index.
var ErrNotIndexed = errors.New("item not indexed")

// Entry is one indexed item: its hybrid vector plus the attributes search
// results can be filtered on.
type Entry struct {
	ItemID     string
	Vector     []float32
	SellerID   int64
	CategoryID int64
	Price      float64
	CreatedAt  time.Time
}

// Match is one search hit, scored by cosine similarity.
type Match struct {
	ItemID string
	Score  float32
}

// Filter restricts search results. Nil pointer fields mean "no restriction".
type Filter struct {
	SellerID   *int64
	CategoryID *int64
	MinPrice   *float64
	MaxPrice   *float64
}

func (f *Filter) matches(e *Entry) bool {
	if f == nil {
		return true
	}
	if f.SellerID != nil && e.SellerID != *f.SellerID {
		return false
	}
	if f.CategoryID != nil && e.CategoryID != *f.CategoryID {
		return false
	}
	if f.MinPrice != nil && e.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && e.Price > *f.MaxPrice {
		return false
	}
	return true
}

// Index stores (itemID, vector, attributes) tuples and answers filtered
// nearest-neighbor queries. Implementations must support incremental upsert
// and stay queryable while concurrent mutations touch other items.
type Index interface {
	// Upsert replaces any existing entry with the same ItemID; it never
	// duplicates.
	Upsert(ctx context.Context, e Entry) error

	// Delete removes the entry if present; an absent ItemID is a no-op.
	Delete(ctx context.Context, itemID string) error

	// Search returns up to k entries ranked by similarity to query, highest
	// first, restricted to entries matching all filter fields. Ties break by
	// insertion recency, most recent first.
	Search(ctx context.Context, query []float32, k int, f *Filter) ([]Match, error)
}
