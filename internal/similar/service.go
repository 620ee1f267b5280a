package similar

import (
	"context"
	"fmt"
	"time"

	"sokoni/backend/features/catalog"
	"sokoni/backend/internal/middleware"
	"sokoni/backend/internal/vector"
)

const defaultLimit = 10

// Result is one similarity hit, enriched with catalog fields when the item is
// known to the store.
type Result struct {
	ItemID   string  `json:"item_id"`
	Score    float32 `json:"score"`
	Name     string  `json:"name,omitempty"`
	Price    float64 `json:"price,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
}

type Options struct {
	Limit      *int
	SellerID   *int64
	CategoryID *int64
	MinPrice   *float64
	MaxPrice   *float64
}

// VectorSearcher is the slice of the index the service needs: kNN plus raw
// vector lookup for item-to-item queries.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, k int, filter *vector.Filter) ([]vector.Match, error)
	GetVector(ctx context.Context, itemID string) ([]float32, error)
}

type TextEmbedder interface {
	TextVector(ctx context.Context, text string) []float32
}

// ProductReader is the catalog slice used to enrich hits.
type ProductReader interface {
	GetProduct(ctx context.Context, itemID string) (*catalog.Product, error)
}

type Service struct {
	index    VectorSearcher
	embedder TextEmbedder
	repo     ProductReader
	logger   *QueryLogger
}

func NewService(index VectorSearcher, embedder TextEmbedder, repo ProductReader, logger *QueryLogger) *Service {
	return &Service{index: index, embedder: embedder, repo: repo, logger: logger}
}

// FindSimilarToItem returns the items nearest to an already indexed item,
// excluding the item itself.
func (s *Service) FindSimilarToItem(ctx context.Context, itemID string, opts *Options) ([]Result, error) {
	start := time.Now()

	vec, err := s.index.GetVector(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("looking up vector for item %s: %w", itemID, err)
	}

	limit, filter := resolve(opts)

	// Over-fetch by one so the item itself can be dropped from its own
	// neighbourhood.
	matches, err := s.index.Search(ctx, vec, limit+1, filter)
	if err != nil {
		return nil, err
	}

	results := s.enrich(ctx, matches, itemID, limit)
	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Mode:          "item",
			ItemID:        itemID,
			NumResults:    len(results),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return results, nil
}

// FindSimilarToText embeds a free-text query and searches the index with it.
func (s *Service) FindSimilarToText(ctx context.Context, query string, opts *Options) ([]Result, error) {
	start := time.Now()

	vec := s.embedder.TextVector(ctx, query)

	limit, filter := resolve(opts)

	matches, err := s.index.Search(ctx, vec, limit, filter)
	if err != nil {
		return nil, err
	}

	results := s.enrich(ctx, matches, "", limit)
	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Mode:          "text",
			Query:         query,
			NumResults:    len(results),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return results, nil
}

func (s *Service) enrich(ctx context.Context, matches []vector.Match, excludeID string, limit int) []Result {
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		if m.ItemID == excludeID {
			continue
		}
		r := Result{ItemID: m.ItemID, Score: m.Score}
		if product, err := s.repo.GetProduct(ctx, m.ItemID); err == nil {
			r.Name = product.Name
			r.Price = product.Price
			r.ImageURL = product.ImageURL
			if product.DurableImageURL != "" {
				r.ImageURL = product.DurableImageURL
			}
		}
		results = append(results, r)
		if len(results) == limit {
			break
		}
	}
	return results
}

func resolve(opts *Options) (int, *vector.Filter) {
	limit := defaultLimit
	if opts == nil {
		return limit, nil
	}
	if opts.Limit != nil && *opts.Limit > 0 {
		limit = *opts.Limit
	}
	if opts.SellerID == nil && opts.CategoryID == nil && opts.MinPrice == nil && opts.MaxPrice == nil {
		return limit, nil
	}
	return limit, &vector.Filter{
		SellerID:   opts.SellerID,
		CategoryID: opts.CategoryID,
		MinPrice:   opts.MinPrice,
		MaxPrice:   opts.MaxPrice,
	}
}
