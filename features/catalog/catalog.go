package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"sokoni/backend/internal/config"
	"sokoni/backend/internal/middleware"
	"sokoni/backend/internal/synclog"
)

// Product mirrors the products table: the relational record of a hydrated
// item. ImageURL may be the ephemeral upstream reference; DurableImageURL is
// filled in by promotion.
type Product struct {
	ItemID          string    `json:"item_id"`
	CatalogRef      string    `json:"catalog_ref"`
	SellerID        int64     `json:"seller_id"`
	CategoryID      int64     `json:"category_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Price           float64   `json:"price"`
	ImageURL        string    `json:"image_url"`
	DurableImageURL string    `json:"durable_image_url,omitempty"`
	Stock           int       `json:"stock"`
	Source          string    `json:"source"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Seller mirrors the sellers table. Rows start as stubs created by
// ResolveSeller; the store name is cleaned up by ops afterwards.
type Seller struct {
	ID         int64  `json:"id"`
	StoreName  string `json:"store_name"`
	CatalogRef string `json:"catalog_ref"`
}

// ProductDetail is the read surface of GET /products/{id}: the product plus
// its owning seller, when one resolves.
type ProductDetail struct {
	Product
	Seller *Seller `json:"seller,omitempty"`
}

type Repository interface {
	SaveProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, itemID string) (*Product, error)
	UpdateDurableImage(ctx context.Context, itemID, durableRef string) error
	CountProducts(ctx context.Context) (int, error)

	// ResolveSeller returns the seller that owns catalogRef, creating a stub
	// row on first sight.
	ResolveSeller(ctx context.Context, catalogRef string) (int64, error)

	// GetSeller returns one seller row by id.
	GetSeller(ctx context.Context, id int64) (*Seller, error)

	// CategoryID returns the id for a category name, creating it if needed.
	CategoryID(ctx context.Context, name string) (int64, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// SyncTask is the payload carried on the catalog.sync topic.
type SyncTask struct {
	CatalogRef    string `json:"catalog_ref"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type Service struct {
	repo   Repository
	pub    TaskPublisher
	events synclog.Log
}

func NewService(repo Repository, pub TaskPublisher, events synclog.Log) *Service {
	return &Service{repo: repo, pub: pub, events: events}
}

// StartSync queues one pipeline run per catalog reference. The runs execute
// asynchronously on the sync consumer.
func (s *Service) StartSync(ctx context.Context, catalogRefs []string) error {
	if len(catalogRefs) == 0 {
		return fmt.Errorf("no catalog references given")
	}

	for _, ref := range catalogRefs {
		payload, _ := json.Marshal(SyncTask{
			CatalogRef:    ref,
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
		if err := s.pub.Publish(config.TopicCatalogSync, payload); err != nil {
			return fmt.Errorf("publish sync task for %s: %w", ref, err)
		}
		slog.InfoContext(ctx, "queued catalog sync", "catalog_ref", ref)
	}
	return nil
}

// GetProduct loads a product and, when possible, its owning seller. A failed
// seller lookup degrades to a product-only response.
func (s *Service) GetProduct(ctx context.Context, itemID string) (*ProductDetail, error) {
	p, err := s.repo.GetProduct(ctx, itemID)
	if err != nil {
		return nil, err
	}

	detail := &ProductDetail{Product: *p}
	if p.SellerID != 0 {
		seller, err := s.repo.GetSeller(ctx, p.SellerID)
		if err != nil {
			slog.WarnContext(ctx, "failed to load seller", "item_id", itemID, "seller_id", p.SellerID, "error", err)
		} else {
			detail.Seller = seller
		}
	}
	return detail, nil
}

func (s *Service) ListEvents(ctx context.Context, f synclog.Filter) ([]synclog.Event, error) {
	return s.events.List(ctx, f)
}
