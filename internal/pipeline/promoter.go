package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxPromoteBytes = 20 << 20

// ObjectStore is the durable object-storage capability. Fallible per call;
// failures surface to the caller and are never retried here.
type ObjectStore interface {
	Put(ctx context.Context, data []byte, suggestedKey string) (string, error)
}

// ImagePromoter migrates an item's ephemeral image reference into durable
// storage. Promotion is invoked only after approval and is independent of the
// item's presence in the similarity index.
type ImagePromoter struct {
	store   ObjectStore
	client  *http.Client
	timeout time.Duration
}

func NewImagePromoter(store ObjectStore, client *http.Client, timeout time.Duration) *ImagePromoter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &ImagePromoter{store: store, client: client, timeout: timeout}
}

// Promote downloads the image once and uploads it to durable storage,
// returning the durable reference.
func (p *ImagePromoter) Promote(ctx context.Context, itemID, imageRef string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, imageRef, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPromoteBytes))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	durableRef, err := p.store.Put(ctx, data, "products/"+itemID)
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return durableRef, nil
}
