package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

type Promoter interface {
	Promote(ctx context.Context, itemID, imageRef string) (string, error)
}

type ImageRecorder interface {
	UpdateDurableImage(ctx context.Context, itemID, durableRef string) error
}

type Service struct {
	repo     Repository
	promoter Promoter
	products ImageRecorder
}

func NewService(repo Repository, promoter Promoter, products ImageRecorder) *Service {
	return &Service{repo: repo, promoter: promoter, products: products}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Retry re-runs the parked side effect. On success the job is removed; on
// failure it stays for another attempt.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if j.Handler != "promoter" {
		return fmt.Errorf("unknown job handler %q", j.Handler)
	}

	var payload PromotePayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return fmt.Errorf("corrupt job payload: %w", err)
	}

	durableRef, err := s.promoter.Promote(ctx, payload.ItemID, payload.ImageRef)
	if err != nil {
		return fmt.Errorf("promotion retry failed: %w", err)
	}

	if err := s.products.UpdateDurableImage(ctx, payload.ItemID, durableRef); err != nil {
		return err
	}

	slog.InfoContext(ctx, "promotion retried successfully", "job_id", j.ID, "item_id", payload.ItemID)
	return s.repo.Delete(ctx, id)
}
