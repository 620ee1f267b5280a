package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"sokoni/backend/features/catalog"
	"sokoni/backend/internal/adapter/qc"
	"sokoni/backend/internal/middleware"
)

// DecisionPayload is the qc.decision message shape. External reviewers publish
// one per item once a human or automated check settles the verdict.
type DecisionPayload struct {
	ItemID        string `json:"item_id"`
	Approved      bool   `json:"approved"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// DecisionConsumer applies out-of-band quality verdicts to items that were
// indexed speculatively.
type DecisionConsumer struct {
	orchestrator *Orchestrator
	repo         catalog.Repository
}

func NewDecisionConsumer(o *Orchestrator, repo catalog.Repository) *DecisionConsumer {
	return &DecisionConsumer{orchestrator: o, repo: repo}
}

func (c *DecisionConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload DecisionPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("poison pill: invalid decision payload", "error", err)
		return nil
	}
	if payload.ItemID == "" {
		slog.Error("decision payload missing item_id, dropping")
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	product, err := c.repo.GetProduct(ctx, payload.ItemID)
	if err != nil {
		slog.ErrorContext(ctx, "decision for unknown item", "item_id", payload.ItemID, "error", err)
		return nil
	}

	decision := qc.Decision{Approved: payload.Approved, Reason: payload.Reason}
	c.orchestrator.ApplyDecision(ctx, product.ItemID, product.CatalogRef, product.ImageURL, decision)
	return nil
}
