package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"sokoni/backend/features/catalog"
	"sokoni/backend/internal/middleware"
)

// SyncConsumer picks up catalog.sync tasks published by the HTTP surface and
// runs the pipeline for each.
type SyncConsumer struct {
	orchestrator *Orchestrator
}

func NewSyncConsumer(o *Orchestrator) *SyncConsumer {
	return &SyncConsumer{orchestrator: o}
}

func (c *SyncConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task catalog.SyncTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison pill: invalid JSON, don't retry.
		slog.Error("poison pill: invalid sync task", "error", err)
		return nil
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if task.CatalogRef == "" {
		slog.ErrorContext(ctx, "sync task missing catalog_ref, dropping")
		return nil
	}

	report, err := c.orchestrator.Run(ctx, task.CatalogRef)
	if err != nil {
		// Run-level failures are permanent for this task; requeueing would
		// fail the same way.
		slog.ErrorContext(ctx, "catalog run failed", "catalog_ref", task.CatalogRef, "error", err)
		return nil
	}

	slog.InfoContext(ctx, "catalog run finished",
		"catalog_ref", task.CatalogRef,
		"state", report.State,
		"indexed", report.Indexed,
		"failed", report.Failed)
	return nil
}
