package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"sokoni/backend/features/catalog"
	"sokoni/backend/features/job"
	"sokoni/backend/internal/adapter/qc"
	"sokoni/backend/internal/embedding"
	"sokoni/backend/internal/hydrator"
	"sokoni/backend/internal/scout"
	"sokoni/backend/internal/synclog"
	"sokoni/backend/internal/vector"
)

// State is the run-level progression of one catalog sync. Per-item progress
// is independent of it: an item can fail hydration while the run proceeds to
// completion for its siblings.
type State string

const (
	StateDiscovering State = "DISCOVERING"
	StateHydrating   State = "HYDRATING"
	StateEmbedding   State = "EMBEDDING"
	StateAwaitingQC  State = "AWAITING_QC"
	StatePersisting  State = "PERSISTING"
	StateIndexed     State = "INDEXED"
	StateFailed      State = "FAILED"
)

const gateConcurrency = 10

type Scouter interface {
	Discover(ctx context.Context, catalogRef string) ([]scout.Candidate, error)
}

type ItemHydrator interface {
	Hydrate(ctx context.Context, candidates []scout.Candidate) []hydrator.Result
}

type Embedder interface {
	EmbedBatch(ctx context.Context, items []*hydrator.Item) [][]float32
}

// Gate is the external quality-control capability. It may be slow; decisions
// are applied after speculative indexing so search never waits on it.
type Gate interface {
	Decide(ctx context.Context, itemID, name, description, imageRef string) (qc.Decision, error)
}

type Promoter interface {
	Promote(ctx context.Context, itemID, imageRef string) (string, error)
}

type JobSaver interface {
	Save(ctx context.Context, j *job.Job) error
}

// Report summarizes one catalog run.
type Report struct {
	CatalogRef string
	State      State
	Discovered int
	Hydrated   int
	Indexed    int
	Approved   int
	Rejected   int
	Failed     int
}

// Orchestrator owns the lifetime of a pipeline run and is the only component
// that mutates the promoter and the index.
type Orchestrator struct {
	scout    Scouter
	hydrator ItemHydrator
	embedder Embedder
	gate     Gate
	promoter Promoter
	index    vector.Index
	repo     catalog.Repository
	jobs     JobSaver
	log      synclog.Recorder

	catalogParallelism int
}

func NewOrchestrator(
	sc Scouter,
	hy ItemHydrator,
	em Embedder,
	gate Gate,
	promoter Promoter,
	index vector.Index,
	repo catalog.Repository,
	jobs JobSaver,
	log synclog.Recorder,
	catalogParallelism int,
) *Orchestrator {
	if catalogParallelism <= 0 {
		catalogParallelism = 4
	}
	return &Orchestrator{
		scout:              sc,
		hydrator:           hy,
		embedder:           em,
		gate:               gate,
		promoter:           promoter,
		index:              index,
		repo:               repo,
		jobs:               jobs,
		log:                log,
		catalogParallelism: catalogParallelism,
	}
}

// Run executes one full pipeline pass for a catalog. The only error return is
// a run-level failure (invalid catalog reference); per-item failures are
// absorbed into the report so siblings keep going.
func (o *Orchestrator) Run(ctx context.Context, catalogRef string) (*Report, error) {
	report := &Report{CatalogRef: catalogRef, State: StateDiscovering}
	slog.InfoContext(ctx, "pipeline run starting", "catalog_ref", catalogRef)

	candidates, err := o.scout.Discover(ctx, catalogRef)
	if err != nil {
		report.State = StateFailed
		return report, fmt.Errorf("discovery failed: %w", err)
	}
	report.Discovered = len(candidates)
	if len(candidates) == 0 {
		report.State = StateIndexed
		slog.InfoContext(ctx, "pipeline run complete with zero items", "catalog_ref", catalogRef)
		return report, nil
	}

	if ctx.Err() != nil {
		report.State = StateFailed
		return report, ctx.Err()
	}

	report.State = StateHydrating
	results := o.hydrator.Hydrate(ctx, candidates)

	var items []*hydrator.Item
	for _, r := range results {
		if r.Err != nil {
			report.Failed++
			continue
		}
		items = append(items, r.Item)
	}
	report.Hydrated = len(items)

	if len(items) == 0 {
		report.State = StateIndexed
		return report, nil
	}

	// A run cancelled during hydration keeps whatever drained, but issues no
	// embedding or indexing work. The next run rediscovers the items.
	if ctx.Err() != nil {
		report.State = StateFailed
		return report, ctx.Err()
	}

	report.State = StateEmbedding
	vectors := o.embedder.EmbedBatch(ctx, items)

	// Every index entry carries its seller for filtered search, so a run
	// that cannot resolve its seller cannot index anything.
	sellerID, err := o.repo.ResolveSeller(ctx, catalogRef)
	if err != nil {
		report.State = StateFailed
		return report, fmt.Errorf("resolve seller for %s: %w", catalogRef, err)
	}

	// Speculative indexing: every successfully embedded item enters the index
	// before its quality verdict is known, so search latency is not gated on
	// QC turnaround. Rejections are revoked afterwards.
	var pending []*hydrator.Item
	for i, item := range items {
		if embedding.IsSentinel(vectors[i]) {
			report.Failed++
			continue
		}

		categoryID, catErr := o.repo.CategoryID(ctx, catalog.ClassifyCategory(item.Name, item.Description))
		if catErr != nil {
			slog.WarnContext(ctx, "failed to resolve category", "item_id", item.ItemID, "error", catErr)
		}

		if saveErr := o.repo.SaveProduct(ctx, &catalog.Product{
			ItemID:      item.ItemID,
			CatalogRef:  item.CatalogRef,
			SellerID:    sellerID,
			CategoryID:  categoryID,
			Name:        item.Name,
			Description: item.Description,
			Price:       item.Price,
			ImageURL:    item.ImageRef,
			Source:      "catalog_sync",
		}); saveErr != nil {
			slog.ErrorContext(ctx, "failed to persist product", "item_id", item.ItemID, "error", saveErr)
		}

		if upErr := o.index.Upsert(ctx, vector.Entry{
			ItemID:     item.ItemID,
			Vector:     vectors[i],
			SellerID:   sellerID,
			CategoryID: categoryID,
			Price:      item.Price,
			CreatedAt:  item.ResolvedAt,
		}); upErr != nil {
			slog.ErrorContext(ctx, "index upsert failed", "item_id", item.ItemID, "error", upErr)
			report.Failed++
			continue
		}
		report.Indexed++
		pending = append(pending, item)
	}

	report.State = StateAwaitingQC
	var approved, rejected atomic.Int64
	g, gateCtx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(gateConcurrency)
	for _, item := range pending {
		item := item
		g.Go(func() error {
			decision, gateErr := o.gate.Decide(gateCtx, item.ItemID, item.Name, item.Description, item.ImageRef)
			if gateErr != nil {
				// The gate may deliver its verdict later via the decision
				// topic; leave the speculative entry in place.
				slog.WarnContext(gateCtx, "quality gate deferred", "item_id", item.ItemID, "error", gateErr)
				return nil
			}
			if o.ApplyDecision(gateCtx, item.ItemID, item.CatalogRef, item.ImageRef, decision) {
				approved.Add(1)
			} else {
				rejected.Add(1)
			}
			return nil
		})
	}
	report.State = StatePersisting
	_ = g.Wait()
	report.Approved = int(approved.Load())
	report.Rejected = int(rejected.Load())

	report.State = StateIndexed
	slog.InfoContext(ctx, "pipeline run complete",
		"catalog_ref", catalogRef,
		"discovered", report.Discovered,
		"hydrated", report.Hydrated,
		"indexed", report.Indexed,
		"approved", report.Approved,
		"rejected", report.Rejected,
		"failed", report.Failed)
	return report, nil
}

// RunAll syncs several catalogs concurrently under a fixed bound. One
// catalog's failure never aborts its siblings.
func (o *Orchestrator) RunAll(ctx context.Context, catalogRefs []string) []*Report {
	reports := make([]*Report, len(catalogRefs))

	g, runCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.catalogParallelism)
	for i, ref := range catalogRefs {
		i, ref := i, ref
		g.Go(func() error {
			report, err := o.Run(runCtx, ref)
			if err != nil {
				slog.ErrorContext(runCtx, "catalog run failed", "catalog_ref", ref, "error", err)
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// ApplyDecision applies a quality verdict: approval promotes the image into
// durable storage; rejection revokes the speculative index entry. Reports
// whether the item was approved. Promotion failure never reverts the item's
// presence in the index; it is parked as a retryable job instead.
func (o *Orchestrator) ApplyDecision(ctx context.Context, itemID, catalogRef, imageRef string, decision qc.Decision) bool {
	if !decision.Approved {
		o.record(ctx, synclog.Event{ItemID: itemID, CatalogRef: catalogRef, Kind: synclog.KindQCRejected, Message: decision.Reason})
		if err := o.index.Delete(ctx, itemID); err != nil {
			slog.ErrorContext(ctx, "failed to revoke rejected item", "item_id", itemID, "error", err)
		}
		return false
	}

	o.record(ctx, synclog.Event{ItemID: itemID, CatalogRef: catalogRef, Kind: synclog.KindQCApproved})
	o.record(ctx, synclog.Event{ItemID: itemID, CatalogRef: catalogRef, Kind: synclog.KindPromoteStart})

	durableRef, err := o.promoter.Promote(ctx, itemID, imageRef)
	if err != nil {
		o.record(ctx, synclog.Event{ItemID: itemID, CatalogRef: catalogRef, Kind: synclog.KindPromoteFailed, Message: err.Error()})
		o.parkPromotion(ctx, itemID, imageRef, err)
		return true
	}

	if err := o.repo.UpdateDurableImage(ctx, itemID, durableRef); err != nil {
		slog.ErrorContext(ctx, "failed to record durable image", "item_id", itemID, "error", err)
	}
	o.record(ctx, synclog.Event{
		ItemID:     itemID,
		CatalogRef: catalogRef,
		Kind:       synclog.KindPromoteSuccess,
		Details:    synclog.EncodeDetails(map[string]string{"durable_ref": durableRef}),
	})
	return true
}

func (o *Orchestrator) parkPromotion(ctx context.Context, itemID, imageRef string, cause error) {
	if o.jobs == nil {
		return
	}
	payload, _ := json.Marshal(job.PromotePayload{ItemID: itemID, ImageRef: imageRef})
	j := &job.Job{
		ItemID:  itemID,
		Handler: "promoter",
		Payload: payload,
		Error:   cause.Error(),
	}
	if err := o.jobs.Save(ctx, j); err != nil {
		slog.ErrorContext(ctx, "failed to save promotion job", "item_id", itemID, "error", err)
		return
	}
	slog.InfoContext(ctx, "promotion parked for retry", "item_id", itemID, "job_id", j.ID)
}

func (o *Orchestrator) record(ctx context.Context, e synclog.Event) {
	if o.log == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := o.log.Append(ctx, e); err != nil {
		slog.WarnContext(ctx, "failed to append sync event", "kind", e.Kind, "error", err)
	}
}
