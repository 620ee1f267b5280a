package synclog

import (
	"context"
	"encoding/json"
	"time"
)

// Kind classifies a pipeline event.
type Kind string

const (
	KindScoutStart         Kind = "scout_start"
	KindScoutSuccess       Kind = "scout_success"
	KindHydrateStart       Kind = "hydrate_start"
	KindHydrateSuccess     Kind = "hydrate_success"
	KindHydrateNotFound    Kind = "hydrate_not_found"
	KindHydrateRateLimited Kind = "hydrate_rate_limited"
	KindEmbedSuccess       Kind = "embed_success"
	KindEmbedFailed        Kind = "embed_failed"
	KindQCApproved         Kind = "qc_approved"
	KindQCRejected         Kind = "qc_rejected"
	KindPromoteStart       Kind = "promote_start"
	KindPromoteSuccess     Kind = "promote_success"
	KindPromoteFailed      Kind = "promote_failed"
)

// Event is one append-only record of pipeline progress. Events are never
// updated or deleted; they are the source of truth for audit and recovery.
type Event struct {
	ID         int64           `json:"id,omitempty"`
	ItemID     string          `json:"item_id,omitempty"`
	CatalogRef string          `json:"catalog_ref,omitempty"`
	Kind       Kind            `json:"kind"`
	StatusCode int             `json:"status_code,omitempty"`
	Message    string          `json:"message,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// EncodeDetails marshals a structured payload for Event.Details. A payload
// that cannot be marshalled yields nil rather than blocking the append.
func EncodeDetails(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Filter narrows List results. Zero values mean "no restriction".
type Filter struct {
	ItemID     string
	CatalogRef string
	Kind       Kind
	Limit      int
}

// Recorder is the write side of the log, consumed by every pipeline stage.
// Appends must be safe from concurrent workers.
type Recorder interface {
	Append(ctx context.Context, e Event) error
}

// Log is the full read/write surface.
type Log interface {
	Recorder
	List(ctx context.Context, f Filter) ([]Event, error)
}
