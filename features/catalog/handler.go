package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"sokoni/backend/internal/middleware"
	"sokoni/backend/internal/synclog"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type syncRequest struct {
	CatalogRefs []string `json:"catalog_refs"`
}

// Sync handles POST /catalogs/sync.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.StartSync(ctx, req.CatalogRefs); err != nil {
		slog.ErrorContext(ctx, "failed to queue sync", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to queue sync", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"queued": len(req.CatalogRefs)})
}

// GetProduct handles GET /products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	p, err := h.service.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "product not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get product", "error", err, "item_id", id)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to get product", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": p})
}

// ListEvents handles GET /events, the audit surface over the sync event log.
// Optional query params: item_id, catalog_ref, kind, limit.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	f := synclog.Filter{
		ItemID:     q.Get("item_id"),
		CatalogRef: q.Get("catalog_ref"),
		Kind:       synclog.Kind(q.Get("kind")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.writeError(ctx, w, "INVALID_PARAM", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		f.Limit = limit
	}

	events, err := h.service.ListEvents(ctx, f)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list events", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []synclog.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": events})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
