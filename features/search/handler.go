package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"sokoni/backend/internal/middleware"
	"sokoni/backend/internal/similar"
)

type Handler struct {
	service *similar.Service
}

func NewHandler(service *similar.Service) *Handler {
	return &Handler{service: service}
}

type searchRequest struct {
	Query      string   `json:"query"`
	Limit      *int     `json:"limit,omitempty"`
	SellerID   *int64   `json:"seller_id,omitempty"`
	CategoryID *int64   `json:"category_id,omitempty"`
	MinPrice   *float64 `json:"min_price,omitempty"`
	MaxPrice   *float64 `json:"max_price,omitempty"`
}

// Search handles POST /search: free-text similarity over the index.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(ctx, w, "INVALID_PARAM", "query is required", http.StatusBadRequest)
		return
	}

	opts := &similar.Options{
		Limit:      req.Limit,
		SellerID:   req.SellerID,
		CategoryID: req.CategoryID,
		MinPrice:   req.MinPrice,
		MaxPrice:   req.MaxPrice,
	}

	results, err := h.service.FindSimilarToText(ctx, req.Query, opts)
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "search failed", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []similar.Result{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": results})
}

// Similar handles GET /products/{id}/similar. Filters arrive as query params:
// seller_id, category_id, min_price, max_price, limit.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	opts, err := optionsFromQuery(r)
	if err != nil {
		h.writeError(ctx, w, "INVALID_PARAM", err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.service.FindSimilarToItem(ctx, id, opts)
	if err != nil {
		slog.ErrorContext(ctx, "similar lookup failed", "error", err, "item_id", id)
		h.writeError(ctx, w, "NOT_FOUND", "item is not indexed", http.StatusNotFound)
		return
	}
	if results == nil {
		results = []similar.Result{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": results})
}

func optionsFromQuery(r *http.Request) (*similar.Options, error) {
	q := r.URL.Query()
	opts := &similar.Options{}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return nil, &paramError{"limit must be a positive integer"}
		}
		opts.Limit = &limit
	}
	if raw := q.Get("seller_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &paramError{"seller_id must be an integer"}
		}
		opts.SellerID = &id
	}
	if raw := q.Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &paramError{"category_id must be an integer"}
		}
		opts.CategoryID = &id
	}
	if raw := q.Get("min_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &paramError{"min_price must be a number"}
		}
		opts.MinPrice = &v
	}
	if raw := q.Get("max_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &paramError{"max_price must be a number"}
		}
		opts.MaxPrice = &v
	}
	return opts, nil
}

type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }

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
