package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"sokoni/backend/internal/middleware"
)

type ProductRepo interface {
	CountProducts(ctx context.Context) (int, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

type VectorIndex interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	productRepo ProductRepo
	jobRepo     JobRepo
	index       VectorIndex
}

func NewHandler(p ProductRepo, j JobRepo, v VectorIndex) *Handler {
	return &Handler{productRepo: p, jobRepo: j, index: v}
}

type StatsResponse struct {
	Products   int `json:"products"`
	Indexed    int `json:"indexed"`
	FailedJobs int `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	pCount, err := h.productRepo.CountProducts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count products", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count products", http.StatusInternalServerError)
		return
	}

	jCount, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	iCount, err := h.index.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count indexed items", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count indexed items", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Products:   pCount,
		Indexed:    iCount,
		FailedJobs: jCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
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
