package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"hackrx/backend/internal/middleware"
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	documents Counter
	indexes   Counter
}

// NewHandler reports registry documents and stored indexes.
func NewHandler(documents, indexes Counter) *Handler {
	return &Handler{documents: documents, indexes: indexes}
}

type StatsResponse struct {
	Documents int `json:"documents"`
	Indexes   int `json:"indexes"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	slog.DebugContext(ctx, "getting stats")

	dCount, err := h.documents.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	iCount, err := h.indexes.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count indexes", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count indexes", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": StatsResponse{Documents: dCount, Indexes: iCount}}); err != nil {
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
