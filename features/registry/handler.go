package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"hackrx/backend/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	docs, err := h.service.List(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hash := r.PathValue("hash")

	doc, err := h.service.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get document", "hash", hash, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.Error("failed to encode response", "error", err)
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
