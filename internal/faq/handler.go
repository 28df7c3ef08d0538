package faq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// Catalog is the FAQ storage the admin handler edits.
type Catalog interface {
	List(ctx context.Context, units []string) ([]conversation.FAQ, error)
	Upsert(ctx context.Context, f *conversation.FAQ) (string, error)
	Delete(ctx context.Context, id string) (string, error)
}

// Invalidator drops cached entries after an edit.
type Invalidator interface {
	Invalidate(ctx context.Context, unit string) error
}

// Handler serves the /admin/faqs routes.
type Handler struct {
	catalog Catalog
	cache   Invalidator
	logger  *logging.Logger
}

// NewHandler builds the admin handler. cache may be nil.
func NewHandler(catalog Catalog, cache Invalidator, logger *logging.Logger) *Handler {
	if catalog == nil {
		panic("faq: catalog cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{catalog: catalog, cache: cache, logger: logger}
}

// List handles GET /admin/faqs?unit=Finance,Operations
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var units []string
	if raw := r.URL.Query().Get("unit"); raw != "" {
		units = strings.Split(raw, ",")
	}
	faqs, err := h.catalog.List(r.Context(), units)
	if err != nil {
		h.logger.Error("failed to list faqs", "error", err)
		http.Error(w, "failed to list faqs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"faqs": faqs})
}

// Upsert handles POST /admin/faqs
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var f conversation.FAQ
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	previous, err := h.catalog.Upsert(r.Context(), &f)
	if err != nil {
		if errors.Is(err, ErrInvalidEntry) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to save faq", "error", err)
		http.Error(w, "failed to save faq", http.StatusInternalServerError)
		return
	}
	h.invalidate(r.Context(), f.OrganizationUnit)
	if previous != "" && !strings.EqualFold(strings.TrimSpace(previous), strings.TrimSpace(f.OrganizationUnit)) {
		h.invalidate(r.Context(), previous)
	}
	writeJSON(w, http.StatusOK, f)
}

// Delete handles DELETE /admin/faqs/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing faq id", http.StatusBadRequest)
		return
	}
	unit, err := h.catalog.Delete(r.Context(), id)
	if errors.Is(err, conversation.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to delete faq", "error", err, "faq_id", id)
		http.Error(w, "failed to delete faq", http.StatusInternalServerError)
		return
	}
	h.invalidate(r.Context(), unit)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) invalidate(ctx context.Context, unit string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, unit); err != nil {
		h.logger.Warn("failed to invalidate faq cache", "error", err, "unit", unit)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
