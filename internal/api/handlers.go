package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openhymnal/hymnal-api/internal/database"
	"github.com/openhymnal/hymnal-api/internal/logger"
)

// Handlers contains all HTTP handlers and their dependencies.
// Handlers log through the logger package's context helpers so every
// entry carries the request ID set by RequestIDMiddleware.
type Handlers struct {
	db *database.DB
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *database.DB) *Handlers {
	return &Handlers{db: db}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Check database health
	if err := h.db.Health(ctx); err != nil {
		logger.Warn(ctx, "health check failed", slog.Any("error", err))
		WriteError(w, http.StatusServiceUnavailable, "Database unhealthy", "HEALTH_CHECK_FAILED")
		return
	}

	WriteSuccess(w, map[string]string{
		"status": "healthy",
	})
}

// CreateHymn handles POST /api/hymns
func (h *Handlers) CreateHymn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input database.HymnInput
	if err := decodeJSON(r, &input); err != nil {
		WriteBadRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := input.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "VALIDATION")
		return
	}

	hymn, err := h.db.CreateHymn(ctx, &input)
	if err != nil {
		if database.IsDuplicate(err) {
			WriteConflict(w, fmt.Sprintf("Hymn number %d already exists", input.Number))
			return
		}
		logger.Error(ctx, "failed to create hymn", err,
			slog.Int("number", input.Number))
		WriteInternalError(w, "Failed to create hymn")
		return
	}

	WriteCreated(w, hymn)
}

// ListHymns handles GET /api/hymns
func (h *Handlers) ListHymns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	hymns, err := h.db.ListHymns(ctx)
	if err != nil {
		logger.Error(ctx, "failed to list hymns", err)
		WriteInternalError(w, "Failed to retrieve hymns")
		return
	}

	WriteSuccess(w, hymns)
}

// GetHymnByNumber handles GET /api/hymns/{number}
//
// The response is a sequence with zero or one elements; the unique index on
// number means at most one hymn matches, but callers get an array either way.
func (h *Handlers) GetHymnByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	number, ok := parseNumber(w, r)
	if !ok {
		return
	}

	hymns, err := h.db.GetHymnsByNumber(ctx, number)
	if err != nil {
		logger.Error(ctx, "failed to get hymn by number", err,
			slog.Int("number", number))
		WriteInternalError(w, "Failed to retrieve hymn")
		return
	}

	WriteSuccess(w, hymns)
}

// SearchHymns handles GET /api/hymns/search/{searchTerm}
func (h *Handlers) SearchHymns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	term := chi.URLParam(r, "searchTerm")

	hymns, err := h.db.SearchHymns(ctx, term)
	if err != nil {
		logger.Error(ctx, "failed to search hymns", err,
			slog.String("term", term))
		WriteInternalError(w, "Failed to search hymns")
		return
	}

	WriteSuccess(w, hymns)
}

// UpdateHymn handles PUT /api/hymns/{number}
func (h *Handlers) UpdateHymn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	number, ok := parseNumber(w, r)
	if !ok {
		return
	}

	var patch database.HymnPatch
	if err := decodeJSON(r, &patch); err != nil {
		WriteBadRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	hymn, err := h.db.UpdateHymnByNumber(ctx, number, &patch)
	if err != nil {
		if database.IsNotFound(err) {
			WriteNotFound(w, fmt.Sprintf("Hymn %d not found", number))
			return
		}
		logger.Error(ctx, "failed to update hymn", err,
			slog.Int("number", number))
		WriteInternalError(w, "Failed to update hymn")
		return
	}

	WriteSuccess(w, hymn)
}

// DeleteHymn handles DELETE /api/hymns/{number}
func (h *Handlers) DeleteHymn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	number, ok := parseNumber(w, r)
	if !ok {
		return
	}

	hymn, err := h.db.DeleteHymnByNumber(ctx, number)
	if err != nil {
		if database.IsNotFound(err) {
			WriteNotFound(w, fmt.Sprintf("Hymn %d not found", number))
			return
		}
		logger.Error(ctx, "failed to delete hymn", err,
			slog.Int("number", number))
		WriteInternalError(w, "Failed to delete hymn")
		return
	}

	WriteSuccess(w, hymn)
}

// DeleteHymnByID handles DELETE /api/hymns/by-id/{id}
func (h *Handlers) DeleteHymnByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := chi.URLParam(r, "id")
	if id == "" {
		WriteBadRequest(w, "Hymn ID is required")
		return
	}

	hymn, err := h.db.DeleteHymnByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			WriteNotFound(w, "Hymn not found")
			return
		}
		logger.Error(ctx, "failed to delete hymn by id", err,
			slog.String("id", id))
		WriteInternalError(w, "Failed to delete hymn")
		return
	}

	WriteSuccess(w, hymn)
}

// GetHymnStats handles GET /api/hymns/stats
func (h *Handlers) GetHymnStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.db.GetHymnStats(ctx)
	if err != nil {
		logger.Error(ctx, "failed to get hymn stats", err)
		WriteInternalError(w, "Failed to retrieve statistics")
		return
	}

	WriteSuccess(w, stats)
}

// parseNumber extracts and coerces the {number} path parameter.
// Writes a 400 response and returns false on failure.
func parseNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	numberStr := chi.URLParam(r, "number")
	if numberStr == "" {
		WriteBadRequest(w, "Hymn number is required")
		return 0, false
	}

	number, err := strconv.Atoi(numberStr)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("Invalid hymn number: %q", numberStr))
		return 0, false
	}

	return number, true
}

// decodeJSON decodes JSON request body.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("request body is empty")
	}
	defer r.Body.Close()

	return json.NewDecoder(r.Body).Decode(v)
}
