// Package api provides the HTTP handlers for the dataset exploration REST
// API: table metadata listings and per-column aggregations.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"datascope/internal/aggregation"
	"datascope/internal/filter"
	"datascope/internal/metadata"
	"datascope/internal/metric"
)

// Handler serves the dataset exploration endpoints.
type Handler struct {
	computer *aggregation.Computer
	store    metadata.Store
	logger   *slog.Logger
}

// NewHandler creates a handler over the aggregation computer and the
// metadata store.
func NewHandler(computer *aggregation.Computer, store metadata.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{computer: computer, store: store, logger: logger}
}

// Register mounts the dataset routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/datasets/{datasetID}", func(r chi.Router) {
		r.Get("/tables", h.listTables)
		r.Get("/tables/{tableID}/aggregations", h.tableAggregations)
		r.Get("/tables/{tableID}/columns/{column}/aggregation", h.columnAggregation)
	})
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.store.DatasetTables(r.Context(), chi.URLParam(r, "datasetID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// aggregationParams decodes the shared query parameters: a JSON-encoded
// filter list and the countBy metric selection.
func aggregationParams(r *http.Request) ([]filter.Filter, metric.Selection, error) {
	filters, err := filter.ParseFilters(r.URL.Query().Get("filters"))
	if err != nil {
		return nil, metric.Selection{}, err
	}
	sel, err := metric.ParseSelection(r.URL.Query().Get("countBy"))
	if err != nil {
		return nil, metric.Selection{}, err
	}
	return filters, sel, nil
}

func (h *Handler) tableAggregations(w http.ResponseWriter, r *http.Request) {
	filters, sel, err := aggregationParams(r)
	if err != nil {
		h.writeErrorStatus(w, r, http.StatusBadRequest, err)
		return
	}

	aggregations, err := h.computer.TableAggregations(r.Context(),
		chi.URLParam(r, "datasetID"), chi.URLParam(r, "tableID"), filters, sel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"aggregations": aggregations})
}

func (h *Handler) columnAggregation(w http.ResponseWriter, r *http.Request) {
	filters, sel, err := aggregationParams(r)
	if err != nil {
		h.writeErrorStatus(w, r, http.StatusBadRequest, err)
		return
	}

	agg, err := h.computer.ColumnAggregation(r.Context(),
		chi.URLParam(r, "datasetID"), chi.URLParam(r, "tableID"), chi.URLParam(r, "column"), filters, sel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, agg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeErrorStatus(w, r, httpStatusFromError(err), err)
}

func (h *Handler) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	h.writeJSON(w, status, map[string]any{"error": err.Error()})
}
