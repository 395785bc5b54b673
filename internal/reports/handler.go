package reports

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/pharmaops/pharmaops/internal/platform/httpx"
	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
)

const exportLimitPerMinute = 20

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers routes below /reports.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermReportsView))
		r.Get("/sales-summary", h.handleSummary)
		r.With(httprate.LimitByIP(exportLimitPerMinute, time.Minute)).Get("/sales-summary.csv", h.handleSummaryCSV)
		r.Get("/stock-levels", h.handleStockLevels)
		r.Get("/dashboard", h.handleDashboard)
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.summary(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleSummaryCSV(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.summary(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sales-summary.csv"`)
	if err := WriteSummaryCSV(w, summary); err != nil {
		h.logger.Error("write summary csv", slog.Any("error", err))
	}
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) (Summary, bool) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return Summary{}, false
	}
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	summary, err := h.service.SalesSummary(r.Context(), rng, n)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "sales summary", err)
		return Summary{}, false
	}
	return summary, true
}

func (h *Handler) handleStockLevels(w http.ResponseWriter, r *http.Request) {
	lowOnly, _ := strconv.ParseBool(r.URL.Query().Get("low_stock"))
	levels, err := h.service.StockLevels(r.Context(), lowOnly)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "stock levels", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": levels})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if rng.From.IsZero() && rng.To.IsZero() {
		rng = h.service.Today()
	}
	board, err := h.service.Dashboard(r.Context(), rng)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, board)
}

// parseRange reads from/to as dates (inclusive) or RFC3339 instants (to exclusive).
func parseRange(r *http.Request) (Range, error) {
	q := r.URL.Query()
	var rng Range
	var err error
	if raw := q.Get("from"); raw != "" {
		if rng.From, _, err = parseBound(raw); err != nil {
			return Range{}, err
		}
	}
	if raw := q.Get("to"); raw != "" {
		var dateOnly bool
		if rng.To, dateOnly, err = parseBound(raw); err != nil {
			return Range{}, err
		}
		if dateOnly {
			rng.To = rng.To.AddDate(0, 0, 1)
		}
	}
	return rng, rng.Validate()
}

func parseBound(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reports: invalid date %q: %w", raw, shared.ErrValidation)
	}
	return t.UTC(), false, nil
}
