package sales

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmaops/pharmaops/internal/platform/httpx"
	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
)

const maxMultipartMemory = 8 << 20

// EvidenceStore persists uploaded prescription scans.
type EvidenceStore interface {
	Save(ctx context.Context, category, originalName string, r io.Reader) (string, error)
	Remove(ref string) error
}

// Handler wires HTTP endpoints for sales and returns.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	evidence EvidenceStore
	rbac     rbac.Middleware
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service, evidence EvidenceStore, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, evidence: evidence, rbac: rbac}
}

// MountRoutes registers /sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermSalesView)).Get("/", h.handleList)
	r.With(h.rbac.RequireAny(shared.PermSalesView)).Get("/{id}", h.handleGet)
	r.With(h.rbac.RequireAll(shared.PermSalesCreate)).Post("/", h.handleSell)
	r.With(h.rbac.RequireAll(shared.PermSalesEdit)).Put("/{id}", h.handleEdit)
	r.With(h.rbac.RequireAll(shared.PermSalesDelete)).Delete("/{id}", h.handleDelete)
}

// MountReturnRoutes registers /returns routes.
func (h *Handler) MountReturnRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermSalesView)).Get("/", h.handleListReturns)
	r.With(h.rbac.RequireAll(shared.PermReturnsCreate)).Post("/", h.handleCreateReturn)
	r.With(h.rbac.RequireAll(shared.PermReturnsDelete)).Delete("/{id}", h.handleDeleteReturn)
}

func (h *Handler) handleSell(w http.ResponseWriter, r *http.Request) {
	input, uploaded, err := h.decodeSell(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Sell(r.Context(), input, shared.ActorID(r.Context()), strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		if uploaded != "" && h.evidence != nil {
			_ = h.evidence.Remove(uploaded)
		}
		httpx.RespondErrorLogged(w, h.logger, "sell", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

// decodeSell accepts JSON or a multipart form carrying a prescription file.
func (h *Handler) decodeSell(r *http.Request) (SellInput, string, error) {
	var input SellInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := httpx.DecodeAndValidate(r, &input); err != nil {
			return SellInput{}, "", err
		}
		return input, "", nil
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return SellInput{}, "", fmt.Errorf("%w: parse form: %v", shared.ErrValidation, err)
	}
	var err error
	if input.StockItemID, err = formInt(r, "stock_item_id"); err != nil {
		return SellInput{}, "", err
	}
	if input.Quantity, err = formInt(r, "quantity"); err != nil {
		return SellInput{}, "", err
	}
	if raw := r.FormValue("customer_id"); raw != "" {
		id, err := formInt(r, "customer_id")
		if err != nil {
			return SellInput{}, "", err
		}
		input.CustomerID = &id
	}
	input.Note = r.FormValue("note")
	input.PrescriptionRef = r.FormValue("prescription_ref")
	if err := httpx.Validate(&input); err != nil {
		return SellInput{}, "", err
	}

	file, header, err := r.FormFile("prescription")
	if errors.Is(err, http.ErrMissingFile) {
		return input, "", nil
	}
	if err != nil {
		return SellInput{}, "", fmt.Errorf("%w: prescription file: %v", shared.ErrValidation, err)
	}
	defer file.Close()
	if h.evidence == nil {
		return SellInput{}, "", fmt.Errorf("%w: uploads disabled", shared.ErrValidation)
	}
	ref, err := h.evidence.Save(r.Context(), "prescriptions", header.Filename, file)
	if err != nil {
		return SellInput{}, "", err
	}
	input.PrescriptionRef = ref
	return input, ref, nil
}

func formInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(r.FormValue(name)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", shared.ErrValidation, name)
	}
	return v, nil
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input EditInput
	if err := httpx.DecodeAndValidate(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Edit(r.Context(), id, input, shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "edit sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorID(r.Context())); err != nil {
		httpx.RespondErrorLogged(w, h.logger, "delete sale", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, meta, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list sales", err)
		return
	}
	if out == nil {
		out = []Sale{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out, "pagination": meta})
}

func (h *Handler) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var input ReturnInput
	if err := httpx.DecodeAndValidate(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.CreateReturn(r.Context(), input, shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "create return", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) handleDeleteReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteReturn(r.Context(), id, shared.ActorID(r.Context())); err != nil {
		httpx.RespondErrorLogged(w, h.logger, "delete return", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleListReturns(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, meta, err := h.service.ListReturns(r.Context(), filters)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list returns", err)
		return
	}
	if out == nil {
		out = []Return{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out, "pagination": meta})
}

func parseFilters(r *http.Request) (ListFilters, error) {
	q := r.URL.Query()
	var f ListFilters
	f.Page, f.PerPage = shared.PageFromRequest(r)
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return ListFilters{}, fmt.Errorf("%w: from must be YYYY-MM-DD", shared.ErrValidation)
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return ListFilters{}, fmt.Errorf("%w: to must be YYYY-MM-DD", shared.ErrValidation)
		}
		f.To = t.AddDate(0, 0, 1)
	}
	for _, p := range []struct {
		name string
		dst  *int64
	}{
		{"stock_item_id", &f.StockItemID},
		{"customer_id", &f.CustomerID},
		{"sale_id", &f.SaleID},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return ListFilters{}, fmt.Errorf("%w: %s must be a positive integer", shared.ErrValidation, p.name)
		}
		*p.dst = id
	}
	return f, nil
}
