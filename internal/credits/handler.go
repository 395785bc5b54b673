package credits

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
	"github.com/shopspring/decimal"

	"github.com/pharmaops/pharmaops/internal/platform/httpx"
	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
)

const maxMultipartMemory = 8 << 20

// FileStore persists uploaded payment proofs.
type FileStore interface {
	Save(ctx context.Context, category, originalName string, r io.Reader) (string, error)
	Remove(ref string) error
}

// Handler wires HTTP endpoints for the credit ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
	files   FileStore
	rbac    rbac.Middleware
}

// NewHandler constructs the credits handler.
func NewHandler(logger *slog.Logger, service *Service, files FileStore, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, files: files, rbac: rbac}
}

// MountRoutes registers routes below /credits/{kind}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermCreditsView))
		r.Get("/report", h.handleReport)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/payments", h.handlePayments)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermCreditsEdit))
		r.Post("/", h.handleIssue)
		r.Put("/{id}", h.handleUpdate)
		r.Post("/{id}/payments", h.handleRecordPayment)
	})
	r.With(h.rbac.RequireAll(shared.PermCreditsDelete)).Delete("/{id}", h.handleDelete)
}

func kindParam(r *http.Request) (Kind, error) {
	return ParseKind(chi.URLParam(r, "kind"))
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input IssueInput
	if err := httpx.DecodeAndValidate(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	credit, err := h.service.Issue(r.Context(), kind, input, shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "issue credit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, credit)
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input, err := h.decodePayment(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	credit, err := h.service.RecordPayment(r.Context(), kind, id, input, shared.ActorID(r.Context()))
	if err != nil {
		if input.PaymentFile != "" && h.files != nil {
			_ = h.files.Remove(input.PaymentFile)
		}
		httpx.RespondErrorLogged(w, h.logger, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, credit)
}

// decodePayment accepts JSON or a multipart form carrying payment_file.
func (h *Handler) decodePayment(r *http.Request) (PaymentInput, error) {
	var input PaymentInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := httpx.DecodeJSON(r, &input); err != nil {
			return PaymentInput{}, err
		}
		return input, nil
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return PaymentInput{}, fmt.Errorf("%w: parse form: %v", shared.ErrValidation, err)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("paid_amount")))
	if err != nil {
		return PaymentInput{}, fmt.Errorf("paid_amount: %w", ErrInvalidAmount)
	}
	input.PaidAmount = amount

	file, header, err := r.FormFile("payment_file")
	if errors.Is(err, http.ErrMissingFile) {
		return input, nil
	}
	if err != nil {
		return PaymentInput{}, fmt.Errorf("%w: payment file: %v", shared.ErrValidation, err)
	}
	defer file.Close()
	if h.files == nil {
		return PaymentInput{}, fmt.Errorf("%w: uploads disabled", shared.ErrValidation)
	}
	ref, err := h.files.Save(r.Context(), "payments", header.Filename, file)
	if err != nil {
		return PaymentInput{}, err
	}
	input.PaymentFile = ref
	return input, nil
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input UpdateInput
	if err := httpx.DecodeAndValidate(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	credit, err := h.service.Update(r.Context(), kind, id, input, shared.ActorID(r.Context()), principal.Can(shared.PermCreditsOverride))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "update credit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, credit)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), kind, id, shared.ActorID(r.Context())); err != nil {
		httpx.RespondErrorLogged(w, h.logger, "delete credit", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	credit, err := h.service.Get(r.Context(), kind, id)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "get credit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, credit)
}

func (h *Handler) handlePayments(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.Payments(r.Context(), kind, id)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list payments", err)
		return
	}
	if payments == nil {
		payments = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": payments})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter := ReportFilter{Kind: kind, Status: Status(strings.ToUpper(q.Get("status")))}
	filter.Page, filter.PerPage = shared.PageFromRequest(r)
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: from must be YYYY-MM-DD", shared.ErrValidation))
			return
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: to must be YYYY-MM-DD", shared.ErrValidation))
			return
		}
		filter.To = t.AddDate(0, 0, 1)
	}
	if raw := q.Get("counterparty_id"); raw != "" {
		filter.CounterpartyID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: counterparty_id must be an integer", shared.ErrValidation))
			return
		}
	}
	report, err := h.service.Report(r.Context(), filter)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "credit report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
