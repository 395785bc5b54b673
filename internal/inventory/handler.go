package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmaops/pharmaops/internal/platform/httpx"
	"github.com/pharmaops/pharmaops/internal/rbac"
	"github.com/pharmaops/pharmaops/internal/shared"
)

// Handler wires HTTP endpoints for the medicine catalog.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers medicine routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermMedicinesView))
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/stock-card", h.handleStockCard)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermMedicinesEdit))
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Post("/{id}/restock", h.handleRestock)
	})
	r.With(h.rbac.RequireAll(shared.PermMedicinesAdjust)).Post("/{id}/adjust", h.handleAdjust)
	r.With(h.rbac.RequireAll(shared.PermMedicinesDelete)).Delete("/{id}", h.handleDelete)
}

type listResponse struct {
	Data       []StockItem       `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageFromRequest(r)
	lowOnly, _ := strconv.ParseBool(q.Get("low_stock"))
	items, meta, err := h.service.List(r.Context(), ListFilters{
		Search:       q.Get("search"),
		LowStockOnly: lowOnly,
		Page:         page,
		PerPage:      perPage,
		SortBy:       q.Get("sort"),
		SortDesc:     q.Get("order") == "desc",
	})
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "list medicines", err)
		return
	}
	if items == nil {
		items = []StockItem{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: items, Pagination: meta})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "get medicine", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeAndValidate(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Create(r.Context(), input, shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "create medicine", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
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
	item, err := h.service.Update(r.Context(), id, input, shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "update medicine", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, h.service.Restock)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, h.service.Adjust)
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request, post func(context.Context, AdjustmentInput) (Movement, error)) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input AdjustmentInput
	if err := httpx.DecodeAndValidate(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.StockItemID = id
	input.ActorID = shared.ActorID(r.Context())
	movement, err := post(r.Context(), input)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "post stock movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorID(r.Context())); err != nil {
		httpx.RespondErrorLogged(w, h.logger, "delete medicine", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter := StockCardFilter{StockItemID: id}
	if from, err := time.Parse(time.DateOnly, q.Get("from")); err == nil {
		filter.From = from
	}
	if to, err := time.Parse(time.DateOnly, q.Get("to")); err == nil {
		filter.To = to.AddDate(0, 0, 1)
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	entries, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		httpx.RespondErrorLogged(w, h.logger, "stock card", err)
		return
	}
	if entries == nil {
		entries = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}
