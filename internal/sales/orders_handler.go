package sales

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// OrderHandler exposes sales orders over HTTP.
type OrderHandler struct {
	logger *slog.Logger
	orders *OrderService
	rbac   rbac.Middleware
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(logger *slog.Logger, orders *OrderService, rbac rbac.Middleware) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{logger: logger, orders: orders, rbac: rbac}
}

// MountRoutes registers /api/sales-orders routes.
func (h *OrderHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceSales, rbac.ActionRead))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.With(h.rbac.Require(rbac.ResourceSales, rbac.ActionCreate)).Post("/", h.create)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceSales, rbac.ActionUpdate))
		r.Patch("/{id}", h.update)
		r.Post("/{id}/confirm", h.action(h.orders.Confirm))
	})
	r.With(h.rbac.Require(rbac.ResourceSales, rbac.ActionDelete)).Post("/{id}/cancel", h.action(h.orders.Cancel))
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 50)
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := h.orders.List(r.Context(), OrderFilters{
		CustomerID: q.Get("customer_id"), Status: OrderStatus(q.Get("status")), Search: q.Get("q"), Limit: p.PerPage, Offset: p.Offset(),
	})
	if err != nil {
		h.logger.Error("list sales orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Order{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Order]{Items: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.orders.Create(r.Context(), shared.IdentityFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) update(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.orders.Update(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *OrderHandler) action(fn func(context.Context, string, string) (Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := fn(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, o)
	}
}
