package delivery

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Handler exposes delivery challans over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers /api/delivery-challans routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceInvoices, rbac.ActionRead))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.With(h.rbac.Require(rbac.ResourceInvoices, rbac.ActionCreate)).Post("/", h.create)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceInvoices, rbac.ActionUpdate))
		r.Post("/{id}/dispatch", h.dispatch)
		r.Post("/{id}/deliver", h.deliver)
	})
	r.With(h.rbac.Require(rbac.ResourceInvoices, rbac.ActionDelete)).Post("/{id}/cancel", h.cancel)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 50)
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := h.service.List(r.Context(), ListFilters{
		OrderID: q.Get("order_id"), Status: Status(q.Get("status")), Search: q.Get("q"), Limit: p.PerPage, Offset: p.Offset(),
	})
	if err != nil {
		h.logger.Error("list delivery challans", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Challan{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Challan]{Items: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ch, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ch)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ch, err := h.service.Create(r.Context(), shared.IdentityFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ch)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	ch, err := h.service.Dispatch(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		h.logger.Warn("dispatch challan", slog.String("id", chi.URLParam(r, "id")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ch)
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	ch, err := h.service.MarkDelivered(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ch)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ch, err := h.service.Cancel(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ch)
}
