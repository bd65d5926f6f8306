package customers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Handler exposes customers over HTTP.
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

// MountRoutes registers /api/customers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceCustomers, rbac.ActionRead))
		r.Get("/", h.List)
		r.Get("/follow-ups", h.FollowUps)
		r.Get("/{id}", h.Show)
		r.Get("/{id}/interactions", h.Interactions)
	})
	r.With(h.rbac.Require(rbac.ResourceCustomers, rbac.ActionCreate)).Post("/", h.Create)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceCustomers, rbac.ActionUpdate))
		r.Patch("/{id}", h.Update)
		r.Post("/{id}/interactions", h.LogInteraction)
	})
	r.With(h.rbac.Require(rbac.ResourceCustomers, rbac.ActionDelete)).Delete("/{id}", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 50)
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := h.service.List(r.Context(), ListCustomersRequest{
		IsActive: httpx.QueryBool(r, "active"),
		Search:   r.URL.Query().Get("q"),
		Limit:    p.PerPage,
		Offset:   p.Offset(),
	})
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Customer{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Customer]{Items: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Create(r.Context(), req, shared.IdentityFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Update(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Interactions(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Interactions(r.Context(), chi.URLParam(r, "id"), httpx.QueryInt(r, "limit", 100))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Interaction{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) LogInteraction(w http.ResponseWriter, r *http.Request) {
	var req InteractionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := h.service.LogInteraction(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, in)
}

func (h *Handler) FollowUps(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.DueFollowUps(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Interaction{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}
