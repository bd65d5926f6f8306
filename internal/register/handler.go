package register

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Handler exposes register shifts over HTTP.
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

// MountRoutes registers /api/register routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceSales, rbac.ActionRead))
		r.Get("/shifts", h.list)
		r.Get("/shifts/current", h.current)
		r.Get("/shifts/{id}", h.get)
		r.Get("/shifts/{id}/report", h.report)
	})
	r.With(h.rbac.Require(rbac.ResourceSales, rbac.ActionCreate)).Post("/shifts", h.open)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceSales, rbac.ActionUpdate))
		r.Post("/shifts/{id}/cash", h.cash)
		r.Post("/shifts/{id}/close", h.close)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	shifts, err := h.service.List(r.Context(), r.URL.Query().Get("register"), httpx.QueryInt(r, "limit", 50))
	if err != nil {
		h.logger.Error("list shifts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if shifts == nil {
		shifts = []Shift{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": shifts})
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	shift, err := h.service.Current(r.Context(), r.URL.Query().Get("register"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shift)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	shift, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shift)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.service.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var in OpenInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shift, err := h.service.Open(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shift)
}

func (h *Handler) cash(w http.ResponseWriter, r *http.Request) {
	var in CashInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	op, err := h.service.RecordCash(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, op)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	var in CloseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shift, err := h.service.Close(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shift)
}
