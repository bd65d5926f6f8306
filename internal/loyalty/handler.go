package loyalty

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Handler exposes loyalty accounts.
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

// MountRoutes registers /api/loyalty routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceCustomers, rbac.ActionRead))
		r.Get("/rules", h.rules)
		r.Get("/{customerID}", h.account)
		r.Get("/{customerID}/transactions", h.history)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceCustomers, rbac.ActionUpdate))
		r.Post("/{customerID}/redeem", h.redeem)
		r.Post("/{customerID}/adjust", h.adjust)
	})
}

func (h *Handler) rules(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Rules(r.Context()))
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Account(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.History(r.Context(), chi.URLParam(r, "customerID"), httpx.QueryInt(r, "limit", 100))
	if err != nil {
		h.logger.Error("loyalty history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Transaction{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request) {
	var in RedeemInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, value, err := h.service.Redeem(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "customerID"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"transaction": t, "value": value})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var in AdjustInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.Adjust(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "customerID"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}
