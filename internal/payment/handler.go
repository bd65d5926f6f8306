package payment

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

const maxCallbackBody = 64 << 10

// Handler exposes payment sessions and the gateway callback.
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

// MountRoutes registers /api/payments routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.ResourceSales, rbac.ActionCreate)).Post("/", h.initiate)
	r.With(h.rbac.Require(rbac.ResourceSales, rbac.ActionRead)).Get("/{id}", h.get)
	r.With(h.rbac.Require(rbac.ResourceSales, rbac.ActionCreate)).Post("/{id}/retry", h.retry)
}

// MountCallback registers the unauthenticated gateway callback. Requests are
// trusted only after the X-VERIFY checksum matches.
func (h *Handler) MountCallback(r chi.Router) {
	r.Post("/callback", h.callback)
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	var in InitiateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sess, err := h.service.Initiate(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		h.logger.Error("initiate payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sess)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Retry(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sess)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unreadable body")
		return
	}
	sess, err := h.service.HandleCallback(r.Context(), r.Header.Get("X-VERIFY"), body)
	if err != nil {
		if errors.Is(err, ErrBadSignature) {
			h.logger.Warn("payment callback rejected", slog.String("remote", r.RemoteAddr))
		} else {
			h.logger.Error("payment callback", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": sess.ID, "state": sess.State})
}
