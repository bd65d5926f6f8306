package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Handler exposes role management and the current identity's permissions.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver *Resolver
	rbac     Middleware
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, resolver: resolver, rbac: rbac}
}

// MountRoutes registers role routes under /api/roles.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ResourceUsers, ActionRead))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ResourceUsers, ActionCreate))
		r.Post("/", h.createRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ResourceUsers, ActionUpdate))
		r.Put("/{id}", h.updateRole)
		r.Put("/assignments/{identityID}", h.setIdentityRoles)
		r.Post("/{id}/members/{identityID}", h.assignRole)
		r.Delete("/{id}/members/{identityID}", h.removeRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ResourceUsers, ActionDelete))
		r.Delete("/{id}", h.deleteRole)
	})
}

// MountSelfRoutes registers /api/me/permissions routes.
func (h *Handler) MountSelfRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticated())
		r.Get("/", h.myPermissions)
		r.Post("/refresh", h.refreshMyPermissions)
		r.Get("/check", h.checkPermission)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var in RoleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var in RoleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	err := h.service.AssignRole(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "identityID"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveRole(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "identityID"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type identityRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

func (h *Handler) setIdentityRoles(w http.ResponseWriter, r *http.Request) {
	var req identityRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	err := h.service.SetIdentityRoles(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "identityID"), req.RoleIDs)
	if err != nil {
		h.fail(w, "set identity roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, SnapshotFromContext(r.Context()))
}

func (h *Handler) refreshMyPermissions(w http.ResponseWriter, r *http.Request) {
	identityID := shared.IdentityFromContext(r.Context())
	h.resolver.Invalidate(identityID)
	snap, err := h.resolver.Snapshot(r.Context(), identityID)
	if err != nil {
		h.logger.Error("refresh permissions", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

// checkPermission evaluates a guard for the UI: ?resource=sales&action=create.
func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	guard := Guard{Resource: Resource(q.Get("resource")), Action: Action(q.Get("action")), RedirectTo: h.rbac.redirect()}
	if !guard.Resource.Valid() || !guard.Action.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown resource or action")
		return
	}
	httpx.JSON(w, http.StatusOK, guard.Decide(SnapshotFromContext(r.Context())))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error("rbac: "+op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
