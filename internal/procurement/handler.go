package procurement

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountVendorRoutes registers /api/vendors routes.
func (h *Handler) MountVendorRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceVendors, rbac.ActionRead))
		r.Get("/", h.listVendors)
		r.Get("/{id}", h.getVendor)
		r.Get("/{id}/products", h.vendorProducts)
	})
	r.With(h.rbac.Require(rbac.ResourceVendors, rbac.ActionCreate)).Post("/", h.createVendor)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceVendors, rbac.ActionUpdate))
		r.Patch("/{id}", h.updateVendor)
		r.Put("/{id}/products", h.linkProduct)
		r.Delete("/{id}/products/{productID}", h.unlinkProduct)
	})
	r.With(h.rbac.Require(rbac.ResourceVendors, rbac.ActionDelete)).Delete("/{id}", h.deactivateVendor)
}

// MountOrderRoutes registers /api/purchase-orders routes, receipts included.
func (h *Handler) MountOrderRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourcePurchaseOrders, rbac.ActionRead))
		r.Get("/", h.listOrders)
		r.Get("/receipts/{grnID}", h.getReceipt)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/receipts", h.listReceipts)
	})
	r.With(h.rbac.Require(rbac.ResourcePurchaseOrders, rbac.ActionCreate)).Post("/", h.createOrder)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourcePurchaseOrders, rbac.ActionUpdate))
		r.Patch("/{id}", h.updateOrder)
		r.Post("/{id}/submit", h.orderAction(h.service.SubmitPurchaseOrder))
		r.Post("/{id}/approve", h.orderAction(h.service.ApprovePurchaseOrder))
		r.Post("/{id}/cancel", h.orderAction(h.service.CancelPurchaseOrder))
		r.Post("/{id}/receipts", h.createReceipt)
		r.Post("/receipts/{grnID}/post", h.postReceipt)
		r.Post("/receipts/{grnID}/cancel", h.cancelReceipt)
	})
	r.With(h.rbac.Require(rbac.ResourcePurchaseOrders, rbac.ActionDelete)).Delete("/{id}", h.deleteOrder)
}

func (h *Handler) listVendors(w http.ResponseWriter, r *http.Request) {
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 50)
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := h.service.ListVendors(r.Context(), VendorFilters{
		Search: r.URL.Query().Get("q"), Active: httpx.QueryBool(r, "active"), Limit: p.PerPage, Offset: p.Offset(),
	})
	if err != nil {
		h.logger.Error("list vendors", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Vendor{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Vendor]{Items: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) getVendor(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetVendor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) createVendor(w http.ResponseWriter, r *http.Request) {
	var req VendorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.CreateVendor(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) updateVendor(w http.ResponseWriter, r *http.Request) {
	var req VendorPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.UpdateVendor(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) deactivateVendor(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateVendor(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) vendorProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.VendorProducts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []VendorProduct{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) linkProduct(w http.ResponseWriter, r *http.Request) {
	var req VendorProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	vp, err := h.service.LinkProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vp)
}

func (h *Handler) unlinkProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.UnlinkProduct(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 50)
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := h.service.ListPurchaseOrders(r.Context(), POFilters{
		VendorID: q.Get("vendor_id"), Status: POStatus(q.Get("status")), Search: q.Get("q"), Limit: p.PerPage, Offset: p.Offset(),
	})
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []PurchaseOrder{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[PurchaseOrder]{Items: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.GetPurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req PORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), shared.IdentityFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req PORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.UpdatePurchaseOrder(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePurchaseOrder(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) orderAction(fn func(context.Context, string, string) (PurchaseOrder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		po, err := fn(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, po)
	}
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.GoodsReceipts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []GoodsReceipt{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	grn, err := h.service.GetGoodsReceipt(r.Context(), chi.URLParam(r, "grnID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	var req GRNRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	grn, err := h.service.CreateGoodsReceipt(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grn)
}

func (h *Handler) postReceipt(w http.ResponseWriter, r *http.Request) {
	grn, err := h.service.PostGoodsReceipt(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "grnID"))
	if err != nil {
		h.logger.Warn("post goods receipt", slog.String("grn_id", chi.URLParam(r, "grnID")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) cancelReceipt(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelGoodsReceipt(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "grnID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
