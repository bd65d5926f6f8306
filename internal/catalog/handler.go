package catalog

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// DegradedHeader flags responses served from the local fallback.
const DegradedHeader = "X-Aurum-Degraded"

const maxUploadBytes = 16 << 20

// Handler wires HTTP endpoints for the catalog.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	importer *Importer
	rbac     rbac.Middleware
}

// NewHandler constructs a catalog handler.
func NewHandler(logger *slog.Logger, service *Service, importer *Importer, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, importer: importer, rbac: rbac}
}

// MountRoutes registers /api/products routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceProducts, rbac.ActionRead))
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.getProduct)
		r.Get("/{id}/variants", h.listVariants)
	})
	r.With(h.rbac.Require(rbac.ResourceProducts, rbac.ActionExport)).Get("/export", h.exportProducts)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceProducts, rbac.ActionCreate))
		r.Post("/", h.createProduct)
		r.Post("/import", h.importProducts)
		r.Post("/{id}/variants", h.createVariant)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceProducts, rbac.ActionUpdate))
		r.Patch("/{id}", h.updateProduct)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceProducts, rbac.ActionDelete))
		r.Delete("/{id}", h.deleteProduct)
		r.Delete("/{id}/variants/{variantID}", h.deleteVariant)
	})
}

// MountCategoryRoutes registers /api/categories routes.
func (h *Handler) MountCategoryRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.ResourceProducts, rbac.ActionRead)).Get("/", h.listCategories)
	r.With(h.rbac.Require(rbac.ResourceProducts, rbac.ActionCreate)).Post("/", h.createCategory)
	r.With(h.rbac.Require(rbac.ResourceProducts, rbac.ActionUpdate)).Put("/{id}", h.updateCategory)
	r.With(h.rbac.Require(rbac.ResourceProducts, rbac.ActionDelete)).Delete("/{id}", h.deleteCategory)
}

func actor(r *http.Request) string {
	return shared.IdentityFromContext(r.Context())
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 50)
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := h.service.ListProducts(r.Context(), ProductFilters{
		Search:     q.Get("q"),
		CategoryID: q.Get("category_id"),
		Metal:      q.Get("metal"),
		IsActive:   httpx.QueryBool(r, "active"),
		Limit:      p.PerPage,
		Offset:     p.Offset(),
	})
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Product]{Items: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreateProduct(r.Context(), actor(r), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var patch ProductPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.UpdateProduct(r.Context(), actor(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listVariants(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListVariants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createVariant(w http.ResponseWriter, r *http.Request) {
	var in VariantInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.CreateVariant(r.Context(), actor(r), chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) deleteVariant(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteVariant(r.Context(), actor(r), chi.URLParam(r, "id"), chi.URLParam(r, "variantID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) importProducts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart upload with a file field required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file field required")
		return
	}
	defer file.Close()

	result, err := h.importer.Import(r.Context(), actor(r), header.Filename, file)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if len(result.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) exportProducts(w http.ResponseWriter, r *http.Request) {
	var all []Product
	for offset := 0; ; offset += 500 {
		items, _, err := h.service.ListProducts(r.Context(), ProductFilters{Limit: 500, Offset: offset})
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		all = append(all, items...)
		if len(items) < 500 {
			break
		}
	}
	data, err := ExportXLSX(all)
	if err != nil {
		h.logger.Error("export products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="products-`+time.Now().Format("20060102")+`.xlsx"`)
	_, _ = w.Write(data)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	strict := false
	if v := httpx.QueryBool(r, "strict"); v != nil {
		strict = *v
	}
	result, err := h.service.ListCategories(r.Context(), strict)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if result.Degraded {
		w.Header().Set(DegradedHeader, "1")
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var in CategoryInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.CreateCategory(r.Context(), actor(r), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var in CategoryInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.UpdateCategory(r.Context(), actor(r), chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCategory(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
