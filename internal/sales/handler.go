package sales

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Handler exposes sales over HTTP.
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

// MountRoutes registers /api/sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceSales, rbac.ActionRead))
		r.Get("/", h.list)
		r.Post("/totals", h.totals)
		r.Get("/returns/{returnID}", h.getReturn)
		r.Get("/{id}", h.get)
		r.Get("/{id}/returns", h.listReturns)
	})
	r.With(h.rbac.Require(rbac.ResourceSales, rbac.ActionCreate)).Post("/", h.create)
	r.With(h.rbac.Require(rbac.ResourceSales, rbac.ActionUpdate)).Patch("/{id}", h.update)
	r.With(h.rbac.Require(rbac.ResourceSales, rbac.ActionUpdate)).Post("/{id}/returns", h.createReturn)
	r.With(h.rbac.Require(rbac.ResourceSales, rbac.ActionDelete)).Delete("/{id}", h.void)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 50)
	p := shared.NewPagination(page, perPage, 0)
	f := ListFilters{
		CustomerID: q.Get("customer_id"),
		ShiftID:    q.Get("shift_id"),
		Status:     Status(q.Get("status")),
		Search:     q.Get("q"),
		Limit:      p.PerPage,
		Offset:     p.Offset(),
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", key+" must be YYYY-MM-DD")
			return
		}
		*dst = t
	}
	if !f.To.IsZero() {
		f.To = f.To.Add(24 * time.Hour)
	}
	items, total, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list sales", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Sale{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Sale]{Items: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sale, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Create(r.Context(), shared.IdentityFromContext(r.Context()), r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.Update(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	sale, err := h.service.Void(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Warn("void sale", slog.String("id", chi.URLParam(r, "id")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

type totalsRequest struct {
	Lines  []LineInput    `json:"lines"`
	Totals *ClaimedTotals `json:"totals,omitempty"`
}

// totals previews server side totals for a cart.
func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	var req totalsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := CalculateTotals(req.Lines)
	if err == nil {
		err = t.Verify(req.Totals)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Returns(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Return{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	rt, err := h.service.GetReturn(r.Context(), chi.URLParam(r, "returnID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rt)
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rt, err := h.service.Return(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rt)
}
