package inventory

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers /api/inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceInventory, rbac.ActionRead))
		r.Get("/balances", h.listBalances)
		r.Get("/balances/{productID}", h.productBalances)
		r.Get("/low-stock", h.lowStock)
		r.Get("/stock-card", h.stockCard)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceInventory, rbac.ActionCreate))
		r.Post("/inbound", h.inbound)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceInventory, rbac.ActionUpdate))
		r.Post("/adjustments", h.adjust)
		r.Post("/transfers", h.transfer)
	})
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	page := httpx.QueryInt(r, "page", 1)
	p := shared.NewPagination(page, httpx.QueryInt(r, "per_page", 100), 0)
	items, err := h.service.ListBalances(r.Context(), BalanceFilters{
		LocationID: r.URL.Query().Get("location"),
		Limit:      p.PerPage,
		Offset:     p.Offset(),
	})
	if err != nil {
		h.logger.Error("list balances", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) productBalances(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ProductBalances(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListBalances(r.Context(), BalanceFilters{
		LocationID: r.URL.Query().Get("location"),
		LowOnly:    true,
		Limit:      500,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := StockCardFilter{
		LocationID: q.Get("location"),
		ProductID:  q.Get("product_id"),
		Limit:      httpx.QueryInt(r, "limit", 200),
	}
	for key, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
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
	if !filter.To.IsZero() {
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	entries, err := h.service.GetStockCard(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": nonNil(entries)})
}

func (h *Handler) inbound(w http.ResponseWriter, r *http.Request) {
	var in InboundInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ActorID = shared.IdentityFromContext(r.Context())
	entry, err := h.service.PostInbound(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var in AdjustmentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ActorID = shared.IdentityFromContext(r.Context())
	entry, err := h.service.PostAdjustment(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var in TransferInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ActorID = shared.IdentityFromContext(r.Context())
	out, inbound, err := h.service.PostTransfer(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]StockCardEntry{"out": out, "in": inbound})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
