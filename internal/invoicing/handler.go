package invoicing

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Handler exposes invoices over HTTP.
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

// MountRoutes registers /api/invoices routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceInvoices, rbac.ActionRead))
		r.Get("/", h.list)
		r.Get("/credit-notes/{noteID}", h.getCreditNote)
		r.Get("/{id}", h.get)
		r.Get("/{id}/payments", h.payments)
		r.Get("/{id}/credit-notes", h.creditNotes)
	})
	r.With(h.rbac.Require(rbac.ResourceInvoices, rbac.ActionCreate)).Post("/", h.create)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceInvoices, rbac.ActionUpdate))
		r.Patch("/{id}", h.update)
		r.Post("/{id}/issue", h.issue)
		r.Post("/{id}/void", h.void)
		r.Post("/{id}/payments", h.recordPayment)
		r.Post("/{id}/credit-notes", h.createCreditNote)
	})
	r.With(h.rbac.Require(rbac.ResourceInvoices, rbac.ActionDelete)).Delete("/{id}", h.delete)
	r.With(h.rbac.Require(rbac.ResourceInvoices, rbac.ActionPrint)).Get("/{id}/pdf", h.pdf)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 50)
	p := shared.NewPagination(page, perPage, 0)
	f := ListFilters{
		Status:     Status(q.Get("status")),
		CustomerID: q.Get("customer_id"),
		Search:     q.Get("q"),
		Limit:      p.PerPage,
		Offset:     p.Offset(),
	}
	if overdue := httpx.QueryBool(r, "overdue"); overdue != nil {
		f.Overdue = *overdue
	}
	items, total, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Invoice]{Items: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Create(r.Context(), shared.IdentityFromContext(r.Context()), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Update(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Issue(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Void(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) payments(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Payments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.RecordPayment(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) creditNotes(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.CreditNotes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []CreditNote{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) getCreditNote(w http.ResponseWriter, r *http.Request) {
	cn, err := h.service.GetCreditNote(r.Context(), chi.URLParam(r, "noteID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cn)
}

func (h *Handler) createCreditNote(w http.ResponseWriter, r *http.Request) {
	var req CreditNoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cn, err := h.service.CreateCreditNote(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cn)
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	name, body, err := h.service.PDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Warn("render invoice pdf", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
