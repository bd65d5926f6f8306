package banking

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Handler exposes the bank ledger and expenses over HTTP.
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

// MountRoutes registers /api/banking routes. Reads need reports access,
// writes need settings access.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceReports, rbac.ActionRead))
		r.Get("/accounts", h.listAccounts)
		r.Get("/accounts/{id}", h.getAccount)
		r.Get("/transactions", h.listTransactions)
		r.Get("/categories", h.listCategories)
		r.Get("/expenses", h.listExpenses)
		r.Get("/expenses/summary", h.summary)
		r.Get("/expenses/{id}", h.getExpense)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceSettings, rbac.ActionUpdate))
		r.Post("/accounts", h.createAccount)
		r.Patch("/accounts/{id}", h.updateAccount)
		r.Delete("/accounts/{id}", h.deactivateAccount)
		r.Post("/accounts/{id}/transactions", h.recordTransaction)
		r.Post("/transfers", h.transfer)
		r.Post("/transactions/{id}/reconcile", h.reconcile)
		r.Post("/categories", h.createCategory)
		r.Patch("/categories/{id}", h.updateCategory)
		r.Delete("/categories/{id}", h.deleteCategory)
		r.Post("/expenses", h.createExpense)
		r.Delete("/expenses/{id}", h.deleteExpense)
	})
}

func parseRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	q := r.URL.Query()
	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", key+" must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		*dst = t
	}
	if !to.IsZero() {
		to = to.Add(24 * time.Hour)
	}
	return from, to, true
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	includeInactive := false
	if v := httpx.QueryBool(r, "all"); v != nil {
		includeInactive = *v
	}
	accounts, err := h.service.ListAccounts(r.Context(), includeInactive)
	if err != nil {
		h.logger.Error("list bank accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": accounts})
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var in AccountInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var p AccountPatch
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.UpdateAccount(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 50)
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := h.service.Transactions(r.Context(), TransactionFilters{
		AccountID:  r.URL.Query().Get("account_id"),
		From:       from,
		To:         to,
		Reconciled: httpx.QueryBool(r, "reconciled"),
		Limit:      p.PerPage,
		Offset:     p.Offset(),
	})
	if err != nil {
		h.logger.Error("list bank transactions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Transaction{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Transaction]{Items: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) recordTransaction(w http.ResponseWriter, r *http.Request) {
	var in TransactionInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.RecordTransaction(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var in TransferInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	legs, err := h.service.Transfer(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"items": legs})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reconciled bool `json:"reconciled"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.Reconcile(r.Context(), chi.URLParam(r, "id"), in.Reconciled)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	includeInactive := false
	if v := httpx.QueryBool(r, "all"); v != nil {
		includeInactive = *v
	}
	cats, err := h.service.ListCategories(r.Context(), includeInactive)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if cats == nil {
		cats = []Category{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": cats})
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var in CategoryInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.CreateCategory(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CategoryInput
		IsActive *bool `json:"is_active"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	c, err := h.service.UpdateCategory(r.Context(), chi.URLParam(r, "id"), in.CategoryInput, active)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 50)
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := h.service.ListExpenses(r.Context(), ExpenseFilters{
		CategoryID: r.URL.Query().Get("category_id"),
		From:       from,
		To:         to,
		Limit:      p.PerPage,
		Offset:     p.Offset(),
	})
	if err != nil {
		h.logger.Error("list expenses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Expense{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Expense]{Items: items, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) getExpense(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.GetExpense(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	rows, total, err := h.service.ExpenseSummary(r.Context(), from, to)
	if err != nil {
		h.logger.Error("expense summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if rows == nil {
		rows = []CategoryTotal{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows, "total": total})
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var in ExpenseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.CreateExpense(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteExpense(r.Context(), shared.IdentityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
