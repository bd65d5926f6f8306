// Package activity exposes the activity log for review.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Entry is a stored activity log row.
type Entry struct {
	ID         int64           `json:"id"`
	ActorID    string          `json:"actor_id,omitempty"`
	ActorName  string          `json:"actor_name,omitempty"`
	Action     string          `json:"action"`
	Entity     string          `json:"entity"`
	EntityID   string          `json:"entity_id"`
	Meta       json.RawMessage `json:"meta,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Filters narrows a listing.
type Filters struct {
	ActorID  string
	Entity   string
	EntityID string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// Reader lists activity.
type Reader interface {
	List(ctx context.Context, f Filters) ([]Entry, int, error)
}

// Repository reads activity_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns entries newest first.
func (r *Repository) List(ctx context.Context, f Filters) ([]Entry, int, error) {
	where := []string{"TRUE"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ActorID != "" {
		add("a.actor_id::text = $%d", f.ActorID)
	}
	if f.Entity != "" {
		add("a.entity = $%d", f.Entity)
	}
	if f.EntityID != "" {
		add("a.entity_id = $%d", f.EntityID)
	}
	if !f.From.IsZero() {
		add("a.occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("a.occurred_at < $%d", f.To)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_logs a WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, `SELECT a.id, COALESCE(a.actor_id::text, ''), COALESCE(u.name, ''), a.action, a.entity, a.entity_id, a.meta, a.occurred_at
FROM activity_logs a LEFT JOIN users u ON u.id = a.actor_id
WHERE `+cond+fmt.Sprintf(` ORDER BY a.occurred_at DESC, a.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.OccurredAt); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// Handler serves GET /api/activity.
type Handler struct {
	reader Reader
	rbac   rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(reader Reader, rbac rbac.Middleware) *Handler {
	return &Handler{reader: reader, rbac: rbac}
}

// MountRoutes registers activity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.ResourceActivity, rbac.ActionRead)).Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "per_page", 50)
	if perPage > 200 {
		perPage = 200
	}
	p := shared.NewPagination(page, perPage, 0)
	f := Filters{ActorID: q.Get("actor_id"), Entity: q.Get("entity"), EntityID: q.Get("entity_id"), Limit: p.PerPage, Offset: p.Offset()}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if raw := q.Get(key); raw != "" {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", key+" must be YYYY-MM-DD")
				return
			}
			*dst = t
		}
	}
	if !f.To.IsZero() {
		f.To = f.To.AddDate(0, 0, 1)
	}
	items, total, err := h.reader.List(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.Page[Entry]{Items: items, Pagination: shared.NewPagination(page, perPage, total)})
}
