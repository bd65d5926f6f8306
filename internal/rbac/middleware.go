package rbac

import (
	"log/slog"
	"net/http"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
	// DeniedRedirect is sent as X-Redirect-To on refusals.
	DeniedRedirect string
	Metrics        DenialRecorder
}

// DenialRecorder counts guard refusals.
type DenialRecorder interface {
	PermissionDenied(resource, action string)
}

// RedirectHeader names the escape route sent with a 403.
const RedirectHeader = "X-Redirect-To"

// Require allows the request only when the identity may perform action on resource.
func (m Middleware) Require(resource Resource, action Action) func(http.Handler) http.Handler {
	guard := Guard{Resource: resource, Action: action, RedirectTo: m.redirect()}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, ok := m.snapshot(w, r)
			if !ok {
				return
			}
			decision := guard.Decide(snap)
			if decision.State != Allowed {
				m.deny(w, r, decision, string(resource), string(action))
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSnapshot(r.Context(), snap)))
		})
	}
}

// RequireAdmin allows only unrestricted identities.
func (m Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, ok := m.snapshot(w, r)
			if !ok {
				return
			}
			if !snap.Admin {
				m.deny(w, r, Decision{State: Denied, Message: DeniedMessage, RedirectTo: m.redirect()}, "admin", "")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSnapshot(r.Context(), snap)))
		})
	}
}

// Authenticated resolves the snapshot for any signed-in identity.
func (m Middleware) Authenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, ok := m.snapshot(w, r)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSnapshot(r.Context(), snap)))
		})
	}
}

func (m Middleware) snapshot(w http.ResponseWriter, r *http.Request) (*Snapshot, bool) {
	identityID := shared.IdentityFromContext(r.Context())
	if identityID == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return nil, false
	}
	if snap := SnapshotFromContext(r.Context()); snap != nil && snap.IdentityID == identityID {
		return snap, true
	}
	snap, err := m.Resolver.Snapshot(r.Context(), identityID)
	if err != nil {
		m.logger().Error("rbac resolve", slog.String("identity_id", identityID), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "permissions could not be resolved")
		return nil, false
	}
	return snap, true
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, d Decision, resource, action string) {
	required := resource
	if action != "" {
		required += ":" + action
	}
	if m.Metrics != nil {
		m.Metrics.PermissionDenied(resource, action)
	}
	m.logger().Warn("rbac denied",
		slog.String("identity_id", shared.IdentityFromContext(r.Context())),
		slog.String("required", required),
		slog.String("path", r.URL.Path))
	if d.RedirectTo != "" {
		w.Header().Set(RedirectHeader, d.RedirectTo)
	}
	httpx.WriteProblem(w, httpx.ProblemDetail{
		Type:     "about:blank",
		Title:    DeniedMessage,
		Status:   http.StatusForbidden,
		Detail:   "missing permission " + required,
		Redirect: d.RedirectTo,
	})
}

func (m Middleware) redirect() string {
	if m.DeniedRedirect != "" {
		return m.DeniedRedirect
	}
	return "/"
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
