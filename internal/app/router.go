package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aurum-erp/aurum/internal/activity"
	"github.com/aurum-erp/aurum/internal/auth"
	"github.com/aurum-erp/aurum/internal/banking"
	"github.com/aurum-erp/aurum/internal/catalog"
	"github.com/aurum-erp/aurum/internal/customers"
	"github.com/aurum-erp/aurum/internal/delivery"
	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/invoicing"
	"github.com/aurum-erp/aurum/internal/loyalty"
	"github.com/aurum-erp/aurum/internal/messaging"
	"github.com/aurum-erp/aurum/internal/observability"
	"github.com/aurum-erp/aurum/internal/payment"
	"github.com/aurum-erp/aurum/internal/procurement"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/register"
	"github.com/aurum-erp/aurum/internal/sales"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
	"github.com/aurum-erp/aurum/internal/users"
	"github.com/aurum-erp/aurum/internal/webhook"
	"github.com/aurum-erp/aurum/jobs"
	"github.com/aurum-erp/aurum/report"
)

// RouterParams groups dependencies for building the HTTP router. Nil
// handlers are not mounted.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	RBACHandler        *rbac.Handler
	UsersHandler       *users.Handler
	CatalogHandler     *catalog.Handler
	InventoryHandler   *inventory.Handler
	SalesHandler       *sales.Handler
	SalesOrderHandler  *sales.OrderHandler
	DeliveryHandler    *delivery.Handler
	InvoicingHandler   *invoicing.Handler
	ProcurementHandler *procurement.Handler
	BankingHandler     *banking.Handler
	RegisterHandler    *register.Handler
	LoyaltyHandler     *loyalty.Handler
	CustomersHandler   *customers.Handler
	ActivityHandler    *activity.Handler
	SettingsHandler    *settings.Handler
	MessagingHandler   *messaging.Handler
	PaymentHandler     *payment.Handler
	WebhookHandler     *webhook.Handler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Aurum defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	var bearer func(http.Handler) http.Handler
	if params.AuthHandler != nil {
		bearer = params.AuthHandler.BearerIdentity
	}
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Bearer:         bearer,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		if h := params.RBACHandler; h != nil {
			api.Route("/roles", h.MountRoutes)
			api.Route("/me/permissions", h.MountSelfRoutes)
		}
		if h := params.UsersHandler; h != nil {
			api.Route("/users", h.MountRoutes)
		}
		if h := params.CatalogHandler; h != nil {
			api.Route("/products", h.MountRoutes)
			api.Route("/categories", h.MountCategoryRoutes)
		}
		if h := params.InventoryHandler; h != nil {
			api.Route("/inventory", h.MountRoutes)
		}
		if h := params.SalesHandler; h != nil {
			api.Route("/sales", h.MountRoutes)
		}
		if h := params.SalesOrderHandler; h != nil {
			api.Route("/sales-orders", h.MountRoutes)
		}
		if h := params.DeliveryHandler; h != nil {
			api.Route("/delivery-challans", h.MountRoutes)
		}
		if h := params.InvoicingHandler; h != nil {
			api.Route("/invoices", h.MountRoutes)
		}
		if h := params.ProcurementHandler; h != nil {
			api.Route("/vendors", h.MountVendorRoutes)
			api.Route("/purchase-orders", h.MountOrderRoutes)
		}
		if h := params.BankingHandler; h != nil {
			api.Route("/banking", h.MountRoutes)
		}
		if h := params.RegisterHandler; h != nil {
			api.Route("/register", h.MountRoutes)
		}
		if h := params.LoyaltyHandler; h != nil {
			api.Route("/loyalty", h.MountRoutes)
		}
		if h := params.CustomersHandler; h != nil {
			api.Route("/customers", h.MountRoutes)
		}
		if h := params.ActivityHandler; h != nil {
			api.Route("/activity", h.MountRoutes)
		}
		if h := params.SettingsHandler; h != nil {
			api.Route("/settings", h.MountRoutes)
		}
		if h := params.MessagingHandler; h != nil {
			api.Route("/messaging", h.MountRoutes)
		}
		if h := params.PaymentHandler; h != nil {
			api.Route("/payments", h.MountRoutes)
		}
	})

	r.Route("/webhooks", func(wh chi.Router) {
		if params.WebhookHandler != nil {
			params.WebhookHandler.MountRoutes(wh)
		}
		if params.PaymentHandler != nil {
			wh.Route("/payments", params.PaymentHandler.MountCallback)
		}
	})

	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
