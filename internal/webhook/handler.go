package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/aurum-erp/aurum/internal/inventory"
	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/sales"
	"github.com/aurum-erp/aurum/internal/shared"
)

const (
	maxBody        = 1 << 20
	maxStockItems  = 500
	stockFanOut    = 4
	idemModule     = "webhook"
	endpointOrders = "orders"
	endpointStock  = "inventory"
)

// Signature and delivery headers. The first present header wins.
var (
	signatureHeaders = []string{"X-Signature", "X-Hub-Signature-256", "X-Webhook-Signature"}
	deliveryHeaders  = []string{"X-Delivery-ID", "X-Webhook-Delivery", "X-GitHub-Delivery"}
)

// OrderUpserter records storefront orders.
type OrderUpserter interface {
	UpsertExternalOrder(ctx context.Context, actorID string, in sales.ExternalOrder) (sales.Sale, bool, error)
}

// StockSetter overwrites a stock level.
type StockSetter interface {
	SetLevel(ctx context.Context, actorID, sku, location string, qty decimal.Decimal, refID string) (inventory.StockCardEntry, error)
}

// Deliveries remembers processed delivery ids.
type Deliveries interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Recorder counts delivery outcomes.
type Recorder interface {
	WebhookDelivery(endpoint, result string)
}

// Handler receives signed storefront webhooks.
type Handler struct {
	secret     []byte
	orders     OrderUpserter
	stock      StockSetter
	deliveries Deliveries
	metrics    Recorder
	logger     *slog.Logger
}

// NewHandler constructs Handler. deliveries and metrics may be nil.
func NewHandler(secret string, orders OrderUpserter, stock StockSetter, deliveries Deliveries, metrics Recorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{secret: []byte(secret), orders: orders, stock: stock, deliveries: deliveries, metrics: metrics, logger: logger}
}

// MountRoutes registers /webhooks routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.verified(endpointOrders, h.handleOrder))
	r.Post("/inventory", h.verified(endpointStock, h.handleStock))
}

// decode accepts unknown fields; storefronts add to their payloads freely.
func decode(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Join(httpx.ErrValidation, err)
	}
	return nil
}

type deliveryFunc func(ctx context.Context, deliveryID string, body []byte) (any, error)

func firstHeader(r *http.Request, names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) count(endpoint, result string) {
	if h.metrics != nil {
		h.metrics.WebhookDelivery(endpoint, result)
	}
}

// verified reads the body, rejects it unless the signature matches, then
// runs fn at most once per delivery id.
func (h *Handler) verified(endpoint string, fn deliveryFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil || len(body) > maxBody {
			h.count(endpoint, "bad_request")
			httpx.Problem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "webhook body exceeds limit")
			return
		}
		if !Verify(h.secret, body, firstHeader(r, signatureHeaders)) {
			h.count(endpoint, "unauthorized")
			h.logger.Warn("webhook signature rejected", slog.String("endpoint", endpoint), slog.String("remote", r.RemoteAddr))
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid webhook signature")
			return
		}

		ctx := r.Context()
		deliveryID := firstHeader(r, deliveryHeaders)
		key := endpoint + ":" + deliveryID
		if deliveryID != "" && h.deliveries != nil {
			if err := h.deliveries.CheckAndInsert(ctx, key, idemModule); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					h.count(endpoint, "duplicate")
					httpx.JSON(w, http.StatusOK, map[string]any{"status": "duplicate", "delivery_id": deliveryID})
					return
				}
				h.count(endpoint, "error")
				httpx.RespondError(w, err)
				return
			}
		}

		out, err := fn(ctx, deliveryID, body)
		if err != nil {
			if deliveryID != "" && h.deliveries != nil {
				if derr := h.deliveries.Delete(ctx, key, idemModule); derr != nil {
					h.logger.Error("release webhook delivery", slog.String("key", key), slog.Any("error", derr))
				}
			}
			h.count(endpoint, "error")
			h.logger.Error("webhook processing", slog.String("endpoint", endpoint), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		h.count(endpoint, "ok")
		httpx.JSON(w, http.StatusOK, out)
	}
}

func (h *Handler) handleOrder(ctx context.Context, _ string, body []byte) (any, error) {
	var order sales.ExternalOrder
	if err := decode(body, &order); err != nil {
		return nil, err
	}
	sale, created, err := h.orders.UpsertExternalOrder(ctx, "", order)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sale_id": sale.ID, "number": sale.Number, "status": sale.Status, "created": created}, nil
}

// StockLevel is one SKU level pushed by a storefront.
type StockLevel struct {
	SKU      string          `json:"sku"`
	Location string          `json:"location"`
	Quantity decimal.Decimal `json:"quantity"`
}

type stockPayload struct {
	StockLevel
	Items []StockLevel `json:"items"`
}

func (h *Handler) handleStock(ctx context.Context, deliveryID string, body []byte) (any, error) {
	var payload stockPayload
	if err := decode(body, &payload); err != nil {
		return nil, err
	}
	items := payload.Items
	if payload.SKU != "" {
		items = append(items, payload.StockLevel)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no stock levels", httpx.ErrValidation)
	}
	if len(items) > maxStockItems {
		return nil, fmt.Errorf("%w: at most %d stock levels per delivery", httpx.ErrValidation, maxStockItems)
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		k := strings.ToUpper(strings.TrimSpace(it.SKU)) + "@" + strings.ToUpper(strings.TrimSpace(it.Location))
		if seen[k] {
			return nil, fmt.Errorf("%w: duplicate sku %s", httpx.ErrValidation, it.SKU)
		}
		seen[k] = true
	}

	changed := make([]bool, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stockFanOut)
	for i, it := range items {
		g.Go(func() error {
			entry, err := h.stock.SetLevel(gctx, "", it.SKU, it.Location, it.Quantity, deliveryID)
			if err != nil {
				return fmt.Errorf("sku %s: %w", it.SKU, err)
			}
			changed[i] = entry.Code != ""
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	updated := 0
	for _, c := range changed {
		if c {
			updated++
		}
	}
	return map[string]any{"received": len(items), "updated": updated}, nil
}
