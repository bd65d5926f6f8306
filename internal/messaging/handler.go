package messaging

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/rbac"
)

// Handler proxies sidecar operations for the back office.
type Handler struct {
	logger  *slog.Logger
	client  *Client
	monitor *Monitor
	rbac    rbac.Middleware
}

// NewHandler constructs Handler. monitor may be nil when the sidecar is
// supervised elsewhere.
func NewHandler(logger *slog.Logger, client *Client, monitor *Monitor, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, client: client, monitor: monitor, rbac: rbac}
}

// MountRoutes registers /api/messaging routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceSettings, rbac.ActionRead))
		r.Get("/status", h.status)
		r.Get("/session", h.sessionStatus)
		r.Get("/session/qr", h.qrCode)
		r.Get("/session/qr.png", h.qrImage)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceSettings, rbac.ActionUpdate))
		r.Post("/session/start", h.startSession)
		r.Post("/session/close", h.closeSession)
		r.Post("/session/logout", h.logout)
		r.Post("/sidecar/restart", h.restart)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceCustomers, rbac.ActionRead))
		r.Get("/chats", h.chats)
		r.Get("/chats/{chatID}/messages", h.messages)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceCustomers, rbac.ActionUpdate))
		r.Post("/send", h.send)
		r.Post("/send-image", h.sendImage)
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if IsUnavailable(err) {
		h.logger.Warn("messaging sidecar unavailable", slog.String("op", op), slog.Any("error", err))
	} else {
		h.logger.Error("messaging", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}
	if h.monitor != nil {
		out["sidecar"] = h.monitor.Status(r.Context())
	} else {
		out["sidecar"] = MonitorStatus{Running: true, Healthy: h.client.Health(r.Context()) == nil}
	}
	out["circuit"] = h.client.breaker.current().String()
	if conn, err := h.client.Status(r.Context()); err == nil {
		out["connection"] = conn
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) sessionStatus(w http.ResponseWriter, r *http.Request) {
	state, err := h.client.SessionStatus(r.Context())
	if err != nil {
		h.fail(w, "session status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, state)
}

func (h *Handler) qrCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.client.QRCode(r.Context())
	if err != nil {
		h.fail(w, "qr code", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"qrcode": code, "connected": code == ""})
}

func (h *Handler) qrImage(w http.ResponseWriter, r *http.Request) {
	img, err := h.client.QRCodeImage(r.Context())
	if err != nil {
		h.fail(w, "qr image", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	state, err := h.client.StartSession(r.Context())
	if err != nil {
		h.fail(w, "start session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, state)
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.client.CloseSession(r.Context()); err != nil {
		h.fail(w, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Logout(r.Context()); err != nil {
		h.fail(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		httpx.Problem(w, http.StatusConflict, "Conflict", "sidecar is not supervised by this server")
		return
	}
	if err := h.monitor.Restart(r.Context()); err != nil {
		h.fail(w, "restart", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Sidecar restarted"})
}

func (h *Handler) chats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.client.Chats(r.Context())
	if err != nil {
		h.fail(w, "chats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": chats})
}

func (h *Handler) messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.client.Messages(r.Context(), chi.URLParam(r, "chatID"), httpx.QueryInt(r, "count", 50))
	if err != nil {
		h.fail(w, "messages", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": msgs})
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var in sendRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if in.Message == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "message is required")
		return
	}
	res, err := h.client.SendMessage(r.Context(), in.Phone, in.Message)
	if err != nil {
		h.fail(w, "send", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type sendImageRequest struct {
	Phone    string `json:"phone"`
	Image    []byte `json:"image"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
}

func (h *Handler) sendImage(w http.ResponseWriter, r *http.Request) {
	var in sendImageRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(in.Image) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "image is required")
		return
	}
	if in.Filename == "" {
		in.Filename = "image.png"
	}
	res, err := h.client.SendImage(r.Context(), in.Phone, in.Image, in.Filename, in.Caption)
	if err != nil {
		h.fail(w, "send image", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
