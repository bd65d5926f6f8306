package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventType names a push event from the sidecar.
type EventType string

const (
	EventQRCode       EventType = "qrcode"
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventMessage      EventType = "message"
	EventAck          EventType = "ack"
	// EventAny subscribes to every event.
	EventAny EventType = "*"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Event is one decoded push event.
type Event struct {
	Type    EventType       `json:"event"`
	Session string          `json:"session"`
	Data    json.RawMessage `json:"data"`
}

// EventHandler receives events. Handlers run on the reader goroutine and
// must not block.
type EventHandler func(ctx context.Context, evt Event)

// Events listens on the sidecar push channel and dispatches events to
// registered handlers. It reconnects with exponential backoff until its
// context ends.
type Events struct {
	url        string
	header     http.Header
	dialer     *websocket.Dialer
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
}

// NewEvents constructs Events for a ws:// or wss:// url.
func NewEvents(url string, header http.Header, logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{
		url:        url,
		header:     header,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		handlers:   map[EventType][]EventHandler{},
	}
}

// On registers h for events of type t.
func (e *Events) On(t EventType, h EventHandler) {
	e.mu.Lock()
	e.handlers[t] = append(e.handlers[t], h)
	e.mu.Unlock()
}

// Run connects and dispatches until ctx is cancelled.
func (e *Events) Run(ctx context.Context) error {
	backoff := e.minBackoff
	for {
		conn, _, err := e.dialer.DialContext(ctx, e.url, e.header)
		if err == nil {
			backoff = e.minBackoff
			e.logger.Info("messaging events connected", slog.String("url", e.url))
			err = e.read(ctx, conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("messaging events disconnected", slog.Any("error", err), slog.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > e.maxBackoff {
			backoff = e.maxBackoff
		}
	}
}

func (e *Events) read(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				_ = conn.Close()
				return
			case <-done:
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			e.logger.Warn("messaging events: undecodable frame", slog.Any("error", err))
			continue
		}
		e.dispatch(ctx, evt)
	}
}

func (e *Events) dispatch(ctx context.Context, evt Event) {
	e.mu.RLock()
	handlers := append(append([]EventHandler(nil), e.handlers[evt.Type]...), e.handlers[EventAny]...)
	e.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, evt)
	}
}
