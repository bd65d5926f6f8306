package messaging

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
)

var (
	// ErrUnavailable reports a sidecar that is down or refusing calls.
	ErrUnavailable = fmt.Errorf("messaging: sidecar %w", httpx.ErrUnavailable)
	// ErrCircuitOpen is returned without calling the sidecar while the
	// breaker is open.
	ErrCircuitOpen = fmt.Errorf("messaging: circuit open: %w", httpx.ErrUnavailable)
	// ErrInvalidPhone rejects recipients without digits.
	ErrInvalidPhone = fmt.Errorf("messaging: invalid phone number: %w", httpx.ErrValidation)
	// ErrNotConnected reports a session that is not paired with a phone.
	ErrNotConnected = fmt.Errorf("messaging: session not connected: %w", httpx.ErrConflict)
)

// Config configures the sidecar client.
type Config struct {
	BaseURL string
	Session string
	// SecretKey is exchanged for a bearer token on first use.
	SecretKey        string
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

// Client talks to the WhatsApp sidecar over its REST API.
type Client struct {
	http    *resty.Client
	session string
	secret  string
	breaker *breaker

	mu    sync.Mutex
	token string
}

// NewClient constructs Client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Session == "" {
		cfg.Session = "aurum"
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{
		http:    rc,
		session: cfg.Session,
		secret:  cfg.SecretKey,
		breaker: newBreaker(cfg.FailureThreshold, cfg.Cooldown),
	}
}

// SessionState is the pairing state reported by the sidecar.
type SessionState struct {
	Status  string `json:"status"`
	QRCode  string `json:"qrcode,omitempty"`
	Version string `json:"version,omitempty"`
}

// Connected reports whether the session is paired and usable.
func (s SessionState) Connected() bool {
	return strings.EqualFold(s.Status, "CONNECTED") || strings.EqualFold(s.Status, "inChat")
}

// ConnectionStatus is the result of a connection check.
type ConnectionStatus struct {
	Connected bool   `json:"status"`
	Message   string `json:"message"`
}

// Chat is one conversation on the paired phone.
type Chat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	UnreadCount int    `json:"unread_count"`
	Timestamp   int64  `json:"timestamp"`
}

// Message is one chat message.
type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	FromMe    bool   `json:"from_me"`
	Timestamp int64  `json:"timestamp"`
	Ack       int    `json:"ack"`
}

// SendResult identifies a sent message.
type SendResult struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

// wire shapes of the sidecar API
type envelope[T any] struct {
	Status   any    `json:"status"`
	Message  string `json:"message,omitempty"`
	Response T      `json:"response"`
}

type wireChat struct {
	ID struct {
		Serialized string `json:"_serialized"`
	} `json:"id"`
	Name        string `json:"name"`
	UnreadCount int    `json:"unreadCount"`
	Timestamp   int64  `json:"t"`
}

type wireMessage struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	FromMe    bool   `json:"fromMe"`
	Timestamp int64  `json:"timestamp"`
	Ack       int    `json:"ack"`
}

type wireSent struct {
	ID string `json:"id"`
	To string `json:"to"`
}

func (c *Client) path(op string) string {
	return "/api/" + c.session + "/" + op
}

// call runs one request through the breaker. Transport errors and 5xx
// responses count as failures; 4xx responses do not.
func (c *Client) call(ctx context.Context, method, path string, body any, result any) (*resty.Response, error) {
	if !c.breaker.allow() {
		return nil, ErrCircuitOpen
	}
	resp, err := c.do(ctx, method, path, body, result)
	if err == nil && resp.StatusCode() == http.StatusUnauthorized && c.secret != "" {
		c.resetToken()
		resp, err = c.do(ctx, method, path, body, result)
	}
	if err != nil {
		c.breaker.failure()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		c.breaker.failure()
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}
	c.breaker.success()
	if resp.IsError() {
		return resp, fmt.Errorf("messaging: %s %s: status %d: %w", method, path, resp.StatusCode(), clientError(resp.StatusCode()))
	}
	return resp, nil
}

func clientError(status int) error {
	switch status {
	case http.StatusNotFound:
		return httpx.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return httpx.ErrUnavailable
	case http.StatusConflict:
		return ErrNotConnected
	default:
		return httpx.ErrValidation
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if c.secret != "" {
		token, err := c.bearer(ctx)
		if err != nil {
			return nil, err
		}
		req.SetAuthToken(token)
	}
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	return req.Execute(method, path)
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	var out struct {
		Token string `json:"token"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Post(c.path(c.secret + "/generate-token"))
	if err != nil {
		return "", err
	}
	if resp.IsError() || out.Token == "" {
		return "", fmt.Errorf("generate token: status %d", resp.StatusCode())
	}
	c.token = out.Token
	return c.token, nil
}

func (c *Client) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Health pings the sidecar process. It bypasses the breaker so the monitor
// can observe recovery.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: health status %d", ErrUnavailable, resp.StatusCode())
	}
	return nil
}

// Status checks whether the session connection is alive.
func (c *Client) Status(ctx context.Context) (ConnectionStatus, error) {
	var out ConnectionStatus
	if _, err := c.call(ctx, http.MethodGet, c.path("check-connection-session"), nil, &out); err != nil {
		return ConnectionStatus{}, err
	}
	return out, nil
}

// StartSession starts or resumes the WhatsApp session. A fresh session
// answers with a QR code to scan.
func (c *Client) StartSession(ctx context.Context) (SessionState, error) {
	var out SessionState
	if _, err := c.call(ctx, http.MethodPost, c.path("start-session"), map[string]any{"waitQrCode": true}, &out); err != nil {
		return SessionState{}, err
	}
	return out, nil
}

// SessionStatus returns the pairing state.
func (c *Client) SessionStatus(ctx context.Context) (SessionState, error) {
	var out SessionState
	if _, err := c.call(ctx, http.MethodGet, c.path("status-session"), nil, &out); err != nil {
		return SessionState{}, err
	}
	return out, nil
}

// QRCode returns the pairing QR code as a data URL, or "" once paired.
func (c *Client) QRCode(ctx context.Context) (string, error) {
	state, err := c.SessionStatus(ctx)
	if err != nil {
		return "", err
	}
	if state.Connected() {
		return "", nil
	}
	return state.QRCode, nil
}

// QRCodeImage returns the pairing QR code as PNG bytes.
func (c *Client) QRCodeImage(ctx context.Context) ([]byte, error) {
	resp, err := c.call(ctx, http.MethodGet, c.path("qrcode-session"), nil, nil)
	if err != nil {
		return nil, err
	}
	body := resp.Body()
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "image/") {
		return body, nil
	}
	// some sidecar builds answer with the data URL as text
	raw := string(body)
	if i := strings.Index(raw, "base64,"); i >= 0 {
		raw = raw[i+len("base64,"):]
	}
	img, err := base64.StdEncoding.DecodeString(strings.Trim(strings.TrimSpace(raw), `"`))
	if err != nil {
		return nil, fmt.Errorf("messaging: decode qr code: %w", err)
	}
	return img, nil
}

// SendMessage sends a text message. The phone is normalized first.
func (c *Client) SendMessage(ctx context.Context, phone, text string) (SendResult, error) {
	chatID := NormalizePhone(phone)
	if chatID == "" {
		return SendResult{}, ErrInvalidPhone
	}
	var out envelope[[]wireSent]
	if _, err := c.call(ctx, http.MethodPost, c.path("send-message"), map[string]any{
		"phone": chatID, "message": text, "isGroup": false,
	}, &out); err != nil {
		return SendResult{}, err
	}
	return sendResult(chatID, out.Response), nil
}

// SendImage sends a base64 encoded image with an optional caption.
func (c *Client) SendImage(ctx context.Context, phone string, image []byte, filename, caption string) (SendResult, error) {
	chatID := NormalizePhone(phone)
	if chatID == "" {
		return SendResult{}, ErrInvalidPhone
	}
	mime := http.DetectContentType(image)
	var out envelope[[]wireSent]
	if _, err := c.call(ctx, http.MethodPost, c.path("send-image"), map[string]any{
		"phone":    chatID,
		"isGroup":  false,
		"filename": filename,
		"caption":  caption,
		"base64":   "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image),
	}, &out); err != nil {
		return SendResult{}, err
	}
	return sendResult(chatID, out.Response), nil
}

func sendResult(chatID string, sent []wireSent) SendResult {
	res := SendResult{ChatID: chatID}
	if len(sent) > 0 {
		res.MessageID = sent[0].ID
	}
	return res
}

// Chats lists conversations on the paired phone.
func (c *Client) Chats(ctx context.Context) ([]Chat, error) {
	var out envelope[[]wireChat]
	if _, err := c.call(ctx, http.MethodGet, c.path("all-chats"), nil, &out); err != nil {
		return nil, err
	}
	chats := make([]Chat, 0, len(out.Response))
	for _, w := range out.Response {
		chats = append(chats, Chat{ID: w.ID.Serialized, Name: w.Name, UnreadCount: w.UnreadCount, Timestamp: w.Timestamp})
	}
	return chats, nil
}

// Messages returns up to count recent messages of a chat.
func (c *Client) Messages(ctx context.Context, chatID string, count int) ([]Message, error) {
	if count <= 0 || count > 200 {
		count = 50
	}
	if !strings.Contains(chatID, "@") {
		chatID = NormalizePhone(chatID)
	}
	if chatID == "" {
		return nil, ErrInvalidPhone
	}
	var out envelope[[]wireMessage]
	path := c.path("get-messages/"+chatID) + "?count=" + strconv.Itoa(count)
	if _, err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(out.Response))
	for _, w := range out.Response {
		msgs = append(msgs, Message(w))
	}
	return msgs, nil
}

// CloseSession stops the session but keeps the pairing.
func (c *Client) CloseSession(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodPost, c.path("close-session"), nil, nil)
	return err
}

// Logout unpairs the phone.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodPost, c.path("logout-session"), nil, nil)
	return err
}

// IsUnavailable reports whether err means the sidecar could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrCircuitOpen)
}
