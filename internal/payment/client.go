package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Gateway is the payment provider API.
type Gateway interface {
	Initiate(ctx context.Context, req PayRequest) (PayResult, error)
	Status(ctx context.Context, txnID string) (StatusResult, error)
}

// PayRequest starts a hosted payment page session. Amount is in paise.
type PayRequest struct {
	TransactionID string
	UserID        string
	Amount        int64
	Phone         string
}

// PayResult is the gateway's answer to a pay request.
type PayResult struct {
	Code        string
	Message     string
	RedirectURL string
}

// StatusResult is the gateway's view of a transaction.
type StatusResult struct {
	Code          string
	Message       string
	State         string
	TransactionID string
	Amount        int64
}

// Outcome maps the gateway response code onto the session state machine.
func (r StatusResult) Outcome() State {
	switch r.Code {
	case "PAYMENT_SUCCESS":
		return StateSuccess
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "TIMED_OUT", "TRANSACTION_NOT_FOUND", "AUTHORIZATION_FAILED":
		return StateFailed
	default:
		return StatePending
	}
}

// Client calls the gateway with signed requests.
type Client struct {
	http *resty.Client
	cfg  Config
}

// NewClient constructs Client for a resolved Config.
func NewClient(cfg Config) *Client {
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: rc, cfg: cfg}
}

type gatewayResponse struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type payData struct {
	InstrumentResponse struct {
		Type         string `json:"type"`
		RedirectInfo struct {
			URL    string `json:"url"`
			Method string `json:"method"`
		} `json:"redirectInfo"`
	} `json:"instrumentResponse"`
}

type statusData struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Amount                int64  `json:"amount"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
}

// EncodePayload builds the base64 JSON payload of a pay request.
func (c *Client) EncodePayload(req PayRequest) (string, error) {
	payload := map[string]any{
		"merchantId":            c.cfg.MerchantID,
		"merchantTransactionId": req.TransactionID,
		"merchantUserId":        req.UserID,
		"amount":                req.Amount,
		"redirectUrl":           c.cfg.RedirectURL,
		"redirectMode":          "REDIRECT",
		"callbackUrl":           c.cfg.CallbackURL,
		"paymentInstrument":     map[string]string{"type": "PAY_PAGE"},
	}
	if req.Phone != "" {
		payload["mobileNumber"] = req.Phone
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Initiate posts a signed pay request.
func (c *Client) Initiate(ctx context.Context, req PayRequest) (PayResult, error) {
	payload, err := c.EncodePayload(req)
	if err != nil {
		return PayResult{}, fmt.Errorf("payment: encode payload: %w", err)
	}
	var out gatewayResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-VERIFY", PayChecksum(payload, c.cfg.SaltKey, c.cfg.SaltIndex)).
		SetBody(map[string]string{"request": payload}).
		SetResult(&out).
		SetError(&out).
		Post(payEndpoint)
	if err != nil {
		return PayResult{}, fmt.Errorf("payment: initiate: %w", err)
	}
	if resp.IsError() || !out.Success {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("gateway returned status %d", resp.StatusCode())
		}
		return PayResult{Code: out.Code, Message: msg}, fmt.Errorf("payment: initiate: %s", msg)
	}
	var data payData
	if err := json.Unmarshal(out.Data, &data); err != nil {
		return PayResult{}, fmt.Errorf("payment: decode pay response: %w", err)
	}
	return PayResult{Code: out.Code, Message: out.Message, RedirectURL: data.InstrumentResponse.RedirectInfo.URL}, nil
}

// Status fetches the transaction status with a signed request.
func (c *Client) Status(ctx context.Context, txnID string) (StatusResult, error) {
	var out gatewayResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-VERIFY", StatusChecksum(c.cfg.MerchantID, txnID, c.cfg.SaltKey, c.cfg.SaltIndex)).
		SetHeader("X-MERCHANT-ID", c.cfg.MerchantID).
		SetResult(&out).
		SetError(&out).
		Get(StatusPath(c.cfg.MerchantID, txnID))
	if err != nil {
		return StatusResult{}, fmt.Errorf("payment: status: %w", err)
	}
	if resp.StatusCode() >= 500 {
		return StatusResult{}, fmt.Errorf("payment: status: gateway returned %d", resp.StatusCode())
	}
	res := StatusResult{Code: out.Code, Message: out.Message, TransactionID: txnID}
	if len(out.Data) > 0 {
		var data statusData
		if err := json.Unmarshal(out.Data, &data); err == nil {
			res.State = data.State
			res.Amount = data.Amount
		}
	}
	return res, nil
}
