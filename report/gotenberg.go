package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUnavailable reports that the renderer could not be reached.
var ErrUnavailable = errors.New("report: renderer unavailable")

// Client wraps interactions with the Gotenberg API.
type Client struct {
	http *resty.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(30 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second),
	}
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: gotenberg returned status %d", ErrUnavailable, resp.StatusCode())
	}
	return nil
}

// RenderHTML converts raw HTML into a PDF document using Gotenberg.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("files", "index.html", strings.NewReader(html)).
		SetDoNotParseResponse(false).
		Post("/forms/chromium/convert/html")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("report: render failed with status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
