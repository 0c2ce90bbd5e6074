// README: HTTP client for the external payment gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnavailable wraps any transport or 5xx failure so callers can decide
// between fail-open (reads) and fail-closed (writes).
var ErrUnavailable = errors.New("payment gateway unavailable")

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	var out Customer
	if err := c.do(ctx, http.MethodPost, "/v1/customers", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	var out Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	var out Intent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+intentID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	var out Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway rejected %s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
