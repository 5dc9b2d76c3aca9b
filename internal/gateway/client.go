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

	"registration-service/config"
	"registration-service/internal/models"
	"registration-service/internal/util"

	"go.uber.org/zap"
)

const (
	productionBaseURL = "https://api.cashfree.com/pg"
	sandboxBaseURL    = "https://sandbox.cashfree.com/pg"
	apiVersion        = "2023-08-01"
)

// Payment statuses as reported by the gateway.
const (
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusPending = "PENDING"
	PaymentStatusFailed  = "FAILED"
)

// Client talks to the payment gateway's REST API. The environment is chosen
// from configuration; when FallbackToProduction is set, a failed sandbox
// call is retried once against production.
type Client struct {
	httpClient *http.Client
	cfg        config.GatewayConfig
	logger     *zap.Logger
}

func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		// Per-request deadlines come from contexts; this is a hard ceiling
		// so a hung transport cannot outlive the configured bound.
		httpClient: &http.Client{Timeout: cfg.RequestTimeout + 5*time.Second},
		cfg:        cfg,
		logger:     util.GetLogger(),
	}
}

// CreateOrderRequest is the gateway session creation payload.
type CreateOrderRequest struct {
	OrderID       string
	Amount        int64
	Currency      string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ReturnURL     string
}

// Session is the gateway's answer to order creation.
type Session struct {
	PaymentSessionID string `json:"payment_session_id"`
	OrderStatus      string `json:"order_status"`
}

// Payment is one payment attempt recorded against a gateway order.
type Payment struct {
	Status        string      `json:"payment_status"`
	TransactionID json.Number `json:"cf_payment_id"`
	Method        string      `json:"payment_group"`
}

// OrderStatus summarizes the gateway's view of an order.
type OrderStatus struct {
	Status string  `json:"order_status"`
	Amount float64 `json:"order_amount"`
}

type apiError struct {
	Message string `json:"message"`
}

func (c *Client) baseURL() string {
	if c.cfg.Environment == "sandbox" {
		return sandboxBaseURL
	}
	return productionBaseURL
}

// CreateOrder opens a payment session for an already-persisted order.
func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Session, error) {
	body := map[string]interface{}{
		"order_id":       req.OrderID,
		"order_amount":   float64(req.Amount),
		"order_currency": req.Currency,
		"customer_details": map[string]string{
			"customer_id":    fmt.Sprintf("cust_%d", time.Now().UnixMilli()),
			"customer_name":  req.CustomerName,
			"customer_email": req.CustomerEmail,
			"customer_phone": req.CustomerPhone,
		},
		"order_meta": map[string]string{
			"return_url": req.ReturnURL,
		},
	}

	var session Session
	if err := c.call(ctx, http.MethodPost, "/orders", body, &session); err != nil {
		return nil, err
	}

	c.logger.Info("Gateway session created",
		zap.String("order_id", req.OrderID),
		zap.String("session_id", session.PaymentSessionID))
	return &session, nil
}

// FetchPayments returns the payment attempts recorded for an order, oldest
// first. The redirect poll inspects the latest entry.
func (c *Client) FetchPayments(ctx context.Context, orderID string) ([]Payment, error) {
	var payments []Payment
	if err := c.call(ctx, http.MethodGet, "/orders/"+orderID+"/payments", nil, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// FetchOrder returns the gateway's order summary.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*OrderStatus, error) {
	var status OrderStatus
	if err := c.call(ctx, http.MethodGet, "/orders/"+orderID, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// call performs one gateway request with the configured timeout, then
// applies the production fallback policy on failure.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	err := c.do(ctx, method, c.baseURL()+path, body, out)
	if err == nil {
		return nil
	}

	if c.cfg.Environment == "sandbox" && c.cfg.FallbackToProduction && !errors.Is(err, models.ErrGatewayTimeout) {
		c.logger.Warn("Sandbox call failed, retrying against production",
			zap.String("path", path),
			zap.Error(err))
		return c.do(ctx, method, productionBaseURL+path, body, out)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal gateway request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-version", apiVersion)
	req.Header.Set("x-client-id", c.cfg.AppID)
	req.Header.Set("x-client-secret", c.cfg.SecretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w after %s: %v", models.ErrGatewayTimeout, c.cfg.RequestTimeout, err)
		}
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("gateway error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("gateway error (%d)", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}
