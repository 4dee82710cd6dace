package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/util"
)

const (
	Provider = "yookassa"

	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"

	mockPrefix = "mock-"
)

// ErrUnavailable wraps transport failures and an open circuit.
var ErrUnavailable = errors.New("payment gateway unavailable")

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yookassa returned %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	ShopID  string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// Payment is the subset of the gateway payment object the storefront reads.
// Raw holds the full response body.
type Payment struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Paid            bool            `json:"paid"`
	Amount          Amount          `json:"amount"`
	Confirmation    *Confirmation   `json:"confirmation,omitempty"`
	ConfirmationURL string          `json:"confirmation_url,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// RedirectURL returns where the buyer should be sent to pay.
func (p *Payment) RedirectURL() string {
	if p.Confirmation != nil && p.Confirmation.ConfirmationURL != "" {
		return p.Confirmation.ConfirmationURL
	}
	return p.ConfirmationURL
}

// TransactionStatus maps the gateway status onto a transaction status.
func (p *Payment) TransactionStatus() string {
	switch p.Status {
	case StatusSucceeded:
		return models.TransactionSucceeded
	case StatusCanceled:
		return models.TransactionFailed
	default:
		return models.TransactionInitiated
	}
}

// Payload is the raw gateway object annotated with the provider name and a
// top-level confirmation_url, as stored on transactions.
func (p *Payment) Payload() []byte {
	fields := map[string]interface{}{}
	if len(p.Raw) > 0 {
		if err := json.Unmarshal(p.Raw, &fields); err != nil {
			fields = map[string]interface{}{"id": p.ID, "status": p.Status}
		}
	}
	fields["provider"] = Provider
	if p.Status != "" {
		fields["status"] = p.Status
	}
	if url := p.RedirectURL(); url != "" {
		fields["confirmation_url"] = url
	}
	out, _ := json.Marshal(fields)
	return out
}

// IsMockID reports whether id was produced by the offline mock.
func IsMockID(id string) bool {
	return strings.HasPrefix(id, mockPrefix)
}

// PaymentRequest describes a payment to create for a checkout.
type PaymentRequest struct {
	CheckoutID     int64
	Amount         models.Money
	Currency       string
	ReturnURL      string
	IdempotenceKey string
}

type createBody struct {
	Amount       Amount            `json:"amount"`
	Confirmation Confirmation      `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
}

// Client talks to the YooKassa v3 API. Without credentials it runs in mock
// mode and never touches the network.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Payment]
	logger  *zap.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	breaker := gobreaker.NewCircuitBreaker[*Payment](gobreaker.Settings{
		Name:        "yookassa",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			util.GetLogger().Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  util.GetLogger(),
	}
}

// Mock reports whether the client runs without credentials.
func (c *Client) Mock() bool {
	return c.cfg.ShopID == "" || c.cfg.APIKey == ""
}

// CreatePayment creates a redirect payment with automatic capture.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentClient.CreatePayment")
	defer span.End()

	amount := Amount{Value: req.Amount.String(), Currency: req.Currency}
	if c.Mock() {
		return mockPayment(req.CheckoutID, amount, req.ReturnURL), nil
	}

	body, err := json.Marshal(createBody{
		Amount:       amount,
		Confirmation: Confirmation{Type: "redirect", ReturnURL: req.ReturnURL},
		Capture:      true,
		Description:  fmt.Sprintf("Checkout #%d", req.CheckoutID),
		Metadata:     map[string]string{"checkout_id": strconv.FormatInt(req.CheckoutID, 10)},
	})
	if err != nil {
		return nil, err
	}

	p, err := c.do(ctx, "create", http.MethodPost, "/payments", body, req.IdempotenceKey)
	return p, util.SpanError(span, err)
}

// GetPayment fetches the current state of a payment.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentClient.GetPayment")
	defer span.End()

	if c.Mock() || IsMockID(id) {
		return nil, fmt.Errorf("cannot fetch payment %s in mock mode", id)
	}
	p, err := c.do(ctx, "get", http.MethodGet, "/payments/"+id, nil, "")
	return p, util.SpanError(span, err)
}

func (c *Client) do(ctx context.Context, operation, method, path string, body []byte, idempotenceKey string) (*Payment, error) {
	start := time.Now()
	p, err := c.breaker.Execute(func() (*Payment, error) {
		return c.roundTrip(ctx, method, path, body, idempotenceKey)
	})
	util.PaymentGatewayLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		util.PaymentGatewayRequests.WithLabelValues(operation, "error").Inc()
		c.logger.Error("Payment gateway call failed",
			zap.String("operation", operation),
			zap.String("path", path),
			zap.Error(err))

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	util.PaymentGatewayRequests.WithLabelValues(operation, "ok").Inc()
	return p, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, idempotenceKey string) (*Payment, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(c.cfg.ShopID, c.cfg.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if idempotenceKey != "" {
		httpReq.Header.Set("Idempotence-Key", idempotenceKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var p Payment
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode payment: %w", err)
	}
	p.Raw = raw
	return &p, nil
}

func mockPayment(checkoutID int64, amount Amount, returnURL string) *Payment {
	p := &Payment{
		ID:              fmt.Sprintf("%s%d", mockPrefix, checkoutID),
		Status:          StatusPending,
		Amount:          amount,
		ConfirmationURL: returnURL,
	}
	p.Raw, _ = json.Marshal(map[string]interface{}{
		"id":               p.ID,
		"status":           p.Status,
		"provider":         Provider,
		"confirmation_url": returnURL,
		"amount":           amount,
	})
	return p
}
