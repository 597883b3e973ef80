package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"forward-elements/internal/domain"
)

// Breaker defaults.
const (
	defaultBreakerFailures uint32 = 5
	defaultBreakerTimeout         = 30 * time.Second
)

// Client is the typed API client host pages use: create a session before
// mounting the form, create the payment after tokenization. Calls run
// through a circuit breaker so a failing backend is refused fast instead of
// piling up retries.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// ClientConfig configures an API client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *slog.Logger

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// NewClient creates a client for the API at cfg.BaseURL.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	timeout := cfg.BreakerTimeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}

	logger := cfg.Logger
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "elements-api",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("api breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// 4xx outcomes are the caller's problem, not backend health.
			var se *statusError
			if errors.As(err, &se) {
				return se.status < http.StatusInternalServerError
			}
			return err == nil
		},
	})

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: cb,
		logger:  cfg.Logger,
	}
}

// statusError carries a non-2xx response mapped onto its envelope.
type statusError struct {
	status   int
	envelope errorEnvelope
	sentinel error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.status, e.envelope.Error, e.envelope.Message)
}

func (e *statusError) Unwrap() error { return e.sentinel }

// CreatePaymentSession calls POST /elements/payment-session.
func (c *Client) CreatePaymentSession(ctx context.Context, req domain.CreatePaymentSessionRequest) (domain.CreatePaymentSessionResponse, error) {
	var resp domain.CreatePaymentSessionResponse
	err := c.post(ctx, "/elements/payment-session", req, &resp)
	return resp, err
}

// CreatePayment calls POST /elements/payment. Satisfies the checkout
// orchestrator's PaymentsAPI.
func (c *Client) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (domain.Payment, error) {
	var resp domain.Payment
	err := c.post(ctx, "/elements/payment", req, &resp)
	return resp, err
}

// GetPaymentSession calls GET /elements/payment-session/{id}.
func (c *Client) GetPaymentSession(ctx context.Context, id string) (domain.CreatePaymentSessionResponse, error) {
	var resp domain.CreatePaymentSessionResponse
	err := c.do(ctx, http.MethodGet, "/elements/payment-session/"+id, nil, &resp)
	return resp, err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("api: marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, raw, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, newStatusError(resp.StatusCode, data)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

// newStatusError maps a non-2xx body onto the matching domain sentinel so
// callers can branch with errors.Is.
func newStatusError(status int, body []byte) *statusError {
	var env errorEnvelope
	_ = json.Unmarshal(body, &env)

	se := &statusError{status: status, envelope: env}
	switch {
	case status == http.StatusUnauthorized:
		se.sentinel = domain.ErrAuthMissing
	case status == http.StatusForbidden:
		se.sentinel = domain.ErrAuthInvalid
	case status == http.StatusTooManyRequests:
		se.sentinel = domain.ErrRateLimited
	case status == http.StatusNotFound && env.Message == "Payment method not found":
		se.sentinel = domain.ErrMethodNotFound
	case status == http.StatusNotFound:
		se.sentinel = domain.ErrSessionNotFound
	case status == http.StatusBadRequest && env.Message == "Payment method does not match session":
		se.sentinel = domain.ErrSessionMismatch
	case status == http.StatusBadRequest && env.Message == "Payment amount does not match session":
		se.sentinel = domain.ErrAmountMismatch
	default:
		se.sentinel = domain.ErrInvalidInput
	}
	return se
}
