package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Cachi0001/Biz-sub011/pkg/fetch"
	"github.com/Cachi0001/Biz-sub011/pkg/logger"
	"github.com/Cachi0001/Biz-sub011/pkg/plans"
)

const (
	statusPath    = "/subscription-status"
	incrementPath = "/usage-increment"

	// OwnerHeader carries the owner id on every request.
	OwnerHeader = "X-Owner-ID"

	maxErrorBody = 64 * 1024
)

// Status is the authoritative subscription state of an owner.
type Status struct {
	Tier            plans.Tier       `json:"tier"`
	UsageByResource map[string]int64 `json:"usageByResource"`
	PeriodEnd       time.Time        `json:"periodEnd"`
	Features        map[string]bool  `json:"features"`
}

// Usage returns the reported counters keyed by known resources.
// Unknown resource names are skipped.
func (s Status) Usage() map[plans.Resource]int64 {
	out := make(map[plans.Resource]int64, len(s.UsageByResource))
	for name, n := range s.UsageByResource {
		r, err := plans.ParseResource(name)
		if err != nil {
			continue
		}
		out[r] = n
	}
	return out
}

type incrementRequest struct {
	Resource plans.Resource `json:"resource"`
	Amount   int64          `json:"amount"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sends "Authorization: Bearer <token>".
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCircuitBreaker guards calls with cb.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client talks to the subscription service. Safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	token   string
	timeout time.Duration
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		base: base,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: 10 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("remote"))
	return c, nil
}

// NewFromConfig creates a Client with a circuit breaker configured from cfg.
func NewFromConfig(cfg Config, opts ...Option) (*Client, error) {
	base := []Option{
		WithToken(cfg.Token),
		WithTimeout(cfg.Timeout),
		WithCircuitBreaker(NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerSuccesses, cfg.BreakerRecovery)),
	}
	return New(cfg.BaseURL, append(base, opts...)...)
}

// Status fetches the subscription state of owner.
func (c *Client) Status(ctx context.Context, owner uuid.UUID) (Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, statusPath, owner, nil, &status); err != nil {
		return Status{}, err
	}
	status.Tier = plans.ParseTier(string(status.Tier))
	return status, nil
}

// RecordUsage reports a usage delta. Duplicates are tolerated by the service.
func (c *Client) RecordUsage(ctx context.Context, owner uuid.UUID, r plans.Resource, amount int64) error {
	return c.do(ctx, http.MethodPost, incrementPath, owner, incrementRequest{Resource: r, Amount: amount}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, owner uuid.UUID, in, out any) error {
	if owner == uuid.Nil {
		return ErrInvalidOwner
	}
	if c.breaker != nil && !c.breaker.Allow() {
		return errors.Join(ErrCircuitOpen, fetch.ErrNetworkFailure)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(OwnerHeader, owner.String())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(fetch.ErrCancelled, ctxErr)
		}
		c.failure(ctx, path, err)
		return fmt.Errorf("%w: %s %s: %w", fetch.ErrNetworkFailure, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(ctx, path, resp)
	}
	if c.breaker != nil {
		c.breaker.Success()
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(fetch.ErrCancelled, ctxErr)
		}
		return errors.Join(ErrUnexpectedResponse, err)
	}
	return nil
}

func (c *Client) statusError(ctx context.Context, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := errorMessage(body)

	if isPermanent(resp.StatusCode) {
		if c.breaker != nil {
			c.breaker.Success()
		}
		return &fetch.RejectedError{StatusCode: resp.StatusCode, Message: msg}
	}

	err := fmt.Errorf("%w: %s returned status %d", fetch.ErrNetworkFailure, path, resp.StatusCode)
	if msg != "" {
		err = fmt.Errorf("%w: %s", err, msg)
	}
	c.failure(ctx, path, err)
	return err
}

func (c *Client) failure(ctx context.Context, path string, err error) {
	if c.breaker == nil {
		return
	}
	c.breaker.Failure()
	if c.breaker.State() == BreakerOpen {
		c.logger.WarnContext(ctx, "subscription service circuit open",
			slog.String("path", path),
			logger.Error(err),
		)
	}
}

// isPermanent reports whether a non-2xx status will not change on retry.
func isPermanent(status int) bool {
	if status >= 400 && status < 500 {
		switch status {
		case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
			return false
		default:
			return true
		}
	}
	return false
}

// errorMessage extracts {"message"} or {"error"} from a JSON body, falling
// back to the sanitized text.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	msg := strings.TrimSpace(strings.ReplaceAll(string(body), "\n", " "))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}

func parseBase(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return u, nil
}
