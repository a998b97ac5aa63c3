// Package gateway is a client for the Green API WhatsApp gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solvaholic/wadigest/internal/logger"
	"github.com/solvaholic/wadigest/internal/retry"
)

// SourceType identifies this gateway in rate limit bookkeeping
const SourceType = "greenapi"

// ErrRateLimited is returned when the Limiter denies a call
var ErrRateLimited = errors.New("gateway rate limit reached")

// HTTPError is a non-2xx response from the gateway
type HTTPError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("gateway %s returned HTTP %d: %s", e.Endpoint, e.Status, body)
}

// Temporary reports whether retrying the call may succeed
func (e *HTTPError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
}

// Limiter does windowed request accounting. *db.DB implements it.
type Limiter interface {
	CheckRateLimit(sourceType string, workspaceID *string, endpoint string) (bool, error)
	RecordRequest(sourceType string, workspaceID *string, endpoint string) error
}

// Config holds the gateway connection settings
type Config struct {
	BaseURL    string
	InstanceID string
	Token      string
	Delay      time.Duration // minimum gap between HTTP calls
	Timeout    time.Duration // per HTTP call
}

// Client issues authenticated, throttled and retried gateway calls
type Client struct {
	baseURL    string
	instanceID string
	token      string

	http     *http.Client
	retry    retry.Policy
	throttle *throttle
	limiter  Limiter
	policy   SendPolicy
	log      zerolog.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryPolicy replaces the default 3-attempt exponential policy
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLimiter enables rate limit accounting
func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithSendPolicy sets the outbound message policy. The default blocks all
// sending.
func WithSendPolicy(p SendPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a gateway client
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.InstanceID == "" || cfg.Token == "" {
		return nil, fmt.Errorf("gateway instance id and token are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.greenapi.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		instanceID: cfg.InstanceID,
		token:      cfg.Token,
		http:       &http.Client{Timeout: cfg.Timeout},
		retry:      retry.DefaultPolicy(),
		throttle:   newThrottle(cfg.Delay),
		policy:     SendGate{},
		log:        logger.Component("gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// InstanceID returns the gateway instance the client talks to
func (c *Client) InstanceID() string {
	return c.instanceID
}

func (c *Client) url(endpoint string) string {
	return fmt.Sprintf("%s/waInstance%s/%s/%s", c.baseURL, c.instanceID, endpoint, c.token)
}

// call performs one logical request with retries and decodes the JSON
// response into out. An empty body is an empty result and leaves out
// untouched.
func (c *Client) call(ctx context.Context, method, endpoint string, payload, out any) error {
	if c.limiter != nil {
		ok, err := c.limiter.CheckRateLimit(SourceType, &c.instanceID, endpoint)
		if err != nil {
			c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("Rate limit check failed")
		} else if !ok {
			return fmt.Errorf("%w for %s", ErrRateLimited, endpoint)
		}
	}

	var body []byte
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.do(ctx, method, endpoint, payload)
		if err != nil {
			c.log.Debug().Err(err).Str("endpoint", endpoint).Msg("Gateway request failed")
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", endpoint, err)
	}

	if c.limiter != nil {
		if err := c.limiter.RecordRequest(SourceType, &c.instanceID, endpoint); err != nil {
			c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to record request")
		}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", endpoint, err)
	}
	return nil
}

// do performs a single HTTP attempt. Errors that retrying cannot fix are
// marked permanent.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	if err := c.throttle.wait(ctx); err != nil {
		return nil, retry.Permanent(err)
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("failed to encode request: %w", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), reqBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(err)
		}
		// connection errors and timeouts are retried
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &HTTPError{Status: resp.StatusCode, Endpoint: endpoint, Body: string(data)}
		if herr.Temporary() {
			return nil, herr
		}
		return nil, retry.Permanent(herr)
	}
	return data, nil
}

// throttle enforces a minimum delay between consecutive HTTP calls
type throttle struct {
	mu    sync.Mutex
	delay time.Duration
	last  time.Time
}

func newThrottle(delay time.Duration) *throttle {
	return &throttle{delay: delay}
}

func (t *throttle) wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.delay > 0 && !t.last.IsZero() {
		if wait := t.delay - time.Since(t.last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	t.last = time.Now()
	return nil
}

// StateInstance is the authorization state of the gateway instance
type StateInstance struct {
	State string `json:"stateInstance"`
}

// GetStateInstance returns the instance state, e.g. "authorized"
func (c *Client) GetStateInstance(ctx context.Context) (*StateInstance, error) {
	var st StateInstance
	if err := c.call(ctx, http.MethodGet, "getStateInstance", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
