package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlistsync/internal/metrics"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const maxErrorBody = 4096

// ClientOptions configures a [Client].
type ClientOptions struct {
	Name        string
	BaseURL     string
	MinInterval time.Duration
	HTTPClient  *http.Client
	Logger      *log.Logger

	// Authorize decorates each outbound request (API key header, bearer token).
	Authorize func(req *http.Request) error

	// BreakerTimeout is how long an open breaker rejects calls before probing again.
	BreakerTimeout time.Duration
	// BreakerFailures is the consecutive-failure count that opens the breaker.
	BreakerFailures uint32
}

// Client is a rate-limited, serialized, circuit-broken JSON client for one provider.
//
// Calls hold mu for their whole duration so at most one request per provider is in flight,
// and limiter spaces request starts by at least MinInterval.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	authorize  func(req *http.Request) error
	logger     *log.Logger

	mu       sync.Mutex
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[[]byte]
	requests atomic.Int64
}

// NewClient builds a provider client from opts.
func NewClient(opts ClientOptions) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	c := &Client{
		name:       opts.Name,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		authorize:  opts.Authorize,
		logger:     opts.Logger.With("provider", opts.Name),
		limiter:    rate.NewLimiter(limit, 1),
	}

	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
			metrics.SetBreakerOpen(name, to == gobreaker.StateOpen)
		},
	})
	metrics.SetBreakerOpen(opts.Name, false)

	return c
}

// Name returns the provider name used in logs, metrics and errors.
func (c *Client) Name() string { return c.name }

// Requests returns how many HTTP requests this client has sent.
func (c *Client) Requests() int64 { return c.requests.Load() }

// Call performs GET baseURL+endpoint?params and decodes the JSON body into out (when non-nil).
//
// Non-2xx responses become [*shared.ProviderError]; an open breaker yields a ProviderError
// wrapping [shared.ErrServiceUnavailable] without touching the network.
func (c *Client) Call(ctx context.Context, endpoint string, params url.Values, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, endpoint, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordBreakerRejection(c.name)
			return &shared.ProviderError{
				Provider: c.name,
				Endpoint: endpoint,
				Err:      fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err),
			}
		}
		return err
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &shared.ProviderError{
			Provider: c.name,
			Endpoint: endpoint,
			Err:      fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err),
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.authorize != nil {
		if err := c.authorize(req); err != nil {
			return nil, &shared.ProviderError{Provider: c.name, Endpoint: endpoint, Err: err}
		}
	}

	c.requests.Add(1)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordProviderCall(c.name, 0, time.Since(start))
		return nil, &shared.ProviderError{Provider: c.name, Endpoint: endpoint, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	metrics.RecordProviderCall(c.name, resp.StatusCode, time.Since(start))
	c.logger.Debug("provider call", "endpoint", endpoint, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &shared.ProviderError{
			Provider: c.name,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Body:     string(body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &shared.ProviderError{Provider: c.name, Endpoint: endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return body, nil
}

// breakerSuccess counts client-side answers (404, 400) and caller cancellation as healthy provider responses.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var perr *shared.ProviderError
	if errors.As(err, &perr) && perr.Status >= 400 && perr.Status < 500 && perr.Status != http.StatusTooManyRequests {
		return true
	}
	return false
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var perr *shared.ProviderError
	return errors.As(err, &perr) && perr.NotFound()
}
