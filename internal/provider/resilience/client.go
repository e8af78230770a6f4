// Package resilience provides the resilient HTTP client used for all
// FactoryLink backend calls: per-request timeout, exponential backoff retry
// of transient failures, and a circuit breaker per backend resource.
package resilience

import (
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// BreakerConfig holds circuit breaker configuration for one backend resource.
type BreakerConfig struct {
	// Name identifies the breaker for logging and health reporting.
	Name string

	// MaxRequests allowed in half-open state. Default: 1.
	MaxRequests uint32

	// OpenTimeout is how long the breaker stays open before probing.
	// Default: 30 seconds.
	OpenTimeout time.Duration

	// ReadyToTrip decides when to open the breaker.
	// Default: 5+ requests with a failure rate of 50% or more.
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultBreakerConfig returns breaker defaults for a backend resource.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 1,
		OpenTimeout: 30 * time.Second,
		ReadyToTrip: defaultReadyToTrip,
	}
}

func defaultReadyToTrip(counts gobreaker.Counts) bool {
	failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
	return counts.Requests >= 5 && failureRatio >= 0.5
}

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies the backend resource this client talks to.
	Name string

	// Timeout bounds each individual HTTP attempt. Default: 10 seconds.
	// A mobile client must not hold an in-flight guard forever.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts. Default: 2.
	MaxRetries uint64

	// InitialInterval is the first retry backoff interval. Default: 200ms.
	InitialInterval time.Duration

	// MaxInterval caps the retry backoff interval. Default: 2 seconds.
	MaxInterval time.Duration

	// Breaker is the circuit breaker configuration.
	// If nil, DefaultBreakerConfig(Name) is used.
	Breaker *BreakerConfig

	// Health records per-resource request outcomes (optional).
	Health *HealthRegistry
}

// DefaultClientConfig returns client defaults for a backend resource.
func DefaultClientConfig(name string) ClientConfig {
	bc := DefaultBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Breaker:         &bc,
	}
}

// Client is a resilient HTTP client for one backend resource.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	health     *HealthRegistry
	config     ClientConfig
}

// NewClient creates a resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}

	bc := cfg.Breaker
	if bc == nil {
		def := DefaultBreakerConfig(cfg.Name)
		bc = &def
	}
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        bc.Name,
		MaxRequests: bc.MaxRequests,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: bc.ReadyToTrip,
	})

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		health:     cfg.Health,
		config:     cfg,
	}
	if c.health != nil {
		c.health.track(cfg.Name, c)
	}
	return c
}

// Do executes an HTTP request with breaker protection and retry of
// transient failures (network errors and 5xx responses). It returns
// immediately with ErrCircuitOpen when the breaker is open.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // retries bounded by WithMaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response

	operation := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			reqClone := req.Clone(ctx)
			// Each attempt needs a fresh body; the previous attempt consumed it.
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				reqClone.Body = body
			}
			r, err := c.httpClient.Do(reqClone)
			if err != nil {
				return nil, err
			}
			// 5xx counts as a failure so the breaker sees backend outages.
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				lastResp = resp
			}
			return err
		}

		lastResp = resp
		return nil
	}

	err := backoff.Retry(operation, policy)
	if err != nil {
		c.recordFailure(err)
		// A 5xx that exhausted retries still carries a response body the
		// caller may want to surface.
		if lastResp != nil {
			return lastResp, nil
		}
		return nil, err
	}

	c.recordSuccess()
	return lastResp, nil
}

func (c *Client) recordSuccess() {
	if c.health != nil {
		c.health.RecordSuccess(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.health != nil {
		c.health.RecordFailure(c.config.Name, err)
	}
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// BreakerCounts returns the current circuit breaker counts.
func (c *Client) BreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}

// ServerError represents an HTTP 5xx response treated as a failure.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}
