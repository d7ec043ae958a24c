// Package indexer is an HTTP client for a hosted blockchain indexer that
// reports address balances, selects UTXOs and relays signed transactions.
// The indexer is trusted for UTXO state; nothing it returns is verified
// against the chain.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/utxowallet/internal/log"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"
)

// APIKeyHeader is the header carrying the indexer API key.
const APIKeyHeader = "x-api-key"

// Defaults.
const (
	DefaultURL             = "https://api.tatum.io"
	DefaultChainPath       = "bitcoin"
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultRateLimit       = 3
	DefaultRetryBackoff    = 100 * time.Millisecond
	DefaultBreakerFailures = 5
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 4 << 20

// Config holds the indexer client configuration.
type Config struct {
	URL           string
	APIKey        string
	ChainPath     string // Path segment of the v3 API, e.g. "bitcoin".
	ChainSelector string // Chain selector of the v4 data API, e.g. "bitcoin-testnet".
	Timeout       time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	RateLimit     int // Requests per second; 0 disables pacing.
	// BreakerFailures is the number of consecutive failures that opens the
	// circuit breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig returns a configuration for the public testnet API.
func DefaultConfig() Config {
	return Config{
		URL:             DefaultURL,
		ChainPath:       DefaultChainPath,
		ChainSelector:   "bitcoin-testnet",
		Timeout:         DefaultTimeout,
		MaxRetries:      DefaultMaxRetries,
		RetryBackoff:    DefaultRetryBackoff,
		RateLimit:       DefaultRateLimit,
		BreakerFailures: DefaultBreakerFailures,
		BreakerTimeout:  30 * time.Second,
	}
}

// Client talks to the indexer. It is safe for concurrent use; Close
// releases its connections.
type Client struct {
	cfg     Config
	params  *chaincfg.Params
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
	closed  atomic.Bool
}

// New creates an indexer client for the given network.
func New(cfg Config, params *chaincfg.Params) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("indexer url is required")
	}
	if cfg.ChainPath == "" {
		cfg.ChainPath = DefaultChainPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	limiter := ratelimit.NewUnlimited()
	if cfg.RateLimit > 0 {
		limiter = ratelimit.New(cfg.RateLimit)
	}

	return &Client{
		cfg:     cfg,
		params:  params,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker(cfg),
		limiter: limiter,
	}, nil
}

func newBreaker(cfg Config) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "indexer",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Indexer.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// Close releases idle connections. Calls after Close fail with
// ErrClientClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.http.CloseIdleConnections()
	return nil
}

// response is a fully read HTTP response.
type response struct {
	status int
	body   []byte
}

// attempt performs one paced request through the circuit breaker. Server
// errors and transport failures count against the breaker; other statuses
// are returned to the caller as a response.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte) (*response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	c.limiter.Take()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, rd)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set(APIKeyHeader, c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &transportError{err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, &transportError{err: fmt.Errorf("read response: %w", err)}
		}
		r := &response{status: resp.StatusCode, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return r, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
		}
		return r, nil
	})
	r, _ := out.(*response)
	return r, err
}

// doGet performs a GET with retries on transient failures and decodes a
// 200 response into result.
func (c *Client) doGet(ctx context.Context, path string, result interface{}) error {
	var lastErr error
	for i := 0; i <= c.cfg.MaxRetries; i++ {
		if i > 0 {
			wait := time.Duration(i) * c.cfg.RetryBackoff
			log.Indexer.Debug().Str("path", path).Int("attempt", i+1).Err(lastErr).Msg("Retrying request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err := c.attempt(ctx, http.MethodGet, path, nil)
		if err == nil && retryableStatus(resp.status) {
			err = &APIError{StatusCode: resp.status, Message: errorMessage(resp.body)}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !IsTransient(err) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return err
			}
			lastErr = err
			continue
		}

		if resp.status != http.StatusOK {
			return &APIError{StatusCode: resp.status, Message: errorMessage(resp.body)}
		}
		if err := json.Unmarshal(resp.body, result); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return nil
	}
	return fmt.Errorf("request failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// errorMessage extracts a readable message from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
		Error     string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "" && payload.ErrorCode != "":
			return payload.ErrorCode + ": " + payload.Message
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
