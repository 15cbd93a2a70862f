// Package client is a Go SDK for the yellowcore HTTP API.
package client

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"yellowcore-go/internal/config"
)

// APIError is a response the server answered with "status": "error".
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client talks to the API with rate limiting and retries on 429 and 5xx.
type Client struct {
	client     *resty.Client
	token      string
	logger     *zap.Logger
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg config.Client, logger *zap.Logger) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}
	return &Client{
		client:     resty.New().SetBaseURL(cfg.BaseURL).SetHeader("Content-Type", "application/json"),
		logger:     logger.Named("client"),
		limiter:    rate.NewLimiter(limit, cfg.RateLimitBurst),
		maxRetries: retries,
		backoff:    time.Second,
	}
}

// SetToken sets the session token sent as a bearer credential.
func (c *Client) SetToken(token string) { c.token = token }

// Token returns the current session token.
func (c *Client) Token() string { return c.token }

func (c *Client) request(ctx context.Context, result any) *resty.Request {
	req := c.client.R().SetContext(ctx).SetError(&envelope{})
	if result != nil {
		req.SetResult(result)
	}
	if c.token != "" {
		req.SetAuthToken(c.token)
	}
	return req
}

// doRequest executes req with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		// A 429 is rejected before any handler runs, so every method may retry it.
		// Other failures may follow a side effect and only replay idempotent methods.
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = idempotent(method)
			}
			err = apiError(resp)
		} else {
			shouldRetry = idempotent(method)
		}

		if !shouldRetry {
			return nil, err
		}

		if retryAfter == 0 {
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}

		if i == c.maxRetries-1 {
			break
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, err)
}

func apiError(resp *resty.Response) error {
	msg := resp.Status()
	if env, ok := resp.Error().(*envelope); ok && env.Message != "" {
		msg = env.Message
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: msg}
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return true
	}
	return false
}
