package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"yellowcore-go/internal/api"
	"yellowcore-go/internal/auth"
	"yellowcore-go/internal/config"
	"yellowcore-go/internal/database"
	"yellowcore-go/internal/ledger"
	"yellowcore-go/internal/models"
	"yellowcore-go/internal/pricefeed"
	"yellowcore-go/internal/trader"
)

// setupTestClient creates a test server and a Client configured to use it.
func setupTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	c := &Client{
		client:     resty.New().SetBaseURL(server.URL).SetHeader("Content-Type", "application/json"),
		logger:     zap.NewNop(),
		limiter:    rate.NewLimiter(rate.Inf, 1),
		maxRetries: 3,
		backoff:    time.Millisecond,
	}
	return c, server
}

func newBackend(t *testing.T) http.Handler {
	t.Helper()
	log := zap.NewNop()
	opts := pricefeed.DefaultOptions()
	opts.Seed = 3
	feed, err := pricefeed.New(log, opts)
	require.NoError(t, err)
	db, err := database.NewDatabase(database.MemoryDSN)
	require.NoError(t, err)
	journal := database.NewJournal(db, log)
	l := ledger.New(log)

	svc := api.Services{
		Auth:    auth.NewService(log, bcrypt.MinCost),
		Ledger:  l,
		Feed:    feed,
		Engine:  trader.NewEngine(log, l, feed, journal),
		Journal: journal,
	}
	return api.NewAPIServer(config.Server{RateLimitBurst: 1}, svc, log).Handler()
}

func TestClientAgainstServer(t *testing.T) {
	// Arrange
	c, server := setupTestClient(newBackend(t))
	defer server.Close()
	ctx := context.Background()

	// Act & Assert
	_, err := c.Register(ctx, "john", "secret")
	require.NoError(t, err)
	_, err = c.Login(ctx, "john", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Token())

	usd, err := c.OpenAccount(ctx, models.USD)
	require.NoError(t, err)
	rub, err := c.OpenAccount(ctx, models.RUB)
	require.NoError(t, err)

	balance, err := c.Deposit(ctx, usd, decimal.NewFromInt(2000))
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(2000)))

	res, err := c.Transfer(ctx, usd, rub, decimal.NewFromInt(10))
	require.NoError(t, err)
	require.NotNil(t, res.ConvertedAmount)
	assert.True(t, res.ConvertedAmount.Equal(decimal.NewFromInt(925)))

	buy, err := c.Buy(ctx, "NVDA", 2, usd)
	require.NoError(t, err)
	assert.True(t, buy.TotalCost.Equal(decimal.NewFromInt(1580)))

	positions, err := c.Portfolio(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "NVDA", positions[0].Ticker)
	assert.Equal(t, int64(2), positions[0].Quantity)

	history, err := c.History(ctx, usd, HistoryQuery{Type: "buy_stock"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.OpBuyStock, history[0].Kind)
	assert.Equal(t, "NVDA", history[0].Counterparty)

	accounts, err := c.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	rates, err := c.Rates(ctx)
	require.NoError(t, err)
	assert.True(t, rates["USD_RUB"].Equal(decimal.RequireFromString("92.5")))

	trades, err := c.Trades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.SideBuy, trades[0].Side)

	stats, err := c.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Buys)

	journal, err := c.Journal(ctx, 0)
	require.NoError(t, err)
	require.Len(t, journal, 1)
	assert.True(t, journal[0].Notional.Equal(decimal.NewFromInt(1580)))

	_, err = c.Sell(ctx, "NVDA", 5, usd)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "insufficient shares")

	require.NoError(t, c.Logout(ctx))
	_, err = c.Accounts(ctx)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestDoRequest_Retries(t *testing.T) {
	t.Run("RetriesServerErrors", func(t *testing.T) {
		// Arrange
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"error","message":"busy"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"ok","feed_running":true,"uptime":"1s"}`))
		})
		c, server := setupTestClient(handler)
		defer server.Close()

		// Act
		health, err := c.Health(context.Background())

		// Assert
		require.NoError(t, err)
		assert.True(t, health.FeedRunning)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"status":"error","message":"rate limit exceeded"}`))
		})
		c, server := setupTestClient(handler)
		defer server.Close()

		_, err := c.Quotes(context.Background())

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("DoesNotRetryClientErrors", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":"error","message":"invalid amount"}`))
		})
		c, server := setupTestClient(handler)
		defer server.Close()

		_, err := c.Deposit(context.Background(), 100001, decimal.NewFromInt(-1))

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "invalid amount", apiErr.Message)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("DoesNotReplayPostAfterDroppedConnection", func(t *testing.T) {
		// Arrange
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
		})
		c, server := setupTestClient(handler)
		defer server.Close()

		// Act
		_, err := c.Deposit(context.Background(), 100001, decimal.NewFromInt(500))

		// Assert
		assert.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("DoesNotReplayPostOnServerError", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"error","message":"busy"}`))
		})
		c, server := setupTestClient(handler)
		defer server.Close()

		_, err := c.Buy(context.Background(), "AAPL", 1, 100001)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("RetriesPostOnRateLimit", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"status":"error","message":"rate limit exceeded"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"ok","new_balance":"500"}`))
		})
		c, server := setupTestClient(handler)
		defer server.Close()

		balance, err := c.Deposit(context.Background(), 100001, decimal.NewFromInt(500))

		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(500)))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("RetriesGetAfterDroppedConnection", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				conn, _, err := w.(http.Hijacker).Hijack()
				if err == nil {
					_ = conn.Close()
				}
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok","accounts":[]}`))
		})
		c, server := setupTestClient(handler)
		defer server.Close()

		_, err := c.Accounts(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("StopsOnContextCancel", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		c, server := setupTestClient(handler)
		defer server.Close()
		c.backoff = time.Hour

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.Health(ctx)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNewClient(t *testing.T) {
	c := NewClient(config.Client{BaseURL: "http://example.invalid", MaxRetries: 0}, zap.NewNop())

	assert.Equal(t, 1, c.maxRetries)
	assert.Equal(t, rate.Inf, c.limiter.Limit())
	assert.Equal(t, "http://example.invalid", c.client.BaseURL)
}
