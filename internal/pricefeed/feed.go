// Package pricefeed simulates a live market: stock quotes and currency rates
// that drift on a fixed interval while being read by many callers.
package pricefeed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"yellowcore-go/internal/models"
)

// Options holds the tunables of a Feed.
type Options struct {
	Interval        time.Duration
	StockVolatility float64
	FXVolatility    float64
	Reference       models.Currency
	Quotes          map[string]decimal.Decimal
	// Rates are units of each currency per one unit of Reference.
	Rates map[models.Currency]decimal.Decimal
	Seed  int64
}

// DefaultOptions returns the reference market: eight US stocks, USD-based rates,
// ±3% quote moves and ±0.5% rate moves every two seconds.
func DefaultOptions() Options {
	return Options{
		Interval:        2 * time.Second,
		StockVolatility: 0.03,
		FXVolatility:    0.005,
		Reference:       models.USD,
		Quotes: map[string]decimal.Decimal{
			"AAPL":  decimal.RequireFromString("178.50"),
			"GOOGL": decimal.RequireFromString("140.20"),
			"TSLA":  decimal.RequireFromString("245.00"),
			"AMZN":  decimal.RequireFromString("185.60"),
			"MSFT":  decimal.RequireFromString("415.30"),
			"NFLX":  decimal.RequireFromString("620.00"),
			"META":  decimal.RequireFromString("510.40"),
			"NVDA":  decimal.RequireFromString("790.00"),
		},
		Rates: map[models.Currency]decimal.Decimal{
			models.USD: decimal.NewFromInt(1),
			models.RUB: decimal.RequireFromString("92.5"),
			models.EUR: decimal.RequireFromString("0.92"),
		},
		Seed: time.Now().UnixNano(),
	}
}

// Feed owns the current quotes and the exchange-rate table.
type Feed struct {
	logger    *zap.Logger
	interval  time.Duration
	stockVol  float64
	fxVol     float64
	reference models.Currency

	mu     sync.RWMutex
	quotes map[string]decimal.Decimal
	rates  map[models.Currency]decimal.Decimal
	rng    *rand.Rand

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a stopped feed seeded from opts.
func New(logger *zap.Logger, opts Options) (*Feed, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("feed interval must be positive, got %s", opts.Interval)
	}
	if r, ok := opts.Rates[opts.Reference]; !ok || !r.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("reference currency %s must have rate 1", opts.Reference)
	}

	f := &Feed{
		logger:    logger.Named("pricefeed"),
		interval:  opts.Interval,
		stockVol:  opts.StockVolatility,
		fxVol:     opts.FXVolatility,
		reference: opts.Reference,
		quotes:    make(map[string]decimal.Decimal, len(opts.Quotes)),
		rates:     make(map[models.Currency]decimal.Decimal, len(opts.Rates)),
		rng:       rand.New(rand.NewSource(opts.Seed)),
	}
	for symbol, price := range opts.Quotes {
		if !price.IsPositive() {
			return nil, fmt.Errorf("seed quote for %s must be positive, got %s", symbol, price)
		}
		f.quotes[symbol] = price
	}
	for c, rate := range opts.Rates {
		if !rate.IsPositive() {
			return nil, fmt.Errorf("seed rate for %s must be positive, got %s", c, rate)
		}
		f.rates[c] = rate
	}
	return f, nil
}

// Reference returns the currency every rate is expressed against.
func (f *Feed) Reference() models.Currency {
	return f.reference
}

// GetQuote returns the current price of symbol in the reference currency,
// or zero when the symbol is not tradable.
func (f *Feed) GetQuote(symbol string) decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.quotes[symbol]
}

// GetAllQuotes returns a snapshot of every quote.
func (f *Feed) GetAllQuotes() map[string]decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(f.quotes))
	for symbol, price := range f.quotes {
		out[symbol] = price
	}
	return out
}

// GetRates returns a snapshot of the reference-denominated rate table.
func (f *Feed) GetRates() map[models.Currency]decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[models.Currency]decimal.Decimal, len(f.rates))
	for c, rate := range f.rates {
		out[c] = rate
	}
	return out
}

// GetRate returns how many units of to one unit of from buys.
func (f *Feed) GetRate(from, to models.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	fromRate, ok := f.rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", models.ErrUnsupportedCurrency, from)
	}
	toRate, ok := f.rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", models.ErrUnsupportedCurrency, to)
	}
	return toRate.Div(fromRate), nil
}

// Start launches the background updater. Calling it on a running feed is a no-op.
func (f *Feed) Start() {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	if f.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx, f.done)

	f.logger.Info("Price feed started", zap.Duration("interval", f.interval))
}

// Stop wakes the updater and returns once it has exited. No update runs after
// Stop returns. Calling it on a stopped feed is a no-op.
func (f *Feed) Stop() {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
	f.cancel = nil
	f.done = nil

	f.logger.Info("Price feed stopped")
}

// Running reports whether the updater is active.
func (f *Feed) Running() bool {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()
	return f.cancel != nil
}

func (f *Feed) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A stop that raced the tick wins.
			if ctx.Err() != nil {
				return
			}
			f.Tick()
		}
	}
}

// Tick perturbs every quote and every non-reference rate in one write section.
func (f *Feed) Tick() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for symbol, price := range f.quotes {
		if next := price.Mul(f.factor(f.stockVol)).Round(4); next.IsPositive() {
			f.quotes[symbol] = next
		}
	}
	for c, rate := range f.rates {
		if c == f.reference {
			continue
		}
		if next := rate.Mul(f.factor(f.fxVol)).Round(6); next.IsPositive() {
			f.rates[c] = next
		}
	}

	f.logger.Debug("Market updated", zap.Int("quotes", len(f.quotes)))
}

// factor draws 1+x with x uniform in [-vol, vol). Callers hold mu.
func (f *Feed) factor(vol float64) decimal.Decimal {
	pct := (f.rng.Float64()*2 - 1) * vol
	return decimal.NewFromFloat(1 + pct)
}
