package pricefeed

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yellowcore-go/internal/models"
)

func newTestFeed(t *testing.T, interval time.Duration) *Feed {
	t.Helper()
	opts := DefaultOptions()
	opts.Interval = interval
	opts.Seed = 42
	f, err := New(zap.NewNop(), opts)
	require.NoError(t, err)
	t.Cleanup(f.Stop)
	return f
}

func TestNew_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"Zero interval", func(o *Options) { o.Interval = 0 }},
		{"Reference missing", func(o *Options) { delete(o.Rates, models.USD) }},
		{"Reference not one", func(o *Options) { o.Rates[models.USD] = decimal.NewFromInt(2) }},
		{"Non-positive quote", func(o *Options) { o.Quotes["BAD"] = decimal.Zero }},
		{"Non-positive rate", func(o *Options) { o.Rates[models.EUR] = decimal.NewFromInt(-1) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mutate(&opts)
			_, err := New(zap.NewNop(), opts)
			assert.Error(t, err)
		})
	}
}

func TestGetQuote(t *testing.T) {
	f := newTestFeed(t, time.Hour)

	assert.True(t, decimal.RequireFromString("178.50").Equal(f.GetQuote("AAPL")))
	assert.True(t, f.GetQuote("FAKE").IsZero())

	all := f.GetAllQuotes()
	assert.Len(t, all, 8)
	all["AAPL"] = decimal.NewFromInt(1)
	assert.True(t, decimal.RequireFromString("178.50").Equal(f.GetQuote("AAPL")))
}

func TestGetRate(t *testing.T) {
	f := newTestFeed(t, time.Hour)

	rate, err := f.GetRate(models.RUB, models.RUB)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	rate, err = f.GetRate(models.USD, models.RUB)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("92.5")))

	rate, err = f.GetRate(models.RUB, models.USD)
	require.NoError(t, err)
	assert.InDelta(t, 1/92.5, rate.InexactFloat64(), 1e-12)

	// EUR -> RUB has no explicit entry; it goes through USD.
	rate, err = f.GetRate(models.EUR, models.RUB)
	require.NoError(t, err)
	assert.InDelta(t, 92.5/0.92, rate.InexactFloat64(), 1e-9)
}

func TestGetRate_UnsupportedCurrency(t *testing.T) {
	opts := DefaultOptions()
	delete(opts.Rates, models.EUR)
	f, err := New(zap.NewNop(), opts)
	require.NoError(t, err)

	_, err = f.GetRate(models.USD, models.EUR)
	assert.ErrorIs(t, err, models.ErrUnsupportedCurrency)
	_, err = f.GetRate(models.EUR, models.USD)
	assert.ErrorIs(t, err, models.ErrUnsupportedCurrency)
}

func TestTick_StaysWithinBounds(t *testing.T) {
	f := newTestFeed(t, time.Hour)
	quotes := f.GetAllQuotes()
	rates := f.GetRates()

	f.Tick()

	for symbol, before := range quotes {
		after := f.GetQuote(symbol)
		change := after.Div(before).Sub(decimal.NewFromInt(1)).Abs().InexactFloat64()
		assert.LessOrEqual(t, change, 0.0301, symbol)
	}
	for c, before := range rates {
		after := f.GetRates()[c]
		if c == models.USD {
			assert.True(t, after.Equal(before))
			continue
		}
		change := after.Div(before).Sub(decimal.NewFromInt(1)).Abs().InexactFloat64()
		assert.LessOrEqual(t, change, 0.00501, c.String())
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	f := newTestFeed(t, time.Hour)

	assert.False(t, f.Running())
	f.Stop()

	f.Start()
	f.Start()
	assert.True(t, f.Running())

	f.Stop()
	f.Stop()
	assert.False(t, f.Running())

	f.Start()
	assert.True(t, f.Running())
	f.Stop()
}

func TestStop_WakesUpdaterImmediately(t *testing.T) {
	f := newTestFeed(t, time.Hour)
	f.Start()

	stopped := make(chan struct{})
	go func() {
		f.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop waited for the next tick")
	}
}

func TestUpdater_MovesPricesAndHaltsOnStop(t *testing.T) {
	f := newTestFeed(t, 5*time.Millisecond)
	seed := f.GetAllQuotes()

	f.Start()
	assert.Eventually(t, func() bool {
		return !f.GetQuote("AAPL").Equal(seed["AAPL"])
	}, time.Second, 5*time.Millisecond)
	f.Stop()

	frozen := f.GetAllQuotes()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, f.GetAllQuotes())
}

func TestConcurrentReads(t *testing.T) {
	f := newTestFeed(t, time.Millisecond)
	f.Start()

	var reads atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NotEmpty(t, f.GetAllQuotes())
				_, err := f.GetRate(models.EUR, models.RUB)
				assert.NoError(t, err)
				reads.Add(1)
			}
		}()
	}
	wg.Wait()
	f.Stop()

	assert.Equal(t, int32(1000), reads.Load())
}
