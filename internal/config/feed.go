package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"yellowcore-go/internal/models"
	"yellowcore-go/internal/pricefeed"
)

// PriceFeedOptions converts the feed section into pricefeed.Options. Viper
// lowercases map keys, so symbols and currency codes are uppercased here.
func (f Feed) PriceFeedOptions() (pricefeed.Options, error) {
	ref, ok := models.ParseCurrency(strings.ToUpper(f.ReferenceCurrency))
	if !ok {
		return pricefeed.Options{}, fmt.Errorf("reference currency %q: %w", f.ReferenceCurrency, models.ErrUnsupportedCurrency)
	}

	opts := pricefeed.Options{
		Interval:        f.Interval,
		StockVolatility: f.StockVolatility,
		FXVolatility:    f.FXVolatility,
		Reference:       ref,
		Quotes:          make(map[string]decimal.Decimal, len(f.Quotes)),
		Rates:           make(map[models.Currency]decimal.Decimal, len(f.Rates)),
		Seed:            f.Seed,
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	for symbol, price := range f.Quotes {
		opts.Quotes[strings.ToUpper(symbol)] = decimal.NewFromFloat(price)
	}
	for code, rate := range f.Rates {
		c, ok := models.ParseCurrency(strings.ToUpper(code))
		if !ok {
			return pricefeed.Options{}, fmt.Errorf("rate for %q: %w", code, models.ErrUnsupportedCurrency)
		}
		opts.Rates[c] = decimal.NewFromFloat(rate)
	}
	return opts, nil
}
