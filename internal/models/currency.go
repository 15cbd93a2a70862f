package models

import "fmt"

// Currency is an ISO code of a currency an account can be held in.
type Currency int

const (
	RUB Currency = iota
	USD
	EUR
)

// Currencies lists every supported currency.
var Currencies = []Currency{RUB, USD, EUR}

func (c Currency) String() string {
	switch c {
	case RUB:
		return "RUB"
	case USD:
		return "USD"
	case EUR:
		return "EUR"
	}
	return "???"
}

// ParseCurrency maps an ISO code back to a Currency.
func ParseCurrency(s string) (Currency, bool) {
	switch s {
	case "RUB":
		return RUB, true
	case "USD":
		return USD, true
	case "EUR":
		return EUR, true
	}
	return 0, false
}

func (c Currency) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Currency) UnmarshalText(text []byte) error {
	parsed, ok := ParseCurrency(string(text))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedCurrency, string(text))
	}
	*c = parsed
	return nil
}
