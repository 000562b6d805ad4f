package enums

import "fmt"

// Currency is the single supported minor-unit denomination.
type Currency string

const (
	CurrencyUSD Currency = "usd"
)

var validCurrencys = []Currency{
	CurrencyUSD,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencys {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCurrency converts raw input into a Currency.
func ParseCurrency(value string) (Currency, error) {
	for _, candidate := range validCurrencys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
