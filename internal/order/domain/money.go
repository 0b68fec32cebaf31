package domain

import "fmt"

// Currency is an ISO 4217 currency code.
type Currency string

const (
	CurrencyCNY Currency = "CNY"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
)

func ParseCurrency(code string) (Currency, error) {
	switch Currency(code) {
	case CurrencyCNY, CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyJPY:
		return Currency(code), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
}

// Money is an amount in the currency's minor unit (fen, cents).
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

func NewMoney(amount int64, currency Currency) (Money, error) {
	if amount < 0 {
		return Money{}, ErrInvalidAmount
	}
	return Money{Amount: amount, Currency: currency}, nil
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) String() string {
	if m.Currency == CurrencyJPY {
		return fmt.Sprintf("%d %s", m.Amount, m.Currency)
	}
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}
