package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DefaultCurrency is the storefront currency used when the server contract
// returns a bare numeric price without a currency code.
var DefaultCurrency = currency.MustParseISO("XOF")

type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// NewMoney builds a Money in the default storefront currency.
func NewMoney(amount decimal.Decimal) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}

func ParseMoney(amount decimal.Decimal, currencyCode string) (Money, error) {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return Money{}, fmt.Errorf("currency[%s] is not valid: %w", currencyCode, err)
	}

	return Money{Amount: amount, Currency: unit}, nil
}

// MulQty returns the line total for quantity units at this unit price.
func (m Money) MulQty(quantity int) Money {
	return Money{
		Amount:   m.Amount.Mul(decimal.NewFromInt(int64(quantity))),
		Currency: m.Currency,
	}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency.String()
}
