// Package types provides money helpers shared by the ledger and settlement.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Extend returns price × quantity.
func Extend(price Money, quantity int64) Money {
	return price.Mul(decimal.NewFromInt(quantity))
}

// WeightedAverage blends the cost of units already on hand with a receipt.
// When nothing usable is on hand the receipt cost wins.
func WeightedAverage(onHand int64, currentAvg Money, received int64, receivedCost Money) Money {
	if onHand <= 0 || currentAvg.IsZero() {
		return receivedCost
	}
	total := Extend(currentAvg, onHand).Add(Extend(receivedCost, received))
	return total.Div(decimal.NewFromInt(onHand + received)).Round(4)
}
