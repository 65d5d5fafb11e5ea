// Package moneypkg provides parsing and validation of money amounts.
package moneypkg

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits a money amount may carry.
const Scale = 2

// ErrInvalidAmount indicates an amount that is not a positive decimal with at most Scale fractional digits.
var ErrInvalidAmount = errors.New("invalid amount")

// Plain decimal notation with at most two fractional digits, the same mask the apps apply to input.
var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)

// Parse converts a user supplied amount into a decimal.
//
// The amount must be a finite positive number with at most Scale fractional digits.
func Parse(amount string) (decimal.Decimal, error) {
	if !amountPattern.MatchString(amount) {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}

	if d.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	return d, nil
}

// ValidAmount is a go-playground validator for request amounts.
var ValidAmount validator.Func = func(fl validator.FieldLevel) bool {
	if amount, ok := fl.Field().Interface().(string); ok {
		_, err := Parse(amount)
		return err == nil
	}

	return false
}
