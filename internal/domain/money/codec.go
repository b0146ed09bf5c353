// Package money converts between integer minor units (as persisted) and decimal
// major units (as displayed and entered), and parses and formats pt-BR currency text.
//
// Rounding is half away from zero everywhere in this module, which equals
// round-half-up for the non-negative amounts the ledger stores.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// MinorUnitsPerMajor is the number of cents in one real
const MinorUnitsPerMajor = 100

// CurrencySymbol prefixes formatted amounts
const CurrencySymbol = "R$"

var (
	// ErrEmptyAmount is returned when a strict parse receives blank input
	ErrEmptyAmount = errors.New("amount is empty")
	// ErrInvalidAmount is returned when a strict parse cannot read a number
	ErrInvalidAmount = errors.New("amount is not a valid number")
	// ErrAmountOutOfRange is returned for amounts whose minor units do not fit an int64
	ErrAmountOutOfRange = errors.New("amount is out of range")

	hundred  = decimal.NewFromInt(MinorUnitsPerMajor)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
	printer = message.NewPrinter(language.BrazilianPortuguese)
)

// ToMinor converts a major-unit amount to minor units, rounding half away from zero.
// Amounts outside InRange saturate at the int64 bounds; validate with InRange or
// use ToMinorChecked where the amount comes from user input.
func ToMinor(major decimal.Decimal) int64 {
	minor := major.Mul(hundred).Round(0)
	switch {
	case minor.GreaterThan(maxMinor):
		return math.MaxInt64
	case minor.LessThan(minMinor):
		return math.MinInt64
	}
	return minor.IntPart()
}

// ToMinorChecked is ToMinor returning ErrAmountOutOfRange instead of saturating
func ToMinorChecked(major decimal.Decimal) (int64, error) {
	if !InRange(major) {
		return 0, ErrAmountOutOfRange
	}
	return ToMinor(major), nil
}

// InRange reports whether major converts to minor units without overflow
func InRange(major decimal.Decimal) bool {
	minor := major.Mul(hundred).Round(0)
	return !minor.GreaterThan(maxMinor) && !minor.LessThan(minMinor)
}

// ToMajor converts minor units back to an exact major-unit amount
func ToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// ParseLocaleCurrency reads user-typed pt-BR currency such as "R$ 1.234,56".
// It fails closed: unparsable or out-of-range input yields 0, so callers must not read a 0 from a
// non-empty input as a legitimate amount.
func ParseLocaleCurrency(input string) int64 {
	minor, err := ParseLocaleCurrencyStrict(input)
	if err != nil {
		return 0
	}
	return minor
}

// ParseLocaleCurrencyStrict normalizes like ParseLocaleCurrency but reports
// blank, unparsable or out-of-range input as an error.
func ParseLocaleCurrencyStrict(input string) (int64, error) {
	normalized := normalize(input)
	if normalized == "" {
		return 0, ErrEmptyAmount
	}

	major, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return ToMinorChecked(major)
}

// normalize strips the currency symbol and whitespace, drops thousands separators
// and turns the decimal comma into a dot.
func normalize(input string) string {
	stripped := strings.Map(func(r rune) rune {
		if r == 'R' || r == '$' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)

	stripped = strings.ReplaceAll(stripped, ".", "")
	return strings.ReplaceAll(stripped, ",", ".")
}

// Format renders minor units as pt-BR currency, e.g. 2550 -> "R$ 25,50"
func Format(minor int64) string {
	major := ToMajor(minor)
	if major.IsNegative() {
		return "-" + CurrencySymbol + " " + FormatNumber(major.Abs())
	}
	return CurrencySymbol + " " + FormatNumber(major)
}

// FormatNumber renders a major-unit amount with pt-BR separators, e.g. "1.234,56".
// Digits are taken from the decimal, never from a float, so every int64 minor
// amount renders exactly.
func FormatNumber(major decimal.Decimal) string {
	rounded := major.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}

	whole := rounded.Truncate(0)
	cents := rounded.Sub(whole).Mul(hundred).IntPart()

	var wholeText string
	if whole.LessThanOrEqual(maxMinor) {
		wholeText = printer.Sprint(number.Decimal(whole.IntPart()))
	} else {
		wholeText = whole.String()
	}
	return fmt.Sprintf("%s%s,%02d", sign, wholeText, cents)
}

// IsValidAmount reports whether a major-unit amount can be stored
func IsValidAmount(major decimal.Decimal) bool {
	return !major.IsNegative()
}
