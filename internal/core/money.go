// Package core provides money parsing and formatting utilities.
//
// Amounts travel as plain numbers (lira with an optional kuruş fraction),
// the same shape the stored documents use.
package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var trPrinter = message.NewPrinter(language.Turkish)

// FormatLira formats an amount with tr-TR grouping: 1234.5 -> "1.234,5".
// The currency sign is left to the caller.
func FormatLira(amount float64) string {
	return trPrinter.Sprintf("%v", number.Decimal(amount))
}

// RoundKurus rounds half away from zero to two decimals.
func RoundKurus(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// ParseAmount converts a user supplied amount to lira.
//
// Accepted forms:
//
//	ParseAmount("1234.56")  -> 1234.56
//	ParseAmount("1234,56")  -> 1234.56
//	ParseAmount("1.234,56") -> 1234.56
//	ParseAmount("1,234.56") -> 1234.56
//
// Negative values and anything that is not a number are rejected. Zero is allowed.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "₺"))
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return 0, ErrInvalidAmount
		}
	}

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// The right-most separator is the decimal one; the other groups thousands.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return 0, ErrInvalidAmount
		}
		s = strings.Replace(s, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return 0, ErrInvalidAmount
		}
	}
	if strings.Count(s, ".") > 1 || strings.HasSuffix(s, ".") && len(s) == 1 {
		return 0, ErrInvalidAmount
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, ErrInvalidAmount
	}
	return RoundKurus(v), nil
}
