package core

// Money parsing: locale formatted currency strings to minor units (cents)
// and back to display form.

import (
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in minor units.
type Money struct {
	Cents int64
}

// maxSafeUnits prevents overflow when multiplying by 100.
const maxSafeUnits = (1<<63 - 1) / 100

// ParseAmountToCents converts a locale formatted currency string to cents.
//
// Currency symbols and whitespace are ignored. When both '.' and ',' appear the
// last one is the decimal separator and the other groups thousands. When only
// one separator kind appears once it is the decimal separator; repeated, it
// groups thousands. Rounding is half-up on the third decimal digit.
//
// Examples:
//
//	ParseAmountToCents("15.49")     -> 1549, nil
//	ParseAmountToCents("15,49")     -> 1549, nil
//	ParseAmountToCents("$1,234.56") -> 123456, nil
//	ParseAmountToCents("1.234,56")  -> 123456, nil
//	ParseAmountToCents("1.005")     -> 101, nil (rounds up)
//	ParseAmountToCents("-3")        -> 0, ErrOutOfRange
func ParseAmountToCents(s string) (int64, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) || r == '\'' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, ErrInvalidNumber
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart, fracPart, err := splitDecimal(s)
	if err != nil {
		return 0, err
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || iv > maxSafeUnits {
		return 0, ErrInvalidNumber
	}

	// First two fractional digits, then half-up rounding on the third.
	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			frac += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				frac++
			}
		}
	}

	cents := iv*100 + frac
	if cents < 0 {
		return 0, ErrInvalidNumber
	}
	if negative && cents > 0 {
		return 0, ErrOutOfRange
	}
	return cents, nil
}

// splitDecimal separates s into integer digits and fractional digits,
// removing thousands separators.
func splitDecimal(s string) (string, string, error) {
	if s == "" {
		return "", "", ErrInvalidNumber
	}
	for _, r := range s {
		if !isDigit(r) && r != '.' && r != ',' {
			return "", "", ErrInvalidNumber
		}
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	var decimal, group rune
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			decimal, group = '.', ','
		} else {
			decimal, group = ',', '.'
		}
	case dots == 1:
		decimal = '.'
	case commas == 1:
		decimal = ','
	case dots > 1:
		group = '.'
	case commas > 1:
		group = ','
	}

	intPart, fracPart := s, ""
	if decimal != 0 {
		idx := strings.LastIndexByte(s, byte(decimal))
		intPart, fracPart = s[:idx], s[idx+1:]
		if strings.ContainsRune(fracPart, ',') || strings.ContainsRune(fracPart, '.') {
			return "", "", ErrInvalidNumber
		}
		if strings.ContainsRune(intPart, decimal) {
			return "", "", ErrInvalidNumber
		}
	}
	if group != 0 {
		groups := strings.Split(intPart, string(group))
		if len(groups[0]) == 0 || len(groups[0]) > 3 {
			return "", "", ErrInvalidNumber
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return "", "", ErrInvalidNumber
			}
		}
		intPart = strings.Join(groups, "")
	}

	if intPart == "" && fracPart == "" {
		return "", "", ErrInvalidNumber
	}
	if intPart == "" {
		intPart = "0"
	}
	return intPart, fracPart, nil
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Validate reports ErrOutOfRange for negative amounts.
func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrOutOfRange
	}
	return nil
}

// Units returns the amount in major units as a float64 for display and
// spreadsheet export. Use cents for arithmetic.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount as "1234.56".
func (m Money) String() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	frac := strconv.FormatInt(cents%100, 10)
	if len(frac) == 1 {
		frac = "0" + frac
	}
	return sign + strconv.FormatInt(cents/100, 10) + "." + frac
}
