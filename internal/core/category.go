package core

import "strings"

// Category is one of the fixed expense categories.
type Category string

const (
	CategorySubscriptions Category = "subscriptions"
	CategoryUtilities     Category = "utilities"
	CategoryHousing       Category = "housing"
	CategoryInsurance     Category = "insurance"
	CategoryTransport     Category = "transport"
	CategoryHealth        Category = "health"
	CategoryEntertainment Category = "entertainment"
	CategoryEducation     Category = "education"
	CategoryLoans         Category = "loans"
	CategoryOther         Category = "other"
)

// DefaultCategory is preselected in the add expense dialog.
const DefaultCategory = CategorySubscriptions

var categories = []Category{
	CategorySubscriptions,
	CategoryUtilities,
	CategoryHousing,
	CategoryInsurance,
	CategoryTransport,
	CategoryHealth,
	CategoryEntertainment,
	CategoryEducation,
	CategoryLoans,
	CategoryOther,
}

// Categories returns the known categories in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", ErrUnknownVariant
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// Label returns the category with its first letter capitalized.
func (c Category) Label() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}
