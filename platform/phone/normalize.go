// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country prefix.
const DefaultRegion = "US"

// ErrInvalidNumber is returned by Parse for numbers that are not dialable.
var ErrInvalidNumber = errors.New("invalid phone number")

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	return NormalizeE164In(input, DefaultRegion)
}

// NormalizeE164In is NormalizeE164 with an explicit default region.
func NormalizeE164In(input, region string) string {
	normalized, err := Parse(input, region)
	if err != nil {
		return strings.TrimSpace(input)
	}
	return normalized
}

// Parse returns the E.164 form of input or ErrInvalidNumber.
func Parse(input, region string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrInvalidNumber
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return "", ErrInvalidNumber
	}

	if !phonenumbers.IsValidNumber(number) {
		return "", ErrInvalidNumber
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}

// Variants returns the spellings under which a number is commonly stored in
// a CRM: E.164, national digits, and formatted national.
func Variants(e164 string) []string {
	number, err := phonenumbers.Parse(e164, DefaultRegion)
	if err != nil {
		return []string{e164}
	}
	national := phonenumbers.Format(number, phonenumbers.NATIONAL)
	digits := phonenumbers.GetNationalSignificantNumber(number)

	seen := map[string]bool{}
	out := make([]string, 0, 3)
	for _, v := range []string{e164, digits, national} {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
