// Package phone normalizes user-supplied phone numbers to E.164.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country prefix.
const DefaultRegion = "BD"

// Normalize returns the E.164 form of raw, parsed with region as the default
// country. Input that does not parse is returned trimmed but otherwise as is,
// so a lookup on it simply finds nothing.
func Normalize(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if region == "" {
		region = DefaultRegion
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// IsValid reports whether raw is a dialable number for region.
func IsValid(raw, region string) bool {
	if region == "" {
		region = DefaultRegion
	}
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}
