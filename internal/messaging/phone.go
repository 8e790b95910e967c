package messaging

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers captured without a country prefix.
var DefaultRegion = "ES"

// NormalizeE164 returns value in E.164, or "" when it is not a valid number.
// WhatsApp ids carry the country code without a leading plus, so a number
// that fails in the default region is retried as international.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "00") {
		value = "+" + strings.TrimPrefix(value, "00")
	}
	if strings.HasPrefix(value, "+") {
		return parseE164(value, "")
	}
	if out := parseE164(value, DefaultRegion); out != "" {
		return out
	}
	return parseE164("+"+value, "")
}

func parseE164(value, region string) string {
	num, err := phonenumbers.Parse(value, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
