// Package phone normalises Omani phone numbers and builds messaging deep
// links.
package phone

import (
	"errors"
	"net/url"
	"strings"
)

// CountryCode is the Oman dialling prefix.
const CountryCode = "968"

// ErrMissingPhone is returned when a number has no digits.
var ErrMissingPhone = errors.New("missing phone number")

// Normalize keeps the digits of raw. Eight digit local numbers get the
// country code; nine digit numbers with a leading 0 have it replaced by the
// country code. Anything else is returned as digits unchanged.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 8:
		return CountryCode + digits
	case len(digits) == 9 && digits[0] == '0':
		return CountryCode + digits[1:]
	default:
		return digits
	}
}

// Links are the three ways a notice can be sent.
type Links struct {
	WhatsAppDesktop string `json:"whatsappDesktop"`
	WhatsAppWeb     string `json:"whatsappWeb"`
	SMS             string `json:"sms"`
}

// BuildLinks normalises raw and returns every deep link for text.
func BuildLinks(raw, text string) (Links, error) {
	number := Normalize(raw)
	if number == "" {
		return Links{}, ErrMissingPhone
	}
	return Links{
		WhatsAppDesktop: WhatsAppDesktopLink(number, text),
		WhatsAppWeb:     WhatsAppWebLink(number, text),
		SMS:             SMSLink(number, text),
	}, nil
}

// WhatsAppDesktopLink opens the installed WhatsApp client.
func WhatsAppDesktopLink(number, text string) string {
	return "whatsapp://send?phone=" + number + "&text=" + encode(text)
}

// WhatsAppWebLink is the browser and mobile fallback.
func WhatsAppWebLink(number, text string) string {
	return "https://api.whatsapp.com/send?phone=" + number + "&text=" + encode(text)
}

// SMSLink opens the SMS composer.
func SMSLink(number, text string) string {
	return "sms:" + number + "?body=" + encode(text)
}

// encode escapes like encodeURIComponent: spaces become %20, not +.
func encode(text string) string {
	return strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}
