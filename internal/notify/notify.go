// Package notify builds owner notifications: sms: deep links handed to the
// device, and text messages sent through an SMS provider.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Digits strips everything but ASCII digits from phone.
func Digits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhone formats typed digits as (XXX) XXX-XXXX, leaving partial
// numbers partially formatted. Digits past ten are dropped.
func FormatPhone(value string) string {
	d := Digits(value)
	switch {
	case len(d) < 4:
		return d
	case len(d) < 7:
		return fmt.Sprintf("(%s) %s", d[:3], d[3:])
	}
	return fmt.Sprintf("(%s) %s-%s", d[:3], d[3:6], d[6:min(len(d), 10)])
}

// SMSLink returns the sms: URI that opens a prefilled text message.
//
// Example:
//
//	SMSLink("(555) 123-4567", "Hi!")
//	// sms:5551234567?&body=Hi%21
func SMSLink(phone, body string) string {
	return "sms:" + Digits(phone) + "?&body=" + escapeComponent(body)
}

// escapeComponent percent-encodes s for a query value, spaces as %20.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// SlotMessage announces that a time slot is done for the dogs.
func SlotMessage(slotLabel string, dogs []string) string {
	return fmt.Sprintf("Pawsitive Update: The %s is complete for %s! 🐾", slotLabel, strings.Join(dogs, ", "))
}

// ActivityMessage announces one completed activity. pet may be empty.
func ActivityMessage(activity, pet string) string {
	if pet == "" {
		return fmt.Sprintf("Pawsitive update: %q has been completed.", activity)
	}
	return fmt.Sprintf("Pawsitive update: %q has been completed for %s.", activity, pet)
}

// Sender delivers a text message.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}
