// Package push delivers notifications to mobile devices through a queue
// and the AWS SNS gateway, and maintains the unseen badge count shown on
// the app icon.
package push

import (
	"strings"
	"time"
)

// Payload is the push message sent for one recipient device.
type Payload struct {
	Title    string    `json:"title,omitempty"`
	Body     string    `json:"body"`
	Badge    int       `json:"badge"`
	Redirect string    `json:"redirect,omitempty"`
	Created  time.Time `json:"created"`

	// Silent payloads update the badge without alerting the device.
	Silent bool `json:"silent,omitempty"`
}

// StripTags removes HTML markup from a message so device notifications show
// plain text. Unclosed tags swallow the rest of the string.
func StripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
