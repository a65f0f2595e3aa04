package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripTags(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "You have a new message.", "You have a new message."},
		{"simple tags removed", "<p>New reply</p>", "New reply"},
		{"nested markup", "<a href=\"/post/9\"><strong>Alice</strong> replied</a>", "Alice replied"},
		{"surrounding whitespace trimmed", "<p> padded </p>", "padded"},
		{"unclosed tag swallows rest", "before <a href=", "before"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripTags(tt.input))
		})
	}
}
