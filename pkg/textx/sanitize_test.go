package textx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"control chars", "he\x00llo\nwo\x7frld\t!", "hello\nworld\t!"},
		{"crlf", "  line one\r\nline two  ", "line one\nline two"},
		{"nfc", "Be\u0301ne\u0301fices", "B\u00e9n\u00e9fices"},
		{"invalid utf8", "ok\xffay", "okay"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SanitizeText(tt.in))
		})
	}
}

func TestTrimSentence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", TrimSentence(" short ", 10))
	assert.Equal(t, "Good opening. Clear benefits.", TrimSentence("Good opening. Clear benefits. Weak closing on price objection", 40))
	assert.Equal(t, "abcdefghij…", TrimSentence(strings.Repeat("abcdefghij", 3), 10))
	assert.Equal(t, "ééé…", TrimSentence("éééééé", 3))
}
