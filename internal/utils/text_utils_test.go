package utils

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateText(t *testing.T) {
	tp := NewTextProcessor(nil)

	assert.Equal(t, "short", tp.TruncateText("short", 10))
	assert.Equal(t, "unbounded", tp.TruncateText("unbounded", 0))
	assert.Equal(t, "abc...", tp.TruncateText("abcdef", 3))

	// "é" is two bytes, cutting inside it must not leave half a rune
	truncated := tp.TruncateText("aé", 2)
	assert.Equal(t, "a...", truncated)
	assert.True(t, utf8.ValidString(truncated))
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(nil)

	assert.Equal(t, "valid", tp.SanitizeUTF8("valid"))
	assert.Equal(t, "ab", tp.SanitizeUTF8("a\xffb"))
}

func TestHeaderValue(t *testing.T) {
	tp := NewTextProcessor(nil)

	assert.Equal(t, "a.jpg declared image/jpeg  Bcc: x", tp.HeaderValue("a.jpg declared image/jpeg\r\nBcc: x", 100))
	assert.Equal(t, "trimmed", tp.HeaderValue("\ttrimmed\n", 100))
	assert.Equal(t, "abc...", tp.HeaderValue("abcdef", 3))
}
