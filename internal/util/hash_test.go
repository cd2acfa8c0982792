package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("hello"))
	b := HashBytes([]byte("hello"))
	c := HashBytes([]byte("hello!"))

	assert.Equal(t, a, b, "identical payloads must hash identically")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64, "sha-256 hex digest is 64 chars")
}

func TestHashTextMatchesBytes(t *testing.T) {
	assert.Equal(t, HashBytes([]byte("снег")), HashText("снег"))
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short text unchanged", "hello", 120, "hello"},
		{"whitespace collapsed", "a\n\tb   c", 120, "a b c"},
		{"truncated with ellipsis", "abcdefghij", 5, "abcd…"},
		{"multibyte runes counted once", "ééééé", 5, "ééééé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preview(tt.in, tt.max))
		})
	}
}
