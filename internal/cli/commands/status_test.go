package commands

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"shorter than limit", "connection refused", 40, "connection refused"},
		{"exactly at limit", "abcde", 5, "abcde"},
		{"over limit", "abcdefghij", 8, "abcde..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.n))
		})
	}

	t.Run("multi-byte characters stay intact", func(t *testing.T) {
		in := strings.Repeat("å", 30) // 2 bytes per rune
		got := truncate(in, 10)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, strings.Repeat("å", 7)+"...", got)
	})
}
