package sym

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	assert.Equal(t, DB, For("db"))
	assert.Equal(t, AT, For("history"))
	assert.Empty(t, For("unknown"))
}

func TestGlyphsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, g := range []string{Pulse, PulseOpen, PulseClose, DB, AM, AT} {
		assert.False(t, seen[g], "duplicate glyph %q", g)
		seen[g] = true
	}
}
