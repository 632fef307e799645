package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPtr(t *testing.T) {
	p := Ptr("boom")
	assert.Equal(t, "boom", *p)
	assert.Equal(t, "boom", Deref(p))

	var nilStr *string
	assert.Equal(t, "", Deref(nilStr))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "…", Truncate("abc", 1))
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "héé…", Truncate("héééé", 4))
}
