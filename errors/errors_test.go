package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Equal(t, "wrapped: original", wrapped.Error())
	assert.True(t, Is(wrapped, original))
}

func TestWithHint(t *testing.T) {
	err := WithHintf(New("error"), "try setting value to %d", 42)

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "try setting value to 42", hints[0])
}

func TestStackTrace(t *testing.T) {
	detailed := fmt.Sprintf("%+v", New("with stack"))
	assert.Contains(t, detailed, "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithStack(nil))
	assert.Nil(t, WithHint(nil, "hint"))
}

func TestSentinels(t *testing.T) {
	notFound := NewNotFoundError("entry %s", "abc")
	assert.True(t, IsNotFoundError(notFound))
	assert.False(t, IsInvalidRequestError(notFound))
	assert.Contains(t, notFound.Error(), "entry abc")

	invalid := NewInvalidRequestError("bad prefix %q", "1x")
	assert.True(t, IsInvalidRequestError(invalid))
	assert.False(t, IsNotFoundError(nil))

	wrapped := Wrap(ErrNotConfigured, "history store")
	assert.True(t, Is(wrapped, ErrNotConfigured))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "boom", Message(New("boom")))

	err := Wrap(Wrap(New("disk full"), "write chunk"), "run job")
	assert.Equal(t, "disk full", Message(err))

	std := fmt.Errorf("outer: %w", New("inner"))
	assert.Equal(t, "inner", Message(std))
}

func ExampleWrap() {
	baseErr := New("connection failed")
	err := Wrap(baseErr, "failed to open history database")
	fmt.Println(err)
	// Output: failed to open history database: connection failed
}
