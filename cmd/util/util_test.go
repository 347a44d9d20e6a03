package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapString(t *testing.T) {
	text := "The data endpoint of the owner. Multiple endpoints can be specified as a comma-separated list"
	wrapped := WrapString(text)

	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), Wrap, line)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(wrapped))
	assert.Equal(t, "", WrapString("   "))

	long := strings.Repeat("x", Wrap+10)
	assert.Equal(t, long, WrapString(long))
}
